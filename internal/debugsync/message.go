// Package debugsync implements the channel between the dispatcher and a
// debug observer: a thread safe message queue with request and reply
// support, and the message payloads exchanged over it.
package debugsync

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Kind is the type of a message.
type Kind int

// Message kinds.
const (
	KindTimeout  Kind = -1 // returned by a receive that timed out
	KindSnapshot Kind = iota
	KindBlock
	KindResume
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindSnapshot:
		return "snapshot"
	case KindBlock:
		return "block"
	case KindResume:
		return "resume"
	case KindShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var nextID atomic.Uint64

// Message is a queue message. Every message created with NewMessage has a
// unique ID that replies are correlated by.
type Message struct {
	ID      uint64
	Kind    Kind
	Payload any
}

// NewMessage returns a message with a new unique ID.
func NewMessage(kind Kind, payload any) Message {
	return Message{
		ID:      nextID.Add(1),
		Kind:    kind,
		Payload: payload,
	}
}

// Status flag bits of the guest status byte.
const (
	FlagCarry     = 0
	FlagZero      = 1
	FlagInterrupt = 2
	FlagDecimal   = 3
	FlagBreak     = 4
	FlagUnused    = 5
	FlagOverflow  = 6
	FlagNegative  = 7
)

// Snapshot is the guest register state at a block boundary.
type Snapshot struct {
	A      byte
	X      byte
	Y      byte
	SP     byte
	Status byte
	PC     uint16
}

// Flag reports whether a status flag bit is set.
func (s Snapshot) Flag(bit int) bool {
	return s.Status&(1<<bit) != 0
}

// Flags returns the status byte in the NV-BDIZC notation, upper case
// letters mark set flags.
func (s Snapshot) Flags() string {
	const names = "czidb-vn"
	var sb strings.Builder
	for bit := FlagNegative; bit >= FlagCarry; bit-- {
		c := names[bit]
		if s.Flag(bit) && c != '-' {
			c -= 'a' - 'A'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func (s Snapshot) String() string {
	return fmt.Sprintf("PC:%04X A:%02X X:%02X Y:%02X SP:%02X P:%02X %s",
		s.PC, s.A, s.X, s.Y, s.SP, s.Status, s.Flags())
}

// Line is one decoded guest instruction of a block listing.
type Line struct {
	Address uint16
	Bytes   []byte
	Text    string
}

// Listing is the decoded instruction list of a block that is about to run.
type Listing struct {
	Entry uint16
	Lines []Line
}

// Strings returns the display strings of all instructions.
func (l Listing) Strings() []string {
	s := make([]string, len(l.Lines))
	for i, line := range l.Lines {
		s[i] = line.Text
	}
	return s
}
