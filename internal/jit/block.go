package jit

import (
	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/debugsync"
)

// Block is a decoded run of guest instructions starting at Entry.
type Block struct {
	Entry        uint16
	End          uint16 // address following the last instruction
	Instructions []arch.Instruction
}

// Terminated reports whether the last instruction of the block transfers
// control. Blocks closed by the size bound are not terminated and fall
// through to End.
func (b *Block) Terminated() bool {
	if len(b.Instructions) == 0 {
		return false
	}
	return b.Instructions[len(b.Instructions)-1].Terminates()
}

// Listing returns the display listing of the block.
func (b *Block) Listing() debugsync.Listing {
	lines := make([]debugsync.Line, 0, len(b.Instructions))
	for _, ins := range b.Instructions {
		lines = append(lines, debugsync.Line{
			Address: ins.Address(),
			Bytes:   ins.Bytes(),
			Text:    ins.String(),
		})
	}
	return debugsync.Listing{
		Entry: b.Entry,
		Lines: lines,
	}
}
