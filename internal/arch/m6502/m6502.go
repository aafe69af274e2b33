// Package m6502 provides the 6502 architecture specific decoding and host
// code generation.
package m6502

import (
	"fmt"
	"strings"

	"github.com/retroenv/nesjit/internal/arch"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

var _ arch.Architecture = &Arch6502{}

// Arch6502 decodes 6502 instructions.
type Arch6502 struct{}

// New returns a new 6502 architecture.
func New() *Arch6502 {
	return &Arch6502{}
}

// Decode decodes the instruction at the cursor position. Opcodes without a
// decode rule return an *arch.UnknownOpcodeError.
func (ar *Arch6502) Decode(cursor *arch.Cursor) (arch.Instruction, error) {
	address := cursor.Position()
	op, err := cursor.Next()
	if err != nil {
		return nil, fmt.Errorf("reading opcode: %w", err)
	}

	decode := decoders[op]
	if decode == nil {
		return nil, &arch.UnknownOpcodeError{Opcode: op, Address: address}
	}

	opcode := m6502.Opcodes[op]
	ins := base{
		address:    address,
		opcode:     op,
		name:       strings.ToUpper(opcode.Instruction.Name),
		addressing: opcode.Addressing,
	}

	instruction, err := decode(cursor, ins)
	if err != nil {
		return nil, fmt.Errorf("decoding %s at %04x: %w", ins.name, address, err)
	}
	return instruction, nil
}

// Supported reports whether the opcode has a decode rule.
func Supported(op byte) bool {
	return decoders[op] != nil
}
