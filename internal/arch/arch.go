// Package arch contains types used for multi architecture support.
// It acts as a bridge between the block compiler and the architecture
// specific decoding and code generation.
package arch

import (
	"fmt"

	"github.com/retroenv/nesjit/internal/host"
)

// Architecture decodes guest instructions.
type Architecture interface {
	// Decode decodes the instruction at the cursor position and advances
	// the cursor past it.
	Decode(cursor *Cursor) (Instruction, error)
}

// Instruction is a decoded guest instruction.
type Instruction interface {
	// Address returns the address the instruction was decoded at.
	Address() uint16
	// Bytes returns the opcode and operand bytes.
	Bytes() []byte
	// Name returns the upper case mnemonic.
	Name() string
	// Terminates reports whether the instruction ends a block because it
	// transfers control.
	Terminates() bool
	// String returns the display string of the instruction.
	String() string
	// Emit emits the host code implementing the instruction.
	Emit(b *host.Builder, mem Memory) error
}

// Memory emits host code accessing the guest address space.
type Memory interface {
	EmitLoad(b *host.Builder, address uint16, dest host.Reg) error
	EmitStore(b *host.Builder, address uint16, src host.Reg) error
	EmitDynamicLoad(b *host.Builder, addr, dest host.Reg)
	EmitDynamicStore(b *host.Builder, addr, src host.Reg)
	EmitDynamicStoreImm(b *host.Builder, addr host.Reg, value byte)
}

// Reader reads guest memory.
type Reader interface {
	Read(address uint16) (byte, error)
}

// UnknownOpcodeError is returned when decoding hits an opcode byte that has
// no decode rule.
type UnknownOpcodeError struct {
	Opcode  byte
	Address uint16
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode %02X at address %04X", e.Opcode, e.Address)
}
