package m6502

import (
	"fmt"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// base contains the fields shared by all decoded instructions.
type base struct {
	address    uint16
	opcode     byte
	name       string
	addressing m6502.AddressingMode
	operands   []byte
}

func (b *base) Address() uint16 {
	return b.address
}

func (b *base) Bytes() []byte {
	data := make([]byte, 0, 1+len(b.operands))
	data = append(data, b.opcode)
	return append(data, b.operands...)
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Terminates() bool {
	return false
}

// next returns the address following the instruction.
func (b *base) next() uint16 {
	return b.address + 1 + uint16(len(b.operands))
}

type impliedEmitter func(b *host.Builder, mem arch.Memory) error

// implied is an instruction without operands.
type implied struct {
	base
	emit impliedEmitter
}

func (i *implied) String() string {
	return i.name
}

func (i *implied) Emit(b *host.Builder, mem arch.Memory) error {
	return i.emit(b, mem)
}

type immediateEmitter func(b *host.Builder, value byte)

// immediate is an instruction with a constant byte operand.
type immediate struct {
	base
	value byte
	emit  immediateEmitter
}

func (i *immediate) String() string {
	return fmt.Sprintf("%s #$%02X", i.name, i.value)
}

func (i *immediate) Emit(b *host.Builder, _ arch.Memory) error {
	i.emit(b, i.value)
	return nil
}

type directEmitter func(b *host.Builder, mem arch.Memory, address uint16) error

// direct is an instruction accessing a compile time known zero page or
// absolute address.
type direct struct {
	base
	target uint16
	emit   directEmitter
}

func (d *direct) String() string {
	if d.addressing == m6502.ZeroPageAddressing {
		return fmt.Sprintf("%s $%02X", d.name, d.target)
	}
	return fmt.Sprintf("%s $%04X", d.name, d.target)
}

func (d *direct) Emit(b *host.Builder, mem arch.Memory) error {
	if err := d.emit(b, mem, d.target); err != nil {
		return fmt.Errorf("emitting %s: %w", d, err)
	}
	return nil
}

type indexedEmitter func(b *host.Builder, mem arch.Memory, address uint16)

// indexed is an instruction accessing an absolute base address plus the X
// register, resolved at run time.
type indexed struct {
	base
	target uint16
	emit   indexedEmitter
}

func (i *indexed) String() string {
	return fmt.Sprintf("%s $%04X,X", i.name, i.target)
}

func (i *indexed) Emit(b *host.Builder, mem arch.Memory) error {
	i.emit(b, mem, i.target)
	return nil
}
