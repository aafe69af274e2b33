package host

import (
	"encoding/binary"
	"fmt"
)

// Label identifies a position in the code of a builder that jumps can
// target before the position is known.
type Label int

type fixup struct {
	pos   int // position of the rel32 operand
	end   int // end of the jump instruction
	label Label
}

// Builder encodes host instructions into a position independent byte
// buffer. Jumps are encoded relative to the end of the jump instruction so
// finished code can be installed at any arena address.
type Builder struct {
	syms   *Symbols
	code   []byte
	labels []int
	fixups []fixup
}

// NewBuilder returns a builder that interns buffers and helpers into syms.
func NewBuilder(syms *Symbols) *Builder {
	return &Builder{
		syms: syms,
		code: make([]byte, 0, 256),
	}
}

// Symbols returns the symbol table of the builder.
func (b *Builder) Symbols() *Symbols {
	return b.syms
}

// Len returns the number of encoded bytes.
func (b *Builder) Len() int {
	return len(b.code)
}

// NewLabel creates a new unbound label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind binds the label to the current position.
func (b *Builder) Bind(l Label) {
	b.labels[l] = len(b.code)
}

// Finish resolves all jumps and returns the encoded code.
func (b *Builder) Finish() ([]byte, error) {
	for _, f := range b.fixups {
		if int(f.label) >= len(b.labels) || b.labels[f.label] < 0 {
			return nil, fmt.Errorf("%w: label %d", ErrUnboundLabel, f.label)
		}
		rel := int32(b.labels[f.label] - f.end)
		binary.LittleEndian.PutUint32(b.code[f.pos:], uint32(rel))
	}

	code := make([]byte, len(b.code))
	copy(code, b.code)
	return code, nil
}

// Nop emits an instruction without effect.
func (b *Builder) Nop() {
	b.op(OpNop)
}

// MovImm loads an immediate value into a register.
func (b *Builder) MovImm(r Reg, value uint64) {
	b.op(OpMovImm, byte(r))
	b.code = binary.LittleEndian.AppendUint64(b.code, value)
}

// MovReg copies a register.
func (b *Builder) MovReg(dst, src Reg) {
	b.op(OpMovReg, byte(dst), byte(src))
}

// Mov8 copies the low byte of src into the low byte of dst.
func (b *Builder) Mov8(dst, src Reg) {
	b.op(OpMov8, byte(dst), byte(src))
}

// Add8 adds the low byte of src to the low byte of dst.
func (b *Builder) Add8(dst, src Reg) {
	b.op(OpAdd8, byte(dst), byte(src))
}

// Add16 adds src to dst with 16 bit wraparound.
func (b *Builder) Add16(dst, src Reg) {
	b.op(OpAdd16, byte(dst), byte(src))
}

// Inc8 increments the low byte of a register.
func (b *Builder) Inc8(r Reg) {
	b.op(OpInc8, byte(r))
}

// Dec8 decrements the low byte of a register.
func (b *Builder) Dec8(r Reg) {
	b.op(OpDec8, byte(r))
}

// AndImm8 ands the low byte of a register with an immediate.
func (b *Builder) AndImm8(r Reg, value byte) {
	b.op(OpAndImm8, byte(r), value)
}

// Test8 sets the flags from the 8 bit and of two registers.
func (b *Builder) Test8(r1, r2 Reg) {
	b.op(OpTest8, byte(r1), byte(r2))
}

// Or16 ors src into dst using 16 bits.
func (b *Builder) Or16(dst, src Reg) {
	b.op(OpOr16, byte(dst), byte(src))
}

// Shl16 shifts a register left using 16 bits.
func (b *Builder) Shl16(r Reg, count byte) {
	b.op(OpShl16, byte(r), count)
}

// CmpImm8 sets the flags from subtracting an immediate from the low byte of
// a register. The carry flag is set when the subtraction borrows.
func (b *Builder) CmpImm8(r Reg, value byte) {
	b.op(OpCmpImm8, byte(r), value)
}

// Bt copies a register bit into the carry flag.
func (b *Builder) Bt(r Reg, bit byte) {
	b.op(OpBt, byte(r), bit)
}

// Bts sets a register bit.
func (b *Builder) Bts(r Reg, bit byte) {
	b.op(OpBts, byte(r), bit)
}

// Btr clears a register bit.
func (b *Builder) Btr(r Reg, bit byte) {
	b.op(OpBtr, byte(r), bit)
}

// PushF saves the host flags on the host stack.
func (b *Builder) PushF() {
	b.op(OpPushF)
}

// PopF restores the host flags from the host stack.
func (b *Builder) PopF() {
	b.op(OpPopF)
}

// Jmp jumps to a label.
func (b *Builder) Jmp(l Label) {
	b.op(OpJmp)
	b.rel32(l)
}

// Jcc jumps to a label if the condition holds.
func (b *Builder) Jcc(c Cond, l Label) {
	b.op(OpJcc, byte(c))
	b.rel32(l)
}

// Load8 loads a byte from an interned buffer into the low byte of dst.
func (b *Builder) Load8(dst Reg, buf []byte, offset uint16) {
	id := b.syms.Pointer(buf)
	b.op(OpLoad8, byte(dst))
	b.code = binary.LittleEndian.AppendUint32(b.code, id)
	b.code = binary.LittleEndian.AppendUint16(b.code, offset)
}

// Store8 stores the low byte of src into an interned buffer.
func (b *Builder) Store8(buf []byte, offset uint16, src Reg) {
	id := b.syms.Pointer(buf)
	b.op(OpStore8)
	b.code = binary.LittleEndian.AppendUint32(b.code, id)
	b.code = binary.LittleEndian.AppendUint16(b.code, offset)
	b.code = append(b.code, byte(src))
}

// Push saves a register on the host stack.
func (b *Builder) Push(r Reg) {
	b.op(OpPush, byte(r))
}

// Pop restores a register from the host stack.
func (b *Builder) Pop(r Reg) {
	b.op(OpPop, byte(r))
}

// CallHelper calls a named helper with the argument registers. Caller-saved
// registers that need to survive the call have to be pushed by the caller.
func (b *Builder) CallHelper(name string, fn Helper) {
	id := b.syms.Helper(name, fn)
	b.op(OpCall)
	b.code = binary.LittleEndian.AppendUint32(b.code, id)
}

// Dispatch leaves the block and transfers control to the dispatcher with
// the guest target address in RegArg0.
func (b *Builder) Dispatch() {
	b.op(OpDispatch)
}

func (b *Builder) op(o Op, operands ...byte) {
	b.code = append(b.code, byte(o))
	b.code = append(b.code, operands...)
}

func (b *Builder) rel32(l Label) {
	pos := len(b.code)
	b.code = append(b.code, 0, 0, 0, 0)
	b.fixups = append(b.fixups, fixup{pos: pos, end: len(b.code), label: l})
}
