package host

import (
	"context"
	"encoding/binary"
	"fmt"
)

// MaxStackDepth is the number of entries the host stack can hold.
const MaxStackDepth = 1024

// DispatchFunc is called when a block executes a dispatch instruction. It
// returns the arena address of the block to continue with.
type DispatchFunc func(ctx context.Context, target uint16) (Addr, error)

// Flags are the host condition flags.
type Flags struct {
	Carry bool
	Zero  bool
	Sign  bool
}

// Machine executes code installed in an arena.
type Machine struct {
	arena    *Arena
	syms     *Symbols
	dispatch DispatchFunc

	regs  [NumRegs]uint64
	flags Flags
	stack []uint64

	executed uint64
}

// NewMachine returns a machine running code from arena that references
// symbols interned in syms.
func NewMachine(arena *Arena, syms *Symbols, dispatch DispatchFunc) *Machine {
	return &Machine{
		arena:    arena,
		syms:     syms,
		dispatch: dispatch,
		stack:    make([]uint64, 0, 64),
	}
}

// Reg returns the value of a register.
func (m *Machine) Reg(r Reg) uint64 {
	return m.regs[r]
}

// SetReg sets the value of a register.
func (m *Machine) SetReg(r Reg, value uint64) {
	m.regs[r] = value
}

// Flags returns the host flags.
func (m *Machine) Flags() Flags {
	return m.flags
}

// Executed returns the number of executed host instructions.
func (m *Machine) Executed() uint64 {
	return m.executed
}

// Run executes code starting at entry until the dispatcher or an
// instruction returns an error. The context is checked on every dispatch.
func (m *Machine) Run(ctx context.Context, entry Addr) error {
	pc := int(entry)

	for {
		next, err := m.step(ctx, pc)
		if err != nil {
			return err
		}
		pc = next
	}
}

// step executes the instruction at pc and returns the position of the next one.
//
//nolint:funlen,cyclop,gocyclo // instruction decoding switch
func (m *Machine) step(ctx context.Context, pc int) (int, error) {
	mem := m.arena.mem
	if pc <= 0 || pc >= len(mem) {
		return 0, fmt.Errorf("%w: pc %d outside of arena", ErrFault, pc)
	}

	op := Op(mem[pc])
	size := op.Size()
	if pc+size > len(mem) {
		return 0, fmt.Errorf("%w: instruction at %d exceeds arena", ErrFault, pc)
	}
	args := mem[pc+1 : pc+size]
	next := pc + size
	m.executed++

	switch op {
	case OpTrap:
		return 0, fmt.Errorf("%w: at %d", ErrTrap, pc)

	case OpNop:

	case OpMovImm:
		m.regs[args[0]&0xf] = binary.LittleEndian.Uint64(args[1:])

	case OpMovReg:
		m.regs[args[0]&0xf] = m.regs[args[1]&0xf]

	case OpMov8:
		dst := args[0] & 0xf
		m.regs[dst] = m.regs[dst]&^0xff | m.regs[args[1]&0xf]&0xff

	case OpAdd8:
		dst := args[0] & 0xf
		sum := m.regs[dst]&0xff + m.regs[args[1]&0xf]&0xff
		m.regs[dst] = m.regs[dst]&^0xff | sum&0xff
		m.setFlags8(sum&0xff, sum > 0xff)

	case OpAdd16:
		dst := args[0] & 0xf
		sum := m.regs[dst]&0xffff + m.regs[args[1]&0xf]&0xffff
		m.regs[dst] = sum & 0xffff
		m.setFlags16(sum&0xffff, sum > 0xffff)

	case OpInc8:
		r := args[0] & 0xf
		v := (m.regs[r] + 1) & 0xff
		m.regs[r] = m.regs[r]&^0xff | v
		m.setFlags8(v, m.flags.Carry)

	case OpDec8:
		r := args[0] & 0xf
		v := (m.regs[r] - 1) & 0xff
		m.regs[r] = m.regs[r]&^0xff | v
		m.setFlags8(v, m.flags.Carry)

	case OpAndImm8:
		r := args[0] & 0xf
		v := m.regs[r] & uint64(args[1])
		m.regs[r] = m.regs[r]&^0xff | v
		m.setFlags8(v, false)

	case OpTest8:
		m.setFlags8(m.regs[args[0]&0xf]&m.regs[args[1]&0xf]&0xff, false)

	case OpOr16:
		dst := args[0] & 0xf
		v := (m.regs[dst] | m.regs[args[1]&0xf]) & 0xffff
		m.regs[dst] = v
		m.setFlags16(v, false)

	case OpShl16:
		r := args[0] & 0xf
		v := (m.regs[r] << (args[1] & 0xf)) & 0xffff
		m.regs[r] = v
		m.setFlags16(v, m.flags.Carry)

	case OpCmpImm8:
		a := m.regs[args[0]&0xf] & 0xff
		b := uint64(args[1])
		m.setFlags8((a-b)&0xff, a < b)

	case OpBt, OpBts, OpBtr:
		r := args[0] & 0xf
		mask := uint64(1) << (args[1] & 0x3f)
		m.flags.Carry = m.regs[r]&mask != 0
		switch op {
		case OpBts:
			m.regs[r] |= mask
		case OpBtr:
			m.regs[r] &^= mask
		default:
		}

	case OpPushF:
		var v uint64
		if m.flags.Carry {
			v |= 1
		}
		if m.flags.Zero {
			v |= 2
		}
		if m.flags.Sign {
			v |= 4
		}
		if err := m.push(v); err != nil {
			return 0, err
		}

	case OpPopF:
		v, err := m.pop()
		if err != nil {
			return 0, err
		}
		m.flags = Flags{Carry: v&1 != 0, Zero: v&2 != 0, Sign: v&4 != 0}

	case OpJmp:
		next += int(int32(binary.LittleEndian.Uint32(args)))

	case OpJcc:
		if m.condition(Cond(args[0])) {
			next += int(int32(binary.LittleEndian.Uint32(args[1:])))
		}

	case OpLoad8:
		buf, off, err := m.buffer(args[1:])
		if err != nil {
			return 0, err
		}
		dst := args[0] & 0xf
		m.regs[dst] = m.regs[dst]&^0xff | uint64(buf[off])

	case OpStore8:
		buf, off, err := m.buffer(args)
		if err != nil {
			return 0, err
		}
		buf[off] = byte(m.regs[args[6]&0xf])

	case OpPush:
		if err := m.push(m.regs[args[0]&0xf]); err != nil {
			return 0, err
		}

	case OpPop:
		v, err := m.pop()
		if err != nil {
			return 0, err
		}
		m.regs[args[0]&0xf] = v

	case OpCall:
		id := binary.LittleEndian.Uint32(args)
		ret, err := m.syms.call(id, [3]uint64{m.regs[RegArg0], m.regs[RegArg1], m.regs[RegArg2]})
		if err != nil {
			return 0, err
		}
		m.regs[RegRet] = ret

	case OpDispatch:
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("dispatching: %w", err)
		}
		addr, err := m.dispatch(ctx, uint16(m.regs[RegArg0]))
		if err != nil {
			return 0, err
		}
		next = int(addr)

	default:
		return 0, fmt.Errorf("%w: %02x at %d", ErrInvalidOpcode, byte(op), pc)
	}

	return next, nil
}

func (m *Machine) buffer(args []byte) ([]byte, int, error) {
	id := binary.LittleEndian.Uint32(args)
	off := int(binary.LittleEndian.Uint16(args[4:]))
	buf, err := m.syms.buffer(id)
	if err != nil {
		return nil, 0, err
	}
	if off >= len(buf) {
		return nil, 0, fmt.Errorf("%w: offset %04x outside of buffer %d of size %d", ErrFault, off, id, len(buf))
	}
	return buf, off, nil
}

func (m *Machine) condition(c Cond) bool {
	switch c {
	case CondC:
		return m.flags.Carry
	case CondNC:
		return !m.flags.Carry
	case CondZ:
		return m.flags.Zero
	case CondNZ:
		return !m.flags.Zero
	case CondS:
		return m.flags.Sign
	case CondNS:
		return !m.flags.Sign
	default:
		return false
	}
}

func (m *Machine) setFlags8(v uint64, carry bool) {
	m.flags = Flags{Carry: carry, Zero: v == 0, Sign: v&0x80 != 0}
}

func (m *Machine) setFlags16(v uint64, carry bool) {
	m.flags = Flags{Carry: carry, Zero: v == 0, Sign: v&0x8000 != 0}
}

func (m *Machine) push(v uint64) error {
	if len(m.stack) >= MaxStackDepth {
		return ErrStackOverflow
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *Machine) pop() (uint64, error) {
	if len(m.stack) == 0 {
		return 0, ErrStackUnderflow
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}
