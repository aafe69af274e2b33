package host

import (
	"context"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

var errStop = errors.New("stop")

// runBlock installs the built code and runs it until the first dispatch.
func runBlock(t *testing.T, b *Builder) (*Machine, uint16) {
	t.Helper()

	code, err := b.Finish()
	assert.NoError(t, err)

	arena, err := NewArena(1024)
	assert.NoError(t, err)
	addr, err := arena.Install(code)
	assert.NoError(t, err)

	var target uint16
	m := NewMachine(arena, b.Symbols(), func(_ context.Context, next uint16) (Addr, error) {
		target = next
		return NullAddr, errStop
	})
	err = m.Run(context.Background(), addr)
	assert.True(t, errors.Is(err, errStop))
	return m, target
}

//nolint:funlen // test functions can be long
func TestMachineArithmetic(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		reg   Reg
		want  uint64
		flags Flags
	}{
		{
			name: "add8 wraps into carry",
			build: func(b *Builder) {
				b.MovImm(RegA, 0xf0)
				b.MovImm(RegX, 0x20)
				b.Add8(RegA, RegX)
			},
			reg:   RegA,
			want:  0x10,
			flags: Flags{Carry: true},
		},
		{
			name: "add8 keeps upper bits",
			build: func(b *Builder) {
				b.MovImm(RegRet, 0x100)
				b.MovImm(RegSP, 0xfd)
				b.Add8(RegRet, RegSP)
			},
			reg:   RegRet,
			want:  0x1fd,
			flags: Flags{Sign: true},
		},
		{
			name: "add16 wraps",
			build: func(b *Builder) {
				b.MovImm(RegRet, 0xffff)
				b.MovImm(RegX, 2)
				b.Add16(RegRet, RegX)
			},
			reg:   RegRet,
			want:  1,
			flags: Flags{Carry: true},
		},
		{
			name: "dec8 wraps",
			build: func(b *Builder) {
				b.MovImm(RegSP, 0)
				b.Dec8(RegSP)
			},
			reg:   RegSP,
			want:  0xff,
			flags: Flags{Sign: true},
		},
		{
			name: "inc8 to zero",
			build: func(b *Builder) {
				b.MovImm(RegSP, 0xff)
				b.Inc8(RegSP)
			},
			reg:   RegSP,
			want:  0,
			flags: Flags{Zero: true},
		},
		{
			name: "cmp borrow",
			build: func(b *Builder) {
				b.MovImm(RegA, 0x10)
				b.CmpImm8(RegA, 0x20)
			},
			reg:   RegA,
			want:  0x10,
			flags: Flags{Carry: true, Sign: true},
		},
		{
			name: "cmp equal",
			build: func(b *Builder) {
				b.MovImm(RegA, 0x42)
				b.CmpImm8(RegA, 0x42)
			},
			reg:   RegA,
			want:  0x42,
			flags: Flags{Zero: true},
		},
		{
			name: "shift and or",
			build: func(b *Builder) {
				b.MovImm(RegTmp, 0x34)
				b.MovImm(RegTmp2, 0x12)
				b.Shl16(RegTmp2, 8)
				b.Or16(RegTmp2, RegTmp)
			},
			reg:  RegTmp2,
			want: 0x1234,
		},
		{
			name: "bit set and reset",
			build: func(b *Builder) {
				b.MovImm(RegStatus, 0x24)
				b.Bts(RegStatus, 0)
				b.Btr(RegStatus, 2)
				b.Bt(RegStatus, 5)
			},
			reg:   RegStatus,
			want:  0x21,
			flags: Flags{Carry: true},
		},
		{
			name: "mov8 replaces low byte",
			build: func(b *Builder) {
				b.MovImm(RegA, 0x1ff)
				b.MovImm(RegRet, 0x42)
				b.Mov8(RegA, RegRet)
			},
			reg:  RegA,
			want: 0x142,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(NewSymbols())
			tt.build(b)
			b.Dispatch()

			m, _ := runBlock(t, b)
			assert.Equal(t, tt.want, m.Reg(tt.reg))
			assert.Equal(t, tt.flags, m.Flags())
		})
	}
}

func TestMachineJumps(t *testing.T) {
	b := NewBuilder(NewSymbols())
	taken := b.NewLabel()
	end := b.NewLabel()

	b.MovImm(RegA, 0)
	b.Test8(RegA, RegA)
	b.Jcc(CondZ, taken)
	b.MovImm(RegArg0, 0x1111)
	b.Jmp(end)
	b.Bind(taken)
	b.MovImm(RegArg0, 0x2222)
	b.Bind(end)
	b.Dispatch()

	_, target := runBlock(t, b)
	assert.Equal(t, uint16(0x2222), target)
}

func TestMachineFlagsSurvivePushPop(t *testing.T) {
	b := NewBuilder(NewSymbols())
	b.MovImm(RegA, 0x10)
	b.CmpImm8(RegA, 0x20)
	b.PushF()
	b.Btr(RegStatus, 0)
	b.PopF()
	b.Dispatch()

	m, _ := runBlock(t, b)
	assert.True(t, m.Flags().Carry)
}

func TestMachineMemoryAndHelpers(t *testing.T) {
	buf := make([]byte, 16)
	buf[3] = 0x99

	var gotArgs [3]uint64
	helper := func(args [3]uint64) (uint64, error) {
		gotArgs = args
		return 0x55, nil
	}

	syms := NewSymbols()
	b := NewBuilder(syms)
	b.Load8(RegA, buf, 3)
	b.MovImm(RegX, 0x77)
	b.Store8(buf, 4, RegX)
	b.MovImm(RegArg0, 1)
	b.MovImm(RegArg1, 2)
	b.MovImm(RegArg2, 3)
	b.CallHelper("test.helper", helper)
	b.Dispatch()

	m, _ := runBlock(t, b)
	assert.Equal(t, uint64(0x99), m.Reg(RegA))
	assert.Equal(t, byte(0x77), buf[4])
	assert.Equal(t, [3]uint64{1, 2, 3}, gotArgs)
	assert.Equal(t, uint64(0x55), m.Reg(RegRet))
	assert.Equal(t, uint64(1), syms.HelperCalls("test.helper"))
}

func TestMachineErrors(t *testing.T) {
	t.Run("helper error", func(t *testing.T) {
		errHelper := errors.New("helper failed")
		b := NewBuilder(NewSymbols())
		b.CallHelper("fail", func([3]uint64) (uint64, error) { return 0, errHelper })
		code, err := b.Finish()
		assert.NoError(t, err)

		arena, err := NewArena(MinArenaSize)
		assert.NoError(t, err)
		addr, err := arena.Install(code)
		assert.NoError(t, err)

		m := NewMachine(arena, b.Symbols(), nil)
		err = m.Run(context.Background(), addr)
		assert.True(t, errors.Is(err, errHelper))
	})

	t.Run("trap after block end", func(t *testing.T) {
		b := NewBuilder(NewSymbols())
		b.Nop()
		code, err := b.Finish()
		assert.NoError(t, err)

		arena, err := NewArena(MinArenaSize)
		assert.NoError(t, err)
		addr, err := arena.Install(code)
		assert.NoError(t, err)

		m := NewMachine(arena, b.Symbols(), nil)
		err = m.Run(context.Background(), addr)
		assert.True(t, errors.Is(err, ErrTrap))
	})

	t.Run("stack underflow", func(t *testing.T) {
		b := NewBuilder(NewSymbols())
		b.Pop(RegA)
		code, err := b.Finish()
		assert.NoError(t, err)

		arena, err := NewArena(MinArenaSize)
		assert.NoError(t, err)
		addr, err := arena.Install(code)
		assert.NoError(t, err)

		m := NewMachine(arena, b.Symbols(), nil)
		err = m.Run(context.Background(), addr)
		assert.True(t, errors.Is(err, ErrStackUnderflow))
	})

	t.Run("unbound label", func(t *testing.T) {
		b := NewBuilder(NewSymbols())
		b.Jmp(b.NewLabel())
		_, err := b.Finish()
		assert.True(t, errors.Is(err, ErrUnboundLabel))
	})

	t.Run("cancelled context", func(t *testing.T) {
		b := NewBuilder(NewSymbols())
		b.Dispatch()
		code, err := b.Finish()
		assert.NoError(t, err)

		arena, err := NewArena(MinArenaSize)
		assert.NoError(t, err)
		addr, err := arena.Install(code)
		assert.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := NewMachine(arena, b.Symbols(), nil)
		err = m.Run(ctx, addr)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRegCallerSaved(t *testing.T) {
	saved := []Reg{RegRet, RegArg0, RegArg1, RegArg2, RegSP, RegStatus}
	kept := []Reg{RegTmp, RegTmp2, RegPC, RegA, RegX, RegY}

	for _, r := range saved {
		assert.True(t, r.CallerSaved(), r.String())
	}
	for _, r := range kept {
		assert.False(t, r.CallerSaved(), r.String())
	}
}

func TestDisassemble(t *testing.T) {
	syms := NewSymbols()
	b := NewBuilder(syms)
	l := b.NewLabel()
	b.MovImm(RegA, 5)
	b.Jcc(CondNC, l)
	b.CallHelper("mapper.read", func([3]uint64) (uint64, error) { return 0, nil })
	b.Bind(l)
	b.Dispatch()

	code, err := b.Finish()
	assert.NoError(t, err)

	lines := Disassemble(code, syms)
	assert.Len(t, lines, 4)
	assert.Equal(t, "0000  movi a, $5", lines[0])
	assert.Equal(t, "000a  jnc 0015", lines[1])
	assert.Equal(t, "0010  call mapper.read", lines[2])
	assert.Equal(t, "0015  dispatch", lines[3])
}
