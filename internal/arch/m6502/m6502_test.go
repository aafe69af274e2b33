package m6502

import (
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/mapper"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
	"github.com/retroenv/retrogolib/assert"
)

// newTestMapper returns a mapper with 2 KB of RAM mirrored once at 0x0800.
func newTestMapper(t *testing.T) *mapper.Mapper {
	t.Helper()

	m := mapper.New()
	ram, err := mapper.NewRAM(0x800)
	assert.NoError(t, err)
	_, err = m.Register(0x00, ram)
	assert.NoError(t, err)
	alias, err := mapper.NewAlias(m, 0x0000, 0x800)
	assert.NoError(t, err)
	_, err = m.Register(0x08, alias)
	assert.NoError(t, err)
	return m
}

func writeBytes(t *testing.T, m *mapper.Mapper, address uint16, data ...byte) {
	t.Helper()
	for i, b := range data {
		assert.NoError(t, m.Write(address+uint16(i), b))
	}
}

//nolint:funlen // test functions can be long
func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		code       []byte
		text       string
		terminates bool
	}{
		{name: "implied", code: []byte{0x18}, text: "CLC"},
		{name: "immediate", code: []byte{0xa9, 0x05}, text: "LDA #$05"},
		{name: "zero page", code: []byte{0x85, 0x10}, text: "STA $10"},
		{name: "absolute", code: []byte{0x8e, 0x00, 0x02}, text: "STX $0200"},
		{name: "absolute x", code: []byte{0xbd, 0x34, 0x12}, text: "LDA $1234,X"},
		{name: "jump", code: []byte{0x4c, 0x00, 0xc0}, text: "JMP $C000", terminates: true},
		{name: "call", code: []byte{0x20, 0x10, 0xc0}, text: "JSR $C010", terminates: true},
		{name: "return", code: []byte{0x60}, text: "RTS", terminates: true},
		{name: "branch forward", code: []byte{0xd0, 0x04}, text: "BNE *$0306", terminates: true},
		{name: "branch backward", code: []byte{0xf0, 0xfe}, text: "BEQ *$0300", terminates: true},
	}

	ar := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMapper(t)
			writeBytes(t, m, 0x0300, tt.code...)

			cursor := arch.NewCursor(m, 0x0300)
			ins, err := ar.Decode(cursor)
			assert.NoError(t, err)
			assert.Equal(t, tt.text, ins.String())
			assert.Equal(t, tt.terminates, ins.Terminates())
			assert.Equal(t, tt.code, ins.Bytes())
			assert.Equal(t, uint16(0x0300), ins.Address())
			assert.Equal(t, uint16(0x0300+len(tt.code)), cursor.Position())
		})
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	m := newTestMapper(t)
	writeBytes(t, m, 0x0400, 0xff)

	_, err := New().Decode(arch.NewCursor(m, 0x0400))
	var unknown *arch.UnknownOpcodeError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, byte(0xff), unknown.Opcode)
	assert.Equal(t, uint16(0x0400), unknown.Address)
	assert.Equal(t, "unknown opcode FF at address 0400", unknown.Error())
}

func TestDecodeUnmapped(t *testing.T) {
	m := newTestMapper(t)
	writeBytes(t, m, 0x0fff, 0xa9)

	_, err := New().Decode(arch.NewCursor(m, 0x0fff))
	assert.True(t, errors.Is(err, mapper.ErrUnmapped))
}

func TestCursorWraps(t *testing.T) {
	m := mapper.New()
	ram, err := mapper.NewRAM(0x100)
	assert.NoError(t, err)
	_, err = m.Register(0xff, ram)
	assert.NoError(t, err)
	low, err := mapper.NewRAM(0x100)
	assert.NoError(t, err)
	_, err = m.Register(0x00, low)
	assert.NoError(t, err)

	assert.NoError(t, m.Write(0xffff, 0x4c))
	assert.NoError(t, m.Write(0x0000, 0x34))
	assert.NoError(t, m.Write(0x0001, 0x12))

	cursor := arch.NewCursor(m, 0xffff)
	ins, err := New().Decode(cursor)
	assert.NoError(t, err)
	assert.Equal(t, "JMP $1234", ins.String())
	assert.Equal(t, uint16(0x0002), cursor.Position())
}

func TestOpcodeTableMatchesInstructionSet(t *testing.T) {
	want := map[byte]m6502.AddressingMode{
		0x08: m6502.ImpliedAddressing,
		0x10: m6502.RelativeAddressing,
		0x20: m6502.AbsoluteAddressing,
		0x24: m6502.ZeroPageAddressing,
		0x29: m6502.ImmediateAddressing,
		0x4c: m6502.AbsoluteAddressing,
		0x85: m6502.ZeroPageAddressing,
		0x8d: m6502.AbsoluteAddressing,
		0x9d: m6502.AbsoluteXAddressing,
		0xbd: m6502.AbsoluteXAddressing,
		0xc9: m6502.ImmediateAddressing,
	}

	supported := 0
	for op := range 256 {
		if !Supported(byte(op)) {
			continue
		}
		supported++

		opcode := m6502.Opcodes[op]
		assert.NotNil(t, opcode.Instruction)
		assert.False(t, opcode.Instruction.Unofficial)
		if mode, ok := want[byte(op)]; ok {
			assert.Equal(t, mode, opcode.Addressing)
		}
	}
	assert.Equal(t, 32, supported)

	branches := []string{m6502.BplInst.Name, m6502.BmiInst.Name, m6502.BvcInst.Name, m6502.BvsInst.Name,
		m6502.BccInst.Name, m6502.BcsInst.Name, m6502.BneInst.Name, m6502.BeqInst.Name}
	for op := range 256 {
		if !Supported(byte(op)) {
			continue
		}
		name := m6502.Opcodes[op].Instruction.Name
		for _, branch := range branches {
			if strings.EqualFold(name, branch) {
				assert.Equal(t, m6502.RelativeAddressing, m6502.Opcodes[op].Addressing)
			}
		}
	}
}
