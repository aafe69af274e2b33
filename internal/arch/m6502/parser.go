package m6502

import (
	"github.com/retroenv/nesjit/internal/arch"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

func decodeImplied(emit impliedEmitter) decodeFunc {
	return func(_ *arch.Cursor, ins base) (arch.Instruction, error) {
		return &implied{base: ins, emit: emit}, nil
	}
}

func decodeImmediate(emit immediateEmitter) decodeFunc {
	return func(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
		value, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		ins.operands = []byte{value}
		return &immediate{base: ins, value: value, emit: emit}, nil
	}
}

// decodeDirect decodes a zero page or absolute operand depending on the
// addressing mode of the opcode.
func decodeDirect(emit directEmitter) decodeFunc {
	return func(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
		if ins.addressing == m6502.ZeroPageAddressing {
			address, err := cursor.Next()
			if err != nil {
				return nil, err
			}
			ins.operands = []byte{address}
			return &direct{base: ins, target: uint16(address), emit: emit}, nil
		}

		address, err := readWordOperand(cursor, &ins)
		if err != nil {
			return nil, err
		}
		return &direct{base: ins, target: address, emit: emit}, nil
	}
}

func decodeIndexed(emit indexedEmitter) decodeFunc {
	return func(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
		address, err := readWordOperand(cursor, &ins)
		if err != nil {
			return nil, err
		}
		return &indexed{base: ins, target: address, emit: emit}, nil
	}
}

func decodeJump(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
	target, err := readWordOperand(cursor, &ins)
	if err != nil {
		return nil, err
	}
	return &jump{base: ins, target: target}, nil
}

func decodeCall(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
	target, err := readWordOperand(cursor, &ins)
	if err != nil {
		return nil, err
	}
	return &call{base: ins, target: target}, nil
}

func decodeReturn(_ *arch.Cursor, ins base) (arch.Instruction, error) {
	return &ret{base: ins}, nil
}

// decodeBranch decodes a relative branch. The target is relative to the
// address following the branch instruction.
func decodeBranch(flag byte, isSet bool) decodeFunc {
	return func(cursor *arch.Cursor, ins base) (arch.Instruction, error) {
		offset, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		ins.operands = []byte{offset}

		next := cursor.Position()
		target := uint16(int(next) + int(int8(offset)))
		return &branch{base: ins, flag: flag, isSet: isSet, target: target}, nil
	}
}

func readWordOperand(cursor *arch.Cursor, ins *base) (uint16, error) {
	word, err := cursor.NextWord()
	if err != nil {
		return 0, err
	}
	ins.operands = []byte{byte(word), byte(word >> 8)}
	return word, nil
}
