package host

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a listing of encoded host code, one line per
// instruction. Symbol names are resolved using syms if it is not nil.
func Disassemble(code []byte, syms *Symbols) []string {
	var lines []string

	for pos := 0; pos < len(code); {
		op := Op(code[pos])
		size := op.Size()
		if op >= numOps || pos+size > len(code) {
			lines = append(lines, fmt.Sprintf("%04x  .byte $%02x", pos, code[pos]))
			pos++
			continue
		}

		args := code[pos+1 : pos+size]
		end := pos + size
		lines = append(lines, fmt.Sprintf("%04x  %s", pos, formatInstruction(op, args, end, syms)))
		pos = end
	}

	return lines
}

func formatInstruction(op Op, args []byte, end int, syms *Symbols) string {
	l := layouts[op]
	name := l.name
	if op == OpJcc {
		name += Cond(args[0]).String()
		args = args[1:]
		return fmt.Sprintf("%s %04x", name, end+int(int32(binary.LittleEndian.Uint32(args))))
	}

	var operands []string
	for _, kind := range l.operands {
		switch kind {
		case operandReg:
			operands = append(operands, Reg(args[0]).String())
		case operandImm8:
			operands = append(operands, fmt.Sprintf("$%02x", args[0]))
		case operandImm64:
			operands = append(operands, fmt.Sprintf("$%x", binary.LittleEndian.Uint64(args)))
		case operandOff16:
			operands = append(operands, fmt.Sprintf("+$%04x", binary.LittleEndian.Uint16(args)))
		case operandRel32:
			operands = append(operands, fmt.Sprintf("%04x", end+int(int32(binary.LittleEndian.Uint32(args)))))
		case operandCond:
			operands = append(operands, Cond(args[0]).String())
		case operandPtr:
			operands = append(operands, fmt.Sprintf("[buf%d]", binary.LittleEndian.Uint32(args)))
		case operandHelper:
			id := binary.LittleEndian.Uint32(args)
			if syms != nil {
				operands = append(operands, syms.HelperName(id))
			} else {
				operands = append(operands, fmt.Sprintf("helper#%d", id))
			}
		}
		args = args[operandSizes[kind]:]
	}

	if len(operands) == 0 {
		return name
	}
	return name + " " + strings.Join(operands, ", ")
}
