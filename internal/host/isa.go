package host

// Op is a host instruction opcode. Every encoded instruction starts with
// its opcode byte followed by the operands listed in its layout.
type Op byte

// Host instruction set. All multi byte operands are little endian.
const (
	OpTrap     Op = iota // faults, fills unallocated arena memory
	OpNop                //
	OpMovImm             // reg, imm64
	OpMovReg             // dst, src
	OpMov8               // dst, src: copies the low byte only
	OpAdd8               // dst, src: 8 bit add into the low byte, sets C Z S
	OpAdd16              // dst, src: 16 bit add, sets C Z S
	OpInc8               // reg: 8 bit increment, sets Z S
	OpDec8               // reg: 8 bit decrement, sets Z S
	OpAndImm8            // reg, imm8: 8 bit and, clears C, sets Z S
	OpTest8              // a, b: 8 bit and without storing, clears C, sets Z S
	OpOr16               // dst, src: 16 bit or, clears C, sets Z S
	OpShl16              // reg, imm8: 16 bit shift left, sets Z S
	OpCmpImm8            // reg, imm8: 8 bit subtract without storing, sets C Z S
	OpBt                 // reg, bit: C = bit
	OpBts                // reg, bit: C = bit, then sets the bit
	OpBtr                // reg, bit: C = bit, then clears the bit
	OpPushF              // pushes the host flags
	OpPopF               // pops the host flags
	OpJmp                // rel32
	OpJcc                // cond, rel32
	OpLoad8              // dst, ptr, off16: low byte of dst = buffer[off]
	OpStore8             // ptr, off16, src: buffer[off] = low byte of src
	OpPush               // reg
	OpPop                // reg
	OpCall               // helper
	OpDispatch           // leaves the block, target address in RegArg0

	numOps
)

type operand uint8

const (
	operandReg operand = iota
	operandImm8
	operandImm64
	operandOff16
	operandRel32
	operandCond
	operandPtr
	operandHelper
)

var operandSizes = [...]int{
	operandReg:    1,
	operandImm8:   1,
	operandImm64:  8,
	operandOff16:  2,
	operandRel32:  4,
	operandCond:   1,
	operandPtr:    4,
	operandHelper: 4,
}

type layout struct {
	name     string
	operands []operand
}

var layouts = [numOps]layout{
	OpTrap:     {"trap", nil},
	OpNop:      {"nop", nil},
	OpMovImm:   {"movi", []operand{operandReg, operandImm64}},
	OpMovReg:   {"mov", []operand{operandReg, operandReg}},
	OpMov8:     {"mov8", []operand{operandReg, operandReg}},
	OpAdd8:     {"add8", []operand{operandReg, operandReg}},
	OpAdd16:    {"add16", []operand{operandReg, operandReg}},
	OpInc8:     {"inc8", []operand{operandReg}},
	OpDec8:     {"dec8", []operand{operandReg}},
	OpAndImm8:  {"andi8", []operand{operandReg, operandImm8}},
	OpTest8:    {"test8", []operand{operandReg, operandReg}},
	OpOr16:     {"or16", []operand{operandReg, operandReg}},
	OpShl16:    {"shl16", []operand{operandReg, operandImm8}},
	OpCmpImm8:  {"cmpi8", []operand{operandReg, operandImm8}},
	OpBt:       {"bt", []operand{operandReg, operandImm8}},
	OpBts:      {"bts", []operand{operandReg, operandImm8}},
	OpBtr:      {"btr", []operand{operandReg, operandImm8}},
	OpPushF:    {"pushf", nil},
	OpPopF:     {"popf", nil},
	OpJmp:      {"jmp", []operand{operandRel32}},
	OpJcc:      {"j", []operand{operandCond, operandRel32}},
	OpLoad8:    {"load8", []operand{operandReg, operandPtr, operandOff16}},
	OpStore8:   {"store8", []operand{operandPtr, operandOff16, operandReg}},
	OpPush:     {"push", []operand{operandReg}},
	OpPop:      {"pop", []operand{operandReg}},
	OpCall:     {"call", []operand{operandHelper}},
	OpDispatch: {"dispatch", nil},
}

// Size returns the encoded size of the instruction in bytes, including the
// opcode byte. Unknown opcodes have a size of 1.
func (o Op) Size() int {
	if o >= numOps {
		return 1
	}
	size := 1
	for _, op := range layouts[o].operands {
		size += operandSizes[op]
	}
	return size
}

func (o Op) String() string {
	if o >= numOps {
		return "invalid"
	}
	return layouts[o].name
}
