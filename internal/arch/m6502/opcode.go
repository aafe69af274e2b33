package m6502

import (
	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
)

// decodeFunc reads the operands of an instruction whose opcode byte was
// already consumed and returns the decoded instruction.
type decodeFunc func(cursor *arch.Cursor, ins base) (arch.Instruction, error)

// decoders maps every supported opcode to its decode rule.
var decoders = [256]decodeFunc{
	0x08: decodeImplied(emitPHP),
	0x10: decodeBranch(FlagNegative, false),
	0x18: decodeImplied(clearFlag(FlagCarry)),
	0x20: decodeCall,
	0x24: decodeDirect(emitBIT),
	0x28: decodeImplied(emitPLP),
	0x29: decodeImmediate(emitAND),
	0x30: decodeBranch(FlagNegative, true),
	0x38: decodeImplied(setFlag(FlagCarry)),
	0x48: decodeImplied(emitPHA),
	0x4c: decodeJump,
	0x50: decodeBranch(FlagOverflow, false),
	0x60: decodeReturn,
	0x68: decodeImplied(emitPLA),
	0x70: decodeBranch(FlagOverflow, true),
	0x78: decodeImplied(setFlag(FlagInterrupt)),
	0x85: decodeDirect(storeRegister(host.RegA)),
	0x86: decodeDirect(storeRegister(host.RegX)),
	0x8d: decodeDirect(storeRegister(host.RegA)),
	0x8e: decodeDirect(storeRegister(host.RegX)),
	0x90: decodeBranch(FlagCarry, false),
	0x9d: decodeIndexed(emitSTAIndexed),
	0xa2: decodeImmediate(loadImmediate(host.RegX)),
	0xa9: decodeImmediate(loadImmediate(host.RegA)),
	0xb0: decodeBranch(FlagCarry, true),
	0xbd: decodeIndexed(emitLDAIndexed),
	0xc9: decodeImmediate(emitCMP),
	0xd0: decodeBranch(FlagZero, false),
	0xd8: decodeImplied(clearFlag(FlagDecimal)),
	0xea: decodeImplied(emitNOP),
	0xf0: decodeBranch(FlagZero, true),
	0xf8: decodeImplied(setFlag(FlagDecimal)),
}
