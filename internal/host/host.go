// Package host provides the code target that translated 6502 blocks are
// compiled to: a compact register machine with an encoder, an executable
// memory arena and an interpreter loop that hands control back to a
// dispatcher whenever a block ends.
//
// Register usage follows a fixed convention. The guest registers live in
// callee-saved host registers for the lifetime of a run, except for the
// stack pointer and the status byte which are kept in caller-saved
// registers and therefore must be preserved around every helper call.
package host

import "fmt"

// Reg is a host register index.
type Reg uint8

// Host registers.
const (
	RegRet  Reg = iota // return value of helper calls, scratch
	RegArg0            // first helper argument, dispatch target
	RegArg1            // second helper argument
	RegArg2            // third helper argument
	RegTmp             // callee-saved scratch
	RegTmp2            // callee-saved scratch
	reg6
	reg7
	reg8
	reg9
	RegSP     // guest stack pointer, caller-saved
	RegStatus // guest status byte, caller-saved
	RegPC     // reserved for the guest program counter
	RegA      // guest accumulator
	RegX      // guest X index
	RegY      // guest Y index

	NumRegs
)

var regNames = [NumRegs]string{
	"ret", "arg0", "arg1", "arg2", "tmp", "tmp2", "r6", "r7",
	"r8", "r9", "sp", "p", "pc", "a", "x", "y",
}

// String returns the assembler name of the register.
func (r Reg) String() string {
	if r >= NumRegs {
		return fmt.Sprintf("r?%d", uint8(r))
	}
	return regNames[r]
}

// CallerSaved reports whether the register content is not guaranteed to
// survive a helper call.
func (r Reg) CallerSaved() bool {
	switch r {
	case RegRet, RegArg0, RegArg1, RegArg2, RegSP, RegStatus:
		return true
	default:
		return false
	}
}

// Cond is a condition code for conditional jumps.
type Cond uint8

// Condition codes, evaluated against the host flags.
const (
	CondC  Cond = iota // carry set
	CondNC             // carry clear
	CondZ              // zero set
	CondNZ             // zero clear
	CondS              // sign set
	CondNS             // sign clear

	numConds
)

var condNames = [numConds]string{"c", "nc", "z", "nz", "s", "ns"}

func (c Cond) String() string {
	if c >= numConds {
		return fmt.Sprintf("cc?%d", uint8(c))
	}
	return condNames[c]
}

// Inverse returns the condition that holds when c does not.
func (c Cond) Inverse() Cond {
	return c ^ 1
}
