package m6502

import (
	"fmt"

	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// WordReader reads little endian words from guest memory.
type WordReader interface {
	ReadWord(address uint16) (uint16, error)
}

// Vectors contains the interrupt handler addresses stored at the end of the
// address space.
type Vectors struct {
	NMI   uint16
	Reset uint16
	IRQ   uint16
}

// ReadVectors reads the 3 interrupt handler addresses. Multiple handlers can
// point to the same address.
func ReadVectors(mem WordReader) (Vectors, error) {
	var vectors Vectors
	var err error

	vectors.NMI, err = mem.ReadWord(m6502.NMIAddress)
	if err != nil {
		return Vectors{}, fmt.Errorf("reading NMI address: %w", err)
	}
	vectors.Reset, err = mem.ReadWord(m6502.ResetAddress)
	if err != nil {
		return Vectors{}, fmt.Errorf("reading reset address: %w", err)
	}
	vectors.IRQ, err = mem.ReadWord(m6502.IrqAddress)
	if err != nil {
		return Vectors{}, fmt.Errorf("reading IRQ address: %w", err)
	}
	return vectors, nil
}
