package m6502

import (
	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
)

// storeRegister returns an emitter storing a register to a fixed address.
func storeRegister(src host.Reg) directEmitter {
	return func(b *host.Builder, mem arch.Memory, address uint16) error {
		return mem.EmitStore(b, address, src)
	}
}

// emitBIT tests the accumulator against memory: zero is set from the and
// of both, overflow and negative are copied from bits 6 and 7 of memory.
func emitBIT(b *host.Builder, mem arch.Memory, address uint16) error {
	if err := mem.EmitLoad(b, address, host.RegTmp); err != nil {
		return err
	}

	b.Test8(host.RegTmp, host.RegA)
	setFlagIf(b, host.CondZ, FlagZero)
	b.Bt(host.RegTmp, 6)
	setFlagIf(b, host.CondC, FlagOverflow)
	b.Bt(host.RegTmp, 7)
	setFlagIf(b, host.CondC, FlagNegative)
	return nil
}

// indexedAddress loads base+X with 16 bit wraparound into RegRet.
func indexedAddress(b *host.Builder, address uint16) {
	b.MovImm(host.RegRet, uint64(address))
	b.Add16(host.RegRet, host.RegX)
}

// emitLDAIndexed loads the accumulator from base+X. Only the zero flag is
// updated, the negative flag keeps its value.
func emitLDAIndexed(b *host.Builder, mem arch.Memory, address uint16) {
	indexedAddress(b, address)
	mem.EmitDynamicLoad(b, host.RegRet, host.RegA)
	b.Test8(host.RegA, host.RegA)
	setFlagIf(b, host.CondZ, FlagZero)
}

// emitSTAIndexed stores the accumulator to base+X.
func emitSTAIndexed(b *host.Builder, mem arch.Memory, address uint16) {
	indexedAddress(b, address)
	mem.EmitDynamicStore(b, host.RegRet, host.RegA)
}
