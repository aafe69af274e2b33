package m6502

import (
	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
)

// emitDispatch leaves the block continuing at a guest address.
func emitDispatch(b *host.Builder, target uint16) {
	b.MovImm(host.RegArg0, uint64(target))
	b.Dispatch()
}

// stackAddress loads the address of the stack slot the stack pointer
// points at into RegRet.
func stackAddress(b *host.Builder) {
	b.MovImm(host.RegRet, StackPage)
	b.Add8(host.RegRet, host.RegSP)
}

// push stores the low byte of src on the guest stack.
func push(b *host.Builder, mem arch.Memory, src host.Reg) {
	stackAddress(b)
	mem.EmitDynamicStore(b, host.RegRet, src)
	b.Dec8(host.RegSP)
}

// pushImmediate stores a constant on the guest stack.
func pushImmediate(b *host.Builder, mem arch.Memory, value byte) {
	stackAddress(b)
	mem.EmitDynamicStoreImm(b, host.RegRet, value)
	b.Dec8(host.RegSP)
}

// pull loads the top of the guest stack into the low byte of dest.
func pull(b *host.Builder, mem arch.Memory, dest host.Reg) {
	b.Inc8(host.RegSP)
	stackAddress(b)
	mem.EmitDynamicLoad(b, host.RegRet, dest)
}

// setFlagConst sets or clears a status flag based on a value known at
// compile time.
func setFlagConst(b *host.Builder, flag byte, set bool) {
	if set {
		b.Bts(host.RegStatus, flag)
	} else {
		b.Btr(host.RegStatus, flag)
	}
}

// setFlagIf sets a status flag when the host condition holds and clears it
// otherwise. The host flags are preserved so several guest flags can be
// derived from the same host operation.
func setFlagIf(b *host.Builder, cond host.Cond, flag byte) {
	skip := b.NewLabel()

	b.PushF()
	b.Btr(host.RegStatus, flag)
	b.PopF()
	b.Jcc(cond.Inverse(), skip)
	b.PushF()
	b.Bts(host.RegStatus, flag)
	b.PopF()
	b.Bind(skip)
}

// setZN updates the zero and negative flags from the low byte of r.
func setZN(b *host.Builder, r host.Reg) {
	b.Test8(r, r)
	setFlagIf(b, host.CondZ, FlagZero)
	setFlagIf(b, host.CondS, FlagNegative)
}

func setFlag(flag byte) impliedEmitter {
	return func(b *host.Builder, _ arch.Memory) error {
		b.Bts(host.RegStatus, flag)
		return nil
	}
}

func clearFlag(flag byte) impliedEmitter {
	return func(b *host.Builder, _ arch.Memory) error {
		b.Btr(host.RegStatus, flag)
		return nil
	}
}

func emitNOP(b *host.Builder, _ arch.Memory) error {
	b.Nop()
	return nil
}

func emitPHA(b *host.Builder, mem arch.Memory) error {
	push(b, mem, host.RegA)
	return nil
}

func emitPHP(b *host.Builder, mem arch.Memory) error {
	push(b, mem, host.RegStatus)
	return nil
}

func emitPLA(b *host.Builder, mem arch.Memory) error {
	pull(b, mem, host.RegA)
	setZN(b, host.RegA)
	return nil
}

func emitPLP(b *host.Builder, mem arch.Memory) error {
	pull(b, mem, host.RegStatus)
	return nil
}

// loadImmediate returns an emitter loading a constant into a register with
// the zero and negative flags decided at compile time.
func loadImmediate(dest host.Reg) immediateEmitter {
	return func(b *host.Builder, value byte) {
		b.MovImm(dest, uint64(value))
		setFlagConst(b, FlagZero, value == 0)
		setFlagConst(b, FlagNegative, value&0x80 != 0)
	}
}

func emitAND(b *host.Builder, value byte) {
	b.AndImm8(host.RegA, value)
	setFlagIf(b, host.CondZ, FlagZero)
	setFlagIf(b, host.CondS, FlagNegative)
}

// emitCMP compares the accumulator with a constant. The host subtraction
// sets carry on borrow, the guest carry is set when no borrow occurs.
func emitCMP(b *host.Builder, value byte) {
	b.CmpImm8(host.RegA, value)
	setFlagIf(b, host.CondNC, FlagCarry)
	setFlagIf(b, host.CondZ, FlagZero)
	setFlagIf(b, host.CondS, FlagNegative)
}
