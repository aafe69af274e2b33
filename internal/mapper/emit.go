package mapper

import (
	"fmt"

	"github.com/retroenv/nesjit/internal/host"
)

// EmitLoad emits a load of a compile time known address. The mapping is
// resolved now and the store emits direct access code.
func (m *Mapper) EmitLoad(b *host.Builder, address uint16, dest host.Reg) error {
	store, offset, err := m.Resolve(address)
	if err != nil {
		return fmt.Errorf("emitting load of %04x: %w", address, err)
	}
	return store.EmitLoad(b, offset, dest)
}

// EmitStore emits a store to a compile time known address.
func (m *Mapper) EmitStore(b *host.Builder, address uint16, src host.Reg) error {
	store, offset, err := m.Resolve(address)
	if err != nil {
		return fmt.Errorf("emitting store to %04x: %w", address, err)
	}
	return store.EmitStore(b, offset, src)
}

// EmitDynamicLoad emits a load from the address held in addr, resolved at
// run time through a helper call. The guest stack pointer and status byte
// are preserved across the call.
func (m *Mapper) EmitDynamicLoad(b *host.Builder, addr, dest host.Reg) {
	saved := saveGuestRegisters(b)
	if addr != host.RegArg0 {
		b.MovReg(host.RegArg0, addr)
	}
	b.CallHelper(m.helperName("read"), m.readHelper)
	restoreGuestRegisters(b, saved)
	b.Mov8(dest, host.RegRet)
}

// EmitDynamicStore emits a store of the low byte of src to the address held
// in addr, resolved at run time through a helper call. addr must not be
// RegArg1.
func (m *Mapper) EmitDynamicStore(b *host.Builder, addr, src host.Reg) {
	saved := saveGuestRegisters(b)
	b.MovReg(host.RegArg1, src)
	if addr != host.RegArg0 {
		b.MovReg(host.RegArg0, addr)
	}
	b.CallHelper(m.helperName("write"), m.writeHelper)
	restoreGuestRegisters(b, saved)
}

// EmitDynamicStoreImm emits a store of an immediate byte to the address held
// in addr, resolved at run time through a helper call.
func (m *Mapper) EmitDynamicStoreImm(b *host.Builder, addr host.Reg, value byte) {
	saved := saveGuestRegisters(b)
	b.MovImm(host.RegArg1, uint64(value))
	if addr != host.RegArg0 {
		b.MovReg(host.RegArg0, addr)
	}
	b.CallHelper(m.helperName("write"), m.writeHelper)
	restoreGuestRegisters(b, saved)
}

// guestRegisters are the host registers holding guest state in emitted code.
var guestRegisters = [...]host.Reg{host.RegSP, host.RegStatus, host.RegPC, host.RegA, host.RegX, host.RegY}

// saveGuestRegisters pushes the guest registers that a helper call may
// clobber and returns them in push order.
func saveGuestRegisters(b *host.Builder) []host.Reg {
	var saved []host.Reg
	for _, r := range guestRegisters {
		if r.CallerSaved() {
			b.Push(r)
			saved = append(saved, r)
		}
	}
	return saved
}

func restoreGuestRegisters(b *host.Builder, saved []host.Reg) {
	for i := len(saved) - 1; i >= 0; i-- {
		b.Pop(saved[i])
	}
}

// DynamicAccesses returns how many run time resolved reads and writes the
// code built against syms performed.
func (m *Mapper) DynamicAccesses(syms *host.Symbols) (reads, writes uint64) {
	return syms.HelperCalls(m.helperName("read")), syms.HelperCalls(m.helperName("write"))
}

// helperName returns a helper name unique to this mapper instance.
func (m *Mapper) helperName(op string) string {
	return fmt.Sprintf("mapper.%s@%p", op, m)
}

func (m *Mapper) readHelper(args [3]uint64) (uint64, error) {
	value, err := m.Read(uint16(args[0]))
	if err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (m *Mapper) writeHelper(args [3]uint64) (uint64, error) {
	if err := m.Write(uint16(args[0]), byte(args[1])); err != nil {
		return 0, err
	}
	return 0, nil
}
