package m6502

import (
	"fmt"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
)

// jump is an unconditional jump to an absolute address.
type jump struct {
	base
	target uint16
}

func (j *jump) Terminates() bool {
	return true
}

func (j *jump) String() string {
	return fmt.Sprintf("%s $%04X", j.name, j.target)
}

func (j *jump) Emit(b *host.Builder, _ arch.Memory) error {
	emitDispatch(b, j.target)
	return nil
}

// call is a subroutine call. The return address pushed is the address of
// the following instruction, high byte first.
type call struct {
	base
	target uint16
}

func (c *call) Terminates() bool {
	return true
}

func (c *call) String() string {
	return fmt.Sprintf("%s $%04X", c.name, c.target)
}

func (c *call) Emit(b *host.Builder, mem arch.Memory) error {
	next := c.next()
	pushImmediate(b, mem, byte(next>>8))
	pushImmediate(b, mem, byte(next))
	emitDispatch(b, c.target)
	return nil
}

// ret returns from a subroutine to the address popped from the stack.
type ret struct {
	base
}

func (r *ret) Terminates() bool {
	return true
}

func (r *ret) String() string {
	return r.name
}

func (r *ret) Emit(b *host.Builder, mem arch.Memory) error {
	b.MovImm(host.RegTmp, 0)
	b.MovImm(host.RegTmp2, 0)
	pull(b, mem, host.RegTmp)  // low byte
	pull(b, mem, host.RegTmp2) // high byte
	b.Shl16(host.RegTmp2, 8)
	b.Or16(host.RegTmp2, host.RegTmp)
	b.MovReg(host.RegArg0, host.RegTmp2)
	b.Dispatch()
	return nil
}

// branch is a conditional relative branch on a single status flag.
type branch struct {
	base
	flag   byte
	isSet  bool // branch is taken when the flag is set
	target uint16
}

func (br *branch) Terminates() bool {
	return true
}

func (br *branch) String() string {
	return fmt.Sprintf("%s *$%04X", br.name, br.target)
}

func (br *branch) Emit(b *host.Builder, _ arch.Memory) error {
	notTaken := b.NewLabel()

	b.Bt(host.RegStatus, br.flag)
	if br.isSet {
		b.Jcc(host.CondNC, notTaken)
	} else {
		b.Jcc(host.CondC, notTaken)
	}
	emitDispatch(b, br.target)

	b.Bind(notTaken)
	emitDispatch(b, br.next())
	return nil
}
