// Package runtime implements the dispatcher that compiles guest blocks on
// demand, links them through the host dispatch instruction and hands control
// to a debug observer between blocks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/arch/m6502"
	"github.com/retroenv/nesjit/internal/debugsync"
	"github.com/retroenv/nesjit/internal/host"
	"github.com/retroenv/nesjit/internal/jit"
	"github.com/retroenv/nesjit/internal/mapper"
	"github.com/retroenv/retrogolib/log"
)

// DefaultArenaSize is the code arena size used when none is configured.
const DefaultArenaSize = 1 << 20

var (
	ErrHalt       = errors.New("execution halted")
	ErrStopped    = errors.New("execution stopped by observer")
	ErrBlockLimit = errors.New("block limit reached")
)

// Options configure a dispatcher.
type Options struct {
	Cache     bool // keep compiled blocks keyed by entry address
	Sync      bool // publish every block and wait for the observer to resume
	MaxBlocks int  // number of dispatches before stopping, 0 is unlimited
	ArenaSize int  // code arena size in bytes

	Dump io.Writer // receives the host code listing of every compiled block
}

type cachedBlock struct {
	addr  host.Addr
	block *jit.Block
}

// Dispatcher runs guest code by compiling blocks on demand.
type Dispatcher struct {
	logger  *log.Logger
	mapper  *mapper.Mapper
	queue   *debugsync.Queue
	options Options

	compiler *jit.Compiler
	arena    *host.Arena
	machine  *host.Machine

	cache   map[uint16]cachedBlock
	current host.Addr // region of the block that is running, without cache

	mu    sync.Mutex
	stats Stats
}

// New returns a dispatcher executing code from m. The queue is only used
// when synchronization is enabled and may be nil otherwise.
func New(logger *log.Logger, m *mapper.Mapper, queue *debugsync.Queue, options Options) (*Dispatcher, error) {
	if options.Sync && queue == nil {
		return nil, errors.New("synchronization enabled without a debug queue")
	}
	if options.ArenaSize == 0 {
		options.ArenaSize = DefaultArenaSize
	}

	arena, err := host.NewArena(options.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("creating code arena: %w", err)
	}

	syms := host.NewSymbols()
	d := &Dispatcher{
		logger:   logger,
		mapper:   m,
		queue:    queue,
		options:  options,
		compiler: jit.New(logger, m6502.New(), m, syms),
		arena:    arena,
		cache:    map[uint16]cachedBlock{},
	}
	d.machine = host.NewMachine(arena, syms, d.dispatch)
	return d, nil
}

// Run resets the guest registers to their power up state and executes
// guest code starting at entry until an error stops the machine. A
// cancelled context stops execution with the context error.
func (d *Dispatcher) Run(ctx context.Context, entry uint16) error {
	d.machine.SetReg(host.RegA, 0)
	d.machine.SetReg(host.RegX, 0)
	d.machine.SetReg(host.RegY, 0)
	d.machine.SetReg(host.RegSP, m6502.InitialSP)
	d.machine.SetReg(host.RegStatus, m6502.InitialStatus)

	d.logger.Debug("Starting execution", log.Hex("entry", entry))

	addr, err := d.CompileOrFetch(ctx, entry)
	if err != nil {
		return err
	}
	return d.machine.Run(ctx, addr)
}

// dispatch is called by the machine when a block exits to target.
func (d *Dispatcher) dispatch(ctx context.Context, target uint16) (host.Addr, error) {
	// the exit target is the guest PC even if execution stops here
	d.machine.SetReg(host.RegPC, uint64(target))

	d.mu.Lock()
	d.stats.Dispatches++
	dispatches := d.stats.Dispatches
	d.mu.Unlock()

	if d.options.MaxBlocks > 0 && dispatches >= uint64(d.options.MaxBlocks) {
		return host.NullAddr, fmt.Errorf("%w: %d dispatches", ErrBlockLimit, dispatches)
	}
	return d.CompileOrFetch(ctx, target)
}

// CompileOrFetch returns the host address of the block starting at target.
// The block is published to the debug queue before it runs when
// synchronization is enabled.
func (d *Dispatcher) CompileOrFetch(ctx context.Context, target uint16) (host.Addr, error) {
	d.machine.SetReg(host.RegPC, uint64(target))
	snapshot := d.Snapshot()

	cached, hit := d.cache[target]
	if d.options.Cache {
		d.count(func(s *Stats) {
			if hit {
				s.Hits++
			} else {
				s.Misses++
			}
		})
	}

	block := cached.block
	if !hit {
		var err error
		block, err = d.compiler.Decode(target)
		if err != nil {
			d.logDecodeError(target, err)
			return host.NullAddr, fmt.Errorf("%w: %w", ErrHalt, err)
		}
	}

	if d.options.Sync {
		if err := d.synchronize(ctx, snapshot, block); err != nil {
			return host.NullAddr, err
		}
	}

	if hit {
		return cached.addr, nil
	}

	code, err := d.compiler.Emit(block)
	if err != nil {
		d.logger.Error("Compiling block failed", log.Hex("address", target), log.Err(err))
		return host.NullAddr, fmt.Errorf("%w: %w", ErrHalt, err)
	}
	if err := d.dump(target, code); err != nil {
		return host.NullAddr, err
	}

	addr, err := d.install(target, code)
	if err != nil {
		return host.NullAddr, err
	}

	if d.options.Cache {
		d.cache[target] = cachedBlock{addr: addr, block: block}
	} else {
		if d.current != host.NullAddr {
			if err := d.arena.Free(d.current); err != nil {
				return host.NullAddr, fmt.Errorf("freeing previous block: %w", err)
			}
		}
		d.current = addr
	}

	d.count(func(s *Stats) { s.Compiled++ })
	return addr, nil
}

// Precompile compiles the blocks starting at the given addresses into the
// block cache without executing them. Addresses that do not decode are
// skipped. It returns the number of compiled blocks.
func (d *Dispatcher) Precompile(addresses []uint16) (int, error) {
	if !d.options.Cache {
		return 0, errors.New("precompiling blocks requires the block cache")
	}

	compiled := 0
	for _, target := range addresses {
		if _, ok := d.cache[target]; ok {
			continue
		}

		block, err := d.compiler.Decode(target)
		if err != nil {
			d.logger.Warn("Skipping block", log.Hex("address", target), log.Err(err))
			continue
		}
		code, err := d.compiler.Emit(block)
		if err != nil {
			d.logger.Warn("Skipping block", log.Hex("address", target), log.Err(err))
			continue
		}
		if err := d.dump(target, code); err != nil {
			return compiled, err
		}

		addr, err := d.install(target, code)
		if err != nil {
			return compiled, err
		}
		d.cache[target] = cachedBlock{addr: addr, block: block}
		d.count(func(s *Stats) { s.Compiled++ })
		compiled++
	}
	return compiled, nil
}

// dump writes the host code listing of a compiled block.
func (d *Dispatcher) dump(target uint16, code []byte) error {
	if d.options.Dump == nil {
		return nil
	}

	if _, err := fmt.Fprintf(d.options.Dump, "; block %04X, %d bytes\n", target, len(code)); err != nil {
		return fmt.Errorf("writing host code of block %04x: %w", target, err)
	}
	for _, line := range host.Disassemble(code, d.compiler.Symbols()) {
		if _, err := fmt.Fprintf(d.options.Dump, "  %s\n", line); err != nil {
			return fmt.Errorf("writing host code of block %04x: %w", target, err)
		}
	}
	return nil
}

// install copies code into the arena. With caching enabled a full arena is
// flushed and the installation retried once.
func (d *Dispatcher) install(target uint16, code []byte) (host.Addr, error) {
	addr, err := d.arena.Install(code)
	if err == nil {
		return addr, nil
	}
	if !d.options.Cache || !errors.Is(err, host.ErrArenaFull) {
		return host.NullAddr, fmt.Errorf("installing block at %04x: %w", target, err)
	}

	if err := d.flush(); err != nil {
		return host.NullAddr, err
	}
	addr, err = d.arena.Install(code)
	if err != nil {
		return host.NullAddr, fmt.Errorf("installing block at %04x after flush: %w", target, err)
	}
	return addr, nil
}

// flush frees all cached blocks.
func (d *Dispatcher) flush() error {
	d.logger.Debug("Flushing block cache", log.Int("blocks", len(d.cache)))

	for entry, cached := range d.cache {
		if err := d.arena.Free(cached.addr); err != nil {
			return fmt.Errorf("freeing cached block %04x: %w", entry, err)
		}
	}
	clear(d.cache)
	d.count(func(s *Stats) { s.Flushes++ })
	return nil
}

// synchronize publishes the register snapshot and the block listing and
// waits for the observer to resume execution.
func (d *Dispatcher) synchronize(ctx context.Context, snapshot debugsync.Snapshot, block *jit.Block) error {
	d.queue.Put(debugsync.NewMessage(debugsync.KindSnapshot, snapshot))

	reply, err := d.queue.RequestContext(ctx, debugsync.NewMessage(debugsync.KindBlock, block.Listing()))
	if err != nil {
		return fmt.Errorf("waiting for observer: %w", err)
	}

	switch reply.Kind {
	case debugsync.KindResume:
		return nil
	case debugsync.KindShutdown:
		return ErrStopped
	default:
		return fmt.Errorf("unexpected observer reply %s", reply.Kind)
	}
}

func (d *Dispatcher) logDecodeError(target uint16, err error) {
	var unknown *arch.UnknownOpcodeError
	if errors.As(err, &unknown) {
		d.logger.Error("Unknown opcode",
			log.Hex("opcode", unknown.Opcode),
			log.Hex("address", unknown.Address))
		return
	}
	d.logger.Error("Decoding block failed", log.Hex("address", target), log.Err(err))
}

// Snapshot returns the current guest register state.
func (d *Dispatcher) Snapshot() debugsync.Snapshot {
	return debugsync.Snapshot{
		A:      byte(d.machine.Reg(host.RegA)),
		X:      byte(d.machine.Reg(host.RegX)),
		Y:      byte(d.machine.Reg(host.RegY)),
		SP:     byte(d.machine.Reg(host.RegSP)),
		Status: byte(d.machine.Reg(host.RegStatus)),
		PC:     uint16(d.machine.Reg(host.RegPC)),
	}
}
