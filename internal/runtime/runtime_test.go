package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/debugsync"
	"github.com/retroenv/nesjit/internal/host"
	"github.com/retroenv/nesjit/internal/mapper"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

// loopProgram stores 5 to $0000 and jumps back to its start.
var loopProgram = []byte{0xa2, 0x05, 0x8e, 0x00, 0x00, 0x4c, 0x00, 0xc0}

// newTestMapper maps 2 KB of RAM at 0x0000 and a 16 KB program image
// containing code at 0xc000.
func newTestMapper(t *testing.T, code []byte) *mapper.Mapper {
	t.Helper()

	m := mapper.New()
	ram, err := mapper.NewRAM(0x800)
	assert.NoError(t, err)
	_, err = m.Register(0x00, ram)
	assert.NoError(t, err)

	prg := make([]byte, 0x4000)
	copy(prg, code)
	image, err := mapper.NewImage(bytes.NewReader(prg), len(prg))
	assert.NoError(t, err)
	_, err = m.Register(0xc0, image)
	assert.NoError(t, err)
	return m
}

func newTestDispatcher(t *testing.T, m *mapper.Mapper, queue *debugsync.Queue, options Options) *Dispatcher {
	t.Helper()

	d, err := New(log.NewTestLogger(t), m, queue, options)
	assert.NoError(t, err)
	return d
}

func TestRunProgram(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	d := newTestDispatcher(t, m, nil, Options{MaxBlocks: 3})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	value, err := m.Read(0x0000)
	assert.NoError(t, err)
	assert.Equal(t, byte(5), value)

	snapshot := d.Snapshot()
	assert.Equal(t, byte(5), snapshot.X)
	assert.Equal(t, uint16(0xc000), snapshot.PC)
	assert.Equal(t, byte(0xfd), snapshot.SP)

	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.Compiled)
	assert.Equal(t, uint64(3), stats.Dispatches)
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, 0, stats.CachedBlocks)
	// the previous block is freed once its successor is installed
	assert.Equal(t, 1, d.arena.Regions())
}

func TestRunBlockLimitPC(t *testing.T) {
	// LDX #$05; JMP $C005; JMP $C000
	m := newTestMapper(t, []byte{0xa2, 0x05, 0x4c, 0x05, 0xc0, 0x4c, 0x00, 0xc0})
	d := newTestDispatcher(t, m, nil, Options{MaxBlocks: 1})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	snapshot := d.Snapshot()
	assert.Equal(t, uint16(0xc005), snapshot.PC)
	assert.Equal(t, byte(5), snapshot.X)
	assert.Equal(t, uint64(1), d.Stats().Compiled)
}

func TestRunCached(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	d := newTestDispatcher(t, m, nil, Options{Cache: true, MaxBlocks: 3})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Compiled)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, 1, stats.CachedBlocks)
	assert.Equal(t, byte(5), d.Snapshot().X)
}

func TestPrecompile(t *testing.T) {
	code := make([]byte, 0x11)
	copy(code, loopProgram)
	code[0x10] = 0xff
	m := newTestMapper(t, code)

	d := newTestDispatcher(t, m, nil, Options{})
	_, err := d.Precompile([]uint16{0xc000})
	assert.Error(t, err)

	d = newTestDispatcher(t, m, nil, Options{Cache: true, MaxBlocks: 3})
	compiled, err := d.Precompile([]uint16{0xc000, 0xc000, 0xc010, 0x4000})
	assert.NoError(t, err)
	assert.Equal(t, 1, compiled)

	err = d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Compiled)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(0), stats.Misses)
}

func TestRunDump(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	var dump bytes.Buffer
	d := newTestDispatcher(t, m, nil, Options{Cache: true, MaxBlocks: 3, Dump: &dump})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	// cached blocks are only dumped once
	assert.Equal(t, 1, strings.Count(dump.String(), "; block C000"))
	assert.Contains(t, dump.String(), "dispatch")
}

// twoBlockProgram consists of two blocks of 25 NOPs jumping to each other.
func twoBlockProgram() []byte {
	code := make([]byte, 0x38)
	for i := range code {
		code[i] = 0xea
	}
	copy(code[0x19:], []byte{0x4c, 0x1c, 0xc0})
	copy(code[0x35:], []byte{0x4c, 0x00, 0xc0})
	return code
}

func TestRunArenaFlush(t *testing.T) {
	m := newTestMapper(t, twoBlockProgram())
	d := newTestDispatcher(t, m, nil, Options{Cache: true, MaxBlocks: 4, ArenaSize: host.MinArenaSize})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.Compiled)
	assert.Equal(t, uint64(3), stats.Flushes)
	assert.Equal(t, uint64(4), stats.Misses)
	assert.Equal(t, uint64(0), stats.Hits)
}

func TestRunArenaFull(t *testing.T) {
	m := newTestMapper(t, twoBlockProgram())
	d := newTestDispatcher(t, m, nil, Options{ArenaSize: host.MinArenaSize})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, host.ErrArenaFull))
	assert.ErrorContains(t, err, "installing block at c01c")
}

func TestRunUnknownOpcode(t *testing.T) {
	m := newTestMapper(t, []byte{0xa9, 0x01, 0xff})
	d := newTestDispatcher(t, m, nil, Options{})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrHalt))

	var unknown *arch.UnknownOpcodeError
	assert.True(t, errors.As(err, &unknown))
	assert.Equal(t, byte(0xff), unknown.Opcode)
	assert.Equal(t, uint16(0xc002), unknown.Address)
}

func TestRunUnmapped(t *testing.T) {
	m := newTestMapper(t, []byte{0x4c, 0x00, 0x40})
	d := newTestDispatcher(t, m, nil, Options{})

	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrHalt))
	assert.True(t, errors.Is(err, mapper.ErrUnmapped))
}

func TestRunCancelled(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	d := newTestDispatcher(t, m, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, 0xc000)
	assert.True(t, errors.Is(err, context.Canceled))
}

// observe answers every block message of the queue with reply and records
// the received snapshots and listings until the queue is closed.
func observe(queue *debugsync.Queue, reply debugsync.Kind) (*sync.WaitGroup, *[]debugsync.Snapshot, *[]debugsync.Listing) {
	var (
		wg        sync.WaitGroup
		snapshots []debugsync.Snapshot
		listings  []debugsync.Listing
	)

	wg.Go(func() {
		for {
			msg := queue.Get(-1)
			switch msg.Kind {
			case debugsync.KindSnapshot:
				snapshots = append(snapshots, msg.Payload.(debugsync.Snapshot))
			case debugsync.KindBlock:
				listings = append(listings, msg.Payload.(debugsync.Listing))
				queue.RespondTo(msg.ID, debugsync.NewMessage(reply, nil))
			case debugsync.KindShutdown:
				return
			default:
			}
		}
	})
	return &wg, &snapshots, &listings
}

func TestRunSynchronized(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	queue := debugsync.New()
	wg, snapshots, listings := observe(queue, debugsync.KindResume)

	d := newTestDispatcher(t, m, queue, Options{Sync: true, MaxBlocks: 2})
	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrBlockLimit))

	queue.Close()
	wg.Wait()

	assert.Len(t, *snapshots, 2)
	assert.Len(t, *listings, 2)

	first := (*snapshots)[0]
	assert.Equal(t, uint16(0xc000), first.PC)
	assert.Equal(t, byte(0xfd), first.SP)
	assert.Equal(t, byte(0x24), first.Status)
	assert.Equal(t, byte(0), first.X)
	assert.Equal(t, byte(5), (*snapshots)[1].X)

	listing := (*listings)[0]
	assert.Equal(t, uint16(0xc000), listing.Entry)
	assert.Equal(t, []string{"LDX #$05", "STX $0000", "JMP $C000"}, listing.Strings())
}

func TestRunStoppedByObserver(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	queue := debugsync.New()
	wg, _, listings := observe(queue, debugsync.KindShutdown)

	d := newTestDispatcher(t, m, queue, Options{Sync: true})
	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrStopped))

	queue.Close()
	wg.Wait()
	assert.Len(t, *listings, 1)

	// the block was not executed
	value, err := m.Read(0x0000)
	assert.NoError(t, err)
	assert.Equal(t, byte(0), value)
}

func TestRunClosedQueue(t *testing.T) {
	m := newTestMapper(t, loopProgram)
	queue := debugsync.New()
	queue.Close()

	d := newTestDispatcher(t, m, queue, Options{Sync: true})
	err := d.Run(context.Background(), 0xc000)
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestNewRequiresQueueForSync(t *testing.T) {
	_, err := New(log.NewTestLogger(t), mapper.New(), nil, Options{Sync: true})
	assert.Error(t, err)

	_, err = New(log.NewTestLogger(t), mapper.New(), nil, Options{ArenaSize: 8})
	assert.ErrorContains(t, err, "creating code arena")
}
