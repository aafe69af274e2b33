// Package pipeline orchestrates loading a cartridge, setting up the address
// space, the dispatcher and its observer and running the guest code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/retroenv/nesjit/internal/config"
	"github.com/retroenv/nesjit/internal/debugsync"
	"github.com/retroenv/nesjit/internal/loader"
	"github.com/retroenv/nesjit/internal/mapper"
	"github.com/retroenv/nesjit/internal/observer"
	"github.com/retroenv/nesjit/internal/options"
	"github.com/retroenv/nesjit/internal/runtime"
	"github.com/retroenv/nesjit/internal/watch"
	"github.com/retroenv/nesjit/internal/writer"
	"github.com/retroenv/retrogolib/arch/system/nes/cartridge"
	"github.com/retroenv/retrogolib/log"
)

// progressInterval is the interval of the progress log while running.
const progressInterval = time.Second

// Result summarizes a run.
type Result struct {
	Entry    uint16
	Stats    runtime.Stats
	Snapshot debugsync.Snapshot
	Blocks   int    // blocks seen by the observer
	Reason   string // why execution ended
}

// Pipeline orchestrates the complete execution workflow.
type Pipeline struct {
	logger *log.Logger
	loader *loader.Loader
}

// New creates a new execution pipeline.
func New(logger *log.Logger) *Pipeline {
	return &Pipeline{
		logger: logger,
		loader: loader.New(logger),
	}
}

// Execute loads the input file and runs it. Pause commands are read from
// input and pause output is written to output.
func (p *Pipeline) Execute(ctx context.Context, opts options.Program, input io.Reader, output io.Writer) (*Result, error) {
	cart, err := p.loader.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("loading cartridge: %w", err)
	}
	return p.ExecuteWithCartridge(ctx, cart, opts, input, output)
}

// ExecuteWithCartridge runs the pipeline with a pre-loaded cartridge.
// This is useful for testing and programmatic usage where the cartridge is already in memory.
func (p *Pipeline) ExecuteWithCartridge(ctx context.Context, cart *cartridge.Cartridge, opts options.Program,
	input io.Reader, output io.Writer) (*Result, error) {

	m := mapper.New()
	if err := p.loader.Map(m, cart); err != nil {
		return nil, fmt.Errorf("mapping cartridge: %w", err)
	}

	entry, err := p.entryAddress(m, opts)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	obsOptions, cleanup, err := p.observerOptions(opts, entry, input)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rtOptions := config.RuntimeOptions(opts)
	if opts.Dump != "" {
		file, err := os.Create(opts.Dump)
		if err != nil {
			return nil, fmt.Errorf("creating host code file '%s': %w", opts.Dump, err)
		}
		defer func() {
			if err := file.Close(); err != nil {
				p.logger.Error("Closing host code file failed", log.Err(err))
			}
		}()
		rtOptions.Dump = file
	}

	var queue *debugsync.Queue
	if rtOptions.Sync {
		queue = debugsync.New()
	}

	dispatcher, err := runtime.New(p.logger, m, queue, rtOptions)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	if opts.CodeDataLog != "" {
		if err := p.precompile(dispatcher, cart, opts.CodeDataLog); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Running",
		log.String("file", opts.Input),
		log.Hex("entry", entry),
		log.String("cache", fmt.Sprint(rtOptions.Cache)),
		log.String("sync", fmt.Sprint(rtOptions.Sync)))

	result := &Result{Entry: entry}
	runErr := p.run(ctx, dispatcher, queue, obsOptions, input, output, result)

	result.Stats = dispatcher.Stats()
	result.Snapshot = dispatcher.Snapshot()
	p.logger.Info("Execution finished",
		log.String("reason", result.Reason),
		log.Stringer("registers", result.Snapshot),
		log.Stringer("stats", result.Stats))

	if obsOptions.Trace != nil {
		p.logger.Info("Trace written", log.String("file", opts.Trace), log.Int("blocks", obsOptions.Trace.Blocks()))
	}
	return result, runErr
}

// run executes the dispatcher and, when synchronization is enabled, the
// observer consuming its queue.
func (p *Pipeline) run(ctx context.Context, dispatcher *runtime.Dispatcher, queue *debugsync.Queue,
	obsOptions observer.Options, input io.Reader, output io.Writer, result *Result) error {

	var (
		wg     sync.WaitGroup
		obs    *observer.Observer
		obsErr error
	)
	if queue != nil {
		obs = observer.New(p.logger, queue, obsOptions, input, output)
		wg.Go(func() {
			obsErr = obs.Run(ctx)
			// a failed observer must not leave the dispatcher waiting
			queue.Close()
		})
	}

	done := make(chan struct{})
	wg.Go(func() {
		p.logProgress(dispatcher, done)
	})

	runErr := dispatcher.Run(ctx, result.Entry)
	close(done)

	if queue != nil {
		queue.Close()
	}
	wg.Wait()
	if obs != nil {
		result.Blocks = obs.Blocks()
	}

	err := p.classify(runErr, result)
	if err == nil && obsErr != nil && !errors.Is(obsErr, context.Canceled) && !errors.Is(obsErr, context.DeadlineExceeded) {
		err = fmt.Errorf("observing execution: %w", obsErr)
	}
	return err
}

// logProgress periodically logs the dispatcher counters until done is closed.
func (p *Pipeline) logProgress(dispatcher *runtime.Dispatcher, done <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.logger.Debug("Progress", log.Stringer("counters", dispatcher.Counters()))
		}
	}
}

// classify sets the end reason of the run and returns the errors that are
// failures rather than regular ends of execution.
func (p *Pipeline) classify(err error, result *Result) error {
	switch {
	case errors.Is(err, runtime.ErrBlockLimit):
		result.Reason = "block limit reached"
		return nil
	case errors.Is(err, runtime.ErrStopped):
		result.Reason = "stopped by observer"
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		result.Reason = "timeout"
		return nil
	case errors.Is(err, context.Canceled):
		result.Reason = "cancelled"
		return err
	case errors.Is(err, runtime.ErrHalt):
		result.Reason = "halted"
		return fmt.Errorf("running: %w", err)
	default:
		result.Reason = "failed"
		return fmt.Errorf("running: %w", err)
	}
}

// precompile fills the block cache with the subroutine entry points of a
// code/data log.
func (p *Pipeline) precompile(dispatcher *runtime.Dispatcher, cart *cartridge.Cartridge, path string) error {
	prgFlags, err := p.loader.LoadCodeDataLog(cart, path)
	if err != nil {
		return err
	}

	entries := mapper.CodeDataLogEntries(prgFlags, loader.PRGStartPage<<8, min(len(cart.PRG), loader.MaxPRGSize))
	compiled, err := dispatcher.Precompile(entries)
	if err != nil {
		return fmt.Errorf("precompiling code/data log entries: %w", err)
	}

	p.logger.Info("Precompiled blocks", log.Int("entries", len(entries)), log.Int("compiled", compiled))
	return nil
}

func (p *Pipeline) entryAddress(m *mapper.Mapper, opts options.Program) (uint16, error) {
	entry, override, err := opts.EntryAddress()
	if err != nil {
		return 0, err
	}
	if override {
		return entry, nil
	}

	entry, err = p.loader.EntryAddress(m)
	if err != nil {
		return 0, fmt.Errorf("determining entry address: %w", err)
	}
	return entry, nil
}

// observerOptions creates the observer options including the trace file
// and watch condition. The returned cleanup function releases them.
func (p *Pipeline) observerOptions(opts options.Program, entry uint16, input io.Reader) (observer.Options, func(), error) {
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	breakpoints, err := opts.Breakpoints()
	if err != nil {
		return observer.Options{}, cleanup, err
	}

	obsOptions := observer.Options{
		Step:        opts.Step,
		Breakpoints: breakpoints,
	}
	if f, ok := input.(*os.File); ok {
		obsOptions.Prompt = observer.Interactive(f)
	}

	if opts.Watch != "" {
		cond, err := watch.Compile(opts.Watch)
		if err != nil {
			return observer.Options{}, cleanup, err
		}
		closers = append(closers, cond.Close)
		obsOptions.Watch = cond
	}

	if opts.Trace != "" {
		file, err := os.Create(opts.Trace)
		if err != nil {
			cleanup()
			return observer.Options{}, func() {}, fmt.Errorf("creating trace file '%s': %w", opts.Trace, err)
		}
		closers = append(closers, func() {
			if err := file.Close(); err != nil {
				p.logger.Error("Closing trace file failed", log.Err(err))
			}
		})

		trace := writer.New(file, writer.Options{
			HexComments:    true,
			OffsetComments: true,
			Registers:      true,
			Unique:         opts.TraceUnique,
		})
		if err := trace.WriteCommentHeader(opts.Input, entry); err != nil {
			cleanup()
			return observer.Options{}, func() {}, fmt.Errorf("writing trace header: %w", err)
		}
		obsOptions.Trace = trace
	}

	return obsOptions, cleanup, nil
}
