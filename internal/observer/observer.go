// Package observer implements the default consumer of the debug queue. It
// logs and traces every published block, pauses on breakpoints, watch
// conditions or in step mode and resumes the dispatcher.
package observer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/retroenv/nesjit/internal/debugsync"
	"github.com/retroenv/nesjit/internal/watch"
	"github.com/retroenv/nesjit/internal/writer"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

const prompt = "[enter] step  [r] run  [q] quit > "

// Options configure an observer.
type Options struct {
	Step        bool             // pause before every block
	Prompt      bool             // print a prompt when pausing
	Breakpoints []uint16         // block entry addresses to pause at
	Watch       *watch.Condition // pause when the condition matches
	Trace       *writer.Writer   // trace writer for all blocks
}

// Observer consumes the debug queue of a dispatcher.
type Observer struct {
	logger  *log.Logger
	queue   *debugsync.Queue
	options Options

	input  *bufio.Reader
	output io.Writer

	readOnce sync.Once
	lines    chan inputLine
	stop     chan struct{}

	breakpoints set.Set[uint16]
	step        bool
	last        debugsync.Snapshot

	blocks int
	pauses int
}

type inputLine struct {
	text string
	err  error
}

// New returns an observer reading commands from input when pausing and
// writing pause output to output.
func New(logger *log.Logger, queue *debugsync.Queue, options Options, input io.Reader, output io.Writer) *Observer {
	o := &Observer{
		logger:      logger,
		queue:       queue,
		options:     options,
		input:       bufio.NewReader(input),
		output:      output,
		lines:       make(chan inputLine),
		stop:        make(chan struct{}),
		breakpoints: set.New[uint16](),
		step:        options.Step,
	}
	for _, address := range options.Breakpoints {
		o.breakpoints.Add(address)
	}
	return o
}

// Blocks returns the number of observed blocks.
func (o *Observer) Blocks() int {
	return o.blocks
}

// Pauses returns the number of times execution was paused.
func (o *Observer) Pauses() int {
	return o.pauses
}

// Run processes queue messages until the queue is shut down or the context
// is cancelled. A pause waiting for input is abandoned in both cases.
func (o *Observer) Run(ctx context.Context) error {
	defer close(o.stop)

	for {
		msg, err := o.queue.GetContext(ctx)
		if err != nil {
			return fmt.Errorf("receiving message: %w", err)
		}

		switch msg.Kind {
		case debugsync.KindSnapshot:
			snapshot, ok := msg.Payload.(debugsync.Snapshot)
			if !ok {
				return fmt.Errorf("unexpected snapshot payload %T", msg.Payload)
			}
			o.handleSnapshot(snapshot)

		case debugsync.KindBlock:
			listing, ok := msg.Payload.(debugsync.Listing)
			if !ok {
				return fmt.Errorf("unexpected block payload %T", msg.Payload)
			}
			reply, err := o.handleBlock(ctx, listing)
			o.queue.RespondTo(msg.ID, debugsync.NewMessage(reply, nil))
			if err != nil {
				return err
			}

		case debugsync.KindShutdown:
			return nil

		default:
			o.logger.Warn("Unexpected debug message", log.Stringer("kind", msg.Kind))
		}
	}
}

func (o *Observer) handleSnapshot(snapshot debugsync.Snapshot) {
	o.last = snapshot
	if o.options.Trace != nil {
		o.options.Trace.WriteSnapshot(snapshot)
	}
	o.logger.Debug("Registers", log.Stringer("state", snapshot))
}

// handleBlock traces the block and decides whether to pause before it runs.
// It returns the reply kind for the dispatcher.
func (o *Observer) handleBlock(ctx context.Context, listing debugsync.Listing) (debugsync.Kind, error) {
	o.blocks++

	if o.options.Trace != nil {
		if err := o.options.Trace.WriteBlock(listing); err != nil {
			return debugsync.KindShutdown, fmt.Errorf("writing trace: %w", err)
		}
	}
	o.logger.Debug("Block",
		log.Hex("entry", listing.Entry),
		log.String("instructions", strings.Join(listing.Strings(), "; ")))

	if !o.shouldPause(listing.Entry) {
		return debugsync.KindResume, nil
	}
	return o.pause(ctx, listing)
}

func (o *Observer) shouldPause(entry uint16) bool {
	if o.step || o.breakpoints.Contains(entry) {
		return true
	}
	if o.options.Watch == nil {
		return false
	}

	match, err := o.options.Watch.Eval(o.last)
	if err != nil {
		o.logger.Error("Watch condition failed", log.Err(err))
		return false
	}
	return match
}

// pause prints the block and the registers and waits for a command.
func (o *Observer) pause(ctx context.Context, listing debugsync.Listing) (debugsync.Kind, error) {
	o.pauses++

	if _, err := fmt.Fprintf(o.output, "%s\n", o.last); err != nil {
		return debugsync.KindShutdown, fmt.Errorf("writing registers: %w", err)
	}
	for _, line := range listing.Lines {
		if _, err := fmt.Fprintf(o.output, "  %04X  %s\n", line.Address, line.Text); err != nil {
			return debugsync.KindShutdown, fmt.Errorf("writing listing: %w", err)
		}
	}
	if o.options.Prompt {
		if _, err := fmt.Fprint(o.output, prompt); err != nil {
			return debugsync.KindShutdown, fmt.Errorf("writing prompt: %w", err)
		}
	}

	line, err := o.readLine(ctx)
	if err != nil {
		if errors.Is(err, errQueueClosed) {
			return debugsync.KindShutdown, nil
		}
		if ctx.Err() != nil {
			return debugsync.KindShutdown, err
		}
		if !errors.Is(err, io.EOF) {
			return debugsync.KindShutdown, fmt.Errorf("reading command: %w", err)
		}
		if line == "" {
			o.logger.Info("Input closed, continuing without pausing")
			o.disablePauses()
			return debugsync.KindResume, nil
		}
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "q", "quit":
		return debugsync.KindShutdown, nil
	case "r", "run":
		o.step = false
		return debugsync.KindResume, nil
	default:
		o.step = true
		return debugsync.KindResume, nil
	}
}

var errQueueClosed = errors.New("debug queue closed")

// readLine returns the next input line. It gives up when the context is
// done or the queue is closed while waiting.
func (o *Observer) readLine(ctx context.Context) (string, error) {
	o.readOnce.Do(func() {
		go o.readInput()
	})

	select {
	case line := <-o.lines:
		return line.text, line.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for command: %w", ctx.Err())
	case <-o.queue.Done():
		return "", errQueueClosed
	}
}

// readInput forwards input lines until a read fails or the observer stops.
func (o *Observer) readInput() {
	for {
		text, err := o.input.ReadString('\n')
		select {
		case o.lines <- inputLine{text: text, err: err}:
		case <-o.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (o *Observer) disablePauses() {
	o.step = false
	o.breakpoints = set.New[uint16]()
	o.options.Watch = nil
}
