// Package writer implements the block listing trace output.
package writer

import (
	"fmt"
	"io"
	"strings"

	"github.com/retroenv/nesjit/internal/debugsync"
	"github.com/retroenv/retrogolib/set"
)

// Options of the writer.
type Options struct {
	HexComments    bool // output opcode bytes as hex values in comments
	OffsetComments bool // output instruction addresses in comments
	Registers      bool // output the register snapshot as block label comment
	Unique         bool // write every block only the first time it is seen
}

// Writer writes the listings of executed blocks.
type Writer struct {
	options Options
	writer  io.Writer

	snapshot    *debugsync.Snapshot // snapshot preceding the next block
	written     set.Set[uint16]
	blocks      int
	lineWritten bool
}

// New creates a new writer.
func New(writer io.Writer, options Options) *Writer {
	return &Writer{
		options: options,
		writer:  writer,
		written: set.New[uint16](),
	}
}

// Blocks returns the number of blocks written.
func (w *Writer) Blocks() int {
	return w.blocks
}

// WriteCommentHeader writes the input file name and entry address as
// comments to the output.
func (w *Writer) WriteCommentHeader(input string, entry uint16) error {
	if _, err := fmt.Fprintf(w.writer, "; Input: %s\n", input); err != nil {
		return fmt.Errorf("writing input name: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "; Entry address: $%04X\n", entry); err != nil {
		return fmt.Errorf("writing entry address: %w", err)
	}
	w.lineWritten = true
	return nil
}

// WriteSnapshot records the register state that the next block starts with.
func (w *Writer) WriteSnapshot(snapshot debugsync.Snapshot) {
	w.snapshot = &snapshot
}

// WriteBlock writes the listing of a block.
func (w *Writer) WriteBlock(listing debugsync.Listing) error {
	snapshot := w.snapshot
	w.snapshot = nil

	if w.options.Unique {
		if w.written.Contains(listing.Entry) {
			return nil
		}
		w.written.Add(listing.Entry)
	}

	if err := w.writeLabel(listing.Entry, snapshot); err != nil {
		return err
	}

	for _, line := range listing.Lines {
		if err := w.writeCodeLine(line); err != nil {
			return fmt.Errorf("writing code line: %w", err)
		}
	}

	w.blocks++
	return nil
}

func (w *Writer) writeLabel(entry uint16, snapshot *debugsync.Snapshot) error {
	if w.lineWritten {
		if _, err := fmt.Fprintln(w.writer); err != nil {
			return fmt.Errorf("writing line: %w", err)
		}
	}
	w.lineWritten = true

	label := fmt.Sprintf("block_%04X:", entry)
	if !w.options.Registers || snapshot == nil {
		if _, err := fmt.Fprintf(w.writer, "%s\n", label); err != nil {
			return fmt.Errorf("writing label: %w", err)
		}
		return nil
	}

	if _, err := fmt.Fprintf(w.writer, "%-32s ; %s\n", label, snapshot); err != nil {
		return fmt.Errorf("writing label: %w", err)
	}
	return nil
}

func (w *Writer) writeCodeLine(line debugsync.Line) error {
	var comment []string
	if w.options.OffsetComments {
		comment = append(comment, fmt.Sprintf("$%04X", line.Address))
	}
	if w.options.HexComments {
		hex := make([]string, len(line.Bytes))
		for i, b := range line.Bytes {
			hex[i] = fmt.Sprintf("%02X", b)
		}
		comment = append(comment, strings.Join(hex, " "))
	}

	if len(comment) == 0 {
		_, err := fmt.Fprintf(w.writer, "  %s\n", line.Text)
		return err
	}
	_, err := fmt.Fprintf(w.writer, "  %-30s ; %s\n", line.Text, strings.Join(comment, "  "))
	return err
}
