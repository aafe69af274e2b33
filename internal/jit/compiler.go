// Package jit implements the block compiler that decodes guest code into
// basic blocks and emits host code for them.
package jit

import (
	"fmt"

	"github.com/retroenv/nesjit/internal/arch"
	"github.com/retroenv/nesjit/internal/host"
	"github.com/retroenv/retrogolib/log"
)

// MaxInstructions is the number of instructions after which a block is
// closed even if no instruction terminated it.
const MaxInstructions = 256

// Memory is the guest address space the compiler decodes from and emits
// accesses to.
type Memory interface {
	arch.Reader
	arch.Memory
}

// Compiler turns guest code into host code blocks.
type Compiler struct {
	logger *log.Logger
	arch   arch.Architecture
	mem    Memory
	syms   *host.Symbols

	maxInstructions int
}

// New returns a compiler decoding with ar from mem. Host symbols referenced
// by emitted code are interned in syms.
func New(logger *log.Logger, ar arch.Architecture, mem Memory, syms *host.Symbols) *Compiler {
	return &Compiler{
		logger:          logger,
		arch:            ar,
		mem:             mem,
		syms:            syms,
		maxInstructions: MaxInstructions,
	}
}

// Symbols returns the host symbol table of the emitted code.
func (c *Compiler) Symbols() *host.Symbols {
	return c.syms
}

// Decode decodes the block starting at entry. Decoding stops after a
// terminating instruction or when the block reaches the size bound.
func (c *Compiler) Decode(entry uint16) (*Block, error) {
	cursor := arch.NewCursor(c.mem, entry)
	block := &Block{
		Entry: entry,
	}

	for len(block.Instructions) < c.maxInstructions {
		ins, err := c.arch.Decode(cursor)
		if err != nil {
			return nil, fmt.Errorf("decoding block at %04x: %w", entry, err)
		}

		block.Instructions = append(block.Instructions, ins)
		if ins.Terminates() {
			break
		}
	}

	block.End = cursor.Position()
	return block, nil
}

// Emit emits the host code of a decoded block. A block that was closed by
// the size bound dispatches to the address following it.
func (c *Compiler) Emit(block *Block) ([]byte, error) {
	b := host.NewBuilder(c.syms)

	for _, ins := range block.Instructions {
		if err := ins.Emit(b, c.mem); err != nil {
			return nil, fmt.Errorf("emitting %s at %04x: %w", ins.Name(), ins.Address(), err)
		}
	}

	if !block.Terminated() {
		b.MovImm(host.RegArg0, uint64(block.End))
		b.Dispatch()
	}

	code, err := b.Finish()
	if err != nil {
		return nil, fmt.Errorf("finishing block at %04x: %w", block.Entry, err)
	}

	c.logger.Debug("Compiled block",
		log.Hex("entry", block.Entry),
		log.Int("instructions", len(block.Instructions)),
		log.Int("size", len(code)))
	return code, nil
}

// Compile decodes and emits the block starting at entry.
func (c *Compiler) Compile(entry uint16) (*Block, []byte, error) {
	block, err := c.Decode(entry)
	if err != nil {
		return nil, nil, err
	}
	code, err := c.Emit(block)
	if err != nil {
		return nil, nil, err
	}
	return block, code, nil
}
