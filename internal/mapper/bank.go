package mapper

import (
	"fmt"
	"io"

	"github.com/retroenv/nesjit/internal/host"
)

// Kind is the type of a memory store.
type Kind int

// Store kinds.
const (
	KindRAM Kind = iota
	KindImage
	KindAlias
)

func (k Kind) String() string {
	switch k {
	case KindRAM:
		return "ram"
	case KindImage:
		return "image"
	case KindAlias:
		return "alias"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Store is a memory store that can be mapped into the address space.
// Offsets are relative to the start of the store.
type Store interface {
	Kind() Kind
	Size() int
	Read(offset uint16) (byte, error)
	Write(offset uint16, value byte) error
	// EmitLoad emits code loading the byte at offset into the low byte of dest.
	EmitLoad(b *host.Builder, offset uint16, dest host.Reg) error
	// EmitStore emits code storing the low byte of src at offset.
	EmitStore(b *host.Builder, offset uint16, src host.Reg) error
}

// bank is a store backed by a byte buffer that generated code accesses
// directly.
type bank struct {
	kind Kind
	data []byte
}

// RAM is a zero initialized read and write store.
type RAM struct {
	bank
}

// Image is a store populated from a program image.
type Image struct {
	bank
}

var (
	_ Store = (*RAM)(nil)
	_ Store = (*Image)(nil)
)

// NewRAM returns a zero initialized store of size bytes.
func NewRAM(size int) (*RAM, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	return &RAM{
		bank: bank{kind: KindRAM, data: make([]byte, size)},
	}, nil
}

// NewImage returns a store of size bytes read from r.
func NewImage(r io.Reader, size int) (*Image, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d image bytes: %w", size, err)
	}
	return &Image{
		bank: bank{kind: KindImage, data: data},
	}, nil
}

func checkSize(size int) error {
	if size <= 0 || size%PageSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrStoreSize, size)
	}
	if size > PageSize*PageCount {
		return fmt.Errorf("%w: %d bytes", ErrPageOverflow, size)
	}
	return nil
}

func (b *bank) Kind() Kind {
	return b.kind
}

func (b *bank) Size() int {
	return len(b.data)
}

// Bytes returns the backing buffer of the store.
func (b *bank) Bytes() []byte {
	return b.data
}

func (b *bank) Read(offset uint16) (byte, error) {
	if int(offset) >= len(b.data) {
		return 0, fmt.Errorf("reading offset %04x of %s store with size %d: %w", offset, b.kind, len(b.data), ErrUnmapped)
	}
	return b.data[offset], nil
}

func (b *bank) Write(offset uint16, value byte) error {
	if int(offset) >= len(b.data) {
		return fmt.Errorf("writing offset %04x of %s store with size %d: %w", offset, b.kind, len(b.data), ErrUnmapped)
	}
	b.data[offset] = value
	return nil
}

func (b *bank) EmitLoad(bld *host.Builder, offset uint16, dest host.Reg) error {
	if int(offset) >= len(b.data) {
		return fmt.Errorf("emitting load of offset %04x: %w", offset, ErrUnmapped)
	}
	bld.Load8(dest, b.data, offset)
	return nil
}

func (b *bank) EmitStore(bld *host.Builder, offset uint16, src host.Reg) error {
	if int(offset) >= len(b.data) {
		return fmt.Errorf("emitting store to offset %04x: %w", offset, ErrUnmapped)
	}
	bld.Store8(b.data, offset, src)
	return nil
}

// Alias forwards every access to the mapper at a fixed base address, which
// is used for mirrored memory regions.
type Alias struct {
	mapper *Mapper
	base   uint16
	size   int
}

var _ Store = (*Alias)(nil)

// NewAlias returns a store of size bytes that forwards offset o to the
// address base+o of the mapper.
func NewAlias(m *Mapper, base uint16, size int) (*Alias, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if int(base)+size > PageSize*PageCount {
		return nil, fmt.Errorf("%w: alias of %d bytes at %04x", ErrPageOverflow, size, base)
	}
	return &Alias{
		mapper: m,
		base:   base,
		size:   size,
	}, nil
}

func (a *Alias) Kind() Kind {
	return KindAlias
}

func (a *Alias) Size() int {
	return a.size
}

func (a *Alias) Read(offset uint16) (byte, error) {
	return a.mapper.Read(a.base + offset)
}

func (a *Alias) Write(offset uint16, value byte) error {
	return a.mapper.Write(a.base+offset, value)
}

func (a *Alias) EmitLoad(b *host.Builder, offset uint16, dest host.Reg) error {
	return a.mapper.EmitLoad(b, a.base+offset, dest)
}

func (a *Alias) EmitStore(b *host.Builder, offset uint16, src host.Reg) error {
	return a.mapper.EmitStore(b, a.base+offset, src)
}

func (a *Alias) overlapsPages(start, end int) bool {
	first := int(a.base >> 8)
	last := (int(a.base) + a.size - 1) >> 8
	return first <= end && start <= last
}
