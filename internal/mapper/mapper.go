// Package mapper provides the guest address space. A page table maps every
// 256 byte page of the 16 bit address space to a memory store, and the
// mapper emits host code for loads and stores that are resolved either at
// compile time or at run time through helper calls.
package mapper

import (
	"errors"
	"fmt"
)

const (
	// PageSize is the number of bytes in a page.
	PageSize = 0x100
	// PageCount is the number of pages in the address space.
	PageCount = 0x100
)

var (
	ErrStoreSize    = errors.New("store size is not a positive multiple of the page size")
	ErrPageOverflow = errors.New("store extends beyond the end of the address space")
	ErrOverlap      = errors.New("store overlaps an already registered page")
	ErrUnmapped     = errors.New("address is not mapped")
	ErrAliasLoop    = errors.New("alias targets its own pages")
)

// Handle identifies a registered store.
type Handle int

type pageEntry struct {
	mapped   bool
	handle   Handle
	distance uint8 // pages from the start of the store's run
}

// Region describes a contiguous run of pages mapped to one store.
type Region struct {
	StartPage uint8
	Pages     int
	Kind      Kind
}

// Mapper maps guest addresses to memory stores.
type Mapper struct {
	stores  []Store
	regions []Region
	pages   [PageCount]pageEntry
}

// New returns a mapper with an empty page table.
func New() *Mapper {
	return &Mapper{}
}

// Register maps a store to consecutive pages starting at startPage.
// Registering over an already mapped page is rejected.
func (m *Mapper) Register(startPage uint8, store Store) (Handle, error) {
	size := store.Size()
	if size <= 0 || size%PageSize != 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrStoreSize, size)
	}

	pages := size / PageSize
	end := int(startPage) + pages - 1
	if end >= PageCount {
		return 0, fmt.Errorf("%w: start page %02x with %d pages", ErrPageOverflow, startPage, pages)
	}

	for page := int(startPage); page <= end; page++ {
		if m.pages[page].mapped {
			return 0, fmt.Errorf("%w: page %02x", ErrOverlap, page)
		}
	}

	if alias, ok := store.(*Alias); ok && alias.overlapsPages(int(startPage), end) {
		return 0, fmt.Errorf("%w: pages %02x-%02x", ErrAliasLoop, startPage, end)
	}

	handle := Handle(len(m.stores))
	m.stores = append(m.stores, store)
	m.regions = append(m.regions, Region{StartPage: startPage, Pages: pages, Kind: store.Kind()})

	for page := int(startPage); page <= end; page++ {
		m.pages[page] = pageEntry{
			mapped:   true,
			handle:   handle,
			distance: uint8(page - int(startPage)),
		}
	}
	return handle, nil
}

// Resolve returns the store that an address is mapped to and the offset of
// the address relative to the start of the store.
func (m *Mapper) Resolve(address uint16) (Store, uint16, error) {
	entry := m.pages[address>>8]
	if !entry.mapped {
		return nil, 0, fmt.Errorf("%w: %04x", ErrUnmapped, address)
	}

	offset := uint16(entry.distance)<<8 | address&0xff
	return m.stores[entry.handle], offset, nil
}

// Read returns the byte at an address.
func (m *Mapper) Read(address uint16) (byte, error) {
	store, offset, err := m.Resolve(address)
	if err != nil {
		return 0, err
	}
	return store.Read(offset)
}

// Write sets the byte at an address.
func (m *Mapper) Write(address uint16, value byte) error {
	store, offset, err := m.Resolve(address)
	if err != nil {
		return err
	}
	return store.Write(offset, value)
}

// ReadWord returns the little endian word at an address. The high byte is
// read from the following address, wrapping at the end of the address space.
func (m *Mapper) ReadWord(address uint16) (uint16, error) {
	low, err := m.Read(address)
	if err != nil {
		return 0, fmt.Errorf("reading low byte: %w", err)
	}
	high, err := m.Read(address + 1)
	if err != nil {
		return 0, fmt.Errorf("reading high byte: %w", err)
	}
	return uint16(high)<<8 | uint16(low), nil
}

// Regions returns the registered regions in registration order.
func (m *Mapper) Regions() []Region {
	regions := make([]Region, len(m.regions))
	copy(regions, m.regions)
	return regions
}

// Mapped reports whether the page of an address is mapped.
func (m *Mapper) Mapped(address uint16) bool {
	return m.pages[address>>8].mapped
}
