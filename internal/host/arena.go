package host

import (
	"fmt"
	"sort"
)

// Addr is the arena address of installed code.
type Addr uint32

// NullAddr is never handed out by an arena and signals a failed compile.
const NullAddr Addr = 0

// MinArenaSize is the smallest accepted arena size.
const MinArenaSize = 64

type span struct {
	start int
	size  int
}

// Arena is a bounded allocator for executable code. Unallocated memory is
// filled with trap instructions so that a jump into freed code faults
// instead of running stale instructions.
type Arena struct {
	mem     []byte
	free    []span // sorted by start, never adjacent
	regions map[Addr]int
	used    int
}

// NewArena returns an arena of the given size in bytes.
func NewArena(size int) (*Arena, error) {
	if size < MinArenaSize {
		return nil, fmt.Errorf("arena size %d is below minimum %d", size, MinArenaSize)
	}
	a := &Arena{
		mem: make([]byte, size),
	}
	a.Reset()
	return a, nil
}

// Reset releases all regions.
func (a *Arena) Reset() {
	clear(a.mem)
	// address 0 stays reserved as NullAddr
	a.free = []span{{start: 1, size: len(a.mem) - 1}}
	a.regions = map[Addr]int{}
	a.used = 0
}

// Install copies code into a newly allocated region and returns its address.
func (a *Arena) Install(code []byte) (Addr, error) {
	if len(code) == 0 {
		return NullAddr, fmt.Errorf("%w: empty code", ErrInvalidRegion)
	}

	for i, s := range a.free {
		if s.size < len(code) {
			continue
		}

		addr := Addr(s.start)
		copy(a.mem[s.start:], code)
		if s.size == len(code) {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{start: s.start + len(code), size: s.size - len(code)}
		}
		a.regions[addr] = len(code)
		a.used += len(code)
		return addr, nil
	}

	return NullAddr, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
		ErrArenaFull, len(code), a.used, len(a.mem)-1)
}

// Free releases a region returned by Install.
func (a *Arena) Free(addr Addr) error {
	size, ok := a.regions[addr]
	if !ok {
		return fmt.Errorf("%w: address %d", ErrInvalidRegion, addr)
	}
	delete(a.regions, addr)
	a.used -= size

	start := int(addr)
	clear(a.mem[start : start+size])

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start > start })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{start: start, size: size}

	// merge with the following span first so i stays valid
	if i+1 < len(a.free) && a.free[i].start+a.free[i].size == a.free[i+1].start {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].start+a.free[i-1].size == a.free[i].start {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	return nil
}

// Code returns the installed code of a region.
func (a *Arena) Code(addr Addr) ([]byte, error) {
	size, ok := a.regions[addr]
	if !ok {
		return nil, fmt.Errorf("%w: address %d", ErrInvalidRegion, addr)
	}
	return a.mem[int(addr) : int(addr)+size], nil
}

// Used returns the number of allocated bytes.
func (a *Arena) Used() int {
	return a.used
}

// Capacity returns the number of allocatable bytes.
func (a *Arena) Capacity() int {
	return len(a.mem) - 1
}

// Regions returns the number of allocated regions.
func (a *Arena) Regions() int {
	return len(a.regions)
}
