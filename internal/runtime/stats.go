package runtime

import "fmt"

// Stats are the execution counters of a dispatcher.
type Stats struct {
	Compiled   uint64 // blocks compiled and installed
	Hits       uint64 // cache hits
	Misses     uint64 // cache misses
	Flushes    uint64 // cache flushes caused by a full arena
	Dispatches uint64 // block exits handled

	DynamicReads  uint64 // memory reads resolved at run time
	DynamicWrites uint64 // memory writes resolved at run time

	CachedBlocks  int
	ArenaUsed     int
	ArenaCapacity int
	HostExecuted  uint64 // host instructions executed
}

func (s Stats) String() string {
	return fmt.Sprintf("compiled %d, dispatches %d, cache %d/%d hits/misses, %d flushes, arena %d/%d bytes",
		s.Compiled, s.Dispatches, s.Hits, s.Misses, s.Flushes, s.ArenaUsed, s.ArenaCapacity)
}

// Stats returns a copy of the execution counters. It must not be called
// concurrently with Run.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	s := d.stats
	d.mu.Unlock()

	s.DynamicReads, s.DynamicWrites = d.mapper.DynamicAccesses(d.compiler.Symbols())
	s.CachedBlocks = len(d.cache)
	s.ArenaUsed = d.arena.Used()
	s.ArenaCapacity = d.arena.Capacity()
	s.HostExecuted = d.machine.Executed()
	return s
}

// Counters returns the dispatcher counters that are safe to read while the
// dispatcher is running.
func (d *Dispatcher) Counters() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) count(update func(s *Stats)) {
	d.mu.Lock()
	update(&d.stats)
	d.mu.Unlock()
}
