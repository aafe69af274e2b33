// Package options contains the program options.
package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parameters contains file path options.
type Parameters struct {
	Input       string // input ROM file
	CodeDataLog string // code/data log file with entry points to precompile
	Trace       string // listing trace output file
	Dump        string // host code listing output file
	Watch       string // Lua pause condition
	Stats       string // statsview listen address
	Break       string // comma separated breakpoint addresses in hex
}

// Flags contains behavior options.
type Flags struct {
	Entry       string // entry address override in hex
	Binary      bool   // treat input as raw binary without header
	Cache       bool   // cache compiled blocks
	Sync        bool   // publish every block to the observer
	Step        bool   // pause after every block
	TraceUnique bool   // trace every block only once
	Debug       bool   // enable debug logging
	Quiet       bool   // quiet mode
}

// Limits contains execution limits.
type Limits struct {
	Blocks    int           // dispatch limit, 0 is unlimited
	ArenaSize int           // code arena size in bytes
	Timeout   time.Duration // wall clock run time limit, 0 is unlimited
}

// Program options of the recompiler.
type Program struct {
	Parameters
	Flags
	Limits
}

// EntryAddress parses the entry address override. The second return value
// is false if no override was given.
func (p Program) EntryAddress() (uint16, bool, error) {
	if p.Entry == "" {
		return 0, false, nil
	}

	address, err := parseAddress(p.Entry)
	if err != nil {
		return 0, false, fmt.Errorf("parsing entry address: %w", err)
	}
	return address, true, nil
}

// Breakpoints parses the breakpoint address list.
func (p Program) Breakpoints() ([]uint16, error) {
	if p.Break == "" {
		return nil, nil
	}

	var addresses []uint16
	for s := range strings.SplitSeq(p.Break, ",") {
		address, err := parseAddress(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("parsing breakpoint: %w", err)
		}
		addresses = append(addresses, address)
	}
	return addresses, nil
}

// parseAddress parses a hex address with an optional 0x or $ prefix.
func parseAddress(s string) (uint16, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "0x"), "$")
	address, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s': %w", s, err)
	}
	return uint16(address), nil
}
