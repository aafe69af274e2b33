// Package config handles application configuration and setup
package config

import (
	"github.com/retroenv/nesjit/internal/options"
	"github.com/retroenv/nesjit/internal/runtime"
	"github.com/retroenv/retrogolib/log"
)

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// RuntimeOptions converts the program options to dispatcher options.
func RuntimeOptions(opts options.Program) runtime.Options {
	return runtime.Options{
		Cache:     opts.Cache,
		Sync:      Synchronize(opts),
		MaxBlocks: opts.Blocks,
		ArenaSize: opts.ArenaSize,
	}
}

// Synchronize reports whether the dispatcher has to publish every block to
// the observer. Stepping, breakpoints, watch conditions and tracing all
// consume the published blocks.
func Synchronize(opts options.Program) bool {
	return opts.Sync || opts.Step || opts.Break != "" || opts.Watch != "" || opts.Trace != ""
}
