// Package cli handles command line interface logic
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/retroenv/nesjit/internal/options"
	"github.com/retroenv/nesjit/internal/runtime"
	"github.com/retroenv/retrogolib/log"
)

// ParseFlags parses command line flags and returns the program options.
func ParseFlags() (options.Program, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var opts options.Program
	readOptionFlags(flags, &opts)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil || len(args) == 0 {
		msg := ""
		if err != nil && !errors.Is(err, flag.ErrHelp) {
			msg = err.Error()
		}
		return opts, &UsageError{flags: flags, msg: msg}
	}

	if err := validateArgs(flags, args); err != nil {
		return opts, err
	}
	if err := validateOptions(opts); err != nil {
		return opts, err
	}

	opts.Input = args[0]
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	if e.msg != "" {
		fmt.Printf("%s\n\n", e.msg)
	}
	fmt.Printf("usage: nesjit [options] <file to run>\n\n")
	e.flags.SetOutput(os.Stdout)
	e.flags.PrintDefaults()
	fmt.Println()
}

// PrintBanner prints application version information
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	versionString := version
	if commit != "" {
		if len(commit) > 7 {
			commit = commit[:7]
		}
		versionString += fmt.Sprintf(" (%s)", commit)
	}

	logger.Info("nesjit", log.String("version", versionString))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}

// validateArgs checks if arguments are in correct order
func validateArgs(flags *flag.FlagSet, args []string) error {
	for i, arg := range args {
		if i > 0 && arg[0] == '-' {
			return &UsageError{
				flags: flags,
				msg:   fmt.Sprintf("Potential argument %s found after file to run, please pass the file to run as last argument", arg),
			}
		}
	}
	return nil
}

// validateOptions checks option values and combinations.
func validateOptions(opts options.Program) error {
	if opts.Blocks < 0 {
		return fmt.Errorf("invalid block limit %d", opts.Blocks)
	}
	if opts.ArenaSize < 0 {
		return fmt.Errorf("invalid arena size %d", opts.ArenaSize)
	}
	if opts.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", opts.Timeout)
	}
	if _, _, err := opts.EntryAddress(); err != nil {
		return err
	}
	if _, err := opts.Breakpoints(); err != nil {
		return err
	}
	if opts.CodeDataLog != "" && !opts.Cache {
		return errors.New("a code/data log can only be used with the block cache enabled")
	}
	if opts.TraceUnique && opts.Trace == "" {
		return errors.New("-trace-unique requires a trace file")
	}
	if opts.Step && opts.Quiet {
		return fmt.Errorf("step mode can not be combined with quiet mode")
	}
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Entry, "entry", "", "entry address in hex, overrides the reset vector")
	flags.StringVar(&opts.CodeDataLog, "cdl", "", "code/data log file (.cdl) whose entry points are compiled before running, requires -cache")
	flags.StringVar(&opts.Trace, "trace", "", "name of the file to write the listing of every executed block to")
	flags.BoolVar(&opts.TraceUnique, "trace-unique", false, "trace every block only the first time it is executed")
	flags.StringVar(&opts.Dump, "dump", "", "name of the file to write the generated host code of every compiled block to")
	flags.StringVar(&opts.Watch, "watch", "", "Lua condition to pause at, for example 'pc == 0xc000 and x > 3'")
	flags.StringVar(&opts.Break, "break", "", "comma separated block addresses in hex to pause at")
	flags.StringVar(&opts.Stats, "statsview", "", "serve runtime statistics at the given address, for example localhost:12600")
	flags.BoolVar(&opts.Binary, "binary", false, "read input file as raw binary file without any header")
	flags.BoolVar(&opts.Cache, "cache", false, "cache compiled blocks instead of recompiling them on every entry")
	flags.BoolVar(&opts.Sync, "sync", false, "publish every compiled block and register snapshot to the observer")
	flags.BoolVar(&opts.Step, "step", false, "pause before every block and wait for a command")
	flags.IntVar(&opts.Blocks, "blocks", 0, "stop after the given number of block dispatches, 0 is unlimited")
	flags.IntVar(&opts.ArenaSize, "arena", runtime.DefaultArenaSize, "size of the code arena in bytes")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "stop execution after the given duration, 0 is unlimited")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}
