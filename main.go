// Package main implements the main entry point for a 6502 dynamic recompiler
// running NES program code.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/nesjit/internal/cli"
	"github.com/retroenv/nesjit/internal/config"
	"github.com/retroenv/nesjit/internal/options"
	"github.com/retroenv/nesjit/internal/pipeline"
	"github.com/retroenv/nesjit/internal/statsview"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	opts, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			cli.PrintBanner(logger, opts, version, commit, date)
			usageErr.ShowUsage()
		} else {
			logger.Error("Invalid options", log.Err(err))
		}
		os.Exit(1)
	}

	logger := config.CreateLogger(opts.Debug, opts.Quiet)
	cli.PrintBanner(logger, opts, version, commit, date)

	if err := run(ctx, logger, opts); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, opts options.Program) error {
	if opts.Stats != "" {
		stop := statsview.Launch(logger, opts.Stats)
		defer stop()
	}

	p := pipeline.New(logger)
	_, err := p.Execute(ctx, opts, os.Stdin, os.Stdout)
	if err == nil {
		return nil
	}

	// Handle context cancellation (Ctrl+C) gracefully
	if errors.Is(err, context.Canceled) {
		logger.Info("Operation cancelled")
		return nil
	}
	logger.Error("Execution failed", log.Err(err))
	return err
}
