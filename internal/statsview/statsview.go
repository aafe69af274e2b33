// Package statsview serves live Go runtime statistics of the running
// recompiler in the browser.
package statsview

import (
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/retroenv/retrogolib/log"
)

// DefaultAddress is the listen address used when none is configured.
const DefaultAddress = "localhost:12600"

const url = "/debug/statsview"

// Launch starts the stats server in a new goroutine and returns a function
// that stops it.
func Launch(logger *log.Logger, address string) func() {
	if address == "" {
		address = DefaultAddress
	}

	viewer.SetConfiguration(viewer.WithAddr(address))
	mgr := statsview.New()
	go mgr.Start() //nolint:errcheck // runs until stopped

	logger.Info("Stats server available", log.String("url", "http://"+address+url))
	return func() { mgr.Stop() }
}
