package observer

import (
	"os"

	"golang.org/x/term"
)

// Interactive reports whether f is connected to a terminal, in which case a
// prompt is shown when pausing.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
