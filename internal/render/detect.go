package render

import (
	"os"

	"golang.org/x/term"
)

const defaultWidth = 100

// ColorEnabled reports whether output to f should be styled.
//
// Styling is off when:
//   - NO_COLOR is set
//   - CATALOGD_PLAIN=1 is set
//   - f is not a terminal (pipes, CI logs)
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CATALOGD_PLAIN") == "1" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or a fixed fallback when f is not
// a terminal.
func Width(f *os.File) int {
	if !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}
