// Package rowenc holds the process-wide switch selecting the row encoding.
//
// The switch is the one piece of global state the catalog owns. Bootstrap
// writes it once, right after system parameters are loaded and before any
// row is produced; everything else only reads it.
package rowenc

import "sync/atomic"

// Encoding names a row layout.
type Encoding string

const (
	Fixed          Encoding = "fixed"
	VariableLength Encoding = "variable-length"
)

var variableLength atomic.Bool

// SetVariableLength selects the variable-length encoding when enabled is true.
func SetVariableLength(enabled bool) { variableLength.Store(enabled) }

// Current returns the active encoding.
func Current() Encoding {
	if variableLength.Load() {
		return VariableLength
	}
	return Fixed
}
