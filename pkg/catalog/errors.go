package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error classes using errors.Is().
//
// Example usage:
//
//	res, err := bootstrap.Open(ctx, cfg)
//	if errors.Is(err, catalog.ErrCorruption) {
//	    // persisted state cannot be loaded
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCorruption indicates persisted catalog state is internally inconsistent.
	ErrCorruption = errors.New("catalog corruption")

	// ErrUnsatisfiableLoggingDependency indicates an item depends on an
	// introspection log that does not exist.
	ErrUnsatisfiableLoggingDependency = errors.New("unsatisfiable logging dependency")

	// ErrFailedMigration indicates a version migration step failed.
	ErrFailedMigration = errors.New("catalog migration failed")

	// ErrReadOnly indicates a write was attempted on a read-only store.
	ErrReadOnly = errors.New("store is read-only")

	// ErrInsufficientIDs indicates the id counter returned fewer ids than requested.
	ErrInsufficientIDs = errors.New("insufficient ids allocated")

	// ErrUnknownParameter indicates a system parameter name is not defined.
	ErrUnknownParameter = errors.New("unknown system parameter")

	// ErrDuplicateEntry indicates an id or name is already present in the catalog.
	ErrDuplicateEntry = errors.New("duplicate catalog entry")

	// ErrConnectionFailed indicates the durable store could not be reached.
	ErrConnectionFailed = errors.New("connection failed")
)

// CorruptionError reports persisted state that cannot be turned into a
// consistent catalog.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return "internal catalog error: " + e.Detail
}

// Is reports whether target is ErrCorruption.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

// LoggingDependencyError reports an item that references a log that is not
// available in this environment.
type LoggingDependencyError struct {
	DependerName string
	// Missing is the unresolved mz_catalog reference.
	Missing string
}

func (e *LoggingDependencyError) Error() string {
	return fmt.Sprintf("catalog item %q depends on system log %q, but logging is disabled", e.DependerName, e.Missing)
}

// Is reports whether target is ErrUnsatisfiableLoggingDependency.
func (e *LoggingDependencyError) Is(target error) bool {
	return target == ErrUnsatisfiableLoggingDependency
}

// MigrationError reports a failed version migration.
type MigrationError struct {
	LastSeenVersion string
	ThisVersion     string
	Cause           error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("failed to migrate catalog from %s to %s: %v", e.LastSeenVersion, e.ThisVersion, e.Cause)
}

// Is reports whether target is ErrFailedMigration.
func (e *MigrationError) Is(target error) bool { return target == ErrFailedMigration }

// Unwrap returns the failing step's error.
func (e *MigrationError) Unwrap() error { return e.Cause }

// UnknownIDError is returned by the SQL planner when a statement references
// an id that is not in the catalog yet.
type UnknownIDError struct {
	ID ObjectID
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown catalog item %q", e.ID)
}

// UnknownNameError is returned by the SQL planner when a statement references
// a fully qualified name that is not in the catalog yet.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown catalog item '%s'", e.Name)
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnknownParameter):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrCorruption):
		return ExitCorruption
	case errors.Is(err, ErrUnsatisfiableLoggingDependency):
		return ExitLoggingDependency
	case errors.Is(err, ErrFailedMigration):
		return ExitMigrationFailed
	case errors.Is(err, ErrReadOnly):
		return ExitReadOnly
	}

	errStr := err.Error()
	for _, prefix := range usageErrorPrefixes {
		if strings.HasPrefix(errStr, prefix) {
			return ExitUsageError
		}
	}
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}

// Prefixes of the errors cobra returns for command line misuse.
var usageErrorPrefixes = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}
