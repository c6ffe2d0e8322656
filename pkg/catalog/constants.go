package catalog

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess           = 0  // Bootstrap completed successfully
	ExitGeneralError      = 1  // Unknown or unclassified error
	ExitUsageError        = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic             = 3  // Internal panic (unexpected crash)
	ExitConfigError       = 10 // Invalid configuration or parameters
	ExitConnectionError   = 11 // Failed to reach the durable store
	ExitCorruption        = 12 // Persisted catalog state is inconsistent
	ExitLoggingDependency = 13 // Item depends on disabled introspection logging
	ExitMigrationFailed   = 14 // Version migration failed
	ExitReadOnly          = 15 // Write attempted against a read-only store
)

const (
	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
	DefaultRetryMaxAttempts = 3

	// FirstUserOID is the first OID handed out to catalog objects. Lower
	// values are reserved for well-known built-in types.
	FirstUserOID uint32 = 20_000

	// NewContentVersion is reported as the last seen version on first boot.
	NewContentVersion = "new"

	// DefaultStorageUsageRetention bounds how long storage usage events are kept.
	DefaultStorageUsageRetention = 30 * 24 * time.Hour
)
