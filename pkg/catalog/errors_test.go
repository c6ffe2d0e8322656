package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"config", fmt.Errorf("bad flag: %w", ErrInvalidConfig), ExitConfigError},
		{"corruption", fmt.Errorf("load: %w", &CorruptionError{Detail: "x"}), ExitCorruption},
		{"logging", &LoggingDependencyError{DependerName: "materialize.public.v"}, ExitLoggingDependency},
		{"migration", &MigrationError{LastSeenVersion: "v1", ThisVersion: "v2", Cause: errors.New("boom")}, ExitMigrationFailed},
		{"read only", fmt.Errorf("set timestamp: %w", ErrReadOnly), ExitReadOnly},
		{"connection text", errors.New("dial tcp: connection refused"), ExitConnectionError},
		{"unknown flag", errors.New("unknown flag: --foo"), ExitUsageError},
		{"accepts args", errors.New("accepts 0 arg(s), received 1"), ExitUsageError},
		{"invalid argument", errors.New(`invalid argument "abc" for "--timeout"`), ExitUsageError},
		{"other", errors.New("something"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeForError(tt.err))
		})
	}
}

func TestMigrationErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("step 3 failed")
	err := &MigrationError{LastSeenVersion: "v0.1.0", ThisVersion: "v0.2.0", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrFailedMigration)
	assert.Equal(t, "failed to migrate catalog from v0.1.0 to v0.2.0: step 3 failed", err.Error())
}

func TestCorruptionErrorMessage(t *testing.T) {
	err := &CorruptionError{Detail: "failed to deserialize item u1 (materialize.public.t): boom"}
	assert.Equal(t, "internal catalog error: failed to deserialize item u1 (materialize.public.t): boom", err.Error())
	assert.NotErrorIs(t, err, ErrFailedMigration)
}
