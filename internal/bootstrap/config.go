package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/migrate"
	"github.com/vsayer/materialize/internal/sysvars"
	"github.com/vsayer/materialize/pkg/catalog"
	"golang.org/x/mod/semver"
)

// Config contains everything needed to open the catalog.
type Config struct {
	// Store is the exclusive durable session (required). Open does not close it.
	Store catalog.Store

	// Builtins is the set of compiled-in objects of this release (required).
	Builtins *builtin.Set

	// BuildVersion is the semantic version of this release, e.g. "v0.3.1" (required).
	BuildVersion string

	EnvironmentID string

	// SessionID identifies this boot in logs, traces and the summary.
	// A random one is generated when zero.
	SessionID uuid.UUID

	// Now is the wall clock. Defaults to time.Now.
	Now func() time.Time

	// SkipMigrations disables the version migrations of persisted items.
	SkipMigrations bool

	// SystemParameterDefaults override the compiled-in parameter defaults.
	SystemParameterDefaults map[string]string

	// SystemParameterFrontend, when set, is pulled once on the first boot of
	// a writable catalog. Pulling may block.
	SystemParameterFrontend sysvars.Frontend

	// Secrets supplies the key sets of SSH tunnel connections.
	Secrets catalog.SecretsReader

	EgressIPs []string

	// StorageUsageRetention overrides the storage_usage_retention_period
	// parameter when positive.
	StorageUsageRetention time.Duration

	// MigrationSteps defaults to migrate.Steps().
	MigrationSteps []migrate.Step

	// Logger defaults to a logger that discards everything.
	Logger catalog.Logger
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	var errs []error

	if c.Store == nil {
		errs = append(errs, fmt.Errorf("Store is required: %w", catalog.ErrInvalidConfig))
	}
	if c.Builtins == nil {
		errs = append(errs, fmt.Errorf("Builtins is required: %w", catalog.ErrInvalidConfig))
	}
	if c.BuildVersion == "" {
		errs = append(errs, fmt.Errorf("BuildVersion is required: %w", catalog.ErrInvalidConfig))
	} else if !semver.IsValid(c.BuildVersion) {
		errs = append(errs, fmt.Errorf("BuildVersion %q is not a semantic version: %w", c.BuildVersion, catalog.ErrInvalidConfig))
	}
	if c.StorageUsageRetention < 0 {
		errs = append(errs, fmt.Errorf("storage usage retention cannot be negative: %w", catalog.ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MigrationSteps == nil {
		c.MigrationSteps = migrate.Steps()
	}
	if c.Logger == nil {
		c.Logger = logging.NewNullLogger()
	}
	return c
}
