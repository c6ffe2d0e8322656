// Package bootstrap opens the catalog: it rebuilds the in-memory state from
// the durable store, assigns ids to built-ins, migrates the built-ins whose
// definitions changed together with everything that depends on them, and
// produces the initial contents of the observability tables.
//
// Open is a single sequential workflow over one exclusive store session.
// Any failure is terminal and no partial catalog is returned.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vsayer/materialize/internal/loader"
	"github.com/vsayer/materialize/internal/migrate"
	"github.com/vsayer/materialize/internal/migration"
	"github.com/vsayer/materialize/internal/rowenc"
	"github.com/vsayer/materialize/internal/secrets"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/internal/sysvars"
	"github.com/vsayer/materialize/internal/telemetry"
	"github.com/vsayer/materialize/pkg/catalog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Result is an opened catalog.
type Result struct {
	Catalog *state.Catalog
	// Migration is the built-in migration that was applied. It is empty
	// when no built-in changed.
	Migration           *migration.Metadata
	BuiltinTableUpdates []state.BuiltinTableUpdate
	// LastSeenVersion is the release that last wrote the catalog, or
	// catalog.NewContentVersion on first boot.
	LastSeenVersion string
}

type opener struct {
	cfg    Config
	store  catalog.Store
	logger catalog.Logger
	cat    *state.Catalog
	bootTS uint64

	// Persisted built-in mappings, by natural key.
	mappings map[catalog.SystemObjectDescription]catalog.SystemObjectUniqueIdentifier
}

// Open bootstraps the catalog from cfg.Store.
func Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	cfg.Builtins.Validate()

	start := time.Now()
	ctx, span := telemetry.StartPhase(ctx, "bootstrap",
		attribute.String("build_version", cfg.BuildVersion),
		attribute.Bool("read_only", cfg.Store.IsReadOnly()))

	o := &opener{cfg: cfg, store: cfg.Store, logger: cfg.Logger}
	res, err := o.open(ctx)
	telemetry.EndPhase(span, err)

	result := telemetry.ResultSuccess
	if err != nil {
		result = telemetry.ResultFailure
	}
	telemetry.RecordBootstrap(result, time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *opener) open(ctx context.Context) (*Result, error) {
	now := o.cfg.Now()
	o.cat = state.New(state.Config{
		BuildVersion:  o.cfg.BuildVersion,
		EnvironmentID: o.cfg.EnvironmentID,
		SessionID:     o.cfg.SessionID,
		StartTime:     now,
		EgressIPs:     slices.Clone(o.cfg.EgressIPs),
	})
	session := o.cat.Config().SessionID.String()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("session_id", session))
	o.logger.Verbose("Bootstrap session %s", session)

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"boot-timestamp", func(ctx context.Context) error { return o.recordBootTimestamp(ctx, now) }},
		{"ambient-state", o.loadAmbientState},
		{"system-configuration", o.loadSystemConfiguration},
		{"comments", o.loadComments},
		{"builtin-types", o.loadBuiltinTypes},
	}
	for _, p := range phases {
		if err := o.phase(ctx, p.name, p.fn); err != nil {
			return nil, err
		}
	}

	var migrated *builtinMigration
	err := o.phase(ctx, "builtins", func(ctx context.Context) error {
		var err error
		migrated, err = o.loadBuiltins(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	lastSeen, err := o.migrateContent(ctx)
	if err != nil {
		return nil, err
	}

	if err := o.phase(ctx, "items", o.loadItems); err != nil {
		return nil, err
	}

	var md *migration.Metadata
	err = o.phase(ctx, "builtin-migration", func(ctx context.Context) error {
		var err error
		md, err = o.migrateBuiltins(ctx, migrated)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := o.phase(ctx, "secrets", o.hydrateSecrets); err != nil {
		return nil, err
	}

	var updates []state.BuiltinTableUpdate
	err = o.phase(ctx, "builtin-table-updates", func(ctx context.Context) error {
		var err error
		updates, err = o.builtinTableUpdates(ctx, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.recordEntries()
	o.logger.Verbose("Catalog opened at boot timestamp %d (last seen version %s)", o.bootTS, lastSeen)
	return &Result{
		Catalog:             o.cat,
		Migration:           md,
		BuiltinTableUpdates: updates,
		LastSeenVersion:     lastSeen,
	}, nil
}

func (o *opener) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.StartPhase(ctx, name)
	o.logger.Verbose("Bootstrap phase: %s", name)
	err := fn(ctx)
	telemetry.EndPhase(span, err)
	return err
}

// writable runs fn unless the store is read-only, in which case the write
// is skipped and logged.
func (o *opener) writable(what string, fn func() error) error {
	if o.store.IsReadOnly() {
		o.logger.Verbose("Skipping %s: catalog is read-only", what)
		return nil
	}
	if err := fn(); err != nil {
		return fmt.Errorf("failed to persist %s: %w", what, err)
	}
	return nil
}

// recordBootTimestamp never lets the boot timestamp move backwards past the
// one recorded by a previous boot.
func (o *opener) recordBootTimestamp(ctx context.Context, now time.Time) error {
	previous, _, err := o.store.GetTimestamp(ctx, catalog.TimelineEpochMilliseconds)
	if err != nil {
		return fmt.Errorf("failed to read boot timestamp: %w", err)
	}
	o.bootTS = max(uint64(now.UnixMilli()), previous)
	o.cat.SetBootTS(o.bootTS)
	return o.writable("boot timestamp", func() error {
		return o.store.SetTimestamp(ctx, catalog.TimelineEpochMilliseconds, o.bootTS)
	})
}

func (o *opener) loadAmbientState(ctx context.Context) error {
	dbs, err := o.store.GetDatabases(ctx)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if err := o.cat.InsertDatabase(db); err != nil {
			return err
		}
	}

	schemas, err := o.store.GetSchemas(ctx)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := o.cat.InsertSchema(s); err != nil {
			return err
		}
	}

	roles, err := o.store.GetRoles(ctx)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if err := o.cat.InsertRole(r); err != nil {
			return err
		}
	}

	defaults, err := o.store.GetDefaultPrivileges(ctx)
	if err != nil {
		return err
	}
	o.cat.SetDefaultPrivileges(defaults)

	system, err := o.store.GetSystemPrivileges(ctx)
	if err != nil {
		return err
	}
	o.cat.SetSystemPrivileges(system)
	return nil
}

func (o *opener) loadComments(ctx context.Context) error {
	comments, err := o.store.GetComments(ctx)
	if err != nil {
		return err
	}
	for _, c := range comments {
		o.cat.AddComment(c)
	}
	return nil
}

// loadSystemConfiguration applies the configured defaults, then the
// persisted values, then on first boot the values of the frontend. The
// row encoding switch is published as soon as the values are final.
func (o *opener) loadSystemConfiguration(ctx context.Context) error {
	vars := o.cat.Vars()

	for _, name := range slices.Sorted(maps.Keys(o.cfg.SystemParameterDefaults)) {
		err := vars.SetDefault(name, o.cfg.SystemParameterDefaults[name])
		if errors.Is(err, catalog.ErrUnknownParameter) {
			o.logger.Warn("Cannot load unknown system parameter default %s", name)
			continue
		}
		if err != nil {
			return err
		}
	}

	persisted, err := o.store.GetSystemConfigurations(ctx)
	if err != nil {
		return err
	}
	for _, p := range persisted {
		_, err := vars.Set(p.Name, p.Value)
		if errors.Is(err, catalog.ErrUnknownParameter) {
			o.logger.Warn("Cannot load unknown system parameter %s from the catalog", p.Name)
			continue
		}
		if err != nil {
			return err
		}
	}

	if err := o.syncParameters(ctx); err != nil {
		return err
	}

	rowenc.SetVariableLength(vars.VariableLengthRowEncoding())
	return nil
}

func (o *opener) syncParameters(ctx context.Context) error {
	frontend := o.cfg.SystemParameterFrontend
	switch {
	case frontend == nil:
		return nil
	case o.store.IsReadOnly():
		o.logger.Info("Parameter sync on boot: skipping sync as catalog is read-only")
		return nil
	case o.cat.Vars().HasSyncedOnce():
		o.logger.Info("Parameter sync on boot: skipping sync as config has synced once")
		return nil
	}

	o.logger.Info("Parameter sync on boot: start sync")
	pulled, err := frontend.Pull(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull system parameters: %w", err)
	}

	vars := o.cat.Vars()
	tx, err := o.store.Transaction(ctx)
	if err != nil {
		return err
	}
	stage := func() error {
		for _, name := range slices.Sorted(maps.Keys(pulled)) {
			changed, err := vars.Set(name, pulled[name])
			if err != nil {
				o.logger.Warn("Ignoring synced parameter %s: %v", name, err)
				continue
			}
			if !changed {
				continue
			}
			o.logger.Verbose("Sync parameter %s=%s", name, pulled[name])
			if err := tx.UpsertSystemConfiguration(name, pulled[name]); err != nil {
				return err
			}
		}
		if _, err := vars.Set(sysvars.ConfigHasSyncedOnce, "true"); err != nil {
			return err
		}
		return tx.UpsertSystemConfiguration(sysvars.ConfigHasSyncedOnce, "true")
	}
	if err := stage(); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to persist synced parameters: %w", err)
	}
	o.logger.Info("Parameter sync on boot: end sync")
	return nil
}

// migrateContent runs the version migrations of persisted items and records
// this release as the last one to write the catalog.
func (o *opener) migrateContent(ctx context.Context) (string, error) {
	lastSeen, ok, err := o.store.GetCatalogContentVersion(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		lastSeen = catalog.NewContentVersion
	}
	if o.cfg.SkipMigrations {
		o.logger.Verbose("Skipping catalog content migrations")
		return lastSeen, nil
	}

	err = o.phase(ctx, "content-migration", func(ctx context.Context) error {
		return o.writable("content migrations", func() error {
			if err := migrate.Run(ctx, o.store, lastSeen, o.cfg.MigrationSteps, o.logger); err != nil {
				return &catalog.MigrationError{LastSeenVersion: lastSeen, ThisVersion: o.cfg.BuildVersion, Cause: err}
			}
			return o.store.SetCatalogContentVersion(ctx, o.cfg.BuildVersion)
		})
	})
	return lastSeen, err
}

func (o *opener) loadItems(ctx context.Context) error {
	tx, err := o.store.Transaction(ctx)
	if err != nil {
		return err
	}
	records := tx.LoadedItems()
	if err := tx.Rollback(ctx); err != nil {
		return err
	}
	o.logger.Verbose("Loading %d persisted items", len(records))
	return loader.Load(ctx, o.cat, records)
}

func (o *opener) migrateBuiltins(ctx context.Context, m *builtinMigration) (*migration.Metadata, error) {
	planner := migration.NewPlanner(o.cat, o.store, o.cfg.Builtins.Logs(), o.logger)
	md, err := planner.Plan(ctx, m.changed, m.fingerprints)
	if err != nil {
		return nil, err
	}
	if md.Empty() {
		return md, nil
	}
	if err := migration.ApplyInMemory(o.cat, md); err != nil {
		return nil, err
	}
	err = o.writable("builtin migration", func() error {
		return migration.ApplyPersisted(ctx, o.store, o.cat, md)
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordMigration(len(md.AllDropOps)-len(md.UserDropOps), len(md.UserDropOps))
	return md, nil
}

// hydrateSecrets attaches the public keys of every SSH tunnel connection.
func (o *opener) hydrateSecrets(ctx context.Context) error {
	for _, e := range o.cat.Entries() {
		conn, ok := e.Item.(*catalog.Connection)
		if !ok || conn.SSH == nil {
			continue
		}
		if o.cfg.Secrets == nil {
			return fmt.Errorf("connection %s (%s) needs its SSH keys but no secrets reader is configured: %w",
				e.ID, e.Name, catalog.ErrInvalidConfig)
		}
		raw, err := o.cfg.Secrets.Read(ctx, e.ID)
		if err != nil {
			return err
		}
		keys, err := secrets.ParseKeySet(raw)
		if err != nil {
			return fmt.Errorf("connection %s (%s): %w", e.ID, e.Name, err)
		}
		if err := o.cat.SetSSHPublicKeys(e.ID, keys.PublicKeys()); err != nil {
			return err
		}
	}
	return nil
}

func (o *opener) recordEntries() {
	var system, user int
	for _, e := range o.cat.Entries() {
		if e.ID.IsSystem() {
			system++
		} else {
			user++
		}
	}
	telemetry.RecordEntries(system, user)
}
