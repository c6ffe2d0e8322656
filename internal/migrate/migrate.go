// Package migrate rewrites persisted item definitions written by older
// releases into the form the current release expects.
//
// Each Step is tagged with the release that introduced it and runs when the
// catalog was last written by an earlier release. A brand new catalog has
// nothing to rewrite.
package migrate

import (
	"context"
	"fmt"

	"github.com/vsayer/materialize/internal/sql"
	"github.com/vsayer/materialize/pkg/catalog"
	"golang.org/x/mod/semver"
)

// Step rewrites one statement in place and reports whether it changed it.
type Step struct {
	Version string
	Name    string
	Rewrite func(stmt sql.Statement) bool
}

// Steps returns the rewrites of this release line in version order.
func Steps() []Step {
	return []Step{
		{Version: "v0.2.0", Name: "canonical-definitions", Rewrite: func(sql.Statement) bool { return false }},
		{Version: "v0.3.0", Name: "ssh-tunnel-explicit-port", Rewrite: sshTunnelExplicitPort},
	}
}

// Run applies every step newer than lastSeen to the persisted items in a
// single transaction. Definitions are re-rendered canonically whenever any
// step applies, so a step that only needs canonical text can rewrite nothing.
func Run(ctx context.Context, store catalog.Store, lastSeen string, steps []Step, logger catalog.Logger) error {
	if lastSeen == catalog.NewContentVersion {
		return nil
	}
	if !semver.IsValid(lastSeen) {
		return fmt.Errorf("last seen version %q is not a semantic version", lastSeen)
	}
	var pending []Step
	for _, s := range steps {
		if semver.Compare(lastSeen, s.Version) < 0 {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := store.Transaction(ctx)
	if err != nil {
		return err
	}
	if err := rewriteItems(tx, pending, logger); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func rewriteItems(tx catalog.Transaction, steps []Step, logger catalog.Logger) error {
	var rewritten []catalog.ItemRecord
	for _, item := range tx.LoadedItems() {
		stmt, err := sql.Parse(item.CreateSQL)
		if err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		for _, s := range steps {
			if s.Rewrite(stmt) {
				logger.Verbose("Migration %s rewrote %s", s.Name, item.ID)
			}
		}
		if text := sql.Render(stmt); text != item.CreateSQL {
			item.CreateSQL = text
			rewritten = append(rewritten, item)
		}
	}
	if len(rewritten) == 0 {
		return nil
	}
	ids := make([]catalog.ObjectID, len(rewritten))
	for i, item := range rewritten {
		ids[i] = item.ID
	}
	if err := tx.RemoveItems(ids); err != nil {
		return err
	}
	for _, item := range rewritten {
		if err := tx.InsertItem(item); err != nil {
			return err
		}
	}
	logger.Info("Rewrote %d item definitions", len(rewritten))
	return nil
}

func sshTunnelExplicitPort(stmt sql.Statement) bool {
	conn, ok := stmt.(*sql.CreateConnection)
	if !ok || conn.Kind != catalog.ConnectionSSHTunnel {
		return false
	}
	if _, ok := conn.Options.Get("PORT"); ok {
		return false
	}
	conn.Options = append(conn.Options, sql.Option{Key: "PORT", Value: sql.OptionValue{Number: "22"}})
	return true
}
