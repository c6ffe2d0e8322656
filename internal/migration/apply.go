package migration

import (
	"context"
	"fmt"

	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
)

// ApplyInMemory drops every migrated entry and re-creates it under its new
// id, then points clusters at their moved log indexes.
func ApplyInMemory(cat *state.Catalog, md *Metadata) error {
	if len(md.AllDropOps) != len(md.AllCreateOps) {
		panic(fmt.Sprintf("migration drops %d items but re-creates %d", len(md.AllDropOps), len(md.AllCreateOps)))
	}
	for _, id := range md.AllDropOps {
		if _, ok := cat.DropItem(id); !ok {
			return &catalog.CorruptionError{Detail: fmt.Sprintf("migrated item %s is missing", id)}
		}
	}
	for _, op := range md.AllCreateOps {
		item, err := op.Rebuilder.Build(cat)
		if err != nil {
			return &catalog.CorruptionError{Detail: fmt.Sprintf("failed to rebuild %s (%s): %v", op.ID, op.Name, err)}
		}
		if err := cat.InsertItem(op.ID, op.OID, op.Name, op.SchemaID, item, op.Owner, op.Privileges); err != nil {
			return err
		}
	}
	for cluster, updates := range md.IntrospectionSourceIndexUpdates {
		for _, u := range updates {
			cat.SetLogIndex(cluster, u.Variant, u.IndexID)
		}
	}
	return nil
}

// ApplyPersisted writes the durable part of the plan in one transaction:
// user items are replaced by their rebuilt entries, which must already be
// in cat, and built-in mappings and log index ids are updated.
func ApplyPersisted(ctx context.Context, store catalog.Store, cat *state.Catalog, md *Metadata) error {
	tx, err := store.Transaction(ctx)
	if err != nil {
		return err
	}
	if err := stage(tx, cat, md); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func stage(tx catalog.Transaction, cat *state.Catalog, md *Metadata) error {
	if len(md.UserDropOps) > 0 {
		if err := tx.RemoveItems(md.UserDropOps); err != nil {
			return fmt.Errorf("remove migrated items: %w", err)
		}
	}
	for _, op := range md.UserCreateOps {
		e, ok := cat.Entry(op.ID)
		if !ok {
			return &catalog.CorruptionError{Detail: fmt.Sprintf("rebuilt item %s (%s) is missing", op.ID, op.Name)}
		}
		err := tx.InsertItem(catalog.ItemRecord{
			ID:         op.ID,
			SchemaID:   op.SchemaID,
			Name:       op.Name,
			CreateSQL:  e.Item.CreateSQL(),
			Owner:      e.Owner,
			Privileges: e.Privileges,
		})
		if err != nil {
			return fmt.Errorf("insert migrated item %s: %w", op.ID, err)
		}
	}
	if err := tx.UpdateSystemObjectMappings(md.MigratedSystemObjectMappings); err != nil {
		return fmt.Errorf("update system object mappings: %w", err)
	}

	var indexes []catalog.IntrospectionSourceIndex
	for cluster, updates := range md.IntrospectionSourceIndexUpdates {
		for _, u := range updates {
			indexes = append(indexes, catalog.IntrospectionSourceIndex{Cluster: cluster, Name: u.LogName, IndexID: u.IndexID})
		}
	}
	if err := tx.UpdateIntrospectionSourceIndexes(indexes); err != nil {
		return fmt.Errorf("update introspection source indexes: %w", err)
	}
	return nil
}
