package durable

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/vsayer/materialize/pkg/catalog"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// Tx buffers writes against a snapshot of the persisted items and applies
// them in a single backend update on Commit.
type Tx struct {
	store  *Store
	loaded []catalog.ItemRecord
	items  map[catalog.ObjectID]catalog.ItemRecord
	ops    []func(context.Context, Writer) error
	done   bool
}

var _ catalog.Transaction = (*Tx)(nil)

func newTx(s *Store, loaded []catalog.ItemRecord) *Tx {
	items := make(map[catalog.ObjectID]catalog.ItemRecord, len(loaded))
	for _, it := range loaded {
		items[it.ID] = it
	}
	return &Tx{store: s, loaded: loaded, items: items}
}

func (t *Tx) LoadedItems() []catalog.ItemRecord { return slices.Clone(t.loaded) }

func (t *Tx) InsertItem(item catalog.ItemRecord) error {
	if t.done {
		return errTxDone
	}
	if _, ok := t.items[item.ID]; ok {
		return fmt.Errorf("item %s: %w", item.ID, catalog.ErrDuplicateEntry)
	}
	for _, existing := range t.items {
		if existing.SchemaID == item.SchemaID && existing.Name == item.Name {
			return fmt.Errorf("item %q in schema %d: %w", item.Name, item.SchemaID, catalog.ErrDuplicateEntry)
		}
	}
	t.items[item.ID] = item
	t.ops = append(t.ops, func(ctx context.Context, w Writer) error {
		return putJSON(ctx, w, collItem, item.ID.String(), item)
	})
	return nil
}

func (t *Tx) RemoveItems(ids []catalog.ObjectID) error {
	if t.done {
		return errTxDone
	}
	for _, id := range ids {
		if _, ok := t.items[id]; !ok {
			return fmt.Errorf("cannot remove item %s: not found", id)
		}
	}
	for _, id := range ids {
		delete(t.items, id)
		key := id.String()
		t.ops = append(t.ops, func(ctx context.Context, w Writer) error {
			return w.Delete(ctx, collItem, key)
		})
	}
	return nil
}

func (t *Tx) UpdateSystemObjectMappings(mappings map[catalog.ObjectID]catalog.SystemObjectMapping) error {
	if t.done {
		return errTxDone
	}
	ids := slices.SortedFunc(maps.Keys(mappings), catalog.ObjectID.Compare)
	for _, id := range ids {
		m := mappings[id]
		t.ops = append(t.ops, func(ctx context.Context, w Writer) error {
			return putJSON(ctx, w, collSystemMapping, mappingKey(m.Description), m)
		})
	}
	return nil
}

func (t *Tx) UpdateIntrospectionSourceIndexes(indexes []catalog.IntrospectionSourceIndex) error {
	if t.done {
		return errTxDone
	}
	indexes = slices.Clone(indexes)
	t.ops = append(t.ops, func(ctx context.Context, w Writer) error {
		return putIntrospectionIndexes(ctx, w, indexes)
	})
	return nil
}

func (t *Tx) UpsertSystemConfiguration(name, value string) error {
	if t.done {
		return errTxDone
	}
	t.ops = append(t.ops, func(ctx context.Context, w Writer) error {
		return putJSON(ctx, w, collConfig, name, catalog.SystemConfiguration{Name: name, Value: value})
	})
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if len(t.ops) == 0 {
		return nil
	}
	return t.store.update(ctx, func(w Writer) error {
		for _, op := range t.ops {
			if err := op(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Tx) Rollback(context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}
