// Package migration replaces built-in objects whose definitions changed
// between versions, together with everything that transitively depends on
// them.
//
// Every affected object is dropped and re-created under a fresh id in its
// own namespace. Planning reads the in-memory catalog and allocates ids but
// mutates nothing; ApplyInMemory and ApplyPersisted then carry the plan out.
package migration

import (
	"context"
	"fmt"
	"slices"

	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/sql"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
)

// IDAllocator hands out fresh ids. Ids are never reused.
type IDAllocator interface {
	AllocateSystemIDs(ctx context.Context, n uint64) ([]catalog.ObjectID, error)
	AllocateUserID(ctx context.Context) (catalog.ObjectID, error)
}

// CreateOp re-creates one dropped entry under a new id. Everything but the id
// and the item is carried over from the dropped entry.
type CreateOp struct {
	ID         catalog.ObjectID
	OID        uint32
	Name       catalog.QualifiedName
	SchemaID   catalog.SchemaID
	Owner      catalog.RoleID
	Privileges catalog.PrivilegeMap
	Rebuilder  Rebuilder
}

// UserCreateOp is the durable counterpart of a CreateOp for a user item.
type UserCreateOp struct {
	ID       catalog.ObjectID
	SchemaID catalog.SchemaID
	Name     string
}

// IntrospectionIndexUpdate moves a cluster's index on a log to a new id.
type IntrospectionIndexUpdate struct {
	Variant catalog.LogVariant
	LogName string
	IndexID catalog.ObjectID
}

// Metadata is a complete migration plan. Drop lists are in dependents-first
// order and AllCreateOps is their exact reverse.
type Metadata struct {
	// Storage and compute collections to tear down.
	PreviousSinkIDs             []catalog.ObjectID
	PreviousMaterializedViewIDs []catalog.ObjectID
	PreviousSourceIDs           []catalog.ObjectID

	// In-memory catalog changes.
	AllDropOps                      []catalog.ObjectID
	AllCreateOps                    []CreateOp
	IntrospectionSourceIndexUpdates map[catalog.ClusterID][]IntrospectionIndexUpdate

	// Durable catalog changes.
	MigratedSystemObjectMappings map[catalog.ObjectID]catalog.SystemObjectMapping
	UserDropOps                  []catalog.ObjectID
	UserCreateOps                []UserCreateOp
}

// Empty reports whether the plan changes nothing.
func (m *Metadata) Empty() bool {
	return len(m.AllDropOps) == 0 && len(m.MigratedSystemObjectMappings) == 0
}

// Planner computes migration plans against an in-memory catalog.
type Planner struct {
	cat    *state.Catalog
	ids    IDAllocator
	logs   map[catalog.LogVariant]string
	logger catalog.Logger
}

// NewPlanner returns a planner. logs supplies the names of the log variants
// whose per-cluster indexes may need to move.
func NewPlanner(cat *state.Catalog, ids IDAllocator, logs []*builtin.Log, logger catalog.Logger) *Planner {
	names := make(map[catalog.LogVariant]string, len(logs))
	for _, l := range logs {
		names[l.Variant] = l.Name
	}
	return &Planner{cat: cat, ids: ids, logs: names, logger: logger}
}

// Plan migrates changed and everything that depends on them. fingerprints
// holds the new fingerprint of every changed built-in that has one; only
// system ids may appear in it.
func (p *Planner) Plan(ctx context.Context, changed []catalog.ObjectID, fingerprints map[catalog.ObjectID]string) (*Metadata, error) {
	order := p.cat.DependentsFirst(changed)
	slices.Reverse(order)

	md := &Metadata{
		IntrospectionSourceIndexUpdates: make(map[catalog.ClusterID][]IntrospectionIndexUpdate),
		MigratedSystemObjectMappings:    make(map[catalog.ObjectID]catalog.SystemObjectMapping),
	}
	ancestors := make(map[catalog.ObjectID]catalog.ObjectID, len(order))
	migratedLogs := make(map[catalog.ObjectID]catalog.LogVariant)

	for _, id := range order {
		entry := p.cat.MustEntry(id)

		newID, err := p.allocate(ctx, id)
		if err != nil {
			return nil, err
		}
		p.logger.Info("migrating %s from %s to %s", entry.Name, id, newID)

		if fp, ok := fingerprints[id]; ok {
			if !id.IsSystem() {
				panic(fmt.Sprintf("fingerprint recorded for non-system item %s", id))
			}
			schema, ok := p.cat.Schema(entry.SchemaID)
			if !ok {
				return nil, &catalog.CorruptionError{Detail: fmt.Sprintf("item %s (%s) is in unknown schema %d", id, entry.Name, entry.SchemaID)}
			}
			md.MigratedSystemObjectMappings[id] = catalog.SystemObjectMapping{
				Description: catalog.SystemObjectDescription{
					SchemaName: schema.Name,
					ObjectType: entry.ItemType(),
					ObjectName: entry.Name.Item,
				},
				UniqueIdentifier: catalog.SystemObjectUniqueIdentifier{ID: newID, Fingerprint: fp},
			}
		}

		ancestors[id] = newID

		switch item := entry.Item.(type) {
		case *catalog.Table, *catalog.Source:
			md.PreviousSourceIDs = append(md.PreviousSourceIDs, id)
		case *catalog.Sink:
			md.PreviousSinkIDs = append(md.PreviousSinkIDs, id)
		case *catalog.MaterializedView:
			md.PreviousMaterializedViewIDs = append(md.PreviousMaterializedViewIDs, id)
		case *catalog.Log:
			migratedLogs[id] = item.Variant
		case *catalog.Index:
			if variant, ok := migratedLogs[item.On]; ok && id.IsSystem() {
				name, ok := p.logs[variant]
				if !ok {
					panic(fmt.Sprintf("log variant %s has no name", variant))
				}
				md.IntrospectionSourceIndexUpdates[item.Cluster] = append(md.IntrospectionSourceIndexUpdates[item.Cluster],
					IntrospectionIndexUpdate{Variant: variant, LogName: name, IndexID: newID})
			}
		case *catalog.View:
		default:
			panic(fmt.Sprintf("cannot migrate the schema of %s %s", entry.ItemType(), entry.Name))
		}

		if id.IsUser() {
			md.UserDropOps = append(md.UserDropOps, id)
			md.UserCreateOps = append(md.UserCreateOps, UserCreateOp{ID: newID, SchemaID: entry.SchemaID, Name: entry.Name.Item})
		}
		md.AllDropOps = append(md.AllDropOps, id)

		rebuilder, err := newRebuilder(entry, ancestors)
		if err != nil {
			return nil, err
		}
		md.AllCreateOps = append(md.AllCreateOps, CreateOp{
			ID:         newID,
			OID:        entry.OID,
			Name:       entry.Name,
			SchemaID:   entry.SchemaID,
			Owner:      entry.Owner,
			Privileges: entry.Privileges,
			Rebuilder:  rebuilder,
		})
	}

	slices.Reverse(md.PreviousSinkIDs)
	slices.Reverse(md.PreviousMaterializedViewIDs)
	slices.Reverse(md.PreviousSourceIDs)
	slices.Reverse(md.AllDropOps)
	slices.Reverse(md.UserDropOps)
	return md, nil
}

func (p *Planner) allocate(ctx context.Context, id catalog.ObjectID) (catalog.ObjectID, error) {
	if id.IsUser() {
		return p.ids.AllocateUserID(ctx)
	}
	ids, err := p.ids.AllocateSystemIDs(ctx, 1)
	if err != nil {
		return catalog.ObjectID{}, err
	}
	if len(ids) != 1 {
		return catalog.ObjectID{}, fmt.Errorf("%w: wanted 1 system id, got %d", catalog.ErrInsufficientIDs, len(ids))
	}
	return ids[0], nil
}

// ItemParser plans create SQL against the catalog being rebuilt.
type ItemParser interface {
	ParseItem(createSQL string) (catalog.Item, error)
}

// Rebuilder produces the item of a re-created entry. Built-in tables and
// introspection sources are kept as they are; everything else is re-planned
// from its create SQL with references to migrated ids rewritten.
type Rebuilder struct {
	item      catalog.Item
	createSQL string
}

func newRebuilder(e *index.Entry, ancestors map[catalog.ObjectID]catalog.ObjectID) (Rebuilder, error) {
	if e.ID.IsSystem() && (e.IsTable() || catalog.IsIntrospectionSource(e.Item)) {
		return Rebuilder{item: e.Item}, nil
	}
	stmt, err := sql.Parse(e.Item.CreateSQL())
	if err != nil {
		return Rebuilder{}, &catalog.CorruptionError{Detail: fmt.Sprintf("invalid create SQL for %s (%s): %v", e.ID, e.Name, err)}
	}
	sql.ReplaceIDs(stmt, ancestors)
	return Rebuilder{createSQL: sql.Render(stmt)}, nil
}

// Verbatim reports whether the item is reused unchanged.
func (r Rebuilder) Verbatim() bool { return r.item != nil }

// CreateSQL returns the rewritten create SQL, or the original one for
// verbatim items.
func (r Rebuilder) CreateSQL() string {
	if r.item != nil {
		return r.item.CreateSQL()
	}
	return r.createSQL
}

// Build returns the item to insert, planned against p.
func (r Rebuilder) Build(p ItemParser) (catalog.Item, error) {
	if r.item != nil {
		return r.item, nil
	}
	return p.ParseItem(r.createSQL)
}
