package bootstrap

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vsayer/materialize/internal/allocator"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// builtinMigration is what the allocator found changed, handed to the
// migration planner once persisted items are loaded.
type builtinMigration struct {
	changed      []catalog.ObjectID
	fingerprints map[catalog.ObjectID]string
}

func (o *opener) loadMappings(ctx context.Context) error {
	persisted, err := o.store.GetSystemItems(ctx)
	if err != nil {
		return err
	}
	o.mappings = make(map[catalog.SystemObjectDescription]catalog.SystemObjectUniqueIdentifier, len(persisted))
	for _, m := range persisted {
		o.mappings[m.Description] = m.UniqueIdentifier
	}
	return nil
}

func lookupIn[T builtin.Builtin](mappings map[catalog.SystemObjectDescription]catalog.SystemObjectUniqueIdentifier) func(T) (catalog.SystemObjectUniqueIdentifier, bool) {
	return func(b T) (catalog.SystemObjectUniqueIdentifier, bool) {
		u, ok := mappings[builtin.Description(b)]
		return u, ok
	}
}

func newMappings[T builtin.Builtin](assigned []allocator.Assigned[T]) []catalog.SystemObjectMapping {
	out := make([]catalog.SystemObjectMapping, 0, len(assigned))
	for _, a := range assigned {
		out = append(out, catalog.SystemObjectMapping{
			Description:      builtin.Description(a.Builtin),
			UniqueIdentifier: catalog.SystemObjectUniqueIdentifier{ID: a.ID, Fingerprint: a.Builtin.Fingerprint()},
		})
	}
	return out
}

// loadBuiltinTypes inserts the built-in types before any other built-in.
// Types reference their element type, so they are inserted in passes, each
// taking the types whose element is already present.
func (o *opener) loadBuiltinTypes(ctx context.Context) error {
	if err := o.loadMappings(ctx); err != nil {
		return err
	}
	alloc, err := allocator.AllocateSystemIDs(ctx, o.store, o.cfg.Builtins.Types, lookupIn[*builtin.Type](o.mappings))
	if err != nil {
		return err
	}
	if len(alloc.Migrated) > 0 {
		panic(fmt.Sprintf("built-in types cannot be migrated: %v", alloc.Migrated))
	}

	ids := make(map[string]catalog.ObjectID, len(alloc.All))
	for _, a := range alloc.All {
		ids[builtin.FullName(a.Builtin)] = a.ID
	}

	pending := slices.Clone(alloc.All)
	inserted := make(map[catalog.ObjectID]bool, len(pending))
	for len(pending) > 0 {
		var next []allocator.Assigned[*builtin.Type]
		for _, a := range pending {
			typ := &catalog.Type{
				Definition: catalog.Definition{SQL: "CREATE TYPE " + a.Builtin.Name},
				Category:   catalog.TypeCategoryBase,
				FixedOID:   a.Builtin.OID,
			}
			if a.Builtin.Element != "" {
				elem, ok := ids[a.Builtin.Schema+"."+a.Builtin.Element]
				if !ok {
					panic(fmt.Sprintf("built-in type %s has unknown element type %s", builtin.FullName(a.Builtin), a.Builtin.Element))
				}
				if !inserted[elem] {
					next = append(next, a)
					continue
				}
				typ.Category = catalog.TypeCategoryList
				typ.Element = &elem
				typ.Resolved = catalog.NewResolvedIDs(elem)
			}
			if err := o.insertBuiltin(a.Builtin, a.ID, a.Builtin.OID, typ); err != nil {
				return err
			}
			inserted[a.ID] = true
		}
		if len(next) == len(pending) {
			names := make([]string, len(next))
			for i, a := range next {
				names[i] = builtin.FullName(a.Builtin)
			}
			panic("built-in types reference each other in a cycle: " + strings.Join(names, ", "))
		}
		pending = next
	}

	return o.writable("built-in type ids", func() error {
		return o.store.SetSystemItems(ctx, newMappings(alloc.New))
	})
}

// loadBuiltins inserts every other built-in, then the clusters with their
// log indexes and replicas, then the built-in indexes, which need clusters.
func (o *opener) loadBuiltins(ctx context.Context) (*builtinMigration, error) {
	alloc, err := allocator.AllocateSystemIDs(ctx, o.store, o.cfg.Builtins.Items, lookupIn[builtin.Builtin](o.mappings))
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("builtins.total", len(alloc.All)),
		attribute.Int("builtins.new", len(alloc.New)),
		attribute.Int("builtins.changed", len(alloc.Migrated)))

	m := &builtinMigration{
		changed:      alloc.Migrated,
		fingerprints: make(map[catalog.ObjectID]string, len(alloc.All)),
	}
	var indexes []allocator.Assigned[builtin.Builtin]
	for _, a := range alloc.All {
		m.fingerprints[a.ID] = a.Builtin.Fingerprint()
		if _, ok := a.Builtin.(*builtin.Index); ok {
			indexes = append(indexes, a)
			continue
		}
		if err := o.insertNonIndex(a.Builtin, a.ID); err != nil {
			return nil, err
		}
	}

	if err := o.loadClusters(ctx); err != nil {
		return nil, err
	}
	if err := o.loadReplicas(ctx); err != nil {
		return nil, err
	}

	for _, a := range indexes {
		if err := o.insertIndex(a.Builtin.(*builtin.Index), a.ID); err != nil {
			return nil, err
		}
	}

	err = o.writable("built-in ids", func() error {
		return o.store.SetSystemItems(ctx, newMappings(alloc.New))
	})
	if err != nil {
		return nil, err
	}
	if len(alloc.New) > 0 {
		o.logger.Verbose("Allocated ids for %d new built-ins", len(alloc.New))
	}
	return m, nil
}

func (o *opener) insertBuiltin(b builtin.Builtin, id catalog.ObjectID, oid uint32, item catalog.Item) error {
	schemaID, ok := o.cat.AmbientSchemaID(b.SchemaName())
	if !ok {
		return &catalog.CorruptionError{Detail: fmt.Sprintf("built-in %s is in missing schema %s", builtin.FullName(b), b.SchemaName())}
	}
	owner := builtin.MzSystemRoleID
	privileges := builtin.Privileges(item.ItemType(), owner)
	switch item.(type) {
	case *catalog.Func, *catalog.Index:
		privileges = catalog.NewPrivilegeMap()
	}
	name := catalog.QualifiedName{Schema: b.SchemaName(), Item: b.ItemName()}
	return o.cat.InsertItem(id, oid, name, schemaID, item, owner, privileges)
}

func (o *opener) insertNonIndex(b builtin.Builtin, id catalog.ObjectID) error {
	var item catalog.Item
	switch b := b.(type) {
	case *builtin.Log:
		item = &catalog.Log{Variant: b.Variant}
	case *builtin.Table:
		item = &catalog.Table{
			Definition:              catalog.Definition{SQL: catalog.PlaceholderCreateSQL},
			Columns:                 slices.Clone(b.Columns),
			IsRetainedMetricsObject: b.IsRetainedMetricsObject,
		}
	case *builtin.View:
		parsed, err := o.cat.ParseItem(b.SQL)
		if err != nil {
			panic(fmt.Sprintf("failed to load built-in view %s: %v; its create SQL must use schema-qualified names", builtin.FullName(b), err))
		}
		item = parsed
	case *builtin.Func:
		item = &catalog.Func{
			Definition: catalog.Definition{SQL: catalog.PlaceholderCreateSQL},
			Signatures: slices.Clone(b.Signatures),
		}
	case *builtin.Source:
		item = &catalog.Source{
			Definition: catalog.Definition{SQL: catalog.PlaceholderCreateSQL},
			DataSource: catalog.DataSource{Kind: catalog.DataSourceIntrospection, Introspection: b.Introspection},
			Columns:    slices.Clone(b.Columns),
		}
	default:
		panic(fmt.Sprintf("unexpected built-in %T %s", b, builtin.FullName(b)))
	}

	oid, err := o.cat.AllocateOID()
	if err != nil {
		return err
	}
	return o.insertBuiltin(b, id, oid, item)
}

func (o *opener) insertIndex(b *builtin.Index, id catalog.ObjectID) error {
	parsed, err := o.cat.ParseItem(b.SQL)
	if err != nil {
		panic(fmt.Sprintf("failed to load built-in index %s: %v; its create SQL must use schema-qualified names", builtin.FullName(b), err))
	}
	idx, ok := parsed.(*catalog.Index)
	if !ok {
		panic(fmt.Sprintf("built-in index %s does not begin with CREATE INDEX", builtin.FullName(b)))
	}
	idx.IsRetainedMetricsObject = b.IsRetainedMetricsObject

	oid, err := o.cat.AllocateOID()
	if err != nil {
		return err
	}
	return o.insertBuiltin(b, id, oid, idx)
}

// loadClusters inserts every cluster with one index per log. Log index ids
// are allocated the first time a cluster is seen and persisted right away.
func (o *opener) loadClusters(ctx context.Context) error {
	clusters, err := o.store.GetClusters(ctx)
	if err != nil {
		return err
	}
	logs := o.cfg.Builtins.Logs()
	for _, cl := range clusters {
		persisted, err := o.store.GetIntrospectionSourceIndexes(ctx, cl.ID)
		if err != nil {
			return err
		}
		// Logs migrate with their dependents later, so the fingerprint of
		// a persisted index id never matters here.
		lookup := func(l *builtin.Log) (catalog.SystemObjectUniqueIdentifier, bool) {
			id, ok := persisted[l.Name]
			return catalog.SystemObjectUniqueIdentifier{ID: id}, ok
		}
		alloc, err := allocator.AllocateSystemIDs(ctx, o.store, logs, lookup)
		if err != nil {
			return err
		}

		fresh := make([]catalog.IntrospectionSourceIndex, 0, len(alloc.New))
		for _, a := range alloc.New {
			fresh = append(fresh, catalog.IntrospectionSourceIndex{Cluster: cl.ID, Name: a.Builtin.Name, IndexID: a.ID})
		}
		if len(fresh) > 0 {
			err := o.writable("introspection source indexes of cluster "+cl.Name, func() error {
				return o.store.SetIntrospectionSourceIndexes(ctx, fresh)
			})
			if err != nil {
				return err
			}
		}

		logIndexes := make([]state.LogIndex, 0, len(alloc.All))
		for _, a := range alloc.All {
			logIndexes = append(logIndexes, state.LogIndex{Log: a.Builtin, IndexID: a.ID})
		}
		if err := o.cat.InsertCluster(cl, logIndexes); err != nil {
			return err
		}
	}
	return nil
}

// loadReplicas settles each replica's location against its cluster, writes
// the result back and adds the replica to the cluster.
func (o *opener) loadReplicas(ctx context.Context) error {
	replicas, err := o.store.GetClusterReplicas(ctx)
	if err != nil {
		return err
	}
	for _, r := range replicas {
		cl, ok := o.cat.Cluster(r.Cluster)
		if !ok {
			return &catalog.CorruptionError{Detail: fmt.Sprintf("replica %s references unknown cluster %s", r.Name, r.Cluster)}
		}
		loc, err := concretizeLocation(r.Config.Location, cl.Config)
		if err != nil {
			return fmt.Errorf("replica %s of cluster %s: %w", r.Name, cl.Name, err)
		}
		r.Config.Location = loc

		err = o.writable("config of replica "+r.Name, func() error {
			return o.store.SetReplicaConfig(ctx, r.ID, r.Cluster, r.Name, r.Config, r.Owner)
		})
		if err != nil {
			return err
		}
		if err := o.cat.InsertReplica(r); err != nil {
			return err
		}
	}
	return nil
}

func concretizeLocation(loc catalog.ReplicaLocation, cfg catalog.ClusterConfig) (catalog.ReplicaLocation, error) {
	if loc.Processes < 1 {
		loc.Processes = 1
	}
	if cfg.Managed == nil || loc.AvailabilityZone == "" || len(cfg.Managed.AvailabilityZones) == 0 {
		return loc, nil
	}
	if !slices.Contains(cfg.Managed.AvailabilityZones, loc.AvailabilityZone) {
		return loc, fmt.Errorf("availability zone %q is not one of %v: %w",
			loc.AvailabilityZone, cfg.Managed.AvailabilityZones, catalog.ErrInvalidConfig)
	}
	return loc, nil
}
