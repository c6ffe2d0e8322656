package migration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
)

const publicSchema catalog.SchemaID = 5

var defaultCluster = catalog.UserClusterID(1)

// fakeIDs continues both namespaces from where the fixture left off.
type fakeIDs struct {
	nextSystem uint64
	nextUser   uint64
	err        error
}

func (f *fakeIDs) AllocateSystemIDs(_ context.Context, n uint64) ([]catalog.ObjectID, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]catalog.ObjectID, n)
	for i := range out {
		out[i] = catalog.SystemID(f.nextSystem)
		f.nextSystem++
	}
	return out, nil
}

func (f *fakeIDs) AllocateUserID(context.Context) (catalog.ObjectID, error) {
	if f.err != nil {
		return catalog.ObjectID{}, f.err
	}
	id := catalog.UserID(f.nextUser)
	f.nextUser++
	return id, nil
}

type fixtureKind int

const (
	fixtureTable fixtureKind = iota
	fixtureMaterializedView
	fixtureIndex
)

type fixtureEntry struct {
	name   string
	system bool
	kind   fixtureKind
	refs   []string
}

func sysTable(name string) fixtureEntry { return fixtureEntry{name: name, system: true, kind: fixtureTable} }

func sysMV(name string, refs ...string) fixtureEntry {
	return fixtureEntry{name: name, system: true, kind: fixtureMaterializedView, refs: refs}
}

func userMV(name string, refs ...string) fixtureEntry {
	return fixtureEntry{name: name, kind: fixtureMaterializedView, refs: refs}
}

func sysIndex(name, on string) fixtureEntry {
	return fixtureEntry{name: name, system: true, kind: fixtureIndex, refs: []string{on}}
}

// fixture is a catalog built from fixture entries. Ids are handed out in
// entry order, per namespace, starting at 1.
type fixture struct {
	cat    *state.Catalog
	ids    *fakeIDs
	byName map[string]catalog.ObjectID
	names  map[catalog.ObjectID]string
}

func qualified(name string) catalog.QualifiedName {
	return catalog.QualifiedName{Database: "materialize", Schema: "public", Item: name}
}

func newBaseCatalog(t *testing.T) *state.Catalog {
	t.Helper()
	cat := state.New(state.Config{})
	db := catalog.DatabaseID(1)
	require.NoError(t, cat.InsertDatabase(catalog.Database{ID: db, Name: "materialize"}))
	require.NoError(t, cat.InsertSchema(catalog.Schema{ID: 2, Name: builtin.SchemaMzInternal}))
	require.NoError(t, cat.InsertSchema(catalog.Schema{ID: publicSchema, Database: &db, Name: "public"}))
	require.NoError(t, cat.InsertCluster(catalog.Cluster{ID: defaultCluster, Name: "default"}, nil))
	return cat
}

func buildFixture(t *testing.T, entries []fixtureEntry) *fixture {
	t.Helper()
	f := &fixture{
		cat:    newBaseCatalog(t),
		ids:    &fakeIDs{nextSystem: 1, nextUser: 1},
		byName: make(map[string]catalog.ObjectID),
		names:  make(map[catalog.ObjectID]string),
	}
	for _, fe := range entries {
		var id catalog.ObjectID
		if fe.system {
			ids, err := f.ids.AllocateSystemIDs(context.Background(), 1)
			require.NoError(t, err)
			id = ids[0]
		} else {
			var err error
			id, err = f.ids.AllocateUserID(context.Background())
			require.NoError(t, err)
		}
		oid, err := f.cat.AllocateOID()
		require.NoError(t, err)
		require.NoError(t, f.cat.InsertItem(id, oid, qualified(fe.name), publicSchema, f.item(fe), builtin.MzSystemRoleID, nil))
		f.byName[fe.name] = id
		f.names[id] = fe.name
	}
	return f
}

func (f *fixture) ref(name string) string {
	return fmt.Sprintf("[%s AS materialize.public.%s]", f.byName[name], name)
}

func (f *fixture) item(fe fixtureEntry) catalog.Item {
	var deps []catalog.ObjectID
	var refs []string
	for _, r := range fe.refs {
		deps = append(deps, f.byName[r])
		refs = append(refs, f.ref(r))
	}
	switch fe.kind {
	case fixtureMaterializedView:
		return &catalog.MaterializedView{
			Definition: catalog.Definition{
				SQL: fmt.Sprintf("CREATE MATERIALIZED VIEW materialize.public.%s IN CLUSTER default AS SELECT * FROM %s",
					fe.name, strings.Join(refs, ", ")),
				Resolved: catalog.NewResolvedIDs(deps...),
			},
			Cluster: defaultCluster,
		}
	case fixtureIndex:
		return &catalog.Index{
			Definition: catalog.Definition{
				SQL:      fmt.Sprintf("CREATE INDEX materialize.public.%s IN CLUSTER default ON %s (a)", fe.name, refs[0]),
				Resolved: catalog.NewResolvedIDs(deps...),
			},
			On:      deps[0],
			Keys:    []string{"a"},
			Cluster: defaultCluster,
		}
	default:
		return &catalog.Table{
			Definition: catalog.Definition{SQL: catalog.PlaceholderCreateSQL},
			Columns:    []catalog.Column{{Name: "a", Type: "int4"}},
		}
	}
}

func (f *fixture) toNames(ids []catalog.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.names[id])
	}
	return out
}

func (f *fixture) plan(t *testing.T, migrated []string) *Metadata {
	t.Helper()
	var changed []catalog.ObjectID
	for _, name := range migrated {
		changed = append(changed, f.byName[name])
	}
	fingerprints := make(map[catalog.ObjectID]string)
	for id := range f.names {
		if id.IsSystem() {
			fingerprints[id] = ""
		}
	}
	md, err := NewPlanner(f.cat, f.ids, nil, logging.NewNullLogger()).Plan(context.Background(), changed, fingerprints)
	require.NoError(t, err)
	return md
}

func TestPlanFixtures(t *testing.T) {
	tests := []struct {
		name     string
		initial  []fixtureEntry
		migrated []string

		previousSinks             []string
		previousMaterializedViews []string
		previousSources           []string
		allDrops                  []string
		userDrops                 []string
		allCreates                []string
		userCreates               []string
		mappings                  []string
	}{
		{
			name:    "no migrations",
			initial: []fixtureEntry{sysTable("s1")},
		},
		{
			name:            "single migration",
			initial:         []fixtureEntry{sysTable("s1")},
			migrated:        []string{"s1"},
			previousSources: []string{"s1"},
			allDrops:        []string{"s1"},
			allCreates:      []string{"s1"},
			mappings:        []string{"s1"},
		},
		{
			name:                      "child migration",
			initial:                   []fixtureEntry{sysTable("s1"), userMV("u1", "s1")},
			migrated:                  []string{"s1"},
			previousMaterializedViews: []string{"u1"},
			previousSources:           []string{"s1"},
			allDrops:                  []string{"u1", "s1"},
			userDrops:                 []string{"u1"},
			allCreates:                []string{"s1", "u1"},
			userCreates:               []string{"u1"},
			mappings:                  []string{"s1"},
		},
		{
			name:                      "multi child migration",
			initial:                   []fixtureEntry{sysTable("s1"), userMV("u1", "s1"), userMV("u2", "s1")},
			migrated:                  []string{"s1"},
			previousMaterializedViews: []string{"u1", "u2"},
			previousSources:           []string{"s1"},
			allDrops:                  []string{"u1", "u2", "s1"},
			userDrops:                 []string{"u1", "u2"},
			allCreates:                []string{"s1", "u2", "u1"},
			userCreates:               []string{"u2", "u1"},
			mappings:                  []string{"s1"},
		},
		{
			name: "topological sort",
			initial: []fixtureEntry{
				sysTable("s1"),
				sysTable("s2"),
				userMV("u1", "s2"),
				userMV("u2", "s1", "u1"),
			},
			migrated:                  []string{"s1", "s2"},
			previousMaterializedViews: []string{"u2", "u1"},
			previousSources:           []string{"s1", "s2"},
			allDrops:                  []string{"u2", "s1", "u1", "s2"},
			userDrops:                 []string{"u2", "u1"},
			allCreates:                []string{"s2", "u1", "s1", "u2"},
			userCreates:               []string{"u1", "u2"},
			mappings:                  []string{"s1", "s2"},
		},
		{
			name: "topological sort complex",
			initial: []fixtureEntry{
				sysTable("s273"),
				sysTable("s322"),
				sysTable("s317"),
				sysMV("s349", "s273"),
				sysMV("s421", "s273"),
				sysMV("s295", "s273"),
				sysMV("s296", "s295"),
				sysMV("s320", "s295"),
				sysMV("s340", "s295"),
				sysMV("s318", "s295"),
				sysMV("s323", "s295", "s322"),
				sysMV("s330", "s318", "s317"),
				sysMV("s321", "s318"),
				sysMV("s315", "s296"),
				sysMV("s354", "s296"),
				sysMV("s327", "s296"),
				sysMV("s339", "s296"),
				sysMV("s355", "s315"),
			},
			migrated: []string{"s273", "s317", "s318", "s320", "s321", "s322", "s323", "s330", "s339", "s340"},
			previousMaterializedViews: []string{
				"s349", "s421", "s355", "s315", "s354", "s327", "s339", "s296",
				"s320", "s340", "s330", "s321", "s318", "s323", "s295",
			},
			previousSources: []string{"s273", "s317", "s322"},
			allDrops: []string{
				"s349", "s421", "s355", "s315", "s354", "s327", "s339", "s296", "s320",
				"s340", "s330", "s321", "s318", "s323", "s295", "s273", "s317", "s322",
			},
			allCreates: []string{
				"s322", "s317", "s273", "s295", "s323", "s318", "s321", "s330", "s340",
				"s320", "s296", "s339", "s327", "s354", "s315", "s355", "s421", "s349",
			},
			mappings: []string{
				"s322", "s317", "s273", "s295", "s323", "s318", "s321", "s330", "s340",
				"s320", "s296", "s339", "s327", "s354", "s315", "s355", "s421", "s349",
			},
		},
		{
			name:            "system child migration",
			initial:         []fixtureEntry{sysTable("s1"), sysIndex("s2", "s1")},
			migrated:        []string{"s1"},
			previousSources: []string{"s1"},
			allDrops:        []string{"s2", "s1"},
			allCreates:      []string{"s1", "s2"},
			mappings:        []string{"s1", "s2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := buildFixture(t, tt.initial)
			md := f.plan(t, tt.migrated)

			assert.Equal(t, tt.previousSinks, nilIfEmpty(f.toNames(md.PreviousSinkIDs)), "previous sinks")
			assert.Equal(t, tt.previousMaterializedViews, nilIfEmpty(f.toNames(md.PreviousMaterializedViewIDs)), "previous materialized views")
			assert.Equal(t, tt.previousSources, nilIfEmpty(f.toNames(md.PreviousSourceIDs)), "previous sources")
			assert.Equal(t, tt.allDrops, nilIfEmpty(f.toNames(md.AllDropOps)), "all drops")
			assert.Equal(t, tt.userDrops, nilIfEmpty(f.toNames(md.UserDropOps)), "user drops")

			var creates []string
			for _, op := range md.AllCreateOps {
				creates = append(creates, op.Name.Item)
			}
			assert.Equal(t, tt.allCreates, creates, "all creates")

			var userCreates []string
			for _, op := range md.UserCreateOps {
				userCreates = append(userCreates, op.Name)
			}
			assert.Equal(t, tt.userCreates, userCreates, "user creates")

			var mappings []string
			for _, m := range md.MigratedSystemObjectMappings {
				mappings = append(mappings, m.Description.ObjectName)
			}
			assert.ElementsMatch(t, tt.mappings, mappings, "mappings")
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestPlanAllocatesFreshIDsInSameNamespace(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	md := f.plan(t, []string{"s1"})

	require.Len(t, md.AllCreateOps, 2)
	assert.Equal(t, catalog.SystemID(2), md.AllCreateOps[0].ID)
	assert.Equal(t, catalog.UserID(2), md.AllCreateOps[1].ID)
	assert.Equal(t, catalog.UserID(2), md.UserCreateOps[0].ID)
	assert.Equal(t, publicSchema, md.UserCreateOps[0].SchemaID)

	mapping := md.MigratedSystemObjectMappings[catalog.SystemID(1)]
	assert.Equal(t, catalog.SystemID(2), mapping.UniqueIdentifier.ID)
	assert.Equal(t, "public", mapping.Description.SchemaName)
	assert.Equal(t, catalog.ItemTypeTable, mapping.Description.ObjectType)
}

func TestPlanCarriesOverIdentity(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	old := f.cat.MustEntry(catalog.UserID(1))

	md := f.plan(t, []string{"s1"})

	op := md.AllCreateOps[1]
	assert.Equal(t, old.OID, op.OID)
	assert.Equal(t, old.Name, op.Name)
	assert.Equal(t, old.Owner, op.Owner)
	assert.Equal(t, old.SchemaID, op.SchemaID)
}

func TestRebuilderRewritesMigratedReferences(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	md := f.plan(t, []string{"s1"})

	table, view := md.AllCreateOps[0].Rebuilder, md.AllCreateOps[1].Rebuilder
	assert.True(t, table.Verbatim())
	assert.False(t, view.Verbatim())
	assert.Equal(t,
		"CREATE MATERIALIZED VIEW materialize.public.u1 IN CLUSTER default AS SELECT * FROM [s2 AS materialize.public.s1]",
		view.CreateSQL())
}

func TestPlanMapsOnlyFingerprintedBuiltins(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), sysIndex("s2", "s1")})

	md, err := NewPlanner(f.cat, f.ids, nil, logging.NewNullLogger()).
		Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)}, map[catalog.ObjectID]string{catalog.SystemID(1): "fp"})
	require.NoError(t, err)

	require.Len(t, md.MigratedSystemObjectMappings, 1)
	assert.Equal(t, "fp", md.MigratedSystemObjectMappings[catalog.SystemID(1)].UniqueIdentifier.Fingerprint)
}

func TestPlanPanicsOnUserFingerprint(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	planner := NewPlanner(f.cat, f.ids, nil, logging.NewNullLogger())
	assert.Panics(t, func() {
		_, _ = planner.Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)},
			map[catalog.ObjectID]string{catalog.UserID(1): ""})
	})
}

func TestPlanPanicsOnUnmigratableType(t *testing.T) {
	f := buildFixture(t, nil)
	require.NoError(t, f.cat.InsertItem(catalog.SystemID(1), 20_500,
		catalog.QualifiedName{Schema: builtin.SchemaMzInternal, Item: "now"}, 2,
		&catalog.Func{Definition: catalog.Definition{SQL: catalog.PlaceholderCreateSQL}}, builtin.MzSystemRoleID, nil))

	planner := NewPlanner(f.cat, f.ids, nil, logging.NewNullLogger())
	assert.Panics(t, func() {
		_, _ = planner.Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)}, nil)
	})
}

func TestPlanPropagatesAllocationFailure(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1")})
	f.ids.err = catalog.ErrReadOnly

	_, err := NewPlanner(f.cat, f.ids, nil, logging.NewNullLogger()).
		Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)}, nil)
	assert.ErrorIs(t, err, catalog.ErrReadOnly)
}

func TestPlanMovesIntrospectionIndexesOfMigratedLogs(t *testing.T) {
	cat := newBaseCatalog(t)
	log := &builtin.Log{
		Name:    "mz_dataflow_operators",
		Schema:  builtin.SchemaMzInternal,
		Variant: builtin.LogDataflowOperators,
		Columns: []catalog.Column{{Name: "id", Type: "uint8"}},
	}
	require.NoError(t, cat.InsertItem(catalog.SystemID(1), 20_000,
		catalog.QualifiedName{Schema: builtin.SchemaMzInternal, Item: log.Name}, 2,
		&catalog.Log{Variant: log.Variant}, builtin.MzSystemRoleID, nil))
	require.NoError(t, cat.InsertCluster(catalog.Cluster{ID: catalog.SystemClusterID(2), Name: "mz_introspection"},
		[]state.LogIndex{{Log: log, IndexID: catalog.SystemID(2)}}))

	ids := &fakeIDs{nextSystem: 3, nextUser: 1}
	md, err := NewPlanner(cat, ids, []*builtin.Log{log}, logging.NewNullLogger()).
		Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)}, map[catalog.ObjectID]string{catalog.SystemID(1): "fp"})
	require.NoError(t, err)

	assert.Equal(t, []catalog.ObjectID{catalog.SystemID(2), catalog.SystemID(1)}, md.AllDropOps)
	assert.Empty(t, md.PreviousSourceIDs, "logs are not storage collections")
	assert.Equal(t, map[catalog.ClusterID][]IntrospectionIndexUpdate{
		catalog.SystemClusterID(2): {{Variant: log.Variant, LogName: log.Name, IndexID: catalog.SystemID(4)}},
	}, md.IntrospectionSourceIndexUpdates)
	assert.True(t, md.AllCreateOps[0].Rebuilder.Verbatim())
	assert.False(t, md.AllCreateOps[1].Rebuilder.Verbatim())
}
