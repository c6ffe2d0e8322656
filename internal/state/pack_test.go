package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/pkg/catalog"
)

func insertBuiltinTable(t *testing.T, c *Catalog, id catalog.ObjectID, schemaID catalog.SchemaID, schema, name string) {
	t.Helper()
	oid, err := c.AllocateOID()
	require.NoError(t, err)
	item := &catalog.Table{Definition: catalog.Definition{SQL: catalog.PlaceholderCreateSQL}}
	require.NoError(t, c.InsertItem(id, oid, catalog.QualifiedName{Schema: schema, Item: name},
		schemaID, item, builtin.MzSystemRoleID, nil))
}

func TestPackItemUpdatesIncludesDependencies(t *testing.T) {
	c := newTestCatalog(t)
	insertBuiltinTable(t, c, catalog.SystemID(1), 1, builtin.SchemaMzCatalog, builtin.TableTables)
	insertBuiltinTable(t, c, catalog.SystemID(2), 1, builtin.SchemaMzCatalog, builtin.TableViews)
	insertBuiltinTable(t, c, catalog.SystemID(3), 2, builtin.SchemaMzInternal, builtin.TableObjectDependencies)
	insertTable(t, c, catalog.UserID(1), "t")

	createSQL := "CREATE VIEW materialize.public.v AS SELECT a FROM materialize.public.t"
	item, err := c.ParseItem(createSQL)
	require.NoError(t, err)
	require.NoError(t, c.InsertItem(catalog.UserID(2), 30_000,
		catalog.QualifiedName{Database: "materialize", Schema: "public", Item: "v"},
		5, item, builtin.MzSystemRoleID, nil))

	updates := c.PackItemUpdates(c.MustEntry(catalog.UserID(2)), 1)
	require.Len(t, updates, 2)

	assert.Equal(t, catalog.SystemID(2), updates[0].Table)
	assert.Equal(t, int64(1), updates[0].Diff)
	assert.Equal(t, []any{"u2", uint32(30_000), uint64(5), "v", "s1", []string{}, createSQL}, updates[0].Row)

	assert.Equal(t, catalog.SystemID(3), updates[1].Table)
	assert.Equal(t, []any{"u2", "u1"}, updates[1].Row)
}

func TestPackSkipsMissingTables(t *testing.T) {
	c := newTestCatalog(t)
	db, ok := c.Database(1)
	require.True(t, ok)
	assert.Empty(t, c.PackDatabaseUpdate(db, 1))
}

func TestPackReplicaStatusPerProcess(t *testing.T) {
	c := newTestCatalog(t)
	insertBuiltinTable(t, c, catalog.SystemID(1), 2, builtin.SchemaMzInternal, builtin.TableReplicaStatuses)

	r := &Replica{ClusterReplica: catalog.ClusterReplica{
		ID:     catalog.ReplicaID{Namespace: catalog.NamespaceUser, Value: 1},
		Config: catalog.ReplicaConfig{Location: catalog.ReplicaLocation{Processes: 2}},
	}}
	updates := c.PackReplicaStatusUpdates(r, "not-ready", c.Config().StartTime, 1)
	require.Len(t, updates, 2)
	assert.Equal(t, uint64(0), updates[0].Row[1])
	assert.Equal(t, uint64(1), updates[1].Row[1])
	assert.Equal(t, "not-ready", updates[1].Row[2])
}

func TestPackRoleMembersOrdered(t *testing.T) {
	c := newTestCatalog(t)
	insertBuiltinTable(t, c, catalog.SystemID(1), 1, builtin.SchemaMzCatalog, builtin.TableRoleMembers)

	member := catalog.RoleID{Namespace: catalog.NamespaceUser, Value: 3}
	require.NoError(t, c.InsertRole(catalog.Role{
		ID:   member,
		Name: "analyst",
		Membership: map[catalog.RoleID]catalog.RoleID{
			{Namespace: catalog.NamespaceUser, Value: 2}: builtin.MzSystemRoleID,
			{Namespace: catalog.NamespaceUser, Value: 1}: builtin.MzSystemRoleID,
		},
	}))
	roles := c.Roles()
	require.Len(t, roles, 1)

	updates := c.PackRoleMemberUpdates(roles[0], 1)
	require.Len(t, updates, 2)
	assert.Equal(t, []any{"u1", "u3", "s1"}, updates[0].Row)
	assert.Equal(t, []any{"u2", "u3", "s1"}, updates[1].Row)
}
