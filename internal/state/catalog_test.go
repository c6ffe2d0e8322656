package state

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/pkg/catalog"
)

func dbID(n uint64) *catalog.DatabaseID {
	id := catalog.DatabaseID(n)
	return &id
}

// newTestCatalog returns a catalog with the materialize database, its public
// schema (id 5) and the mz_internal ambient schema (id 2).
func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New(Config{BuildVersion: "v0.1.0", StartTime: time.Unix(0, 0)})
	require.NoError(t, c.InsertDatabase(catalog.Database{ID: 1, Name: "materialize", Owner: builtin.MzSystemRoleID}))
	require.NoError(t, c.InsertSchema(catalog.Schema{ID: 1, Name: builtin.SchemaMzCatalog}))
	require.NoError(t, c.InsertSchema(catalog.Schema{ID: 2, Name: builtin.SchemaMzInternal}))
	require.NoError(t, c.InsertSchema(catalog.Schema{ID: 5, Database: dbID(1), Name: "public"}))
	return c
}

func insertTable(t *testing.T, c *Catalog, id catalog.ObjectID, name string) {
	t.Helper()
	item, err := c.ParseItem("CREATE TABLE materialize.public." + name + " (a int4)")
	require.NoError(t, err)
	oid, err := c.AllocateOID()
	require.NoError(t, err)
	require.NoError(t, c.InsertItem(id, oid,
		catalog.QualifiedName{Database: "materialize", Schema: "public", Item: name},
		5, item, builtin.MzSystemRoleID, nil))
}

func TestNewAssignsSessionID(t *testing.T) {
	c := New(Config{})
	assert.NotEqual(t, uuid.Nil, c.Config().SessionID)

	fixed := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	assert.Equal(t, fixed, New(Config{SessionID: fixed}).Config().SessionID)
}

func TestSchemaQualifiedName(t *testing.T) {
	c := newTestCatalog(t)

	name, err := c.SchemaQualifiedName(5, "t")
	require.NoError(t, err)
	assert.Equal(t, "materialize.public.t", name.String())

	name, err = c.SchemaQualifiedName(2, "x")
	require.NoError(t, err)
	assert.Equal(t, "mz_internal.x", name.String())

	_, err = c.SchemaQualifiedName(99, "x")
	assert.Error(t, err)
}

func TestInsertSchemaRejectsDuplicatesAndUnknownDatabase(t *testing.T) {
	c := newTestCatalog(t)

	err := c.InsertSchema(catalog.Schema{ID: 6, Database: dbID(1), Name: "public"})
	assert.ErrorIs(t, err, catalog.ErrDuplicateEntry)

	err = c.InsertSchema(catalog.Schema{ID: 7, Database: dbID(9), Name: "other"})
	assert.ErrorIs(t, err, catalog.ErrCorruption)
}

func TestParseItemResolvesAgainstCatalog(t *testing.T) {
	c := newTestCatalog(t)
	insertTable(t, c, catalog.UserID(1), "t")

	item, err := c.ParseItem("CREATE VIEW materialize.public.v AS SELECT a FROM materialize.public.t")
	require.NoError(t, err)
	assert.Equal(t, catalog.ResolvedIDs{catalog.UserID(1)}, item.Uses())

	_, err = c.ParseItem("CREATE VIEW materialize.public.w AS SELECT a FROM materialize.public.missing")
	var unknown *catalog.UnknownNameError
	assert.ErrorAs(t, err, &unknown)
}

func TestPlanCacheFollowsIndexLifetime(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.InsertCluster(catalog.Cluster{ID: catalog.UserClusterID(1), Name: "default"}, nil))
	insertTable(t, c, catalog.UserID(1), "t")

	createSQL := "CREATE INDEX materialize.public.t_idx IN CLUSTER default ON materialize.public.t (a)"
	item, err := c.ParseItem(createSQL)
	require.NoError(t, err)
	require.NoError(t, c.InsertItem(catalog.UserID(2), 20_100,
		catalog.QualifiedName{Database: "materialize", Schema: "public", Item: "t_idx"},
		5, item, builtin.MzSystemRoleID, nil))

	plan, ok := c.Plan(catalog.UserID(2))
	require.True(t, ok)
	assert.Equal(t, createSQL, plan)
	_, ok = c.Plan(catalog.UserID(1))
	assert.False(t, ok, "tables are not cached")

	_, ok = c.DropItem(catalog.UserID(2))
	require.True(t, ok)
	_, ok = c.Plan(catalog.UserID(2))
	assert.False(t, ok)
	assert.Empty(t, c.MustEntry(catalog.UserID(1)).UsedBy())
}

func TestInsertClusterCreatesLogIndexes(t *testing.T) {
	c := newTestCatalog(t)
	log := &builtin.Log{
		Name:    "mz_dataflow_operators",
		Schema:  builtin.SchemaMzInternal,
		Variant: builtin.LogDataflowOperators,
		Columns: []catalog.Column{{Name: "id", Type: "uint8"}},
	}
	require.NoError(t, c.InsertItem(catalog.SystemID(1), 20_000,
		catalog.QualifiedName{Schema: builtin.SchemaMzInternal, Item: log.Name},
		2, &catalog.Log{Variant: log.Variant}, builtin.MzSystemRoleID, nil))

	cluster := catalog.Cluster{ID: catalog.UserClusterID(1), Name: "default"}
	require.NoError(t, c.InsertCluster(cluster, []LogIndex{{Log: log, IndexID: catalog.SystemID(7)}}))

	cl, ok := c.Cluster(cluster.ID)
	require.True(t, ok)
	assert.Equal(t, catalog.SystemID(7), cl.LogIndexes[log.Variant])

	e := c.MustEntry(catalog.SystemID(7))
	assert.Equal(t, "mz_internal.mz_dataflow_operators_u1_primary_idx", e.Name.String())
	idx, ok := e.Item.(*catalog.Index)
	require.True(t, ok)
	assert.Equal(t, catalog.SystemID(1), idx.On)
	assert.Equal(t, cluster.ID, idx.Cluster)
	assert.Equal(t, []catalog.ObjectID{catalog.SystemID(7)}, c.MustEntry(catalog.SystemID(1)).UsedBy())

	// The recorded SQL plans back into the same index.
	reparsed, err := c.ParseItem(idx.CreateSQL())
	require.NoError(t, err)
	assert.Equal(t, idx.Uses(), reparsed.Uses())

	assert.ErrorIs(t, c.InsertCluster(cluster, nil), catalog.ErrDuplicateEntry)
}

func TestInsertClusterFailsWithoutLog(t *testing.T) {
	c := newTestCatalog(t)
	log := &builtin.Log{Name: "mz_missing", Schema: builtin.SchemaMzInternal, Variant: "missing"}
	err := c.InsertCluster(catalog.Cluster{ID: catalog.UserClusterID(1), Name: "default"},
		[]LogIndex{{Log: log, IndexID: catalog.SystemID(3)}})
	assert.ErrorIs(t, err, catalog.ErrCorruption)
}

func TestInsertReplicaRequiresCluster(t *testing.T) {
	c := newTestCatalog(t)
	r := catalog.ClusterReplica{Cluster: catalog.UserClusterID(1), ID: catalog.ReplicaID{Namespace: catalog.NamespaceUser, Value: 1}, Name: "r1"}
	assert.ErrorIs(t, c.InsertReplica(r), catalog.ErrCorruption)

	require.NoError(t, c.InsertCluster(catalog.Cluster{ID: catalog.UserClusterID(1), Name: "default"}, nil))
	require.NoError(t, c.InsertReplica(r))
	cl, _ := c.Cluster(catalog.UserClusterID(1))
	require.Len(t, cl.SortedReplicas(), 1)
	assert.Equal(t, "r1", cl.SortedReplicas()[0].Name)
}

func TestSetSSHPublicKeys(t *testing.T) {
	c := newTestCatalog(t)
	item, err := c.ParseItem("CREATE CONNECTION materialize.public.tunnel TO SSH TUNNEL (HOST = 'bastion', PORT = 22, USER = 'mz')")
	require.NoError(t, err)
	require.NoError(t, c.InsertItem(catalog.UserID(1), 20_000,
		catalog.QualifiedName{Database: "materialize", Schema: "public", Item: "tunnel"},
		5, item, builtin.MzSystemRoleID, nil))

	require.NoError(t, c.SetSSHPublicKeys(catalog.UserID(1), catalog.SSHPublicKeys{Primary: "ssh-ed25519 A", Secondary: "ssh-ed25519 B"}))
	conn := c.MustEntry(catalog.UserID(1)).Item.(*catalog.Connection)
	require.NotNil(t, conn.SSH.PublicKeys)
	assert.Equal(t, "ssh-ed25519 A", conn.SSH.PublicKeys.Primary)

	insertTable(t, c, catalog.UserID(2), "t")
	assert.Error(t, c.SetSSHPublicKeys(catalog.UserID(2), catalog.SSHPublicKeys{}))
	assert.Error(t, c.SetSSHPublicKeys(catalog.UserID(3), catalog.SSHPublicKeys{}))
}
