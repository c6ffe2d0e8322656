package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/state"
	"github.com/vsayer/materialize/pkg/catalog"
)

// fakeStore only supports transactions.
type fakeStore struct {
	catalog.Store
	tx    *fakeTx
	txErr error
}

func (s *fakeStore) Transaction(context.Context) (catalog.Transaction, error) {
	if s.txErr != nil {
		return nil, s.txErr
	}
	s.tx = &fakeTx{}
	return s.tx, nil
}

type fakeTx struct {
	removed    []catalog.ObjectID
	inserted   []catalog.ItemRecord
	mappings   map[catalog.ObjectID]catalog.SystemObjectMapping
	indexes    []catalog.IntrospectionSourceIndex
	insertErr  error
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) LoadedItems() []catalog.ItemRecord { return nil }

func (tx *fakeTx) InsertItem(item catalog.ItemRecord) error {
	if tx.insertErr != nil {
		return tx.insertErr
	}
	tx.inserted = append(tx.inserted, item)
	return nil
}

func (tx *fakeTx) RemoveItems(ids []catalog.ObjectID) error {
	tx.removed = append(tx.removed, ids...)
	return nil
}

func (tx *fakeTx) UpdateSystemObjectMappings(m map[catalog.ObjectID]catalog.SystemObjectMapping) error {
	tx.mappings = m
	return nil
}

func (tx *fakeTx) UpdateIntrospectionSourceIndexes(indexes []catalog.IntrospectionSourceIndex) error {
	tx.indexes = indexes
	return nil
}

func (tx *fakeTx) UpsertSystemConfiguration(string, string) error { return nil }

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

func TestApplyInMemoryReplacesMigratedEntries(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{
		sysTable("s1"),
		sysTable("s2"),
		userMV("u1", "s2"),
		userMV("u2", "s1", "u1"),
	})
	oldOID := f.cat.MustEntry(catalog.UserID(2)).OID
	md := f.plan(t, []string{"s1", "s2"})

	require.NoError(t, ApplyInMemory(f.cat, md))

	for _, id := range md.AllDropOps {
		_, ok := f.cat.Entry(id)
		assert.False(t, ok, "%s should be dropped", id)
	}
	// s1 -> s4, s2 -> s3, u1 -> u3, u2 -> u4
	u4 := f.cat.MustEntry(catalog.UserID(4))
	assert.Equal(t, "u2", u4.Name.Item)
	assert.Equal(t, oldOID, u4.OID)
	assert.Equal(t, catalog.NewResolvedIDs(catalog.SystemID(4), catalog.UserID(3)), u4.Uses())
	assert.Equal(t, []catalog.ObjectID{catalog.UserID(3)}, f.cat.MustEntry(catalog.SystemID(3)).UsedBy())

	id, ok := f.cat.LookupName("materialize.public.u1")
	require.True(t, ok)
	assert.Equal(t, catalog.UserID(3), id)

	_, ok = f.cat.Plan(catalog.UserID(1))
	assert.False(t, ok, "plan of dropped view is gone")
	_, ok = f.cat.Plan(catalog.UserID(3))
	assert.True(t, ok)
}

func TestApplyInMemoryEmptyPlan(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1")})
	md := f.plan(t, nil)
	assert.True(t, md.Empty())
	require.NoError(t, ApplyInMemory(f.cat, md))
	_, ok := f.cat.Entry(catalog.SystemID(1))
	assert.True(t, ok)
}

func TestApplyInMemoryPanicsOnMismatchedPlan(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1")})
	md := &Metadata{AllDropOps: []catalog.ObjectID{catalog.SystemID(1)}}
	assert.Panics(t, func() { _ = ApplyInMemory(f.cat, md) })
}

func TestApplyInMemorySwapsLogIndexes(t *testing.T) {
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

	md, err := NewPlanner(cat, &fakeIDs{nextSystem: 3}, []*builtin.Log{log}, logging.NewNullLogger()).
		Plan(context.Background(), []catalog.ObjectID{catalog.SystemID(1)}, nil)
	require.NoError(t, err)
	require.NoError(t, ApplyInMemory(cat, md))

	cl, ok := cat.Cluster(catalog.SystemClusterID(2))
	require.True(t, ok)
	assert.Equal(t, catalog.SystemID(4), cl.LogIndexes[log.Variant])
	idx := cat.MustEntry(catalog.SystemID(4)).Item.(*catalog.Index)
	assert.Equal(t, catalog.SystemID(3), idx.On)
}

func TestApplyPersistedWritesOneTransaction(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	md := f.plan(t, []string{"s1"})
	require.NoError(t, ApplyInMemory(f.cat, md))

	store := &fakeStore{}
	require.NoError(t, ApplyPersisted(context.Background(), store, f.cat, md))

	tx := store.tx
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t, []catalog.ObjectID{catalog.UserID(1)}, tx.removed)
	require.Len(t, tx.inserted, 1)
	assert.Equal(t, catalog.UserID(2), tx.inserted[0].ID)
	assert.Equal(t, "u1", tx.inserted[0].Name)
	assert.Equal(t, publicSchema, tx.inserted[0].SchemaID)
	assert.Contains(t, tx.inserted[0].CreateSQL, "[s2 AS materialize.public.s1]")
	assert.Equal(t, catalog.SystemID(2), tx.mappings[catalog.SystemID(1)].UniqueIdentifier.ID)
	assert.Empty(t, tx.indexes)
}

func TestApplyPersistedRollsBackOnFailure(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1"), userMV("u1", "s1")})
	md := f.plan(t, []string{"s1"})
	require.NoError(t, ApplyInMemory(f.cat, md))

	boom := errors.New("disk full")
	store := &failingInsertStore{err: boom}
	err := ApplyPersisted(context.Background(), store, f.cat, md)

	require.ErrorIs(t, err, boom)
	assert.True(t, store.tx.rolledBack)
	assert.False(t, store.tx.committed)
}

type failingInsertStore struct {
	fakeStore
	err error
}

func (s *failingInsertStore) Transaction(context.Context) (catalog.Transaction, error) {
	s.tx = &fakeTx{insertErr: s.err}
	return s.tx, nil
}

func TestApplyPersistedPropagatesTransactionError(t *testing.T) {
	f := buildFixture(t, []fixtureEntry{sysTable("s1")})
	md := f.plan(t, []string{"s1"})

	err := ApplyPersisted(context.Background(), &fakeStore{txErr: catalog.ErrReadOnly}, f.cat, md)
	assert.ErrorIs(t, err, catalog.ErrReadOnly)
}
