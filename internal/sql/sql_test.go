package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/pkg/catalog"
)

type fakeSnapshot struct {
	items    map[catalog.ObjectID]catalog.Item
	names    map[string]catalog.ObjectID
	clusters map[string]catalog.ClusterID
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{
		items:    make(map[catalog.ObjectID]catalog.Item),
		names:    make(map[string]catalog.ObjectID),
		clusters: map[string]catalog.ClusterID{"default": catalog.UserClusterID(1)},
	}
}

func (f *fakeSnapshot) add(id catalog.ObjectID, name string, item catalog.Item) {
	f.items[id] = item
	f.names[name] = id
}

func (f *fakeSnapshot) LookupID(id catalog.ObjectID) (catalog.Item, bool) {
	item, ok := f.items[id]
	return item, ok
}

func (f *fakeSnapshot) LookupName(name string) (catalog.ObjectID, bool) {
	id, ok := f.names[name]
	return id, ok
}

func (f *fakeSnapshot) LookupCluster(name string) (catalog.ClusterID, bool) {
	id, ok := f.clusters[name]
	return id, ok
}

func TestRenderIsCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "table",
			in:   "create table materialize.public.t (a INT4, b numeric(10,2), \"Weird Col\" text)",
			want: `CREATE TABLE materialize.public.t (a int4, b numeric(10, 2), "Weird Col" text)`,
		},
		{
			name: "view with name reference",
			in:   "CREATE VIEW mz_catalog.mz_relations AS SELECT id, name FROM mz_catalog.mz_tables",
			want: "CREATE VIEW mz_catalog.mz_relations AS SELECT id, name FROM mz_catalog.mz_tables",
		},
		{
			name: "materialized view with joins and predicate",
			in: "create materialized view materialize.public.mv in cluster default as select t.a, count(*) " +
				"from [u1 as materialize.public.t] t left join [s5 AS mz_catalog.mz_tables] m on t.a = m.id where t.b > 'x' group by t.a",
			want: "CREATE MATERIALIZED VIEW materialize.public.mv IN CLUSTER default AS SELECT t.a, count(*) " +
				"FROM [u1 AS materialize.public.t] AS t LEFT JOIN [s5 AS mz_catalog.mz_tables] AS m ON t.a = m.id WHERE t.b > 'x' GROUP BY t.a",
		},
		{
			name: "index",
			in:   "CREATE INDEX mz_tables_ind IN CLUSTER mz_introspection ON mz_catalog.mz_tables (schema_id)",
			want: "CREATE INDEX mz_tables_ind IN CLUSTER mz_introspection ON mz_catalog.mz_tables (schema_id)",
		},
		{
			name: "load generator source",
			in:   "CREATE SOURCE materialize.public.counter FROM LOAD GENERATOR counter;",
			want: "CREATE SOURCE materialize.public.counter FROM LOAD GENERATOR COUNTER",
		},
		{
			name: "sink",
			in:   "CREATE SINK materialize.public.k IN CLUSTER default FROM [u1 AS materialize.public.t] INTO KAFKA CONNECTION [u2 AS materialize.public.kc] (topic = 'out')",
			want: "CREATE SINK materialize.public.k IN CLUSTER default FROM [u1 AS materialize.public.t] INTO KAFKA CONNECTION [u2 AS materialize.public.kc] (TOPIC = 'out')",
		},
		{
			name: "connection",
			in:   "CREATE CONNECTION materialize.public.tun TO SSH TUNNEL (HOST = 'bastion', PORT = 2222, USER = 'mz')",
			want: "CREATE CONNECTION materialize.public.tun TO SSH TUNNEL (HOST = 'bastion', PORT = 2222, USER = 'mz')",
		},
		{
			name: "secret with quote",
			in:   "CREATE SECRET materialize.public.s AS 'it''s'",
			want: "CREATE SECRET materialize.public.s AS 'it''s'",
		},
		{
			name: "list type",
			in:   "CREATE TYPE materialize.public.int_list AS LIST (element type = pg_catalog.int4)",
			want: "CREATE TYPE materialize.public.int_list AS LIST (ELEMENT TYPE = pg_catalog.int4)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.in)
			require.NoError(t, err)
			got := Render(stmt)
			assert.Equal(t, tt.want, got)

			again, err := Parse(got)
			require.NoError(t, err)
			assert.Equal(t, got, Render(again))
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"DROP TABLE t",
		"CREATE TABLE t (a)",
		"CREATE VIEW v AS SELECT FROM t",
		"CREATE INDEX i ON t (a",
		"CREATE VIEW v AS SELECT a FROM [x1 AS t]",
		"CREATE TABLE t (a int) extra",
		"CREATE SECRET s AS 'unterminated",
	} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestReplaceIDs(t *testing.T) {
	stmt, err := Parse("CREATE MATERIALIZED VIEW materialize.public.mv IN CLUSTER default AS " +
		"SELECT * FROM [s1 AS mz_catalog.a], [u3 AS materialize.public.b] WHERE x IN (SELECT y FROM [s1 AS mz_catalog.a])")
	require.NoError(t, err)

	ReplaceIDs(stmt, map[catalog.ObjectID]catalog.ObjectID{catalog.SystemID(1): catalog.SystemID(9)})

	assert.Equal(t, "CREATE MATERIALIZED VIEW materialize.public.mv IN CLUSTER default AS "+
		"SELECT * FROM [s9 AS mz_catalog.a], [u3 AS materialize.public.b] WHERE x IN (SELECT y FROM [s9 AS mz_catalog.a])", Render(stmt))
	assert.Equal(t, catalog.ResolvedIDs{catalog.SystemID(9), catalog.UserID(3)}, ReferencedIDs(stmt))
}

func TestPlanReportsUnknownReferences(t *testing.T) {
	snap := newFakeSnapshot()

	_, err := PlanText("CREATE VIEW materialize.public.v AS SELECT a FROM [u7 AS materialize.public.t]", snap)
	var idErr *catalog.UnknownIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, catalog.UserID(7), idErr.ID)

	_, err = PlanText("CREATE VIEW materialize.public.v AS SELECT a FROM materialize.public.t", snap)
	var nameErr *catalog.UnknownNameError
	require.ErrorAs(t, err, &nameErr)
	assert.Equal(t, "materialize.public.t", nameErr.Name)

	_, err = PlanText("CREATE VIEW materialize.public.v AS SELECT a FROM t", snap)
	require.Error(t, err)
	assert.NotErrorAs(t, err, &nameErr)
}

func TestPlanBuildsItems(t *testing.T) {
	snap := newFakeSnapshot()
	snap.add(catalog.UserID(1), "materialize.public.t", &catalog.Table{})
	snap.add(catalog.UserID(2), "materialize.public.kc", &catalog.Connection{Kind: catalog.ConnectionKafka})
	snap.add(catalog.UserID(3), "materialize.public.tun", &catalog.Connection{Kind: catalog.ConnectionSSHTunnel})
	snap.add(catalog.SystemID(1), "pg_catalog.int4", &catalog.Type{Category: catalog.TypeCategoryBase})

	t.Run("materialized view", func(t *testing.T) {
		text := "CREATE MATERIALIZED VIEW materialize.public.mv IN CLUSTER default AS SELECT a, t.b FROM [u1 AS materialize.public.t] AS t"
		item, err := PlanText(text, snap)
		require.NoError(t, err)
		mv := item.(*catalog.MaterializedView)
		assert.Equal(t, catalog.UserClusterID(1), mv.Cluster)
		assert.Equal(t, []string{"a", "b"}, mv.Columns)
		assert.Equal(t, catalog.ResolvedIDs{catalog.UserID(1)}, mv.Uses())
		assert.Equal(t, text, mv.CreateSQL())
	})

	t.Run("index", func(t *testing.T) {
		item, err := PlanText("CREATE INDEX materialize.public.i IN CLUSTER default ON materialize.public.t (a, b)", snap)
		require.NoError(t, err)
		idx := item.(*catalog.Index)
		assert.Equal(t, catalog.UserID(1), idx.On)
		assert.Equal(t, []string{"a", "b"}, idx.Keys)
	})

	t.Run("index on non relation", func(t *testing.T) {
		_, err := PlanText("CREATE INDEX materialize.public.i IN CLUSTER default ON materialize.public.kc (a)", snap)
		assert.ErrorContains(t, err, "not a relation")
	})

	t.Run("unknown cluster", func(t *testing.T) {
		_, err := PlanText("CREATE MATERIALIZED VIEW materialize.public.mv IN CLUSTER nope AS SELECT a FROM materialize.public.t", snap)
		assert.ErrorContains(t, err, `unknown cluster "nope"`)
	})

	t.Run("kafka connection through tunnel", func(t *testing.T) {
		item, err := PlanText("CREATE CONNECTION materialize.public.k2 TO KAFKA (BROKER = 'b:9092', SSH TUNNEL = [u3 AS materialize.public.tun])", snap)
		require.NoError(t, err)
		conn := item.(*catalog.Connection)
		require.NotNil(t, conn.Kafka)
		assert.Equal(t, "b:9092", conn.Kafka.Broker)
		assert.Equal(t, catalog.UserID(3), *conn.Kafka.Tunnel)
	})

	t.Run("ssh connection defaults port", func(t *testing.T) {
		item, err := PlanText("CREATE CONNECTION materialize.public.t2 TO SSH TUNNEL (HOST = 'h', USER = 'u')", snap)
		require.NoError(t, err)
		assert.Equal(t, 22, item.(*catalog.Connection).SSH.Port)
	})

	t.Run("sink", func(t *testing.T) {
		item, err := PlanText("CREATE SINK materialize.public.s IN CLUSTER default FROM materialize.public.t INTO KAFKA CONNECTION materialize.public.kc (TOPIC = 'x')", snap)
		require.NoError(t, err)
		sink := item.(*catalog.Sink)
		assert.Equal(t, catalog.UserID(1), sink.From)
		assert.Equal(t, catalog.UserID(2), sink.Connection)
	})

	t.Run("kafka source", func(t *testing.T) {
		item, err := PlanText("CREATE SOURCE materialize.public.src FROM KAFKA CONNECTION materialize.public.kc (TOPIC = 'in')", snap)
		require.NoError(t, err)
		src := item.(*catalog.Source)
		assert.Equal(t, catalog.DataSourceKafka, src.DataSource.Kind)
		assert.Equal(t, "in", src.DataSource.Topic)
		assert.Nil(t, src.Cluster)
	})

	t.Run("list type", func(t *testing.T) {
		item, err := PlanText("CREATE TYPE materialize.public.l AS LIST (ELEMENT TYPE = pg_catalog.int4)", snap)
		require.NoError(t, err)
		typ := item.(*catalog.Type)
		assert.Equal(t, catalog.TypeCategoryList, typ.Category)
		assert.Equal(t, catalog.SystemID(1), *typ.Element)
	})
}
