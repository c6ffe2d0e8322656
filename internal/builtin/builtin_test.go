package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsayer/materialize/pkg/catalog"
)

func TestDefaultSetIsValid(t *testing.T) {
	set := Default()
	assert.NotPanics(t, set.Validate)
	assert.Len(t, set.Logs(), 3)

	// indexes come last so they can be inserted after every relation exists
	sawIndex := false
	for _, b := range set.Items {
		if _, ok := b.(*Index); ok {
			sawIndex = true
			continue
		}
		assert.False(t, sawIndex, "%s declared after an index", FullName(b))
	}
}

func TestValidateRejectsUnreservedNames(t *testing.T) {
	set := Default()
	set.Roles = append(set.Roles, Role{ID: catalog.RoleID{Namespace: catalog.NamespaceSystem, Value: 9}, Name: "admin"})
	assert.PanicsWithValue(t, `built-in role "admin" must start with one of [mz_ pg_ external_]`, set.Validate)

	set = Default()
	set.Clusters = append(set.Clusters, Cluster{ID: catalog.SystemClusterID(9), Name: "default"})
	assert.Panics(t, set.Validate)
}

func TestValidateRejectsDuplicateDescriptions(t *testing.T) {
	set := Default()
	set.Items = append(set.Items, &Table{Name: TableTables, Schema: SchemaMzCatalog})
	assert.Panics(t, set.Validate)
}

func TestValidateRejectsSourceWithoutIntrospection(t *testing.T) {
	set := Default()
	set.Items = append(set.Items, &Source{Name: "mz_orphan", Schema: SchemaMzInternal})
	assert.PanicsWithValue(t, "built-in source mz_internal.mz_orphan has no introspection type", set.Validate)
}

func TestFingerprintsTrackDefinitions(t *testing.T) {
	a := &Table{Name: "t", Schema: SchemaMzCatalog, Columns: cols("id", "text")}
	b := &Table{Name: "t", Schema: SchemaMzCatalog, Columns: cols("id", "text", "name", "text")}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	v1 := &View{SQL: "CREATE VIEW mz_catalog.v AS SELECT id FROM mz_catalog.t"}
	v2 := &View{SQL: "create view mz_catalog.v as  select id from mz_catalog.t"}
	assert.Equal(t, v1.Fingerprint(), v2.Fingerprint())

	assert.Empty(t, (&Func{}).Fingerprint())
}

func TestDescriptionOfLogIsSource(t *testing.T) {
	log := Default().Logs()[0]
	d := Description(log)
	assert.Equal(t, catalog.ItemTypeSource, d.ObjectType)
	assert.Equal(t, SchemaMzInternal, d.SchemaName)
	assert.Equal(t, "mz_dataflow_operators", d.ObjectName)
}

func TestIntrospectionIndexName(t *testing.T) {
	log := Default().Logs()[0]
	assert.Equal(t, "mz_dataflow_operators_s2_primary_idx", IntrospectionIndexName(log, MzIntrospectionClusterID))
}

func TestPrivileges(t *testing.T) {
	privs := Privileges(catalog.ItemTypeTable, MzSystemRoleID)
	require.Len(t, privs, 2)
	assert.Equal(t, []string{"s1=arwd/s1", "=r/s1"}, privs.Strings())

	assert.Empty(t, Privileges(catalog.ItemTypeFunc, MzSystemRoleID))
}
