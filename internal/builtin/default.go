package builtin

import (
	"slices"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Well-known built-in roles and clusters.
var (
	MzSystemRoleID  = catalog.RoleID{Namespace: catalog.NamespaceSystem, Value: 1}
	MzSupportRoleID = catalog.RoleID{Namespace: catalog.NamespaceSystem, Value: 2}

	MzSystemClusterID        = catalog.SystemClusterID(1)
	MzIntrospectionClusterID = catalog.SystemClusterID(2)
)

// Log variants.
const (
	LogDataflowOperators  catalog.LogVariant = "dataflow-operators"
	LogArrangementRecords catalog.LogVariant = "arrangement-records"
	LogSchedulingElapsed  catalog.LogVariant = "scheduling-elapsed"
)

func cols(pairs ...string) []catalog.Column {
	out := make([]catalog.Column, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, catalog.Column{Name: pairs[i], Type: pairs[i+1]})
	}
	return out
}

func extend(base []string, more ...string) []string {
	return append(slices.Clone(base), more...)
}

func table(schema, name string, columns ...string) *Table {
	return &Table{Name: name, Schema: schema, Columns: cols(columns...)}
}

// Observability table names targeted by bootstrap updates.
const (
	TableDatabases            = "mz_databases"
	TableSchemas              = "mz_schemas"
	TableTables               = "mz_tables"
	TableViews                = "mz_views"
	TableMaterializedViews    = "mz_materialized_views"
	TableIndexes              = "mz_indexes"
	TableSources              = "mz_sources"
	TableSinks                = "mz_sinks"
	TableTypes                = "mz_types"
	TableFunctions            = "mz_functions"
	TableSecrets              = "mz_secrets"
	TableConnections          = "mz_connections"
	TableRoles                = "mz_roles"
	TableRoleMembers          = "mz_role_members"
	TableClusters             = "mz_clusters"
	TableClusterReplicas      = "mz_cluster_replicas"
	TableReplicaStatuses      = "mz_cluster_replica_statuses"
	TableAuditEvents          = "mz_audit_events"
	TableStorageUsage         = "mz_storage_usage_by_shard"
	TableComments             = "mz_comments"
	TableDefaultPrivileges    = "mz_default_privileges"
	TableSystemPrivileges     = "mz_system_privileges"
	TableEgressIPs            = "mz_egress_ips"
	TableObjectDependencies   = "mz_object_dependencies"
)

// Default returns the built-ins of this release.
func Default() *Set {
	logs := []Builtin{
		&Log{Name: "mz_dataflow_operators", Schema: SchemaMzInternal, Variant: LogDataflowOperators,
			Columns: cols("id", "uint8", "worker_id", "uint8", "name", "text")},
		&Log{Name: "mz_arrangement_records_raw", Schema: SchemaMzInternal, Variant: LogArrangementRecords,
			Columns: cols("operator_id", "uint8", "worker_id", "uint8")},
		&Log{Name: "mz_scheduling_elapsed_raw", Schema: SchemaMzInternal, Variant: LogSchedulingElapsed,
			Columns: cols("id", "uint8", "worker_id", "uint8")},
	}

	relation := []string{"id", "text", "oid", "oid", "schema_id", "uint8", "name", "text", "owner_id", "text", "privileges", "text[]"}
	tables := []Builtin{
		table(SchemaMzCatalog, TableDatabases, "id", "uint8", "oid", "oid", "name", "text", "owner_id", "text", "privileges", "text[]"),
		table(SchemaMzCatalog, TableSchemas, "id", "uint8", "oid", "oid", "database_id", "uint8", "name", "text", "owner_id", "text", "privileges", "text[]"),
		table(SchemaMzCatalog, TableTables, relation...),
		table(SchemaMzCatalog, TableViews, extend(relation, "definition", "text")...),
		table(SchemaMzCatalog, TableMaterializedViews, extend(relation, "cluster_id", "text", "definition", "text")...),
		table(SchemaMzCatalog, TableIndexes, "id", "text", "oid", "oid", "name", "text", "on_id", "text", "cluster_id", "text", "owner_id", "text"),
		table(SchemaMzCatalog, TableSources, extend(relation, "type", "text")...),
		table(SchemaMzCatalog, TableSinks, extend(relation, "cluster_id", "text")...),
		table(SchemaMzCatalog, TableTypes, extend(relation, "category", "text")...),
		table(SchemaMzCatalog, TableFunctions, "id", "text", "oid", "oid", "schema_id", "uint8", "name", "text", "owner_id", "text"),
		table(SchemaMzCatalog, TableSecrets, "id", "text", "oid", "oid", "schema_id", "uint8", "name", "text", "owner_id", "text"),
		table(SchemaMzCatalog, TableConnections, "id", "text", "oid", "oid", "schema_id", "uint8", "name", "text", "type", "text", "owner_id", "text"),
		table(SchemaMzCatalog, TableRoles, "id", "text", "oid", "oid", "name", "text", "inherit", "bool"),
		table(SchemaMzCatalog, TableRoleMembers, "role_id", "text", "member", "text", "grantor", "text"),
		table(SchemaMzCatalog, TableClusters, "id", "text", "name", "text", "owner_id", "text", "privileges", "text[]", "managed", "bool", "size", "text", "replication_factor", "uint4"),
		table(SchemaMzCatalog, TableClusterReplicas, "id", "text", "name", "text", "cluster_id", "text", "size", "text", "availability_zone", "text", "owner_id", "text"),
		table(SchemaMzInternal, TableReplicaStatuses, "replica_id", "text", "process_id", "uint8", "status", "text", "updated_at", "timestamptz"),
		table(SchemaMzCatalog, TableAuditEvents, "id", "uint8", "event_type", "text", "object_type", "text", "details", "jsonb", "user", "text", "occurred_at", "timestamptz"),
		table(SchemaMzInternal, TableStorageUsage, "id", "uint8", "shard_id", "text", "size_bytes", "uint8", "collection_timestamp", "timestamptz"),
		table(SchemaMzInternal, TableComments, "id", "text", "object_type", "text", "object_sub_id", "int4", "comment", "text"),
		table(SchemaMzCatalog, TableDefaultPrivileges, "role_id", "text", "database_id", "uint8", "schema_id", "uint8", "object_type", "text", "grantee", "text", "privileges", "text"),
		table(SchemaMzCatalog, TableSystemPrivileges, "privileges", "text"),
		table(SchemaMzCatalog, TableEgressIPs, "egress_ip", "text"),
		table(SchemaMzInternal, TableObjectDependencies, "object_id", "text", "referenced_object_id", "text"),
	}

	views := []Builtin{
		&View{Name: "mz_relations", Schema: SchemaMzCatalog,
			SQL: "CREATE VIEW mz_catalog.mz_relations AS SELECT t.id, t.oid, t.schema_id, t.name, t.owner_id FROM mz_catalog.mz_tables AS t"},
		&View{Name: "mz_show_indexes", Schema: SchemaMzInternal,
			SQL: "CREATE VIEW mz_internal.mz_show_indexes AS SELECT i.name, r.name AS on_name, i.cluster_id " +
				"FROM mz_catalog.mz_indexes AS i JOIN mz_catalog.mz_relations AS r ON i.on_id = r.id"},
		&View{Name: "mz_dataflow_operator_names", Schema: SchemaMzInternal,
			SQL: "CREATE VIEW mz_internal.mz_dataflow_operator_names AS SELECT id, name FROM mz_internal.mz_dataflow_operators"},
	}

	funcs := []Builtin{
		&Func{Name: "now", Schema: SchemaPgCatalog, Signatures: []string{"now() -> timestamptz"}},
		&Func{Name: "abs", Schema: SchemaPgCatalog, Signatures: []string{"abs(int4) -> int4", "abs(int8) -> int8"}},
		&Func{Name: "mz_version", Schema: SchemaMzCatalog, Signatures: []string{"mz_version() -> text"}},
	}

	sources := []Builtin{
		&Source{Name: "mz_source_status_history", Schema: SchemaMzInternal, Introspection: "source-status-history",
			Columns: cols("occurred_at", "timestamptz", "source_id", "text", "status", "text", "error", "text")},
		&Source{Name: "mz_sink_status_history", Schema: SchemaMzInternal, Introspection: "sink-status-history",
			Columns: cols("occurred_at", "timestamptz", "sink_id", "text", "status", "text", "error", "text")},
	}

	indexes := []Builtin{
		&Index{Name: "mz_tables_ind", Schema: SchemaMzCatalog,
			SQL: "CREATE INDEX mz_tables_ind IN CLUSTER mz_introspection ON mz_catalog.mz_tables (schema_id)"},
		&Index{Name: "mz_roles_ind", Schema: SchemaMzCatalog,
			SQL: "CREATE INDEX mz_roles_ind IN CLUSTER mz_introspection ON mz_catalog.mz_roles (id)"},
		&Index{Name: "mz_show_indexes_ind", Schema: SchemaMzInternal,
			SQL: "CREATE INDEX mz_show_indexes_ind IN CLUSTER mz_introspection ON mz_internal.mz_show_indexes (name)"},
		&Index{Name: "mz_source_status_history_ind", Schema: SchemaMzInternal, IsRetainedMetricsObject: true,
			SQL: "CREATE INDEX mz_source_status_history_ind IN CLUSTER mz_introspection ON mz_internal.mz_source_status_history (source_id)"},
	}

	var items []Builtin
	for _, group := range [][]Builtin{logs, tables, views, funcs, sources, indexes} {
		items = append(items, group...)
	}

	return &Set{
		Types: []*Type{
			{Name: "bool", Schema: SchemaPgCatalog, OID: 16},
			{Name: "int8", Schema: SchemaPgCatalog, OID: 20},
			{Name: "int4", Schema: SchemaPgCatalog, OID: 23},
			{Name: "text", Schema: SchemaPgCatalog, OID: 25},
			{Name: "oid", Schema: SchemaPgCatalog, OID: 26},
			{Name: "timestamptz", Schema: SchemaPgCatalog, OID: 1184},
			{Name: "jsonb", Schema: SchemaPgCatalog, OID: 3802},
			{Name: "_bool", Schema: SchemaPgCatalog, OID: 1000, Element: "bool"},
			{Name: "_int4", Schema: SchemaPgCatalog, OID: 1007, Element: "int4"},
			{Name: "_text", Schema: SchemaPgCatalog, OID: 1009, Element: "text"},
			{Name: "_int8", Schema: SchemaPgCatalog, OID: 1016, Element: "int8"},
		},
		Items: items,
		Roles: []Role{
			{ID: MzSystemRoleID, Name: "mz_system"},
			{ID: MzSupportRoleID, Name: "mz_support"},
		},
		Clusters: []Cluster{
			{ID: MzSystemClusterID, Name: "mz_system"},
			{ID: MzIntrospectionClusterID, Name: "mz_introspection"},
		},
	}
}
