package state

import (
	"slices"
	"time"

	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/pkg/catalog"
)

// BuiltinTableUpdate adds (Diff 1) or retracts (Diff -1) one row of a
// built-in observability table.
type BuiltinTableUpdate struct {
	Table catalog.ObjectID
	Row   []any
	Diff  int64
}

// Updates to a table that is not part of the catalog are dropped.
func (c *Catalog) pack(table string, diff int64, row ...any) []BuiltinTableUpdate {
	for _, schema := range []string{builtin.SchemaMzCatalog, builtin.SchemaMzInternal} {
		if id, ok := c.entries.Lookup(schema + "." + table); ok {
			return []BuiltinTableUpdate{{Table: id, Row: row, Diff: diff}}
		}
	}
	return nil
}

func optionalID[T interface{ ~uint64 }](id *T) any {
	if id == nil {
		return nil
	}
	return uint64(*id)
}

// PackDatabaseUpdate describes a database in mz_databases.
func (c *Catalog) PackDatabaseUpdate(db *Database, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableDatabases, diff,
		uint64(db.ID), db.OID, db.Name, db.Owner.String(), db.Privileges.Strings())
}

// PackSchemaUpdate describes a schema in mz_schemas.
func (c *Catalog) PackSchemaUpdate(s *Schema, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableSchemas, diff,
		uint64(s.ID), s.OID, optionalID(s.Database), s.Name, s.Owner.String(), s.Privileges.Strings())
}

// PackItemUpdates describes an entry in the table for its type and in
// mz_object_dependencies.
func (c *Catalog) PackItemUpdates(e *index.Entry, diff int64) []BuiltinTableUpdate {
	relation := []any{e.ID.String(), e.OID, uint64(e.SchemaID), e.Name.Item, e.Owner.String(), e.Privileges.Strings()}
	var out []BuiltinTableUpdate
	switch item := e.Item.(type) {
	case *catalog.Table:
		out = c.pack(builtin.TableTables, diff, relation...)
	case *catalog.View:
		out = c.pack(builtin.TableViews, diff, append(relation, item.CreateSQL())...)
	case *catalog.MaterializedView:
		out = c.pack(builtin.TableMaterializedViews, diff, append(relation, item.Cluster.String(), item.CreateSQL())...)
	case *catalog.Index:
		out = c.pack(builtin.TableIndexes, diff,
			e.ID.String(), e.OID, e.Name.Item, item.On.String(), item.Cluster.String(), e.Owner.String())
	case *catalog.Source:
		out = c.pack(builtin.TableSources, diff, append(relation, string(item.DataSource.Kind))...)
	case *catalog.Log:
		out = c.pack(builtin.TableSources, diff, append(relation, "log")...)
	case *catalog.Sink:
		out = c.pack(builtin.TableSinks, diff, append(relation, item.Cluster.String())...)
	case *catalog.Type:
		out = c.pack(builtin.TableTypes, diff, append(relation, string(item.Category))...)
	case *catalog.Func:
		out = c.pack(builtin.TableFunctions, diff,
			e.ID.String(), e.OID, uint64(e.SchemaID), e.Name.Item, e.Owner.String())
	case *catalog.Secret:
		out = c.pack(builtin.TableSecrets, diff,
			e.ID.String(), e.OID, uint64(e.SchemaID), e.Name.Item, e.Owner.String())
	case *catalog.Connection:
		out = c.pack(builtin.TableConnections, diff,
			e.ID.String(), e.OID, uint64(e.SchemaID), e.Name.Item, string(item.Kind), e.Owner.String())
	}
	for _, dep := range e.Uses() {
		out = append(out, c.pack(builtin.TableObjectDependencies, diff, e.ID.String(), dep.String())...)
	}
	return out
}

// PackRoleUpdate describes a role in mz_roles.
func (c *Catalog) PackRoleUpdate(r *Role, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableRoles, diff, r.ID.String(), r.OID, r.Name, r.Attributes.Inherit)
}

// PackRoleMemberUpdates describes the memberships of a role.
func (c *Catalog) PackRoleMemberUpdates(r *Role, diff int64) []BuiltinTableUpdate {
	granted := make([]catalog.RoleID, 0, len(r.Membership))
	for id := range r.Membership {
		granted = append(granted, id)
	}
	slices.SortFunc(granted, catalog.RoleID.Compare)
	var out []BuiltinTableUpdate
	for _, id := range granted {
		out = append(out, c.pack(builtin.TableRoleMembers, diff,
			id.String(), r.ID.String(), r.Membership[id].String())...)
	}
	return out
}

// PackClusterUpdate describes a cluster in mz_clusters.
func (c *Catalog) PackClusterUpdate(cl *Cluster, diff int64) []BuiltinTableUpdate {
	var (
		size   any
		factor any
	)
	managed := cl.Config.Managed != nil
	if managed {
		size = cl.Config.Managed.Size
		factor = cl.Config.Managed.ReplicationFactor
	}
	return c.pack(builtin.TableClusters, diff,
		cl.ID.String(), cl.Name, cl.Owner.String(), cl.Privileges.Strings(), managed, size, factor)
}

// PackReplicaUpdate describes a replica in mz_cluster_replicas.
func (c *Catalog) PackReplicaUpdate(r *Replica, diff int64) []BuiltinTableUpdate {
	var az any
	if r.Config.Location.AvailabilityZone != "" {
		az = r.Config.Location.AvailabilityZone
	}
	return c.pack(builtin.TableClusterReplicas, diff,
		r.ID.String(), r.Name, r.Cluster.String(), r.Config.Location.Size, az, r.Owner.String())
}

// PackReplicaStatusUpdates reports every process of a replica with status.
func (c *Catalog) PackReplicaStatusUpdates(r *Replica, status string, at time.Time, diff int64) []BuiltinTableUpdate {
	processes := max(r.Config.Location.Processes, 1)
	var out []BuiltinTableUpdate
	for p := range processes {
		out = append(out, c.pack(builtin.TableReplicaStatuses, diff, r.ID.String(), uint64(p), status, at)...)
	}
	return out
}

// PackAuditLogUpdate describes an audit event.
func (c *Catalog) PackAuditLogUpdate(ev catalog.AuditLogEvent, diff int64) []BuiltinTableUpdate {
	var user any
	if ev.User != "" {
		user = ev.User
	}
	return c.pack(builtin.TableAuditEvents, diff,
		ev.ID, ev.EventType, ev.ObjectType, ev.Details, user, ev.OccurredAt)
}

// PackStorageUsageUpdate describes a storage usage measurement.
func (c *Catalog) PackStorageUsageUpdate(ev catalog.StorageUsageEvent, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableStorageUsage, diff, ev.ID, ev.ShardID, ev.SizeBytes, ev.CollectionTimestamp)
}

// PackCommentUpdate describes a comment.
func (c *Catalog) PackCommentUpdate(cm catalog.Comment, diff int64) []BuiltinTableUpdate {
	var sub any
	if cm.Column > 0 {
		sub = int32(cm.Column)
	}
	return c.pack(builtin.TableComments, diff, cm.Target.ID, cm.Target.Kind, sub, cm.Text)
}

// PackDefaultPrivilegeUpdate describes a default privilege.
func (c *Catalog) PackDefaultPrivilegeUpdate(p catalog.DefaultPrivilege, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableDefaultPrivileges, diff,
		p.Role.String(), optionalID(p.Database), optionalID(p.Schema), string(p.ObjectType), p.Grantee.String(), p.Privileges.String())
}

// PackSystemPrivilegeUpdate describes one system privilege.
func (c *Catalog) PackSystemPrivilegeUpdate(item catalog.AclItem, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableSystemPrivileges, diff, item.String())
}

// PackEgressIPUpdate describes one egress address.
func (c *Catalog) PackEgressIPUpdate(ip string, diff int64) []BuiltinTableUpdate {
	return c.pack(builtin.TableEgressIPs, diff, ip)
}
