package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Ids of the objects every new catalog starts with.
const (
	DefaultDatabaseID catalog.DatabaseID = 1
	PublicSchemaID    catalog.SchemaID   = 5

	DefaultClusterName = "default"
	DefaultReplicaName = "r1"
	DefaultClusterSize = "1"
)

var (
	DefaultClusterID = catalog.UserClusterID(1)
	DefaultReplicaID = catalog.ReplicaID{Namespace: catalog.NamespaceUser, Value: 1}
)

var ambientSchemas = []struct {
	id   catalog.SchemaID
	name string
}{
	{1, builtin.SchemaMzCatalog},
	{2, builtin.SchemaPgCatalog},
	{3, builtin.SchemaMzInternal},
	{4, builtin.SchemaInformationSchema},
}

func writeInitial(ctx context.Context, w Writer, opts Options) error {
	owner := builtin.MzSystemRoleID
	usage := func(extra catalog.AclMode) catalog.PrivilegeMap {
		return catalog.NewPrivilegeMap(
			catalog.AclItem{Grantee: catalog.PublicRoleID, Grantor: owner, Mode: catalog.AclUsage},
			catalog.AclItem{Grantee: owner, Grantor: owner, Mode: catalog.AclUsage | extra},
		)
	}
	now := opts.Now().UTC()

	put := func(collection, key string, v any) error { return putJSON(ctx, w, collection, key, v) }

	for _, r := range opts.Builtins.Roles {
		if err := put(collRole, r.ID.String(), catalog.Role{ID: r.ID, Name: r.Name}); err != nil {
			return err
		}
	}

	db := catalog.Database{ID: DefaultDatabaseID, Name: "materialize", Owner: owner, Privileges: usage(catalog.AclCreate)}
	if err := put(collDatabase, numericKey(uint64(db.ID)), db); err != nil {
		return err
	}
	for _, a := range ambientSchemas {
		s := catalog.Schema{ID: a.id, Name: a.name, Owner: owner, Privileges: usage(0)}
		if err := put(collSchema, numericKey(uint64(a.id)), s); err != nil {
			return err
		}
	}
	dbID := db.ID
	public := catalog.Schema{ID: PublicSchemaID, Database: &dbID, Name: "public", Owner: owner, Privileges: usage(catalog.AclCreate)}
	if err := put(collSchema, numericKey(uint64(public.ID)), public); err != nil {
		return err
	}

	for _, c := range opts.Builtins.Clusters {
		cl := catalog.Cluster{ID: c.ID, Name: c.Name, Owner: owner, Privileges: usage(catalog.AclCreate)}
		if err := put(collCluster, c.ID.String(), cl); err != nil {
			return err
		}
	}
	def := catalog.Cluster{
		ID:         DefaultClusterID,
		Name:       DefaultClusterName,
		Owner:      owner,
		Privileges: usage(catalog.AclCreate),
		Config:     catalog.ClusterConfig{Managed: &catalog.ManagedCluster{Size: DefaultClusterSize, ReplicationFactor: 1}},
	}
	if err := put(collCluster, def.ID.String(), def); err != nil {
		return err
	}
	replica := catalog.ClusterReplica{
		Cluster: DefaultClusterID,
		ID:      DefaultReplicaID,
		Name:    DefaultReplicaName,
		Owner:   owner,
		Config: catalog.ReplicaConfig{
			Location: catalog.ReplicaLocation{Size: DefaultClusterSize, Processes: 1},
			Logging:  catalog.ReplicaLogging{Interval: time.Second},
		},
	}
	if err := put(collClusterReplica, replica.ID.String(), replica); err != nil {
		return err
	}

	sys := catalog.AclItem{Grantee: owner, Grantor: owner, Mode: catalog.AclCreateRole | catalog.AclCreateDB | catalog.AclCreateCluster}
	if err := put(collSystemPrivilege, sys.Grantee.String()+"/"+sys.Grantor.String(), sys); err != nil {
		return err
	}
	typeUsage := catalog.DefaultPrivilege{
		Role:       catalog.PublicRoleID,
		ObjectType: catalog.ItemTypeType,
		Grantee:    catalog.PublicRoleID,
		Privileges: catalog.AclUsage,
	}
	if err := put(collDefaultPrivilege, defaultPrivilegeKey(typeUsage), typeUsage); err != nil {
		return err
	}

	events := []catalog.AuditLogEvent{
		{EventType: "create", ObjectType: "database", Details: map[string]string{"id": fmt.Sprint(db.ID), "name": db.Name}},
		{EventType: "create", ObjectType: "schema", Details: map[string]string{"id": fmt.Sprint(public.ID), "name": public.Name, "database_name": db.Name}},
		{EventType: "create", ObjectType: "cluster", Details: map[string]string{"id": def.ID.String(), "name": def.Name}},
		{EventType: "create", ObjectType: "cluster-replica", Details: map[string]string{
			"cluster_id": def.ID.String(), "cluster_name": def.Name, "replica_name": replica.Name,
		}},
	}
	for _, ev := range events {
		ev.OccurredAt = now
		if _, err := appendAuditLog(ctx, w, ev); err != nil {
			return err
		}
	}

	for _, counter := range []string{allocSystem, allocUser} {
		if err := put(collIDAlloc, counter, uint64(1)); err != nil {
			return err
		}
	}
	return put(collSetting, settingInitialized, true)
}

func defaultPrivilegeKey(p catalog.DefaultPrivilege) string {
	var db, schema string
	if p.Database != nil {
		db = fmt.Sprint(*p.Database)
	}
	if p.Schema != nil {
		schema = fmt.Sprint(*p.Schema)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", p.Role, db, schema, p.ObjectType, p.Grantee)
}
