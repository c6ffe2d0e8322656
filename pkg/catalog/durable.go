package catalog

import (
	"context"
	"time"
)

// TimelineEpochMilliseconds is the timeline the boot timestamp is recorded on.
const TimelineEpochMilliseconds = "EpochMilliseconds"

// Database is the durable record of a database.
type Database struct {
	ID         DatabaseID   `json:"id"`
	Name       string       `json:"name"`
	Owner      RoleID       `json:"owner"`
	Privileges PrivilegeMap `json:"privileges"`
}

// Schema is the durable record of a schema. Database is nil for ambient schemas.
type Schema struct {
	ID         SchemaID     `json:"id"`
	Database   *DatabaseID  `json:"database,omitempty"`
	Name       string       `json:"name"`
	Owner      RoleID       `json:"owner"`
	Privileges PrivilegeMap `json:"privileges"`
}

// RoleAttributes are the boolean capabilities of a role.
type RoleAttributes struct {
	Inherit bool `json:"inherit"`
}

// Role is the durable record of a role. Membership maps each granted role to
// the role that granted it.
type Role struct {
	ID         RoleID            `json:"id"`
	Name       string            `json:"name"`
	Attributes RoleAttributes    `json:"attributes"`
	Membership map[RoleID]RoleID `json:"membership,omitempty"`
}

// DefaultPrivilege grants Privileges to Grantee on objects of ObjectType that
// Role creates, optionally narrowed to a database or schema.
type DefaultPrivilege struct {
	Role       RoleID      `json:"role"`
	Database   *DatabaseID `json:"database,omitempty"`
	Schema     *SchemaID   `json:"schema,omitempty"`
	ObjectType ItemType    `json:"object_type"`
	Grantee    RoleID      `json:"grantee"`
	Privileges AclMode     `json:"privileges"`
}

// CommentTarget identifies the object a comment is attached to.
type CommentTarget struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Comment is a user comment on an object or one of its columns. Column is
// 1-based; zero means the comment is on the object itself.
type Comment struct {
	Target CommentTarget `json:"target"`
	Column int           `json:"column,omitempty"`
	Text   string        `json:"text"`
}

// ManagedCluster is the sizing of a cluster whose replicas are managed.
type ManagedCluster struct {
	Size              string   `json:"size"`
	ReplicationFactor uint32   `json:"replication_factor"`
	AvailabilityZones []string `json:"availability_zones,omitempty"`
}

// ClusterConfig is the variant configuration of a cluster.
type ClusterConfig struct {
	Managed *ManagedCluster `json:"managed,omitempty"`
}

// Cluster is the durable record of a compute cluster.
type Cluster struct {
	ID           ClusterID     `json:"id"`
	Name         string        `json:"name"`
	LinkedObject *ObjectID     `json:"linked_object,omitempty"`
	Owner        RoleID        `json:"owner"`
	Privileges   PrivilegeMap  `json:"privileges"`
	Config       ClusterConfig `json:"config"`
}

// ReplicaLocation is where a replica runs.
type ReplicaLocation struct {
	Size             string `json:"size"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
	Processes        int    `json:"processes"`
	Internal         bool   `json:"internal,omitempty"`
}

// ReplicaLogging configures a replica's introspection logging.
type ReplicaLogging struct {
	LogLogging bool          `json:"log_logging"`
	Interval   time.Duration `json:"interval,omitempty"`
}

// ReplicaConfig is the configuration of a replica.
type ReplicaConfig struct {
	Location                   ReplicaLocation `json:"location"`
	Logging                    ReplicaLogging  `json:"logging"`
	IdleArrangementMergeEffort *uint32         `json:"idle_arrangement_merge_effort,omitempty"`
}

// ClusterReplica is the durable record of a cluster replica.
type ClusterReplica struct {
	Cluster ClusterID     `json:"cluster"`
	ID      ReplicaID     `json:"id"`
	Name    string        `json:"name"`
	Config  ReplicaConfig `json:"config"`
	Owner   RoleID        `json:"owner"`
}

// IntrospectionSourceIndex records the id of one per-cluster log index.
type IntrospectionSourceIndex struct {
	Cluster ClusterID `json:"cluster"`
	Name    string    `json:"name"`
	IndexID ObjectID  `json:"index_id"`
}

// ItemRecord is the persisted form of a user catalog item.
type ItemRecord struct {
	ID         ObjectID     `json:"id"`
	SchemaID   SchemaID     `json:"schema_id"`
	Name       string       `json:"name"`
	CreateSQL  string       `json:"create_sql"`
	Owner      RoleID       `json:"owner"`
	Privileges PrivilegeMap `json:"privileges"`
}

// SystemConfiguration is one persisted system parameter.
type SystemConfiguration struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AuditLogEvent is one entry of the audit log.
type AuditLogEvent struct {
	ID         uint64            `json:"id"`
	EventType  string            `json:"event_type"`
	ObjectType string            `json:"object_type"`
	Details    map[string]string `json:"details,omitempty"`
	User       string            `json:"user,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// StorageUsageEvent is one storage usage measurement of a shard.
type StorageUsageEvent struct {
	ID                  uint64    `json:"id"`
	ShardID             string    `json:"shard_id"`
	SizeBytes           uint64    `json:"size_bytes"`
	CollectionTimestamp time.Time `json:"collection_timestamp"`
}

// SystemObjectDescription is the natural key of a built-in object.
type SystemObjectDescription struct {
	SchemaName string   `json:"schema_name"`
	ObjectType ItemType `json:"object_type"`
	ObjectName string   `json:"object_name"`
}

// SystemObjectUniqueIdentifier is what a built-in was last persisted as.
type SystemObjectUniqueIdentifier struct {
	ID          ObjectID `json:"id"`
	Fingerprint string   `json:"fingerprint"`
}

// SystemObjectMapping ties a built-in's natural key to its persisted identity.
type SystemObjectMapping struct {
	Description      SystemObjectDescription      `json:"description"`
	UniqueIdentifier SystemObjectUniqueIdentifier `json:"unique_identifier"`
}

// Store is the exclusive durable catalog session used during bootstrap.
// Writers fail with ErrReadOnly when IsReadOnly reports true.
type Store interface {
	IsReadOnly() bool

	GetTimestamp(ctx context.Context, timeline string) (uint64, bool, error)
	SetTimestamp(ctx context.Context, timeline string, ts uint64) error

	GetDatabases(ctx context.Context) ([]Database, error)
	GetSchemas(ctx context.Context) ([]Schema, error)
	GetRoles(ctx context.Context) ([]Role, error)
	GetDefaultPrivileges(ctx context.Context) ([]DefaultPrivilege, error)
	GetSystemPrivileges(ctx context.Context) ([]AclItem, error)
	GetComments(ctx context.Context) ([]Comment, error)
	GetSystemConfigurations(ctx context.Context) ([]SystemConfiguration, error)
	GetClusters(ctx context.Context) ([]Cluster, error)
	GetClusterReplicas(ctx context.Context) ([]ClusterReplica, error)
	GetAuditLogs(ctx context.Context) ([]AuditLogEvent, error)

	// GetAndPruneStorageUsage returns the events still inside retention,
	// measured back from bootTS, deleting the rest unless read-only.
	GetAndPruneStorageUsage(ctx context.Context, retention time.Duration, bootTS uint64) ([]StorageUsageEvent, error)

	GetSystemItems(ctx context.Context) ([]SystemObjectMapping, error)
	SetSystemItems(ctx context.Context, mappings []SystemObjectMapping) error

	GetIntrospectionSourceIndexes(ctx context.Context, cluster ClusterID) (map[string]ObjectID, error)
	SetIntrospectionSourceIndexes(ctx context.Context, indexes []IntrospectionSourceIndex) error

	SetReplicaConfig(ctx context.Context, replica ReplicaID, cluster ClusterID, name string, config ReplicaConfig, owner RoleID) error

	GetCatalogContentVersion(ctx context.Context) (string, bool, error)
	SetCatalogContentVersion(ctx context.Context, version string) error

	// AllocateSystemIDs reserves n contiguous system ids.
	AllocateSystemIDs(ctx context.Context, n uint64) ([]ObjectID, error)
	// AllocateUserID reserves one user id.
	AllocateUserID(ctx context.Context) (ObjectID, error)

	// Transaction opens a transaction over the persisted items and the
	// rows migration rewrites.
	Transaction(ctx context.Context) (Transaction, error)

	Close() error
}

// Transaction stages writes that become visible together on Commit.
// A transaction that is not committed has no effect.
type Transaction interface {
	// LoadedItems returns the persisted items as of the start of the transaction.
	LoadedItems() []ItemRecord

	InsertItem(item ItemRecord) error
	RemoveItems(ids []ObjectID) error
	UpdateSystemObjectMappings(mappings map[ObjectID]SystemObjectMapping) error
	UpdateIntrospectionSourceIndexes(indexes []IntrospectionSourceIndex) error
	UpsertSystemConfiguration(name, value string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SecretsReader reads secret values by the id of the owning catalog item.
type SecretsReader interface {
	Read(ctx context.Context, id ObjectID) ([]byte, error)
}
