// Package durable implements catalog.Store over a transactional key-value
// backend partitioned into collections. badgerstore and pgstore provide the
// backends.
//
// Values are JSON documents. Keys sort lexicographically within a
// collection; numeric keys are zero padded so that this matches id order.
package durable

import (
	"context"
	"fmt"
)

// Pair is one key and its value.
type Pair struct {
	Key   string
	Value []byte
}

// Reader reads a consistent snapshot.
type Reader interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	// Scan returns every pair of collection in key order.
	Scan(ctx context.Context, collection string) ([]Pair, error)
}

// Writer reads its own writes.
type Writer interface {
	Reader
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
}

// Backend runs read-only and read-write transactions. An Update either
// commits everything fn wrote or nothing; fn may be invoked more than once
// when the backend retries a conflicting transaction.
type Backend interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Writer) error) error
	Close() error
}

const (
	collAuditLog         = "audit_log"
	collCluster          = "cluster"
	collClusterReplica   = "cluster_replica"
	collComment          = "comment"
	collConfig           = "system_configuration"
	collDatabase         = "database"
	collDefaultPrivilege = "default_privilege"
	collIDAlloc          = "id_alloc"
	collIntrospectionIdx = "introspection_source_index"
	collItem             = "item"
	collRole             = "role"
	collSchema           = "schema"
	collSetting          = "setting"
	collStorageUsage     = "storage_usage"
	collSystemMapping    = "system_gid_mapping"
	collSystemPrivilege  = "system_privilege"
	collTimestamp        = "timestamp"
)

// Collections lists every collection a store may write.
var Collections = []string{
	collAuditLog, collCluster, collClusterReplica, collComment, collConfig,
	collDatabase, collDefaultPrivilege, collIDAlloc, collIntrospectionIdx,
	collItem, collRole, collSchema, collSetting, collStorageUsage,
	collSystemMapping, collSystemPrivilege, collTimestamp,
}

const (
	settingInitialized    = "initialized"
	settingContentVersion = "catalog_content_version"

	allocSystem = "system"
	allocUser   = "user"
)

func numericKey(n uint64) string { return fmt.Sprintf("%020d", n) }
