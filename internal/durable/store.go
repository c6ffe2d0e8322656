package durable

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Options configures Open.
type Options struct {
	// ReadOnly makes every writer fail with catalog.ErrReadOnly. Id
	// allocation still succeeds against an in-memory overlay that is never
	// persisted.
	ReadOnly bool

	// Builtins supplies the built-in roles and clusters written on first
	// open. Defaults to builtin.Default().
	Builtins *builtin.Set

	// Now stamps the initial audit events. Defaults to time.Now.
	Now func() time.Time

	Logger catalog.Logger
}

// Store is a catalog.Store over a Backend.
type Store struct {
	backend  Backend
	readOnly bool
	logger   catalog.Logger

	mu      sync.Mutex
	overlay map[string]uint64
}

var _ catalog.Store = (*Store)(nil)

// Open returns a store over backend, writing the initial catalog when the
// backend has never been initialized. A read-only open of an uninitialized
// backend fails.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	if opts.Builtins == nil {
		opts.Builtins = builtin.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNullLogger()
	}
	s := &Store{
		backend:  backend,
		readOnly: opts.ReadOnly,
		logger:   opts.Logger,
		overlay:  make(map[string]uint64),
	}

	var initialized bool
	err := backend.View(ctx, func(r Reader) error {
		var err error
		initialized, _, err = getJSON[bool](ctx, r, collSetting, settingInitialized)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog state: %w", err)
	}
	if initialized {
		return s, nil
	}
	if s.readOnly {
		return nil, fmt.Errorf("catalog has not been initialized: %w", catalog.ErrReadOnly)
	}
	s.logger.Verbose("Initializing empty catalog")
	if err := backend.Update(ctx, func(w Writer) error { return writeInitial(ctx, w, opts) }); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	return s, nil
}

func (s *Store) IsReadOnly() bool { return s.readOnly }

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) update(ctx context.Context, fn func(Writer) error) error {
	if s.readOnly {
		return catalog.ErrReadOnly
	}
	return s.backend.Update(ctx, fn)
}

func (s *Store) GetTimestamp(ctx context.Context, timeline string) (uint64, bool, error) {
	var (
		ts uint64
		ok bool
	)
	err := s.backend.View(ctx, func(r Reader) error {
		var err error
		ts, ok, err = getJSON[uint64](ctx, r, collTimestamp, timeline)
		return err
	})
	return ts, ok, err
}

func (s *Store) SetTimestamp(ctx context.Context, timeline string, ts uint64) error {
	return s.update(ctx, func(w Writer) error { return putJSON(ctx, w, collTimestamp, timeline, ts) })
}

func (s *Store) GetDatabases(ctx context.Context) ([]catalog.Database, error) {
	out, err := scanCollection[catalog.Database](ctx, s.backend, collDatabase)
	slices.SortFunc(out, func(a, b catalog.Database) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (s *Store) GetSchemas(ctx context.Context) ([]catalog.Schema, error) {
	out, err := scanCollection[catalog.Schema](ctx, s.backend, collSchema)
	slices.SortFunc(out, func(a, b catalog.Schema) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (s *Store) GetRoles(ctx context.Context) ([]catalog.Role, error) {
	out, err := scanCollection[catalog.Role](ctx, s.backend, collRole)
	slices.SortFunc(out, func(a, b catalog.Role) int { return a.ID.Compare(b.ID) })
	return out, err
}

func (s *Store) GetDefaultPrivileges(ctx context.Context) ([]catalog.DefaultPrivilege, error) {
	return scanCollection[catalog.DefaultPrivilege](ctx, s.backend, collDefaultPrivilege)
}

func (s *Store) GetSystemPrivileges(ctx context.Context) ([]catalog.AclItem, error) {
	return scanCollection[catalog.AclItem](ctx, s.backend, collSystemPrivilege)
}

func (s *Store) GetComments(ctx context.Context) ([]catalog.Comment, error) {
	return scanCollection[catalog.Comment](ctx, s.backend, collComment)
}

func (s *Store) GetSystemConfigurations(ctx context.Context) ([]catalog.SystemConfiguration, error) {
	return scanCollection[catalog.SystemConfiguration](ctx, s.backend, collConfig)
}

func (s *Store) GetClusters(ctx context.Context) ([]catalog.Cluster, error) {
	out, err := scanCollection[catalog.Cluster](ctx, s.backend, collCluster)
	slices.SortFunc(out, func(a, b catalog.Cluster) int { return a.ID.Compare(b.ID) })
	return out, err
}

func (s *Store) GetClusterReplicas(ctx context.Context) ([]catalog.ClusterReplica, error) {
	out, err := scanCollection[catalog.ClusterReplica](ctx, s.backend, collClusterReplica)
	slices.SortFunc(out, func(a, b catalog.ClusterReplica) int { return a.ID.Compare(b.ID) })
	return out, err
}

func (s *Store) GetAuditLogs(ctx context.Context) ([]catalog.AuditLogEvent, error) {
	return scanCollection[catalog.AuditLogEvent](ctx, s.backend, collAuditLog)
}

// AppendAuditLog records event under the next audit log id, which it returns.
func (s *Store) AppendAuditLog(ctx context.Context, event catalog.AuditLogEvent) (uint64, error) {
	var id uint64
	err := s.update(ctx, func(w Writer) error {
		var err error
		id, err = appendAuditLog(ctx, w, event)
		return err
	})
	return id, err
}

// RecordStorageUsage records one measurement of shard taken at at.
func (s *Store) RecordStorageUsage(ctx context.Context, shard string, size uint64, at time.Time) error {
	return s.update(ctx, func(w Writer) error {
		id, err := nextSequence(ctx, w, collStorageUsage)
		if err != nil {
			return err
		}
		return putJSON(ctx, w, collStorageUsage, numericKey(id), catalog.StorageUsageEvent{
			ID: id, ShardID: shard, SizeBytes: size, CollectionTimestamp: at,
		})
	})
}

func (s *Store) GetAndPruneStorageUsage(ctx context.Context, retention time.Duration, bootTS uint64) ([]catalog.StorageUsageEvent, error) {
	cutoff := time.UnixMilli(int64(bootTS)).Add(-retention)
	var kept []catalog.StorageUsageEvent
	prune := func(ctx context.Context, r Reader, del func(key string) error) error {
		kept = nil
		pairs, err := r.Scan(ctx, collStorageUsage)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			var ev catalog.StorageUsageEvent
			if err := decode(collStorageUsage, p, &ev); err != nil {
				return err
			}
			if ev.CollectionTimestamp.Before(cutoff) {
				if err := del(p.Key); err != nil {
					return err
				}
				continue
			}
			kept = append(kept, ev)
		}
		return nil
	}
	if s.readOnly {
		err := s.backend.View(ctx, func(r Reader) error {
			return prune(ctx, r, func(string) error { return nil })
		})
		return kept, err
	}
	err := s.backend.Update(ctx, func(w Writer) error {
		return prune(ctx, w, func(key string) error { return w.Delete(ctx, collStorageUsage, key) })
	})
	return kept, err
}

func (s *Store) GetSystemItems(ctx context.Context) ([]catalog.SystemObjectMapping, error) {
	return scanCollection[catalog.SystemObjectMapping](ctx, s.backend, collSystemMapping)
}

func (s *Store) SetSystemItems(ctx context.Context, mappings []catalog.SystemObjectMapping) error {
	return s.update(ctx, func(w Writer) error {
		for _, m := range mappings {
			if err := putJSON(ctx, w, collSystemMapping, mappingKey(m.Description), m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetIntrospectionSourceIndexes(ctx context.Context, cluster catalog.ClusterID) (map[string]catalog.ObjectID, error) {
	all, err := scanCollection[catalog.IntrospectionSourceIndex](ctx, s.backend, collIntrospectionIdx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]catalog.ObjectID)
	for _, idx := range all {
		if idx.Cluster == cluster {
			out[idx.Name] = idx.IndexID
		}
	}
	return out, nil
}

func (s *Store) SetIntrospectionSourceIndexes(ctx context.Context, indexes []catalog.IntrospectionSourceIndex) error {
	return s.update(ctx, func(w Writer) error { return putIntrospectionIndexes(ctx, w, indexes) })
}

func (s *Store) SetReplicaConfig(ctx context.Context, replica catalog.ReplicaID, cluster catalog.ClusterID, name string, config catalog.ReplicaConfig, owner catalog.RoleID) error {
	return s.update(ctx, func(w Writer) error {
		return putJSON(ctx, w, collClusterReplica, replica.String(), catalog.ClusterReplica{
			Cluster: cluster, ID: replica, Name: name, Config: config, Owner: owner,
		})
	})
}

func (s *Store) GetCatalogContentVersion(ctx context.Context) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.backend.View(ctx, func(r Reader) error {
		var err error
		v, ok, err = getJSON[string](ctx, r, collSetting, settingContentVersion)
		return err
	})
	return v, ok, err
}

func (s *Store) SetCatalogContentVersion(ctx context.Context, version string) error {
	return s.update(ctx, func(w Writer) error { return putJSON(ctx, w, collSetting, settingContentVersion, version) })
}

func (s *Store) AllocateSystemIDs(ctx context.Context, n uint64) ([]catalog.ObjectID, error) {
	first, err := s.allocate(ctx, allocSystem, n)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.ObjectID, n)
	for i := range out {
		out[i] = catalog.SystemID(first + uint64(i))
	}
	return out, nil
}

func (s *Store) AllocateUserID(ctx context.Context) (catalog.ObjectID, error) {
	first, err := s.allocate(ctx, allocUser, 1)
	if err != nil {
		return catalog.ObjectID{}, err
	}
	return catalog.UserID(first), nil
}

// allocate reserves n values of counter and returns the first.
func (s *Store) allocate(ctx context.Context, counter string, n uint64) (uint64, error) {
	if s.readOnly {
		s.mu.Lock()
		defer s.mu.Unlock()
		var next uint64
		err := s.backend.View(ctx, func(r Reader) error {
			var err error
			next, err = readCounter(ctx, r, counter)
			return err
		})
		if err != nil {
			return 0, err
		}
		used := s.overlay[counter]
		if used > math.MaxUint64-next {
			return 0, exhausted(counter, n)
		}
		first := next + used
		if n > math.MaxUint64-first {
			return 0, exhausted(counter, n)
		}
		s.overlay[counter] += n
		return first, nil
	}
	var first uint64
	err := s.backend.Update(ctx, func(w Writer) error {
		var err error
		first, err = readCounter(ctx, w, counter)
		if err != nil {
			return err
		}
		if n > math.MaxUint64-first {
			return exhausted(counter, n)
		}
		return putJSON(ctx, w, collIDAlloc, counter, first+n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s ids: %w", counter, err)
	}
	return first, nil
}

func exhausted(counter string, n uint64) error {
	return fmt.Errorf("%w: %s id counter cannot supply %d more ids", catalog.ErrInsufficientIDs, counter, n)
}

func readCounter(ctx context.Context, r Reader, counter string) (uint64, error) {
	next, ok, err := getJSON[uint64](ctx, r, collIDAlloc, counter)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &catalog.CorruptionError{Detail: fmt.Sprintf("missing %s id counter", counter)}
	}
	return next, nil
}

func (s *Store) Transaction(ctx context.Context) (catalog.Transaction, error) {
	items, err := scanCollection[catalog.ItemRecord](ctx, s.backend, collItem)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b catalog.ItemRecord) int { return a.ID.Compare(b.ID) })
	return newTx(s, items), nil
}

func mappingKey(d catalog.SystemObjectDescription) string {
	return fmt.Sprintf("%s.%s.%s", d.SchemaName, d.ObjectType, d.ObjectName)
}

func introspectionKey(idx catalog.IntrospectionSourceIndex) string {
	return idx.Cluster.String() + "/" + idx.Name
}

func putIntrospectionIndexes(ctx context.Context, w Writer, indexes []catalog.IntrospectionSourceIndex) error {
	for _, idx := range indexes {
		if err := putJSON(ctx, w, collIntrospectionIdx, introspectionKey(idx), idx); err != nil {
			return err
		}
	}
	return nil
}

func appendAuditLog(ctx context.Context, w Writer, event catalog.AuditLogEvent) (uint64, error) {
	id, err := nextSequence(ctx, w, collAuditLog)
	if err != nil {
		return 0, err
	}
	event.ID = id
	return id, putJSON(ctx, w, collAuditLog, numericKey(id), event)
}

// nextSequence returns one past the largest numeric key of collection.
func nextSequence(ctx context.Context, r Reader, collection string) (uint64, error) {
	pairs, err := r.Scan(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 1, nil
	}
	var last uint64
	if _, err := fmt.Sscanf(pairs[len(pairs)-1].Key, "%d", &last); err != nil {
		return 0, &catalog.CorruptionError{Detail: fmt.Sprintf("bad %s key %q", collection, pairs[len(pairs)-1].Key)}
	}
	return last + 1, nil
}

func getJSON[T any](ctx context.Context, r Reader, collection, key string) (T, bool, error) {
	var v T
	raw, ok, err := r.Get(ctx, collection, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := decode(collection, Pair{Key: key, Value: raw}, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func putJSON(ctx context.Context, w Writer, collection, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, key, err)
	}
	return w.Put(ctx, collection, key, raw)
}

func decode(collection string, p Pair, v any) error {
	if err := json.Unmarshal(p.Value, v); err != nil {
		return &catalog.CorruptionError{Detail: fmt.Sprintf("undecodable %s/%s: %v", collection, p.Key, err)}
	}
	return nil
}

func scanCollection[T any](ctx context.Context, b Backend, collection string) ([]T, error) {
	var out []T
	err := b.View(ctx, func(r Reader) error {
		pairs, err := r.Scan(ctx, collection)
		if err != nil {
			return err
		}
		out = make([]T, 0, len(pairs))
		for _, p := range pairs {
			var v T
			if err := decode(collection, p, &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		var corrupt *catalog.CorruptionError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	return out, nil
}
