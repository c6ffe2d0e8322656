// Package allocator assigns stable ids to built-in objects.
//
// Each built-in is looked up by its natural key in the persisted mappings.
// A built-in with no mapping is new and receives an id from a single
// contiguous block reserved from the durable counter. A built-in with a
// mapping keeps its id; when the persisted fingerprint differs from the
// current one the id is also reported as migrated.
package allocator

import (
	"context"
	"fmt"

	"github.com/vsayer/materialize/pkg/catalog"
)

// IDSource reserves system ids from the durable counter.
type IDSource interface {
	AllocateSystemIDs(ctx context.Context, n uint64) ([]catalog.ObjectID, error)
}

// Fingerprinted is anything whose definition can be fingerprinted.
type Fingerprinted interface {
	Fingerprint() string
}

// Assigned pairs a built-in with its id.
type Assigned[T Fingerprinted] struct {
	Builtin T
	ID      catalog.ObjectID
}

// Allocation is the outcome of AllocateSystemIDs.
type Allocation[T Fingerprinted] struct {
	// All holds every built-in, in input order.
	All []Assigned[T]
	// New holds the built-ins that had no persisted mapping.
	New []Assigned[T]
	// Migrated holds the existing ids whose fingerprint changed.
	Migrated []catalog.ObjectID
}

// AllocateSystemIDs classifies builtins using lookup and assigns ids to the
// new ones. It reserves exactly as many ids as there are new built-ins, in
// one call, and fails with catalog.ErrInsufficientIDs if src returns fewer.
func AllocateSystemIDs[T Fingerprinted](
	ctx context.Context,
	src IDSource,
	builtins []T,
	lookup func(T) (catalog.SystemObjectUniqueIdentifier, bool),
) (Allocation[T], error) {
	var missing uint64
	for _, b := range builtins {
		if _, ok := lookup(b); !ok {
			missing++
		}
	}

	var fresh []catalog.ObjectID
	if missing > 0 {
		var err error
		fresh, err = src.AllocateSystemIDs(ctx, missing)
		if err != nil {
			return Allocation[T]{}, fmt.Errorf("failed to allocate %d system ids: %w", missing, err)
		}
		if uint64(len(fresh)) < missing {
			return Allocation[T]{}, fmt.Errorf("%w: requested %d, got %d", catalog.ErrInsufficientIDs, missing, len(fresh))
		}
	}

	out := Allocation[T]{All: make([]Assigned[T], 0, len(builtins))}
	next := 0
	for _, b := range builtins {
		existing, ok := lookup(b)
		if !ok {
			a := Assigned[T]{Builtin: b, ID: fresh[next]}
			next++
			out.All = append(out.All, a)
			out.New = append(out.New, a)
			continue
		}
		out.All = append(out.All, Assigned[T]{Builtin: b, ID: existing.ID})
		if existing.Fingerprint != b.Fingerprint() {
			out.Migrated = append(out.Migrated, existing.ID)
		}
	}
	return out, nil
}
