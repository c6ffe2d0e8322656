// Package loader rebuilds catalog entries from persisted item records that
// arrive in no particular order.
//
// A record whose create SQL references an item that has not been loaded yet
// is parked until that item appears, keyed by the id or the full name it is
// waiting for. Loading an item re-queues everything parked on it. When the
// queue drains, anything still parked depends on an item that does not exist
// and the catalog is corrupt.
package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Names in this schema resolve to logs that only exist when introspection
// logging is enabled.
var loggingDependency = regexp.MustCompile(`^mz_catalog\.`)

// Target receives loaded entries. *state.Catalog implements it.
type Target interface {
	SchemaQualifiedName(schemaID catalog.SchemaID, item string) (catalog.QualifiedName, error)
	ParseItem(createSQL string) (catalog.Item, error)
	AllocateOID() (uint32, error)
	InsertItem(
		id catalog.ObjectID,
		oid uint32,
		name catalog.QualifiedName,
		schemaID catalog.SchemaID,
		item catalog.Item,
		owner catalog.RoleID,
		privileges catalog.PrivilegeMap,
	) error
}

// Load inserts every record into target, each only after everything it
// references. The result does not depend on the order of records.
func Load(ctx context.Context, target Target, records []catalog.ItemRecord) error {
	l := &loader{
		target:       target,
		queue:        slices.Clone(records),
		awaitingID:   make(map[catalog.ObjectID][]catalog.ItemRecord),
		awaitingName: make(map[string][]catalog.ItemRecord),
	}
	for len(l.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := l.queue[0]
		l.queue = l.queue[1:]
		if err := l.load(rec); err != nil {
			return err
		}
	}
	return l.leftover()
}

type loader struct {
	target       Target
	queue        []catalog.ItemRecord
	awaitingID   map[catalog.ObjectID][]catalog.ItemRecord
	awaitingName map[string][]catalog.ItemRecord
}

func (l *loader) load(rec catalog.ItemRecord) error {
	name, err := l.target.SchemaQualifiedName(rec.SchemaID, rec.Name)
	if err != nil {
		return deserializeError(rec.ID, rec.Name, err)
	}
	fullName := name.String()

	item, err := l.target.ParseItem(rec.CreateSQL)
	if err != nil {
		return l.park(rec, fullName, err)
	}

	oid, err := l.target.AllocateOID()
	if err != nil {
		return err
	}
	if err := l.target.InsertItem(rec.ID, oid, name, rec.SchemaID, item, rec.Owner, rec.Privileges); err != nil {
		return err
	}

	if waiting, ok := l.awaitingID[rec.ID]; ok {
		l.queue = append(l.queue, waiting...)
		delete(l.awaitingID, rec.ID)
	}
	if waiting, ok := l.awaitingName[fullName]; ok {
		l.queue = append(l.queue, waiting...)
		delete(l.awaitingName, fullName)
	}
	return nil
}

func (l *loader) park(rec catalog.ItemRecord, fullName string, err error) error {
	var (
		unknownID   *catalog.UnknownIDError
		unknownName *catalog.UnknownNameError
	)
	switch {
	case errors.As(err, &unknownID):
		l.awaitingID[unknownID.ID] = append(l.awaitingID[unknownID.ID], rec)
	case errors.As(err, &unknownName):
		if id, perr := catalog.ParseObjectID(unknownName.Name); perr == nil {
			l.awaitingID[id] = append(l.awaitingID[id], rec)
		} else if loggingDependency.MatchString(unknownName.Name) {
			return &catalog.LoggingDependencyError{DependerName: fullName, Missing: unknownName.Name}
		} else {
			l.awaitingName[unknownName.Name] = append(l.awaitingName[unknownName.Name], rec)
		}
	default:
		return deserializeError(rec.ID, fullName, err)
	}
	return nil
}

// leftover reports the first parked record, ids before names, each in
// ascending order.
func (l *loader) leftover() error {
	if len(l.awaitingID) > 0 {
		missing := slices.SortedFunc(maps.Keys(l.awaitingID), catalog.ObjectID.Compare)[0]
		rec := l.awaitingID[missing][0]
		return &catalog.CorruptionError{Detail: fmt.Sprintf(
			"failed to deserialize item %s (%s): item %s does not exist", rec.ID, rec.Name, missing)}
	}
	if len(l.awaitingName) > 0 {
		missing := slices.Sorted(maps.Keys(l.awaitingName))[0]
		rec := l.awaitingName[missing][0]
		return &catalog.CorruptionError{Detail: fmt.Sprintf(
			"failed to deserialize item %s (%s): item %s does not exist", rec.ID, rec.Name, missing)}
	}
	return nil
}

func deserializeError(id catalog.ObjectID, name string, err error) error {
	return &catalog.CorruptionError{Detail: fmt.Sprintf("failed to deserialize item %s (%s): %v", id, name, err)}
}
