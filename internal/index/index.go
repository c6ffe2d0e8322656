package index

import (
	"fmt"
	"slices"

	"github.com/vsayer/materialize/pkg/catalog"
)

// EntryIndex maps ids to entries and full names to ids, and maintains the
// used-by edge of every entry. It is not safe for concurrent mutation.
type EntryIndex struct {
	entries map[catalog.ObjectID]*Entry
	byName  map[string]catalog.ObjectID
}

// New returns an empty index.
func New() *EntryIndex {
	return &EntryIndex{
		entries: make(map[catalog.ObjectID]*Entry),
		byName:  make(map[string]catalog.ObjectID),
	}
}

// Insert adds e and records it as a user of every id it resolves. Every
// resolved id must already be present; on failure the index is unchanged.
func (x *EntryIndex) Insert(e *Entry) error {
	if _, exists := x.entries[e.ID]; exists {
		return fmt.Errorf("%w: id %s", catalog.ErrDuplicateEntry, e.ID)
	}
	name := e.Name.String()
	if _, exists := x.byName[name]; exists {
		return fmt.Errorf("%w: name %s", catalog.ErrDuplicateEntry, name)
	}
	for _, dep := range e.Uses() {
		if _, ok := x.entries[dep]; !ok {
			return &catalog.CorruptionError{
				Detail: fmt.Sprintf("item %s (%s) depends on missing item %s", e.ID, name, dep),
			}
		}
	}

	e.usedBy = make(map[catalog.ObjectID]struct{})
	for _, dep := range e.Uses() {
		x.entries[dep].usedBy[e.ID] = struct{}{}
	}
	x.entries[e.ID] = e
	x.byName[name] = e.ID
	return nil
}

// Remove deletes the entry and its used-by edges. Dependents that are still
// present keep their own resolved ids; callers remove them first.
func (x *EntryIndex) Remove(id catalog.ObjectID) (*Entry, bool) {
	e, ok := x.entries[id]
	if !ok {
		return nil, false
	}
	for _, dep := range e.Uses() {
		if parent, ok := x.entries[dep]; ok {
			delete(parent.usedBy, id)
		}
	}
	delete(x.entries, id)
	delete(x.byName, e.Name.String())
	return e, true
}

// Get returns the entry with the given id.
func (x *EntryIndex) Get(id catalog.ObjectID) (*Entry, bool) {
	e, ok := x.entries[id]
	return e, ok
}

// MustGet returns the entry with the given id and panics when it is absent.
func (x *EntryIndex) MustGet(id catalog.ObjectID) *Entry {
	e, ok := x.entries[id]
	if !ok {
		panic(fmt.Sprintf("catalog entry %s not found", id))
	}
	return e
}

// Lookup resolves a fully qualified name.
func (x *EntryIndex) Lookup(fullName string) (catalog.ObjectID, bool) {
	id, ok := x.byName[fullName]
	return id, ok
}

// Len returns the number of entries.
func (x *EntryIndex) Len() int { return len(x.entries) }

// IDs returns every id in ascending order.
func (x *EntryIndex) IDs() []catalog.ObjectID {
	out := make([]catalog.ObjectID, 0, len(x.entries))
	for id := range x.entries {
		out = append(out, id)
	}
	slices.SortFunc(out, catalog.ObjectID.Compare)
	return out
}

// Entries returns every entry in ascending id order.
func (x *EntryIndex) Entries() []*Entry {
	ids := x.IDs()
	out := make([]*Entry, len(ids))
	for i, id := range ids {
		out[i] = x.entries[id]
	}
	return out
}

// DependentsFirst returns roots and everything that transitively depends on
// them, each id listed after all of its dependents. Reversing the result
// gives an order in which every id follows everything it depends on.
//
// Each root is expanded in the order given, sharing one visited set, and
// siblings are visited in ascending id order.
func (x *EntryIndex) DependentsFirst(roots []catalog.ObjectID) []catalog.ObjectID {
	visited := make(map[catalog.ObjectID]struct{})
	var out []catalog.ObjectID
	for _, root := range roots {
		if _, seen := visited[root]; !seen {
			out = x.rank(root, visited, out)
		}
	}
	return out
}

func (x *EntryIndex) rank(id catalog.ObjectID, visited map[catalog.ObjectID]struct{}, out []catalog.ObjectID) []catalog.ObjectID {
	visited[id] = struct{}{}
	for _, child := range x.MustGet(id).UsedBy() {
		if _, seen := visited[child]; !seen {
			out = x.rank(child, visited, out)
		}
	}
	return append(out, id)
}
