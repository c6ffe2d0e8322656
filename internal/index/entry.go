package index

import (
	"slices"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Entry is one catalog item together with its identity and ownership.
type Entry struct {
	ID         catalog.ObjectID
	OID        uint32
	Name       catalog.QualifiedName
	SchemaID   catalog.SchemaID
	Owner      catalog.RoleID
	Privileges catalog.PrivilegeMap
	Item       catalog.Item

	usedBy map[catalog.ObjectID]struct{}
}

// Uses returns the ids this entry depends on.
func (e *Entry) Uses() catalog.ResolvedIDs { return e.Item.Uses() }

// UsedBy returns the ids of entries that depend on this one, ascending.
func (e *Entry) UsedBy() []catalog.ObjectID {
	out := make([]catalog.ObjectID, 0, len(e.usedBy))
	for id := range e.usedBy {
		out = append(out, id)
	}
	slices.SortFunc(out, catalog.ObjectID.Compare)
	return out
}

// ItemType is shorthand for e.Item.ItemType().
func (e *Entry) ItemType() catalog.ItemType { return e.Item.ItemType() }

// IsTable reports whether the entry is a table.
func (e *Entry) IsTable() bool {
	_, ok := e.Item.(*catalog.Table)
	return ok
}

// IsSource reports whether the entry is a source, including logs.
func (e *Entry) IsSource() bool {
	switch e.Item.(type) {
	case *catalog.Source, *catalog.Log:
		return true
	}
	return false
}
