package sql

import "github.com/vsayer/materialize/pkg/catalog"

// ReplaceIDs rewrites every resolved reference of stmt whose id has a
// replacement in ancestors. Name-only references are left alone.
func ReplaceIDs(stmt Statement, ancestors map[catalog.ObjectID]catalog.ObjectID) {
	for _, ref := range stmt.refs() {
		if ref.ID == nil {
			continue
		}
		if replacement, ok := ancestors[*ref.ID]; ok {
			ref.ID = &replacement
		}
	}
}

// ReferencedIDs returns the ids of every resolved reference of stmt.
func ReferencedIDs(stmt Statement) catalog.ResolvedIDs {
	var ids []catalog.ObjectID
	for _, ref := range stmt.refs() {
		if ref.ID != nil {
			ids = append(ids, *ref.ID)
		}
	}
	return catalog.NewResolvedIDs(ids...)
}
