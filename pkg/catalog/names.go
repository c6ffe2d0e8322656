package catalog

// QualifiedName is the fully qualified name of a catalog item. Database is
// empty for items that live in ambient schemas.
type QualifiedName struct {
	Database string
	Schema   string
	Item     string
}

// String renders "database.schema.item", or "schema.item" for ambient items.
func (n QualifiedName) String() string {
	if n.Database == "" {
		return n.Schema + "." + n.Item
	}
	return n.Database + "." + n.Schema + "." + n.Item
}
