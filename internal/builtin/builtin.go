// Package builtin declares the objects compiled into the binary: introspection
// logs, system tables, views, functions, sources, indexes, types, roles and
// clusters. Their ids are assigned at boot from persisted mappings, and a
// change to a definition's fingerprint triggers a migration.
package builtin

import (
	"fmt"
	"strings"

	"github.com/vsayer/materialize/internal/checksum"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Schema names of the ambient built-in schemas.
const (
	SchemaMzCatalog         = "mz_catalog"
	SchemaMzInternal        = "mz_internal"
	SchemaPgCatalog         = "pg_catalog"
	SchemaInformationSchema = "information_schema"
)

// reservedPrefixes are the only prefixes built-in roles and clusters may use.
var reservedPrefixes = []string{"mz_", "pg_", "external_"}

// Builtin is any compiled-in catalog item.
type Builtin interface {
	SchemaName() string
	ItemName() string
	ItemType() catalog.ItemType
	Fingerprint() string
}

// Description returns the natural key a builtin is persisted under.
func Description(b Builtin) catalog.SystemObjectDescription {
	return catalog.SystemObjectDescription{
		SchemaName: b.SchemaName(),
		ObjectType: b.ItemType(),
		ObjectName: b.ItemName(),
	}
}

// FullName returns "schema.name".
func FullName(b Builtin) string { return b.SchemaName() + "." + b.ItemName() }

// Log is an introspection log stream.
type Log struct {
	Name    string
	Schema  string
	Variant catalog.LogVariant
	Columns []catalog.Column
}

// Table is a system table maintained by the catalog itself.
type Table struct {
	Name                    string
	Schema                  string
	Columns                 []catalog.Column
	IsRetainedMetricsObject bool
}

// View is a system view defined in SQL.
type View struct {
	Name   string
	Schema string
	SQL    string
}

// Index is a system index defined in SQL.
type Index struct {
	Name                    string
	Schema                  string
	SQL                     string
	IsRetainedMetricsObject bool
}

// Source is a system source fed by an introspection collection.
type Source struct {
	Name          string
	Schema        string
	Columns       []catalog.Column
	Introspection string
}

// Func is a built-in function.
type Func struct {
	Name       string
	Schema     string
	Signatures []string
}

// Type is a built-in type with a well-known OID. Element names another
// built-in type in the same schema for list and array types.
type Type struct {
	Name    string
	Schema  string
	OID     uint32
	Element string
}

// Role is a built-in role.
type Role struct {
	ID   catalog.RoleID
	Name string
}

// Cluster is a built-in cluster.
type Cluster struct {
	ID   catalog.ClusterID
	Name string
}

func (l *Log) SchemaName() string    { return l.Schema }
func (t *Table) SchemaName() string  { return t.Schema }
func (v *View) SchemaName() string   { return v.Schema }
func (i *Index) SchemaName() string  { return i.Schema }
func (s *Source) SchemaName() string { return s.Schema }
func (f *Func) SchemaName() string   { return f.Schema }
func (t *Type) SchemaName() string   { return t.Schema }

func (l *Log) ItemName() string    { return l.Name }
func (t *Table) ItemName() string  { return t.Name }
func (v *View) ItemName() string   { return v.Name }
func (i *Index) ItemName() string  { return i.Name }
func (s *Source) ItemName() string { return s.Name }
func (f *Func) ItemName() string   { return f.Name }
func (t *Type) ItemName() string   { return t.Name }

func (*Log) ItemType() catalog.ItemType    { return catalog.ItemTypeSource }
func (*Table) ItemType() catalog.ItemType  { return catalog.ItemTypeTable }
func (*View) ItemType() catalog.ItemType   { return catalog.ItemTypeView }
func (*Index) ItemType() catalog.ItemType  { return catalog.ItemTypeIndex }
func (*Source) ItemType() catalog.ItemType { return catalog.ItemTypeSource }
func (*Func) ItemType() catalog.ItemType   { return catalog.ItemTypeFunc }
func (*Type) ItemType() catalog.ItemType   { return catalog.ItemTypeType }

func (l *Log) Fingerprint() string    { return checksum.Columns(l.Columns) }
func (t *Table) Fingerprint() string  { return checksum.Columns(t.Columns) }
func (v *View) Fingerprint() string   { return checksum.Definition(v.SQL) }
func (i *Index) Fingerprint() string  { return checksum.Definition(i.SQL) }
func (s *Source) Fingerprint() string { return checksum.Columns(s.Columns) }
func (*Func) Fingerprint() string     { return "" }
func (*Type) Fingerprint() string     { return "" }

// Set is the complete collection of built-ins for one release.
type Set struct {
	Types    []*Type
	Items    []Builtin
	Roles    []Role
	Clusters []Cluster
}

// Logs returns the log builtins in declaration order.
func (s *Set) Logs() []*Log {
	var out []*Log
	for _, b := range s.Items {
		if l, ok := b.(*Log); ok {
			out = append(out, l)
		}
	}
	return out
}

// Validate panics when a built-in role or cluster name lacks a reserved
// prefix or when two items share a natural key. Either means the release
// itself is broken.
func (s *Set) Validate() {
	for _, r := range s.Roles {
		if !hasReservedPrefix(r.Name) {
			panic(fmt.Sprintf("built-in role %q must start with one of %v", r.Name, reservedPrefixes))
		}
	}
	for _, c := range s.Clusters {
		if !hasReservedPrefix(c.Name) {
			panic(fmt.Sprintf("built-in cluster %q must start with one of %v", c.Name, reservedPrefixes))
		}
	}
	seen := make(map[catalog.SystemObjectDescription]struct{})
	for _, t := range s.Types {
		seen[Description(t)] = struct{}{}
	}
	for _, b := range s.Items {
		if src, ok := b.(*Source); ok && src.Introspection == "" {
			panic(fmt.Sprintf("built-in source %s has no introspection type", FullName(src)))
		}
		d := Description(b)
		if _, dup := seen[d]; dup {
			panic(fmt.Sprintf("duplicate built-in %s %s.%s", d.ObjectType, d.SchemaName, d.ObjectName))
		}
		seen[d] = struct{}{}
	}
}

func hasReservedPrefix(name string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// IntrospectionIndexName names the index a cluster keeps on a log.
func IntrospectionIndexName(log *Log, cluster catalog.ClusterID) string {
	return fmt.Sprintf("%s_%s_primary_idx", log.Name, cluster)
}

// Privileges returns the ACL every built-in item of type t starts with:
// PUBLIC gets read access where it applies and owner gets everything.
func Privileges(t catalog.ItemType, owner catalog.RoleID) catalog.PrivilegeMap {
	var items []catalog.AclItem
	switch t {
	case catalog.ItemTypeTable, catalog.ItemTypeView, catalog.ItemTypeMaterializedView, catalog.ItemTypeSource:
		items = append(items, catalog.AclItem{Grantee: catalog.PublicRoleID, Grantor: owner, Mode: catalog.AclSelect})
	case catalog.ItemTypeType:
		items = append(items, catalog.AclItem{Grantee: catalog.PublicRoleID, Grantor: owner, Mode: catalog.AclUsage})
	}
	if all := catalog.AllPrivileges(t); all != 0 {
		items = append(items, catalog.AclItem{Grantee: owner, Grantor: owner, Mode: all})
	}
	return catalog.NewPrivilegeMap(items...)
}
