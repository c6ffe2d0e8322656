package catalog

import (
	"slices"
)

// ItemType is the user-visible kind of a catalog item.
type ItemType string

const (
	ItemTypeTable            ItemType = "table"
	ItemTypeSource           ItemType = "source"
	ItemTypeSink             ItemType = "sink"
	ItemTypeView             ItemType = "view"
	ItemTypeMaterializedView ItemType = "materialized-view"
	ItemTypeIndex            ItemType = "index"
	ItemTypeType             ItemType = "type"
	ItemTypeFunc             ItemType = "func"
	ItemTypeSecret           ItemType = "secret"
	ItemTypeConnection       ItemType = "connection"
)

// PlaceholderCreateSQL is recorded for built-ins that are not defined by SQL.
const PlaceholderCreateSQL = "<builtin>"

// ResolvedIDs is the sorted, duplicate-free set of ids an item references.
type ResolvedIDs []ObjectID

// NewResolvedIDs builds a normalized set from ids in any order.
func NewResolvedIDs(ids ...ObjectID) ResolvedIDs {
	out := slices.Clone(ids)
	slices.SortFunc(out, ObjectID.Compare)
	return slices.Compact(out)
}

// Contains reports whether id is in the set.
func (r ResolvedIDs) Contains(id ObjectID) bool {
	_, found := slices.BinarySearchFunc(r, id, ObjectID.Compare)
	return found
}

// Item is the closed set of catalog item payloads. Every implementation
// lives in this package; callers dispatch with a type switch.
type Item interface {
	// ItemType returns the user-visible kind.
	ItemType() ItemType
	// CreateSQL returns the statement that recreates the item.
	CreateSQL() string
	// Uses returns the ids the item depends on.
	Uses() ResolvedIDs

	sealed()
}

// Definition carries the fields every item shares.
type Definition struct {
	SQL      string
	Resolved ResolvedIDs
}

// CreateSQL returns the defining statement.
func (d Definition) CreateSQL() string { return d.SQL }

// Uses returns the ids referenced by the defining statement.
func (d Definition) Uses() ResolvedIDs { return d.Resolved }

// Column is a named, typed column of a relation.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Table is a durable relation written through the catalog.
type Table struct {
	Definition
	Columns                 []Column
	IsRetainedMetricsObject bool
}

// View is a named query with no storage of its own.
type View struct {
	Definition
	Columns []string
}

// MaterializedView is a query whose results are maintained on a cluster.
type MaterializedView struct {
	Definition
	Cluster ClusterID
	Columns []string
}

// DataSourceKind describes where a source's data originates.
type DataSourceKind string

const (
	DataSourceIntrospection DataSourceKind = "introspection"
	DataSourceLoadGenerator DataSourceKind = "load-generator"
	DataSourceKafka         DataSourceKind = "kafka"
)

// DataSource describes the ingestion side of a source.
type DataSource struct {
	Kind          DataSourceKind
	Introspection string
	Generator     string
	Connection    ObjectID
	Topic         string
}

// Source ingests data from outside the catalog.
type Source struct {
	Definition
	DataSource DataSource
	Cluster    *ClusterID
	Columns    []Column
}

// Sink exports a relation through a connection.
type Sink struct {
	Definition
	From       ObjectID
	Connection ObjectID
	Cluster    ClusterID
}

// Index arranges a relation by key on a cluster.
type Index struct {
	Definition
	On                      ObjectID
	Keys                    []string
	Cluster                 ClusterID
	IsRetainedMetricsObject bool
}

// TypeCategory is the structural category of a named type.
type TypeCategory string

const (
	TypeCategoryBase TypeCategory = "base"
	TypeCategoryList TypeCategory = "list"
)

// Type is a named SQL type.
type Type struct {
	Definition
	Category TypeCategory
	// Element is set for list types.
	Element *ObjectID
	// FixedOID is the well-known OID of built-in types, zero otherwise.
	FixedOID uint32
}

// Func is a built-in function.
type Func struct {
	Definition
	Signatures []string
}

// Secret stores an opaque value outside the catalog.
type Secret struct {
	Definition
}

// ConnectionKind is the protocol of a connection.
type ConnectionKind string

const (
	ConnectionSSHTunnel ConnectionKind = "ssh-tunnel"
	ConnectionKafka     ConnectionKind = "kafka"
)

// SSHPublicKeys is the public half of a connection's key pair set.
type SSHPublicKeys struct {
	Primary   string
	Secondary string
}

// SSHTunnel describes an SSH bastion.
type SSHTunnel struct {
	Host string
	Port int
	User string
	// PublicKeys is populated from the secrets store after bootstrap.
	PublicKeys *SSHPublicKeys
}

// KafkaConnection describes a Kafka broker, optionally tunnelled.
type KafkaConnection struct {
	Broker string
	Tunnel *ObjectID
}

// Connection holds reusable connection details.
type Connection struct {
	Definition
	Kind  ConnectionKind
	SSH   *SSHTunnel
	Kafka *KafkaConnection
}

// LogVariant names one introspection log stream.
type LogVariant string

// Log is a built-in introspection log. Logs are exposed as sources.
type Log struct {
	Variant LogVariant
}

func (*Table) ItemType() ItemType            { return ItemTypeTable }
func (*View) ItemType() ItemType             { return ItemTypeView }
func (*MaterializedView) ItemType() ItemType { return ItemTypeMaterializedView }
func (*Source) ItemType() ItemType           { return ItemTypeSource }
func (*Sink) ItemType() ItemType             { return ItemTypeSink }
func (*Index) ItemType() ItemType            { return ItemTypeIndex }
func (*Type) ItemType() ItemType             { return ItemTypeType }
func (*Func) ItemType() ItemType             { return ItemTypeFunc }
func (*Secret) ItemType() ItemType           { return ItemTypeSecret }
func (*Connection) ItemType() ItemType       { return ItemTypeConnection }
func (*Log) ItemType() ItemType              { return ItemTypeSource }

func (*Log) CreateSQL() string  { return PlaceholderCreateSQL }
func (*Log) Uses() ResolvedIDs  { return nil }

func (*Table) sealed()            {}
func (*View) sealed()             {}
func (*MaterializedView) sealed() {}
func (*Source) sealed()           {}
func (*Sink) sealed()             {}
func (*Index) sealed()            {}
func (*Type) sealed()             {}
func (*Func) sealed()             {}
func (*Secret) sealed()           {}
func (*Connection) sealed()       {}
func (*Log) sealed()              {}

// IsIntrospectionSource reports whether item is fed by the system itself.
func IsIntrospectionSource(item Item) bool {
	switch it := item.(type) {
	case *Log:
		return true
	case *Source:
		return it.DataSource.Kind == DataSourceIntrospection
	default:
		return false
	}
}

// IsRelation reports whether item produces rows that can be indexed or read.
func IsRelation(item Item) bool {
	switch item.(type) {
	case *Table, *View, *MaterializedView, *Source, *Log:
		return true
	default:
		return false
	}
}
