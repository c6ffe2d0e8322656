// Package state holds the in-memory catalog built during bootstrap: ambient
// objects (databases, schemas, roles, clusters, privileges, comments), the
// entry index of catalog items, system parameters and the per-item plan
// cache.
//
// A Catalog is not safe for concurrent mutation. Bootstrap is its only
// writer; readers that run concurrently afterwards must synchronize
// externally.
package state

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/sql"
	"github.com/vsayer/materialize/internal/sysvars"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Config is the immutable environment the catalog was opened in.
type Config struct {
	BuildVersion  string
	EnvironmentID string
	SessionID     uuid.UUID
	StartTime     time.Time
	BootTS        uint64
	EgressIPs     []string
}

// Database is a database together with its OID and schema names.
type Database struct {
	catalog.Database
	OID     uint32
	Schemas map[string]catalog.SchemaID
}

// Schema is a schema together with its OID.
type Schema struct {
	catalog.Schema
	OID uint32
}

// Role is a role together with its OID.
type Role struct {
	catalog.Role
	OID uint32
}

// Replica is a cluster replica.
type Replica struct {
	catalog.ClusterReplica
}

// Cluster is a cluster, its replicas and the ids of its log indexes.
type Cluster struct {
	catalog.Cluster
	LogIndexes map[catalog.LogVariant]catalog.ObjectID
	Replicas   map[catalog.ReplicaID]*Replica
}

// Catalog is the in-memory catalog.
type Catalog struct {
	config  Config
	entries *index.EntryIndex
	oids    *index.OIDAllocator
	vars    *sysvars.Vars

	databases       map[catalog.DatabaseID]*Database
	databasesByName map[string]catalog.DatabaseID
	schemas         map[catalog.SchemaID]*Schema
	ambientByName   map[string]catalog.SchemaID
	roles           map[catalog.RoleID]*Role
	rolesByName     map[string]catalog.RoleID
	clusters        map[catalog.ClusterID]*Cluster
	clustersByName  map[string]catalog.ClusterID

	defaultPrivileges []catalog.DefaultPrivilege
	systemPrivileges  catalog.PrivilegeMap
	comments          []catalog.Comment

	plans map[catalog.ObjectID]string
}

// New returns an empty catalog. A zero SessionID is replaced by a random one.
func New(cfg Config) *Catalog {
	if cfg.SessionID == uuid.Nil {
		cfg.SessionID = uuid.New()
	}
	return &Catalog{
		config:          cfg,
		entries:         index.New(),
		oids:            index.NewOIDAllocator(catalog.FirstUserOID),
		vars:            sysvars.New(),
		databases:       make(map[catalog.DatabaseID]*Database),
		databasesByName: make(map[string]catalog.DatabaseID),
		schemas:         make(map[catalog.SchemaID]*Schema),
		ambientByName:   make(map[string]catalog.SchemaID),
		roles:           make(map[catalog.RoleID]*Role),
		rolesByName:     make(map[string]catalog.RoleID),
		clusters:        make(map[catalog.ClusterID]*Cluster),
		clustersByName:  make(map[string]catalog.ClusterID),
		plans:           make(map[catalog.ObjectID]string),
	}
}

// Config returns the environment the catalog was opened in.
func (c *Catalog) Config() Config { return c.config }

// SetBootTS records the boot timestamp.
func (c *Catalog) SetBootTS(ts uint64) { c.config.BootTS = ts }

// Vars returns the system parameters.
func (c *Catalog) Vars() *sysvars.Vars { return c.vars }

// AllocateOID returns the next OID.
func (c *Catalog) AllocateOID() (uint32, error) { return c.oids.Allocate() }

// InsertDatabase adds a database.
func (c *Catalog) InsertDatabase(db catalog.Database) error {
	if _, ok := c.databasesByName[db.Name]; ok {
		return fmt.Errorf("%w: database %s", catalog.ErrDuplicateEntry, db.Name)
	}
	oid, err := c.oids.Allocate()
	if err != nil {
		return err
	}
	c.databases[db.ID] = &Database{Database: db, OID: oid, Schemas: make(map[string]catalog.SchemaID)}
	c.databasesByName[db.Name] = db.ID
	return nil
}

// InsertSchema adds a schema to its database, or to the ambient schemas.
func (c *Catalog) InsertSchema(s catalog.Schema) error {
	names := c.ambientByName
	if s.Database != nil {
		db, ok := c.databases[*s.Database]
		if !ok {
			return &catalog.CorruptionError{Detail: fmt.Sprintf("schema %s references unknown database %d", s.Name, *s.Database)}
		}
		names = db.Schemas
	}
	if _, ok := names[s.Name]; ok {
		return fmt.Errorf("%w: schema %s", catalog.ErrDuplicateEntry, s.Name)
	}
	oid, err := c.oids.Allocate()
	if err != nil {
		return err
	}
	c.schemas[s.ID] = &Schema{Schema: s, OID: oid}
	names[s.Name] = s.ID
	return nil
}

// InsertRole adds a role.
func (c *Catalog) InsertRole(r catalog.Role) error {
	if _, ok := c.rolesByName[r.Name]; ok {
		return fmt.Errorf("%w: role %s", catalog.ErrDuplicateEntry, r.Name)
	}
	oid, err := c.oids.Allocate()
	if err != nil {
		return err
	}
	c.roles[r.ID] = &Role{Role: r, OID: oid}
	c.rolesByName[r.Name] = r.ID
	return nil
}

// SetDefaultPrivileges replaces the default privileges.
func (c *Catalog) SetDefaultPrivileges(p []catalog.DefaultPrivilege) { c.defaultPrivileges = p }

// SetSystemPrivileges replaces the system privileges.
func (c *Catalog) SetSystemPrivileges(p []catalog.AclItem) {
	c.systemPrivileges = catalog.NewPrivilegeMap(p...)
}

// AddComment records a comment.
func (c *Catalog) AddComment(cm catalog.Comment) { c.comments = append(c.comments, cm) }

// Database returns a database by id.
func (c *Catalog) Database(id catalog.DatabaseID) (*Database, bool) {
	db, ok := c.databases[id]
	return db, ok
}

// Databases returns every database ordered by id.
func (c *Catalog) Databases() []*Database {
	out := make([]*Database, 0, len(c.databases))
	for _, db := range c.databases {
		out = append(out, db)
	}
	slices.SortFunc(out, func(a, b *Database) int { return cmpUint(uint64(a.ID), uint64(b.ID)) })
	return out
}

// Schema returns a schema by id.
func (c *Catalog) Schema(id catalog.SchemaID) (*Schema, bool) {
	s, ok := c.schemas[id]
	return s, ok
}

// Schemas returns every schema ordered by id.
func (c *Catalog) Schemas() []*Schema {
	out := make([]*Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Schema) int { return cmpUint(uint64(a.ID), uint64(b.ID)) })
	return out
}

// AmbientSchemaID returns the id of an ambient schema.
func (c *Catalog) AmbientSchemaID(name string) (catalog.SchemaID, bool) {
	id, ok := c.ambientByName[name]
	return id, ok
}

// Roles returns every role ordered by id.
func (c *Catalog) Roles() []*Role {
	out := make([]*Role, 0, len(c.roles))
	for _, r := range c.roles {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Role) int { return a.ID.Compare(b.ID) })
	return out
}

// DefaultPrivileges returns the default privileges.
func (c *Catalog) DefaultPrivileges() []catalog.DefaultPrivilege { return c.defaultPrivileges }

// SystemPrivileges returns the system privileges.
func (c *Catalog) SystemPrivileges() catalog.PrivilegeMap { return c.systemPrivileges }

// Comments returns every comment in insertion order.
func (c *Catalog) Comments() []catalog.Comment { return c.comments }

// SchemaQualifiedName returns the full name of item in schemaID.
func (c *Catalog) SchemaQualifiedName(schemaID catalog.SchemaID, item string) (catalog.QualifiedName, error) {
	s, ok := c.schemas[schemaID]
	if !ok {
		return catalog.QualifiedName{}, fmt.Errorf("unknown schema %d", schemaID)
	}
	name := catalog.QualifiedName{Schema: s.Name, Item: item}
	if s.Database != nil {
		db, ok := c.databases[*s.Database]
		if !ok {
			return catalog.QualifiedName{}, fmt.Errorf("schema %s references unknown database %d", s.Name, *s.Database)
		}
		name.Database = db.Name
	}
	return name, nil
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParseItem plans createSQL against the current catalog.
func (c *Catalog) ParseItem(createSQL string) (catalog.Item, error) {
	return sql.PlanText(createSQL, c)
}

// LookupID implements sql.Snapshot.
func (c *Catalog) LookupID(id catalog.ObjectID) (catalog.Item, bool) {
	e, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	return e.Item, true
}

// LookupName implements sql.Snapshot.
func (c *Catalog) LookupName(fullName string) (catalog.ObjectID, bool) {
	return c.entries.Lookup(fullName)
}

// LookupCluster implements sql.Snapshot.
func (c *Catalog) LookupCluster(name string) (catalog.ClusterID, bool) {
	id, ok := c.clustersByName[name]
	return id, ok
}
