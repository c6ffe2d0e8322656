package state

import (
	"fmt"
	"slices"

	"github.com/vsayer/materialize/internal/builtin"
	"github.com/vsayer/materialize/internal/index"
	"github.com/vsayer/materialize/internal/sql"
	"github.com/vsayer/materialize/pkg/catalog"
)

// InsertItem adds an entry. Indexes and materialized views also get their
// create SQL recorded in the plan cache.
func (c *Catalog) InsertItem(
	id catalog.ObjectID,
	oid uint32,
	name catalog.QualifiedName,
	schemaID catalog.SchemaID,
	item catalog.Item,
	owner catalog.RoleID,
	privileges catalog.PrivilegeMap,
) error {
	e := &index.Entry{
		ID:         id,
		OID:        oid,
		Name:       name,
		SchemaID:   schemaID,
		Owner:      owner,
		Privileges: privileges,
		Item:       item,
	}
	if err := c.entries.Insert(e); err != nil {
		return err
	}
	switch item.(type) {
	case *catalog.Index, *catalog.MaterializedView:
		c.plans[id] = item.CreateSQL()
	}
	return nil
}

// DropItem removes an entry and its cached plan.
func (c *Catalog) DropItem(id catalog.ObjectID) (*index.Entry, bool) {
	e, ok := c.entries.Remove(id)
	if ok {
		delete(c.plans, id)
	}
	return e, ok
}

// Entry returns the entry for id.
func (c *Catalog) Entry(id catalog.ObjectID) (*index.Entry, bool) {
	return c.entries.Get(id)
}

// MustEntry returns the entry for id and panics if it is absent.
func (c *Catalog) MustEntry(id catalog.ObjectID) *index.Entry {
	return c.entries.MustGet(id)
}

// Entries returns every entry in ascending id order.
func (c *Catalog) Entries() []*index.Entry { return c.entries.Entries() }

// DependentsFirst orders roots and their transitive dependents so that every
// id precedes what it depends on.
func (c *Catalog) DependentsFirst(roots []catalog.ObjectID) []catalog.ObjectID {
	return c.entries.DependentsFirst(roots)
}

// Plan returns the cached create SQL of an index or materialized view.
func (c *Catalog) Plan(id catalog.ObjectID) (string, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// SetSSHPublicKeys attaches a key pair to an SSH tunnel connection.
func (c *Catalog) SetSSHPublicKeys(id catalog.ObjectID, keys catalog.SSHPublicKeys) error {
	e, ok := c.entries.Get(id)
	if !ok {
		return fmt.Errorf("unknown connection %s", id)
	}
	conn, ok := e.Item.(*catalog.Connection)
	if !ok || conn.SSH == nil {
		return fmt.Errorf("%s (%s) is not an SSH tunnel connection", id, e.Name)
	}
	conn.SSH.PublicKeys = &keys
	return nil
}

// LogIndex assigns the id of the index a cluster keeps on a log.
type LogIndex struct {
	Log     *builtin.Log
	IndexID catalog.ObjectID
}

// InsertCluster adds a cluster and creates an index entry for each of its
// log indexes. Every log must already be present.
func (c *Catalog) InsertCluster(cl catalog.Cluster, logs []LogIndex) error {
	if _, ok := c.clustersByName[cl.Name]; ok {
		return fmt.Errorf("%w: cluster %s", catalog.ErrDuplicateEntry, cl.Name)
	}
	c.clusters[cl.ID] = &Cluster{
		Cluster:    cl,
		LogIndexes: make(map[catalog.LogVariant]catalog.ObjectID, len(logs)),
		Replicas:   make(map[catalog.ReplicaID]*Replica),
	}
	c.clustersByName[cl.Name] = cl.ID

	for _, li := range logs {
		if err := c.insertLogIndex(cl, li); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) insertLogIndex(cl catalog.Cluster, li LogIndex) error {
	logID, ok := c.entries.Lookup(builtin.FullName(li.Log))
	if !ok {
		return &catalog.CorruptionError{Detail: fmt.Sprintf("log %s missing while creating cluster %s", builtin.FullName(li.Log), cl.Name)}
	}
	schemaID, ok := c.ambientByName[builtin.SchemaMzInternal]
	if !ok {
		return &catalog.CorruptionError{Detail: "schema " + builtin.SchemaMzInternal + " missing"}
	}
	name := builtin.IntrospectionIndexName(li.Log, cl.ID)
	stmt := &sql.CreateIndex{
		Name:      sql.Name{builtin.SchemaMzInternal, name},
		InCluster: cl.Name,
		On:        sql.ItemRef{ID: &logID, Name: sql.Name{li.Log.Schema, li.Log.Name}},
	}
	var keys []string
	if len(li.Log.Columns) > 0 {
		keys = []string{li.Log.Columns[0].Name}
		stmt.Keys = []sql.Fragments{{sql.Ident(keys[0])}}
	}
	oid, err := c.oids.Allocate()
	if err != nil {
		return err
	}
	item := &catalog.Index{
		Definition: catalog.Definition{SQL: sql.Render(stmt), Resolved: catalog.NewResolvedIDs(logID)},
		On:         logID,
		Keys:       keys,
		Cluster:    cl.ID,
	}
	err = c.InsertItem(li.IndexID, oid,
		catalog.QualifiedName{Schema: builtin.SchemaMzInternal, Item: name},
		schemaID, item, builtin.MzSystemRoleID, builtin.Privileges(catalog.ItemTypeIndex, builtin.MzSystemRoleID))
	if err != nil {
		return err
	}
	c.clusters[cl.ID].LogIndexes[li.Log.Variant] = li.IndexID
	return nil
}

// SetLogIndex points a cluster's log variant at a new index id.
func (c *Catalog) SetLogIndex(cluster catalog.ClusterID, variant catalog.LogVariant, id catalog.ObjectID) {
	cl, ok := c.clusters[cluster]
	if !ok {
		panic(fmt.Sprintf("unknown cluster %s", cluster))
	}
	cl.LogIndexes[variant] = id
}

// InsertReplica adds a replica to its cluster.
func (c *Catalog) InsertReplica(r catalog.ClusterReplica) error {
	cl, ok := c.clusters[r.Cluster]
	if !ok {
		return &catalog.CorruptionError{Detail: fmt.Sprintf("replica %s references unknown cluster %s", r.Name, r.Cluster)}
	}
	cl.Replicas[r.ID] = &Replica{ClusterReplica: r}
	return nil
}

// Cluster returns a cluster by id.
func (c *Catalog) Cluster(id catalog.ClusterID) (*Cluster, bool) {
	cl, ok := c.clusters[id]
	return cl, ok
}

// Clusters returns every cluster ordered by id.
func (c *Catalog) Clusters() []*Cluster {
	out := make([]*Cluster, 0, len(c.clusters))
	for _, cl := range c.clusters {
		out = append(out, cl)
	}
	slices.SortFunc(out, func(a, b *Cluster) int { return a.ID.Compare(b.ID) })
	return out
}

// SortedReplicas returns the replicas of cl ordered by id.
func (cl *Cluster) SortedReplicas() []*Replica {
	out := make([]*Replica, 0, len(cl.Replicas))
	for _, r := range cl.Replicas {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Replica) int { return a.ID.Compare(b.ID) })
	return out
}
