package sql

import (
	"fmt"
	"strconv"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Snapshot is the view of the catalog a statement is planned against.
type Snapshot interface {
	LookupID(id catalog.ObjectID) (catalog.Item, bool)
	LookupName(fullName string) (catalog.ObjectID, bool)
	LookupCluster(name string) (catalog.ClusterID, bool)
}

// PlanText parses text and plans it. The resulting item records text as its
// create SQL.
func PlanText(text string, snap Snapshot) (catalog.Item, error) {
	stmt, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Plan(stmt, text, snap)
}

// Plan resolves every reference of stmt against snap and builds the item it
// defines. References that are not present fail with catalog.UnknownIDError
// or catalog.UnknownNameError before any other check runs.
func Plan(stmt Statement, createSQL string, snap Snapshot) (catalog.Item, error) {
	r := &resolver{snap: snap, ids: make(map[*ItemRef]catalog.ObjectID)}
	var all []catalog.ObjectID
	for _, ref := range stmt.refs() {
		id, err := r.resolve(ref)
		if err != nil {
			return nil, err
		}
		all = append(all, id)
	}
	def := catalog.Definition{SQL: createSQL, Resolved: catalog.NewResolvedIDs(all...)}

	switch s := stmt.(type) {
	case *CreateTable:
		cols := make([]catalog.Column, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = catalog.Column{Name: c.Name, Type: c.Type.String()}
		}
		return &catalog.Table{Definition: def, Columns: cols}, nil

	case *CreateView:
		return &catalog.View{Definition: def, Columns: projectionColumns(s.Query)}, nil

	case *CreateMaterializedView:
		cluster, err := r.cluster(s.InCluster, "materialized view", s.Name)
		if err != nil {
			return nil, err
		}
		return &catalog.MaterializedView{Definition: def, Cluster: cluster, Columns: projectionColumns(s.Query)}, nil

	case *CreateIndex:
		on := r.ids[&s.On]
		if item, _ := snap.LookupID(on); !catalog.IsRelation(item) {
			return nil, fmt.Errorf("cannot create index %s on %s: not a relation", s.Name, s.On.Name)
		}
		cluster, err := r.cluster(s.InCluster, "index", s.Name)
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(s.Keys))
		for i, k := range s.Keys {
			keys[i] = k.String()
		}
		return &catalog.Index{Definition: def, On: on, Keys: keys, Cluster: cluster}, nil

	case *CreateSource:
		src := &catalog.Source{Definition: def}
		if s.InCluster != "" {
			cluster, err := r.cluster(s.InCluster, "source", s.Name)
			if err != nil {
				return nil, err
			}
			src.Cluster = &cluster
		}
		if s.Connection == nil {
			src.DataSource = catalog.DataSource{Kind: catalog.DataSourceLoadGenerator, Generator: s.LoadGenerator}
			return src, nil
		}
		conn := r.ids[s.Connection]
		if err := requireConnection(snap, conn, catalog.ConnectionKafka, s.Connection.Name); err != nil {
			return nil, err
		}
		src.DataSource = catalog.DataSource{Kind: catalog.DataSourceKafka, Connection: conn}
		if topic, ok := s.Options.Get("TOPIC"); ok && topic.String != nil {
			src.DataSource.Topic = *topic.String
		}
		return src, nil

	case *CreateSink:
		from := r.ids[&s.From]
		if item, _ := snap.LookupID(from); !catalog.IsRelation(item) {
			return nil, fmt.Errorf("cannot create sink %s from %s: not a relation", s.Name, s.From.Name)
		}
		conn := r.ids[&s.Connection]
		if err := requireConnection(snap, conn, catalog.ConnectionKafka, s.Connection.Name); err != nil {
			return nil, err
		}
		cluster, err := r.cluster(s.InCluster, "sink", s.Name)
		if err != nil {
			return nil, err
		}
		return &catalog.Sink{Definition: def, From: from, Connection: conn, Cluster: cluster}, nil

	case *CreateType:
		elem, ok := s.Options.Get("ELEMENT TYPE")
		if !ok || elem.Ref == nil {
			return nil, fmt.Errorf("list type %s requires ELEMENT TYPE", s.Name)
		}
		id := r.ids[elem.Ref]
		if item, _ := snap.LookupID(id); item == nil || item.ItemType() != catalog.ItemTypeType {
			return nil, fmt.Errorf("element type %s of %s is not a type", elem.Ref.Name, s.Name)
		}
		return &catalog.Type{Definition: def, Category: catalog.TypeCategoryList, Element: &id}, nil

	case *CreateSecret:
		return &catalog.Secret{Definition: def}, nil

	case *CreateConnection:
		return planConnection(s, def, r)

	default:
		return nil, fmt.Errorf("unsupported statement %T", stmt)
	}
}

func planConnection(s *CreateConnection, def catalog.Definition, r *resolver) (catalog.Item, error) {
	conn := &catalog.Connection{Definition: def, Kind: s.Kind}
	switch s.Kind {
	case catalog.ConnectionSSHTunnel:
		host, err := stringOption(s.Options, "HOST", s.Name)
		if err != nil {
			return nil, err
		}
		user, err := stringOption(s.Options, "USER", s.Name)
		if err != nil {
			return nil, err
		}
		port := 22
		if v, ok := s.Options.Get("PORT"); ok {
			if port, err = strconv.Atoi(v.Number); err != nil {
				return nil, fmt.Errorf("connection %s: invalid PORT: %w", s.Name, err)
			}
		}
		conn.SSH = &catalog.SSHTunnel{Host: host, Port: port, User: user}
	case catalog.ConnectionKafka:
		broker, err := stringOption(s.Options, "BROKER", s.Name)
		if err != nil {
			return nil, err
		}
		conn.Kafka = &catalog.KafkaConnection{Broker: broker}
		if v, ok := s.Options.Get("SSH TUNNEL"); ok {
			if v.Ref == nil {
				return nil, fmt.Errorf("connection %s: SSH TUNNEL must reference a connection", s.Name)
			}
			tunnel := r.ids[v.Ref]
			if err := requireConnection(r.snap, tunnel, catalog.ConnectionSSHTunnel, v.Ref.Name); err != nil {
				return nil, err
			}
			conn.Kafka.Tunnel = &tunnel
		}
	}
	return conn, nil
}

type resolver struct {
	snap Snapshot
	ids  map[*ItemRef]catalog.ObjectID
}

func (r *resolver) resolve(ref *ItemRef) (catalog.ObjectID, error) {
	if ref.ID != nil {
		if _, ok := r.snap.LookupID(*ref.ID); !ok {
			return catalog.ObjectID{}, &catalog.UnknownIDError{ID: *ref.ID}
		}
		r.ids[ref] = *ref.ID
		return *ref.ID, nil
	}
	full, ok := ref.Name.FullName()
	if !ok {
		return catalog.ObjectID{}, fmt.Errorf("reference %s is not fully qualified", ref.Name)
	}
	id, ok := r.snap.LookupName(full)
	if !ok {
		return catalog.ObjectID{}, &catalog.UnknownNameError{Name: full}
	}
	r.ids[ref] = id
	return id, nil
}

func (r *resolver) cluster(name, what string, obj Name) (catalog.ClusterID, error) {
	if name == "" {
		return catalog.ClusterID{}, fmt.Errorf("%s %s requires IN CLUSTER", what, obj)
	}
	id, ok := r.snap.LookupCluster(name)
	if !ok {
		return catalog.ClusterID{}, fmt.Errorf("unknown cluster %q", name)
	}
	return id, nil
}

func requireConnection(snap Snapshot, id catalog.ObjectID, kind catalog.ConnectionKind, name Name) error {
	item, _ := snap.LookupID(id)
	conn, ok := item.(*catalog.Connection)
	if !ok || conn.Kind != kind {
		return fmt.Errorf("%s is not a %s connection", name, kind)
	}
	return nil
}

func stringOption(opts Options, key string, obj Name) (string, error) {
	v, ok := opts.Get(key)
	if !ok || v.String == nil {
		return "", fmt.Errorf("connection %s requires %s", obj, key)
	}
	return *v.String, nil
}

// projectionColumns returns the output names of simple projections; it is
// nil when any projected expression is not a bare or qualified column.
func projectionColumns(q Query) []string {
	var cols []string
	var current string
	for _, f := range q.Projection {
		switch {
		case f.Ref != nil:
			return nil
		case f.Text == ",":
			if current == "" {
				return nil
			}
			cols = append(cols, current)
			current = ""
		case f.Text == ".":
			current = ""
		case isWord(f):
			current = f.Text
		default:
			return nil
		}
	}
	if current == "" {
		return nil
	}
	return append(cols, current)
}
