package sql

import (
	"strings"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Name is a possibly qualified identifier, one element per part.
type Name []string

func (n Name) String() string {
	parts := make([]string, len(n))
	for i, p := range n {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// FullName returns the lookup key used by the catalog: "schema.item" or
// "database.schema.item". It fails for names that are not fully qualified.
func (n Name) FullName() (string, bool) {
	if len(n) != 2 && len(n) != 3 {
		return "", false
	}
	return strings.Join(n, "."), true
}

// ItemRef references a catalog item, either by name or as a resolved id that
// also carries the name it was resolved from.
type ItemRef struct {
	ID   *catalog.ObjectID
	Name Name
}

func (r ItemRef) String() string {
	if r.ID != nil {
		return "[" + r.ID.String() + " AS " + r.Name.String() + "]"
	}
	return r.Name.String()
}

// Fragment is one token of an expression the parser does not interpret.
// Item references inside expressions are kept structured so they can be
// resolved and rewritten.
type Fragment struct {
	Text string
	Ref  *ItemRef
}

func (f Fragment) String() string {
	if f.Ref != nil {
		return f.Ref.String()
	}
	return f.Text
}

// Fragments is an uninterpreted token sequence.
type Fragments []Fragment

func (fs Fragments) String() string {
	var b strings.Builder
	for i, f := range fs {
		if i > 0 && needsSpace(fs[i-1], f) {
			b.WriteByte(' ')
		}
		b.WriteString(f.String())
	}
	return b.String()
}

func (fs Fragments) refs() []*ItemRef {
	var out []*ItemRef
	for i := range fs {
		if fs[i].Ref != nil {
			out = append(out, fs[i].Ref)
		}
	}
	return out
}

// ColumnDef is a column of CREATE TABLE.
type ColumnDef struct {
	Name string
	Type Fragments
}

// FromItem is one relation of a FROM clause. Join is empty for the first
// item, "," for comma-separated items, and the join keywords otherwise.
type FromItem struct {
	Join  string
	Ref   ItemRef
	Alias string
	On    Fragments
}

// Query is a SELECT with a structured FROM clause.
type Query struct {
	Projection Fragments
	From       []FromItem
	Tail       Fragments
}

func (q *Query) refs() []*ItemRef {
	out := q.Projection.refs()
	for i := range q.From {
		out = append(out, &q.From[i].Ref)
		out = append(out, q.From[i].On.refs()...)
	}
	return append(out, q.Tail.refs()...)
}

// OptionValue is a literal string, a number, or an item reference.
type OptionValue struct {
	String *string
	Number string
	Ref    *ItemRef
}

// Option is a KEY = value pair of a WITH-style option list.
type Option struct {
	Key   string
	Value OptionValue
}

// Options is an ordered option list.
type Options []Option

// Get returns the option with the given key.
func (o Options) Get(key string) (OptionValue, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Value, true
		}
	}
	return OptionValue{}, false
}

func (o Options) refs() []*ItemRef {
	var out []*ItemRef
	for i := range o {
		if o[i].Value.Ref != nil {
			out = append(out, o[i].Value.Ref)
		}
	}
	return out
}

// Statement is a parsed CREATE statement.
type Statement interface {
	// ObjectName is the name of the object the statement creates.
	ObjectName() Name

	render(b *strings.Builder)
	refs() []*ItemRef
}

type CreateTable struct {
	Name    Name
	Columns []ColumnDef
}

type CreateView struct {
	Name  Name
	Query Query
}

type CreateMaterializedView struct {
	Name      Name
	InCluster string
	Query     Query
}

type CreateIndex struct {
	Name      Name
	InCluster string
	On        ItemRef
	Keys      []Fragments
}

type CreateSource struct {
	Name          Name
	InCluster     string
	LoadGenerator string
	Connection    *ItemRef
	Options       Options
}

type CreateSink struct {
	Name       Name
	InCluster  string
	From       ItemRef
	Connection ItemRef
	Options    Options
}

type CreateType struct {
	Name    Name
	Options Options
}

type CreateSecret struct {
	Name  Name
	Value string
}

type CreateConnection struct {
	Name    Name
	Kind    catalog.ConnectionKind
	Options Options
}

func (s *CreateTable) ObjectName() Name            { return s.Name }
func (s *CreateView) ObjectName() Name             { return s.Name }
func (s *CreateMaterializedView) ObjectName() Name { return s.Name }
func (s *CreateIndex) ObjectName() Name            { return s.Name }
func (s *CreateSource) ObjectName() Name           { return s.Name }
func (s *CreateSink) ObjectName() Name             { return s.Name }
func (s *CreateType) ObjectName() Name             { return s.Name }
func (s *CreateSecret) ObjectName() Name           { return s.Name }
func (s *CreateConnection) ObjectName() Name       { return s.Name }

func (s *CreateTable) refs() []*ItemRef {
	var out []*ItemRef
	for i := range s.Columns {
		out = append(out, s.Columns[i].Type.refs()...)
	}
	return out
}

func (s *CreateView) refs() []*ItemRef             { return s.Query.refs() }
func (s *CreateMaterializedView) refs() []*ItemRef { return s.Query.refs() }

func (s *CreateIndex) refs() []*ItemRef {
	out := []*ItemRef{&s.On}
	for _, k := range s.Keys {
		out = append(out, k.refs()...)
	}
	return out
}

func (s *CreateSource) refs() []*ItemRef {
	var out []*ItemRef
	if s.Connection != nil {
		out = append(out, s.Connection)
	}
	return append(out, s.Options.refs()...)
}

func (s *CreateSink) refs() []*ItemRef {
	return append([]*ItemRef{&s.From, &s.Connection}, s.Options.refs()...)
}

func (s *CreateType) refs() []*ItemRef       { return s.Options.refs() }
func (s *CreateSecret) refs() []*ItemRef     { return nil }
func (s *CreateConnection) refs() []*ItemRef { return s.Options.refs() }

// Ident returns a fragment holding s as a single identifier.
func Ident(s string) Fragment { return Fragment{Text: quoteIdent(s)} }
