package sql

import (
	"regexp"
	"strings"

	"github.com/vsayer/materialize/pkg/catalog"
)

var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "as": true, "on": true, "join": true,
	"left": true, "right": true, "full": true, "inner": true, "outer": true, "cross": true,
	"group": true, "by": true, "order": true, "limit": true, "offset": true, "having": true,
	"union": true, "all": true, "distinct": true, "and": true, "or": true, "not": true,
	"in": true, "is": true, "null": true, "true": true, "false": true, "case": true,
	"when": true, "then": true, "else": true, "end": true, "asc": true, "desc": true,
	"exists": true, "between": true, "like": true, "cast": true,
}

// reserved words must be quoted when used as identifiers.
var reserved = map[string]bool{
	"select": true, "from": true, "where": true, "as": true, "on": true, "join": true,
	"in": true, "and": true, "or": true, "not": true, "group": true, "order": true,
	"limit": true, "create": true, "to": true, "into": true, "null": true,
}

var bareIdent = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

func quoteIdent(s string) string {
	if bareIdent.MatchString(s) && !reserved[s] {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func renderToken(t token) string {
	switch t.kind {
	case tokString:
		return quoteString(t.text)
	case tokIdent:
		if t.quoted {
			return `"` + strings.ReplaceAll(t.text, `"`, `""`) + `"`
		}
		if keywords[t.text] {
			return strings.ToUpper(t.text)
		}
		return t.text
	default:
		return t.text
	}
}

func isWord(f Fragment) bool {
	if f.Ref != nil || f.Text == "" {
		return false
	}
	c := f.Text[0]
	return isIdentStart(c) || c == '"'
}

func needsSpace(prev, cur Fragment) bool {
	if cur.Ref == nil {
		switch cur.Text {
		case ",", ")", ".", "::", ";":
			return false
		case "(":
			if isWord(prev) && !keywords[strings.ToLower(prev.Text)] {
				return false
			}
		}
	}
	if prev.Ref == nil {
		switch prev.Text {
		case "(", ".", "::":
			return false
		}
	}
	return true
}

// Render returns the canonical text of stmt. Parsing the result yields a
// statement that renders identically.
func Render(stmt Statement) string {
	var b strings.Builder
	stmt.render(&b)
	return b.String()
}

func renderInCluster(b *strings.Builder, cluster string) {
	if cluster != "" {
		b.WriteString(" IN CLUSTER ")
		b.WriteString(quoteIdent(cluster))
	}
}

func (q *Query) render(b *strings.Builder) {
	b.WriteString("SELECT ")
	b.WriteString(q.Projection.String())
	for i, item := range q.From {
		switch {
		case i == 0:
			b.WriteString(" FROM ")
		case item.Join == ",":
			b.WriteString(", ")
		default:
			b.WriteString(" " + item.Join + " ")
		}
		b.WriteString(item.Ref.String())
		if item.Alias != "" {
			b.WriteString(" AS " + quoteIdent(item.Alias))
		}
		if len(item.On) > 0 {
			b.WriteString(" ON " + item.On.String())
		}
	}
	if len(q.Tail) > 0 {
		b.WriteString(" " + q.Tail.String())
	}
}

func (o Options) render(b *strings.Builder) {
	b.WriteString(" (")
	for i, opt := range o {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(opt.Key + " = ")
		switch {
		case opt.Value.String != nil:
			b.WriteString(quoteString(*opt.Value.String))
		case opt.Value.Ref != nil:
			b.WriteString(opt.Value.Ref.String())
		default:
			b.WriteString(opt.Value.Number)
		}
	}
	b.WriteString(")")
}

func (s *CreateTable) render(b *strings.Builder) {
	b.WriteString("CREATE TABLE " + s.Name.String() + " (")
	for i, col := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(col.Name) + " " + col.Type.String())
	}
	b.WriteString(")")
}

func (s *CreateView) render(b *strings.Builder) {
	b.WriteString("CREATE VIEW " + s.Name.String() + " AS ")
	s.Query.render(b)
}

func (s *CreateMaterializedView) render(b *strings.Builder) {
	b.WriteString("CREATE MATERIALIZED VIEW " + s.Name.String())
	renderInCluster(b, s.InCluster)
	b.WriteString(" AS ")
	s.Query.render(b)
}

func (s *CreateIndex) render(b *strings.Builder) {
	b.WriteString("CREATE INDEX " + s.Name.String())
	renderInCluster(b, s.InCluster)
	b.WriteString(" ON " + s.On.String() + " (")
	for i, k := range s.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}
	b.WriteString(")")
}

func (s *CreateSource) render(b *strings.Builder) {
	b.WriteString("CREATE SOURCE " + s.Name.String())
	renderInCluster(b, s.InCluster)
	if s.Connection == nil {
		b.WriteString(" FROM LOAD GENERATOR " + strings.ToUpper(s.LoadGenerator))
		return
	}
	b.WriteString(" FROM KAFKA CONNECTION " + s.Connection.String())
	if len(s.Options) > 0 {
		s.Options.render(b)
	}
}

func (s *CreateSink) render(b *strings.Builder) {
	b.WriteString("CREATE SINK " + s.Name.String())
	renderInCluster(b, s.InCluster)
	b.WriteString(" FROM " + s.From.String() + " INTO KAFKA CONNECTION " + s.Connection.String())
	if len(s.Options) > 0 {
		s.Options.render(b)
	}
}

func (s *CreateType) render(b *strings.Builder) {
	b.WriteString("CREATE TYPE " + s.Name.String() + " AS LIST")
	s.Options.render(b)
}

func (s *CreateSecret) render(b *strings.Builder) {
	b.WriteString("CREATE SECRET " + s.Name.String() + " AS " + quoteString(s.Value))
}

func (s *CreateConnection) render(b *strings.Builder) {
	b.WriteString("CREATE CONNECTION " + s.Name.String() + " TO ")
	if s.Kind == catalog.ConnectionSSHTunnel {
		b.WriteString("SSH TUNNEL")
	} else {
		b.WriteString("KAFKA")
	}
	s.Options.render(b)
}
