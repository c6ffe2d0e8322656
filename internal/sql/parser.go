package sql

import (
	"fmt"
	"strings"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Parse parses a single CREATE statement.
func Parse(text string) (Statement, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	stmt, err := p.parseCreate()
	if err != nil {
		return nil, err
	}
	p.acceptSymbol(";")
	if !p.at(tokEOF) {
		return nil, p.errorf("unexpected %q after end of statement", p.peek().text)
	}
	return stmt, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) at(kind tokenKind) bool { return p.peek().kind == kind }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("syntax error at position %d: %s", p.peek().pos, fmt.Sprintf(format, args...))
}

func isKeywordToken(t token, kw string) bool {
	return t.kind == tokIdent && !t.quoted && t.text == kw
}

func (p *parser) peekKeyword(kws ...string) bool {
	for i, kw := range kws {
		if p.pos+i >= len(p.toks) || !isKeywordToken(p.toks[p.pos+i], kw) {
			return false
		}
	}
	return true
}

func (p *parser) acceptKeyword(kws ...string) bool {
	if !p.peekKeyword(kws...) {
		return false
	}
	p.pos += len(kws)
	return true
}

func (p *parser) expectKeyword(kws ...string) error {
	if !p.acceptKeyword(kws...) {
		return p.errorf("expected %s, found %q", strings.ToUpper(strings.Join(kws, " ")), p.peek().text)
	}
	return nil
}

func (p *parser) peekSymbol(sym string) bool {
	t := p.peek()
	return t.kind == tokSymbol && t.text == sym
}

func (p *parser) acceptSymbol(sym string) bool {
	if p.peekSymbol(sym) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectSymbol(sym string) error {
	if !p.acceptSymbol(sym) {
		return p.errorf("expected %q, found %q", sym, p.peek().text)
	}
	return nil
}

func (p *parser) parseIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.errorf("expected identifier, found %q", t.text)
	}
	p.pos++
	return t.text, nil
}

func (p *parser) parseName() (Name, error) {
	first, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	name := Name{first}
	for p.acceptSymbol(".") {
		part, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		name = append(name, part)
	}
	return name, nil
}

func (p *parser) parseItemRef() (ItemRef, error) {
	if !p.acceptSymbol("[") {
		name, err := p.parseName()
		if err != nil {
			return ItemRef{}, err
		}
		return ItemRef{Name: name}, nil
	}
	idText, err := p.parseIdent()
	if err != nil {
		return ItemRef{}, err
	}
	id, err := catalog.ParseObjectID(idText)
	if err != nil {
		return ItemRef{}, p.errorf("%v", err)
	}
	if err := p.expectKeyword("as"); err != nil {
		return ItemRef{}, err
	}
	name, err := p.parseName()
	if err != nil {
		return ItemRef{}, err
	}
	if err := p.expectSymbol("]"); err != nil {
		return ItemRef{}, err
	}
	return ItemRef{ID: &id, Name: name}, nil
}

func (p *parser) parseInCluster() (string, error) {
	if !p.acceptKeyword("in", "cluster") {
		return "", nil
	}
	return p.parseIdent()
}

func (p *parser) parseCreate() (Statement, error) {
	if err := p.expectKeyword("create"); err != nil {
		return nil, err
	}
	switch {
	case p.acceptKeyword("table"):
		return p.parseCreateTable()
	case p.acceptKeyword("view"):
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return &CreateView{Name: name, Query: q}, nil
	case p.acceptKeyword("materialized", "view"):
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		cluster, err := p.parseInCluster()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return &CreateMaterializedView{Name: name, InCluster: cluster, Query: q}, nil
	case p.acceptKeyword("index"):
		return p.parseCreateIndex()
	case p.acceptKeyword("source"):
		return p.parseCreateSource()
	case p.acceptKeyword("sink"):
		return p.parseCreateSink()
	case p.acceptKeyword("type"):
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as", "list"); err != nil {
			return nil, err
		}
		opts, err := p.parseOptions()
		if err != nil {
			return nil, err
		}
		return &CreateType{Name: name, Options: opts}, nil
	case p.acceptKeyword("secret"):
		name, err := p.parseName()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("as"); err != nil {
			return nil, err
		}
		t := p.next()
		if t.kind != tokString {
			return nil, p.errorf("expected string literal for secret value")
		}
		return &CreateSecret{Name: name, Value: t.text}, nil
	case p.acceptKeyword("connection"):
		return p.parseCreateConnection()
	default:
		return nil, p.errorf("unsupported statement CREATE %s", strings.ToUpper(p.peek().text))
	}
}

func (p *parser) parseCreateTable() (Statement, error) {
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	stmt := &CreateTable{Name: name}
	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		typ, err := p.parseFragments(func(t token) bool {
			return t.kind == tokSymbol && (t.text == "," || t.text == ")")
		})
		if err != nil {
			return nil, err
		}
		if len(typ) == 0 {
			return nil, p.errorf("column %q has no type", col)
		}
		stmt.Columns = append(stmt.Columns, ColumnDef{Name: col, Type: typ})
		if p.acceptSymbol(")") {
			return stmt, nil
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseCreateIndex() (Statement, error) {
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	cluster, err := p.parseInCluster()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("on"); err != nil {
		return nil, err
	}
	on, err := p.parseItemRef()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	stmt := &CreateIndex{Name: name, InCluster: cluster, On: on}
	for {
		key, err := p.parseFragments(func(t token) bool {
			return t.kind == tokSymbol && (t.text == "," || t.text == ")")
		})
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, p.errorf("empty index key")
		}
		stmt.Keys = append(stmt.Keys, key)
		if p.acceptSymbol(")") {
			return stmt, nil
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseCreateSource() (Statement, error) {
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	cluster, err := p.parseInCluster()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	stmt := &CreateSource{Name: name, InCluster: cluster}
	switch {
	case p.acceptKeyword("load", "generator"):
		gen, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		stmt.LoadGenerator = gen
	case p.acceptKeyword("kafka", "connection"):
		conn, err := p.parseItemRef()
		if err != nil {
			return nil, err
		}
		stmt.Connection = &conn
		if p.peekSymbol("(") {
			if stmt.Options, err = p.parseOptions(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, p.errorf("expected LOAD GENERATOR or KAFKA CONNECTION")
	}
	return stmt, nil
}

func (p *parser) parseCreateSink() (Statement, error) {
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	cluster, err := p.parseInCluster()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	from, err := p.parseItemRef()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("into", "kafka", "connection"); err != nil {
		return nil, err
	}
	conn, err := p.parseItemRef()
	if err != nil {
		return nil, err
	}
	stmt := &CreateSink{Name: name, InCluster: cluster, From: from, Connection: conn}
	if p.peekSymbol("(") {
		if stmt.Options, err = p.parseOptions(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseCreateConnection() (Statement, error) {
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("to"); err != nil {
		return nil, err
	}
	stmt := &CreateConnection{Name: name}
	switch {
	case p.acceptKeyword("ssh", "tunnel"):
		stmt.Kind = catalog.ConnectionSSHTunnel
	case p.acceptKeyword("kafka"):
		stmt.Kind = catalog.ConnectionKafka
	default:
		return nil, p.errorf("expected SSH TUNNEL or KAFKA")
	}
	if stmt.Options, err = p.parseOptions(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseOptions() (Options, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var opts Options
	for {
		var words []string
		for p.at(tokIdent) {
			words = append(words, strings.ToUpper(p.next().text))
		}
		if len(words) == 0 {
			return nil, p.errorf("expected option name")
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		var val OptionValue
		switch t := p.peek(); {
		case t.kind == tokString:
			p.next()
			s := t.text
			val.String = &s
		case t.kind == tokNumber:
			p.next()
			val.Number = t.text
		default:
			ref, err := p.parseItemRef()
			if err != nil {
				return nil, err
			}
			val.Ref = &ref
		}
		opts = append(opts, Option{Key: strings.Join(words, " "), Value: val})
		if p.acceptSymbol(")") {
			return opts, nil
		}
		if err := p.expectSymbol(","); err != nil {
			return nil, err
		}
	}
}

var (
	joinKeywords = map[string]bool{"join": true, "left": true, "right": true, "full": true, "inner": true, "outer": true, "cross": true}
	tailKeywords = map[string]bool{"where": true, "group": true, "order": true, "limit": true, "having": true, "union": true, "offset": true}
)

func isStatementEnd(t token) bool {
	return t.kind == tokEOF || (t.kind == tokSymbol && t.text == ";")
}

func (p *parser) parseQuery() (Query, error) {
	if err := p.expectKeyword("select"); err != nil {
		return Query{}, err
	}
	var q Query
	var err error
	q.Projection, err = p.parseFragments(func(t token) bool { return isKeywordToken(t, "from") })
	if err != nil {
		return Query{}, err
	}
	if len(q.Projection) == 0 {
		return Query{}, p.errorf("empty projection")
	}
	if p.acceptKeyword("from") {
		if q.From, err = p.parseFromList(); err != nil {
			return Query{}, err
		}
	}
	q.Tail, err = p.parseFragments(func(token) bool { return false })
	if err != nil {
		return Query{}, err
	}
	return q, nil
}

func (p *parser) parseFromList() ([]FromItem, error) {
	var items []FromItem
	join := ""
	for {
		ref, err := p.parseItemRef()
		if err != nil {
			return nil, err
		}
		item := FromItem{Join: join, Ref: ref}
		if p.acceptKeyword("as") {
			if item.Alias, err = p.parseIdent(); err != nil {
				return nil, err
			}
		} else if t := p.peek(); t.kind == tokIdent && (t.quoted || (!joinKeywords[t.text] && !tailKeywords[t.text] && t.text != "on")) {
			item.Alias = p.next().text
		}
		if join != "" && join != "," && p.acceptKeyword("on") {
			item.On, err = p.parseFragments(func(t token) bool {
				return (t.kind == tokSymbol && t.text == ",") ||
					(t.kind == tokIdent && !t.quoted && (joinKeywords[t.text] || tailKeywords[t.text]))
			})
			if err != nil {
				return nil, err
			}
		}
		items = append(items, item)

		switch t := p.peek(); {
		case t.kind == tokSymbol && t.text == ",":
			p.next()
			join = ","
		case t.kind == tokIdent && !t.quoted && joinKeywords[t.text]:
			var words []string
			for p.at(tokIdent) && joinKeywords[p.peek().text] && !p.peek().quoted {
				w := p.next().text
				words = append(words, strings.ToUpper(w))
				if w == "join" {
					break
				}
			}
			if words[len(words)-1] != "JOIN" {
				return nil, p.errorf("expected JOIN")
			}
			join = strings.Join(words, " ")
		default:
			return items, nil
		}
	}
}

// parseFragments collects tokens until stop matches at parenthesis depth
// zero or the statement ends.
func (p *parser) parseFragments(stop func(token) bool) (Fragments, error) {
	var out Fragments
	depth := 0
	for {
		t := p.peek()
		if isStatementEnd(t) {
			if depth != 0 {
				return nil, p.errorf("unbalanced parentheses")
			}
			return out, nil
		}
		if depth == 0 && stop(t) {
			return out, nil
		}
		if t.kind == tokSymbol && t.text == "[" {
			ref, err := p.parseItemRef()
			if err != nil {
				return nil, err
			}
			out = append(out, Fragment{Ref: &ref})
			continue
		}
		if t.kind == tokSymbol && t.text == "(" {
			depth++
		}
		if t.kind == tokSymbol && t.text == ")" {
			if depth == 0 {
				return out, nil
			}
			depth--
		}
		p.next()
		out = append(out, Fragment{Text: renderToken(t)})
	}
}
