package querydoc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/literal"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// decl is one parsed statement of a script.
type decl struct {
	variable string // set for var/let/const producers
	stmt     qir.Statement
	index    *indexSpec
}

// indexSpec is a createIndex call awaiting its schema.
type indexSpec struct {
	target string
	field  string
	unique bool
	pos    int
}

// call is one segment of a method chain. Property segments have called unset.
type call struct {
	name   string
	pos    int
	called bool
	args   []span
}

// cursor walks the text of one statement.
type cursor struct {
	src  string
	pos  int
	base int
}

func (c *cursor) eof() bool { return c.pos >= len(c.src) }

func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.pos]
}

func (c *cursor) skip() {
	for !c.eof() && isSpace(c.src[c.pos]) {
		c.pos++
	}
}

func (c *cursor) ident() string {
	start := c.pos
	for !c.eof() {
		ch := c.src[c.pos]
		if ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (c.pos > start && ch >= '0' && ch <= '9') {
			c.pos++
			continue
		}
		break
	}
	return c.src[start:c.pos]
}

func (c *cursor) errorf(format string, args ...any) error {
	return syntaxErr(c.base+c.pos, fmt.Sprintf(format, args...))
}

// chain reads db followed by property segments and calls.
func (c *cursor) chain() ([]call, error) {
	c.skip()
	if c.ident() != "db" {
		return nil, syntaxErr(c.base, "statement must start with db")
	}
	var calls []call
	for {
		c.skip()
		if c.eof() {
			return calls, nil
		}
		switch c.peek() {
		case '.':
			c.pos++
			c.skip()
			at := c.pos
			name := c.ident()
			if name == "" {
				return nil, c.errorf("expected a name after '.'")
			}
			cl := call{name: name, pos: c.base + at}
			c.skip()
			if c.peek() == '(' {
				end, err := closing(c.src, c.pos)
				if err != nil {
					return nil, c.shift(err)
				}
				args, err := splitArgs(c.src[c.pos+1:end], c.base+c.pos+1)
				if err != nil {
					return nil, err
				}
				cl.called, cl.args = true, args
				c.pos = end + 1
			}
			calls = append(calls, cl)
		case '[':
			c.pos++
			c.skip()
			at := c.pos
			if q := c.peek(); q != '"' && q != '\'' {
				return nil, c.errorf("expected a quoted collection name")
			}
			end, err := skipString(c.src, c.pos)
			if err != nil {
				return nil, c.shift(err)
			}
			v, err := literal.Parse(c.src[c.pos:end+1], literal.Options{Offset: c.base + c.pos})
			if err != nil {
				return nil, err
			}
			c.pos = end + 1
			c.skip()
			if c.peek() != ']' {
				return nil, c.errorf("expected ']'")
			}
			c.pos++
			calls = append(calls, call{name: string(v.(ir.IRString)), pos: c.base + at})
		default:
			return nil, c.errorf("unexpected %q", c.peek())
		}
	}
}

// shift moves a scanner error from statement-relative to script position.
func (c *cursor) shift(err error) error {
	if e, ok := err.(*qerr.DocumentMethodSyntaxError); ok {
		return syntaxErr(c.base+e.Position, e.Reason)
	}
	return err
}

// stmtParser parses the verb and chain of one statement.
type stmtParser struct {
	sp     *scriptParser
	decl   bool
	target string
	pos    int // position of the argument being converted, for errors
}

func (p *stmtParser) errorf(format string, args ...any) error {
	return syntaxErr(p.pos, fmt.Sprintf(format, args...))
}

func unrepresentable(construct string) error {
	return &qerr.UnrepresentableConstructError{Dialect: string(qir.Document), Construct: construct}
}

// value parses one call argument as a literal.
func (p *stmtParser) value(arg span, refs bool) (ir.IRValue, error) {
	p.pos = arg.pos
	return literal.Parse(arg.text, literal.Options{AllowRefs: refs, MaxDepth: p.sp.opts.MaxDepth, Offset: arg.pos})
}

func (p *stmtParser) object(arg span, refs bool, what string) (ir.IRObject, error) {
	v, err := p.value(arg, refs)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, p.errorf("%s must be an object, got %s", what, ir.TypeName(v))
	}
	return obj, nil
}

func (p *stmtParser) stringArg(arg span, what string) (string, error) {
	v, err := p.value(arg, false)
	if err != nil {
		return "", err
	}
	s, ok := v.(ir.IRString)
	if !ok || s == "" {
		return "", p.errorf("%s must be a non-empty string", what)
	}
	return string(s), nil
}

func (p *stmtParser) countArg(arg span, what string) (int64, error) {
	v, err := p.value(arg, false)
	if err != nil {
		return 0, err
	}
	return p.count(v, what)
}

func (p *stmtParser) count(v ir.IRValue, what string) (int64, error) {
	n, ok := ir.AsInt(v)
	if !ok || n < 0 {
		return 0, p.errorf("%s must be a non-negative integer, got %s", what, ir.TypeName(v))
	}
	return n, nil
}

func arity(cl call, lo, hi int) error {
	if n := len(cl.args); n < lo || n > hi {
		if lo == hi {
			return syntaxErr(cl.pos, fmt.Sprintf("%s takes %d argument(s), got %d", cl.name, lo, n))
		}
		return syntaxErr(cl.pos, fmt.Sprintf("%s takes %d to %d arguments, got %d", cl.name, lo, hi, n))
	}
	return nil
}

func (sp *scriptParser) parse(s span) (decl, error) {
	c := &cursor{src: s.text, base: s.pos}
	var d decl

	c.skip()
	save := c.pos
	switch c.ident() {
	case "var", "let", "const":
		c.skip()
		name := c.ident()
		if name == "" || name == "db" {
			return decl{}, c.errorf("expected a variable name")
		}
		c.skip()
		if c.peek() != '=' {
			return decl{}, c.errorf("expected '=' after %s", name)
		}
		c.pos++
		d.variable = name
	default:
		c.pos = save
	}

	calls, err := c.chain()
	if err != nil {
		return decl{}, err
	}
	p := &stmtParser{sp: sp, decl: d.variable != "", pos: s.pos}

	i := 0
	switch {
	case len(calls) > 0 && calls[0].called && calls[0].name == "getCollection":
		if err := arity(calls[0], 1, 1); err != nil {
			return decl{}, err
		}
		if p.target, err = p.stringArg(calls[0].args[0], "collection name"); err != nil {
			return decl{}, err
		}
		i = 1
	case len(calls) > 0 && calls[0].called && calls[0].name == "createCollection":
	default:
		var parts []string
		for ; i < len(calls) && !calls[i].called; i++ {
			parts = append(parts, calls[i].name)
		}
		p.target = strings.Join(parts, ".")
	}
	if i >= len(calls) {
		return decl{}, syntaxErr(s.pos+len(s.text), "expected a method call")
	}
	verb, chain := calls[i], calls[i+1:]
	if !verb.called {
		return decl{}, syntaxErr(verb.pos, "expected a method call")
	}
	if p.target == "" && verb.name != "createCollection" {
		return decl{}, syntaxErr(verb.pos, "expected a collection name before "+verb.name)
	}

	switch verb.name {
	case "find", "findOne", "distinct":
		d.stmt, err = p.find(verb, chain)
	case "aggregate":
		d.stmt, err = p.aggregate(verb, chain)
	case "insertOne", "insertMany":
		d.stmt, err = p.insert(verb, chain)
	case "updateOne", "updateMany":
		d.stmt, err = p.update(verb, chain)
	case "deleteOne", "deleteMany":
		d.stmt, err = p.delete(verb, chain)
	case "createCollection":
		d.stmt, err = p.createCollection(verb, chain)
	case "createIndex":
		d.index, err = p.createIndex(verb, chain)
	default:
		return decl{}, syntaxErr(verb.pos, "unknown method "+verb.name)
	}
	if err != nil {
		return decl{}, err
	}

	if d.variable != "" {
		if d.index != nil || d.stmt.Kind != qir.KindFind {
			return decl{}, syntaxErr(s.pos, "only find and distinct results can be assigned to a variable")
		}
		if _, err := qir.OutputField(d.stmt); err != nil {
			return decl{}, err
		}
	}
	return d, nil
}

// noChain rejects every chained call.
func noChain(chain []call) error {
	if len(chain) > 0 {
		return &qerr.UnsupportedChainedCallError{Name: chain[0].name, Position: chain[0].pos}
	}
	return nil
}

func (p *stmtParser) filterArg(args []span, i int, what string) (qir.Filter, error) {
	if i >= len(args) {
		return nil, nil
	}
	obj, err := p.object(args[i], true, what)
	if err != nil {
		return nil, err
	}
	return p.filter(obj)
}

func (p *stmtParser) find(verb call, chain []call) (qir.Statement, error) {
	s := qir.Statement{Kind: qir.KindFind, Target: p.target}
	var err error

	if verb.name == "distinct" {
		if !p.decl {
			return qir.Statement{}, unrepresentable("distinct outside a variable declaration")
		}
		if err := arity(verb, 1, 2); err != nil {
			return qir.Statement{}, err
		}
		field, err := p.stringArg(verb.args[0], "distinct field")
		if err != nil {
			return qir.Statement{}, err
		}
		if s.Filter, err = p.filterArg(verb.args, 1, "distinct filter"); err != nil {
			return qir.Statement{}, err
		}
		s.Projection = &qir.Projection{Items: []qir.ProjectionItem{{Field: field, Include: true}}}
		return s, p.producerChain(&s, chain, false)
	}

	if err := arity(verb, 0, 2); err != nil {
		return qir.Statement{}, err
	}
	if s.Filter, err = p.filterArg(verb.args, 0, "filter"); err != nil {
		return qir.Statement{}, err
	}
	if len(verb.args) == 2 {
		proj, err := p.object(verb.args[1], false, "projection")
		if err != nil {
			return qir.Statement{}, err
		}
		if s.Projection, err = p.projection(proj); err != nil {
			return qir.Statement{}, err
		}
	}
	if verb.name == "findOne" {
		s.Page = &qir.Pagination{Limit: qir.Int64(1)}
		return s, noChain(chain)
	}
	return s, p.producerChain(&s, chain, true)
}

// producerChain applies cursor methods and, in declarations, the
// toArray().map(doc => doc.field) extraction.
func (p *stmtParser) producerChain(s *qir.Statement, chain []call, paging bool) error {
	for _, cl := range chain {
		var err error
		switch {
		case paging && cl.name == "sort":
			if err = arity(cl, 1, 1); err == nil {
				var obj ir.IRObject
				if obj, err = p.object(cl.args[0], false, "sort"); err == nil {
					s.Sort, err = p.sortKeys(obj)
				}
			}
		case paging && (cl.name == "limit" || cl.name == "skip"):
			if err = arity(cl, 1, 1); err == nil {
				var n int64
				if n, err = p.countArg(cl.args[0], cl.name); err == nil {
					if s.Page == nil {
						s.Page = &qir.Pagination{}
					}
					if cl.name == "limit" {
						s.Page.Limit = qir.Int64(n)
					} else {
						s.Page.Skip = qir.Int64(n)
					}
				}
			}
		case cl.name == "toArray":
			err = arity(cl, 0, 0)
		case cl.name == "map" && p.decl:
			if err = arity(cl, 1, 1); err == nil {
				err = p.extract(s, cl.args[0])
			}
		default:
			return &qerr.UnsupportedChainedCallError{Name: cl.name, Position: cl.pos}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var arrowField = regexp.MustCompile(`^\(?\s*([A-Za-z_$][\w$]*)\s*\)?\s*=>\s*([A-Za-z_$][\w$]*)\.([A-Za-z_$][\w$.]*)$`)

// extract applies map(doc => doc.field) to a producer.
func (p *stmtParser) extract(s *qir.Statement, arg span) error {
	m := arrowField.FindStringSubmatch(arg.text)
	if m == nil || m[1] != m[2] {
		return syntaxErr(arg.pos, "map takes an arrow function selecting one field, such as doc => doc.id")
	}
	field := m[3]
	if s.Projection == nil || len(s.Projection.Items) == 0 {
		s.Projection = &qir.Projection{Items: []qir.ProjectionItem{{Field: field, Include: true}}}
		return nil
	}
	projected, err := qir.OutputField(*s)
	if err != nil {
		return err
	}
	if projected != field {
		return syntaxErr(arg.pos, fmt.Sprintf("map selects %s but the projection yields %s", field, projected))
	}
	return nil
}

func (p *stmtParser) aggregate(verb call, chain []call) (qir.Statement, error) {
	if err := arity(verb, 1, 2); err != nil {
		return qir.Statement{}, err
	}
	if len(verb.args) == 2 {
		opts, err := p.object(verb.args[1], false, "aggregate options")
		if err != nil {
			return qir.Statement{}, err
		}
		if len(opts) > 0 {
			return qir.Statement{}, unrepresentable("aggregate option " + opts[0].Key)
		}
	}
	v, err := p.value(verb.args[0], true)
	if err != nil {
		return qir.Statement{}, err
	}
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) == 0 {
		return qir.Statement{}, p.errorf("aggregate takes a non-empty array of stages")
	}
	s := qir.Statement{Kind: qir.KindAggregate, Target: p.target}
	for i, elem := range arr {
		st, err := p.stage(elem)
		if err != nil {
			return qir.Statement{}, fmt.Errorf("pipeline[%d]: %w", i, err)
		}
		s.Pipeline = append(s.Pipeline, st)
	}

	for _, cl := range chain {
		switch cl.name {
		case "toArray":
			if err := arity(cl, 0, 0); err != nil {
				return qir.Statement{}, err
			}
		case "sort":
			if err := arity(cl, 1, 1); err != nil {
				return qir.Statement{}, err
			}
			obj, err := p.object(cl.args[0], false, "sort")
			if err != nil {
				return qir.Statement{}, err
			}
			keys, err := p.sortKeys(obj)
			if err != nil {
				return qir.Statement{}, err
			}
			if len(keys) > 0 {
				s.Pipeline = append(s.Pipeline, qir.SortStage{Keys: keys})
			}
		case "limit", "skip":
			if err := arity(cl, 1, 1); err != nil {
				return qir.Statement{}, err
			}
			n, err := p.countArg(cl.args[0], cl.name)
			if err != nil {
				return qir.Statement{}, err
			}
			if cl.name == "limit" {
				s.Pipeline = append(s.Pipeline, qir.LimitStage{N: n})
			} else {
				s.Pipeline = append(s.Pipeline, qir.SkipStage{N: n})
			}
		default:
			return qir.Statement{}, &qerr.UnsupportedChainedCallError{Name: cl.name, Position: cl.pos}
		}
	}
	return s, nil
}

func (p *stmtParser) insert(verb call, chain []call) (qir.Statement, error) {
	if err := arity(verb, 1, 1); err != nil {
		return qir.Statement{}, err
	}
	if err := noChain(chain); err != nil {
		return qir.Statement{}, err
	}
	s := qir.Statement{Kind: qir.KindInsertOne, Target: p.target}
	v, err := p.value(verb.args[0], false)
	if err != nil {
		return qir.Statement{}, err
	}
	if verb.name == "insertOne" {
		doc, ok := v.(ir.IRObject)
		if !ok {
			return qir.Statement{}, p.errorf("insertOne takes a document, got %s", ir.TypeName(v))
		}
		s.Documents = []ir.IRObject{doc}
		return s, nil
	}
	s.Kind = qir.KindInsertMany
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) == 0 {
		return qir.Statement{}, p.errorf("insertMany takes a non-empty array of documents")
	}
	for i, elem := range arr {
		doc, ok := elem.(ir.IRObject)
		if !ok {
			return qir.Statement{}, p.errorf("insertMany document %d is a %s", i, ir.TypeName(elem))
		}
		s.Documents = append(s.Documents, doc)
	}
	return s, nil
}

func (p *stmtParser) update(verb call, chain []call) (qir.Statement, error) {
	if err := arity(verb, 2, 3); err != nil {
		return qir.Statement{}, err
	}
	if err := noChain(chain); err != nil {
		return qir.Statement{}, err
	}
	kind := qir.KindUpdateOne
	if verb.name == "updateMany" {
		kind = qir.KindUpdateMany
	}
	s := qir.Statement{Kind: kind, Target: p.target}
	var err error
	if s.Filter, err = p.filterArg(verb.args, 0, "filter"); err != nil {
		return qir.Statement{}, err
	}
	v, err := p.value(verb.args[1], false)
	if err != nil {
		return qir.Statement{}, err
	}
	if s.Update, err = p.updateSpec(v); err != nil {
		return qir.Statement{}, err
	}
	if len(verb.args) == 3 {
		opts, err := p.object(verb.args[2], false, "update options")
		if err != nil {
			return qir.Statement{}, err
		}
		if len(opts) > 0 {
			return qir.Statement{}, unrepresentable("update option " + opts[0].Key)
		}
	}
	return s, nil
}

func (p *stmtParser) delete(verb call, chain []call) (qir.Statement, error) {
	if err := arity(verb, 0, 1); err != nil {
		return qir.Statement{}, err
	}
	if err := noChain(chain); err != nil {
		return qir.Statement{}, err
	}
	kind := qir.KindDeleteOne
	if verb.name == "deleteMany" {
		kind = qir.KindDeleteMany
	}
	s := qir.Statement{Kind: kind, Target: p.target}
	var err error
	s.Filter, err = p.filterArg(verb.args, 0, "filter")
	return s, err
}
