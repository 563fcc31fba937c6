package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Options configures parsing.
type Options struct {
	// MaxDepth bounds expression and subquery nesting. Zero selects
	// qir.DefaultMaxDepth.
	MaxDepth int
}

// Result is the outcome of parsing one statement of a script.
type Result struct {
	Text      string
	Statement qir.Statement
	Err       error
}

// Parse parses every statement in src. Subqueries stay nested as
// qir.SubqueryMembership; resolve.Resolve flattens them.
func Parse(src string, opts Options) ([]qir.Statement, error) {
	results, err := ParseEach(src, opts)
	if err != nil {
		return nil, err
	}
	stmts := make([]qir.Statement, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		stmts = append(stmts, r.Statement)
	}
	return stmts, nil
}

// ParseEach parses every statement in src independently. The returned
// error reports only failures that prevent splitting the script; a
// statement's own failure is carried in its Result.
func ParseEach(src string, opts Options) ([]Result, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	parts, err := splitStatements(toks)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, &qerr.RelationalSyntaxError{Position: 0, Reason: "no statements"}
	}

	results := make([]Result, 0, len(parts))
	for _, part := range parts {
		p := newParser(part, qir.NewDepthCounter(opts.MaxDepth))
		stmt, err := p.statement()
		if err == nil {
			err = qir.ValidateWithLimit(stmt, opts.MaxDepth)
		}
		start, end := part[0].pos, part[len(part)-1].pos
		results = append(results, Result{
			Text:      strings.TrimSpace(src[start:end]),
			Statement: stmt,
			Err:       err,
		})
	}
	return results, nil
}

// aggLookup maps an aggregate call inside HAVING or ORDER BY to the name
// of the group output it refers to.
type aggLookup func(fn qir.AccFn, source string) string

// parser walks the tokens of one statement.
type parser struct {
	toks   []token
	pos    int
	depth  *qir.DepthCounter
	clause string

	// table and alias qualify columns of the statement's own target;
	// those qualifiers are stripped from field paths.
	table string
	alias string

	// aggRef is set while parsing HAVING and ORDER BY of a grouped select.
	aggRef aggLookup
}

func newParser(toks []token, depth *qir.DepthCounter) *parser {
	return &parser{toks: toks, depth: depth}
}

// sub returns a parser over a sub-slice of tokens sharing p's context.
func (p *parser) sub(toks []token, clause string, end int) *parser {
	cp := *p
	cp.toks = append(append([]token{}, toks...), token{kind: tokEOF, pos: end})
	cp.pos = 0
	cp.clause = clause
	return &cp
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// accept consumes the keyword sequence kws if it is next.
func (p *parser) accept(kws ...string) bool {
	for i, kw := range kws {
		if !p.peekAt(i).is(kw) {
			return false
		}
	}
	p.pos += len(kws)
	return true
}

func (p *parser) acceptPunct(s string) bool {
	if p.peek().isPunct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kws ...string) error {
	if !p.accept(kws...) {
		return p.errorf("expected %s, found %s", strings.Join(kws, " "), p.peek())
	}
	return nil
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return p.errorf("expected %q, found %s", s, p.peek())
	}
	return nil
}

func (p *parser) expectEOF() error {
	if p.peek().kind != tokEOF {
		return p.errorf("unexpected %s", p.peek())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &qerr.RelationalSyntaxError{Clause: p.clause, Position: p.peek().pos, Reason: fmt.Sprintf(format, args...)}
}

func unrepresentable(construct string) error {
	return &qerr.UnrepresentableConstructError{Dialect: string(qir.Relational), Construct: construct}
}

// statement dispatches on the leading keyword.
func (p *parser) statement() (qir.Statement, error) {
	t := p.peek()
	switch {
	case t.is("SELECT"):
		return p.selectStatement()
	case t.is("INSERT"):
		return p.insertStatement()
	case t.is("UPDATE"):
		return p.updateStatement()
	case t.is("DELETE"):
		return p.deleteStatement()
	case t.is("CREATE"):
		return p.createStatement()
	case t.is("WITH"):
		return qir.Statement{}, unrepresentable("WITH (common table expression)")
	default:
		return qir.Statement{}, p.errorf("unknown statement %s", t)
	}
}

// identifier consumes an identifier that is not a reserved word.
func (p *parser) identifier(what string) (string, error) {
	t := p.peek()
	if t.kind != tokIdent || isReserved(t) {
		return "", p.errorf("expected %s, found %s", what, t)
	}
	p.pos++
	return t.text, nil
}

// column strips the statement's own table or alias qualifier from a path.
func (p *parser) column(name string) string {
	for _, q := range []string{p.alias, p.table} {
		if q != "" && strings.HasPrefix(name, q+".") {
			return name[len(q)+1:]
		}
	}
	return name
}

// Filter expressions. Precedence, loosest first: OR, AND, NOT.

func (p *parser) orExpr() (qir.Filter, error) {
	if err := p.depth.Enter(); err != nil {
		return nil, err
	}
	defer p.depth.Exit()

	first, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	children := []qir.Filter{first}
	for p.accept("OR") {
		next, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return qir.Logical{Op: qir.OpOr, Children: children}, nil
}

func (p *parser) andExpr() (qir.Filter, error) {
	first, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	children := []qir.Filter{first}
	for p.accept("AND") {
		next, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return qir.Logical{Op: qir.OpAnd, Children: children}, nil
}

func (p *parser) notExpr() (qir.Filter, error) {
	if p.accept("NOT") {
		if err := p.depth.Enter(); err != nil {
			return nil, err
		}
		defer p.depth.Exit()
		child, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return qir.Not(child), nil
	}
	return p.primary()
}

func (p *parser) primary() (qir.Filter, error) {
	if p.acceptPunct("(") {
		f, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return f, nil
	}
	return p.predicate()
}

// operand reads the left-hand side of a predicate: a column, or an
// aggregate call where aggRef is set.
func (p *parser) operand() (string, error) {
	t := p.peek()
	if t.kind != tokIdent || isReserved(t) {
		return "", p.errorf("expected column, found %s", t)
	}
	if p.peekAt(1).isPunct("(") {
		if p.windowCall() {
			return "", unrepresentable("window function " + t.upper + " OVER")
		}
		if p.aggRef == nil {
			return "", &qerr.UnsupportedOperatorError{Dialect: string(qir.Relational), Category: "function", Operator: t.text}
		}
		fn, source, err := p.aggregateCall()
		if err != nil {
			return "", err
		}
		return p.aggRef(fn, source), nil
	}
	p.pos++
	return p.column(t.text), nil
}

// aggregateCall parses FN(column) or COUNT(*).
func (p *parser) aggregateCall() (qir.AccFn, string, error) {
	if p.windowCall() {
		return "", "", unrepresentable("window function " + p.peek().upper + " OVER")
	}
	nameTok := p.next()
	op, err := optable.ToCanonical(qir.Relational, optable.Accumulator, nameTok.text)
	if err != nil {
		return "", "", err
	}
	fn := qir.AccFn(op)
	if err := p.expectPunct("("); err != nil {
		return "", "", err
	}
	if p.peek().is("DISTINCT") {
		return "", "", unrepresentable("DISTINCT inside " + nameTok.upper)
	}
	source := ""
	if p.acceptPunct("*") {
		if fn != qir.AccCount {
			return "", "", p.errorf("%s(*) is not valid", nameTok.upper)
		}
	} else {
		col, err := p.identifier("column")
		if err != nil {
			return "", "", err
		}
		source = p.column(col)
	}
	if err := p.expectPunct(")"); err != nil {
		return "", "", err
	}
	return fn, source, nil
}

// windowCall reports whether the call at the current token is followed by
// OVER once its argument list closes.
func (p *parser) windowCall() bool {
	if !p.peekAt(1).isPunct("(") {
		return false
	}
	depth := 0
	for i := 1; ; i++ {
		t := p.peekAt(i)
		switch {
		case t.kind == tokEOF:
			return false
		case t.isPunct("("):
			depth++
		case t.isPunct(")"):
			depth--
			if depth == 0 {
				return p.peekAt(i + 1).is("OVER")
			}
		}
	}
}

func (p *parser) predicate() (qir.Filter, error) {
	field, err := p.operand()
	if err != nil {
		return nil, err
	}

	// IS [NOT] NULL is a null comparison, which matches missing fields
	// too. qir.Existence is only produced by $exists.
	if p.accept("IS") {
		op := qir.OpEq
		if p.accept("NOT") {
			op = qir.OpNe
		}
		if err := p.expect("NULL"); err != nil {
			return nil, err
		}
		return qir.Comparison{Field: field, Op: op, Value: ir.IRNull{}}, nil
	}

	negated := false
	if p.peek().is("NOT") && (p.peekAt(1).is("IN") || p.peekAt(1).is("BETWEEN") || isPatternKeyword(p.peekAt(1))) {
		p.pos++
		negated = true
	}

	switch t := p.peek(); {
	case t.is("IN"):
		p.pos++
		op := qir.OpIn
		if negated {
			op = qir.OpNotIn
		}
		return p.membership(field, op)
	case t.is("BETWEEN"):
		p.pos++
		low, err := p.literal()
		if err != nil {
			return nil, err
		}
		if err := p.expect("AND"); err != nil {
			return nil, err
		}
		high, err := p.literal()
		if err != nil {
			return nil, err
		}
		f := qir.Logical{Op: qir.OpAnd, Children: []qir.Filter{
			qir.Comparison{Field: field, Op: qir.OpGte, Value: low},
			qir.Comparison{Field: field, Op: qir.OpLte, Value: high},
		}}
		if negated {
			return qir.Not(f), nil
		}
		return f, nil
	case isPatternKeyword(t):
		p.pos++
		f, err := p.pattern(field, t)
		if err != nil {
			return nil, err
		}
		if negated {
			return qir.Not(f), nil
		}
		return f, nil
	case t.kind == tokOp:
		op, err := optable.ToCanonical(qir.Relational, optable.Comparison, t.text)
		if err != nil {
			return nil, p.errorf("expected comparison operator, found %s", t)
		}
		p.pos++
		if next := p.peek(); next.kind == tokIdent && !isReserved(next) && !isLiteralKeyword(next) {
			return nil, unrepresentable("column-to-column comparison " + field + " " + t.text + " " + next.text)
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		return qir.Comparison{Field: field, Op: qir.CompareOp(op), Value: v}, nil
	default:
		return nil, p.errorf("expected operator after %s, found %s", field, t)
	}
}

func isPatternKeyword(t token) bool {
	return t.is("LIKE") || t.is("ILIKE") || t.is("REGEXP") || t.is("RLIKE")
}

func isLiteralKeyword(t token) bool {
	return t.is("TRUE") || t.is("FALSE") || t.is("NULL") || t.is("DATE") || t.is("TIMESTAMP")
}

func (p *parser) pattern(field string, kw token) (qir.Filter, error) {
	op, err := optable.ToCanonical(qir.Relational, optable.Pattern, kw.text)
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokString {
		return nil, p.errorf("expected pattern string after %s, found %s", kw.upper, t)
	}
	p.pos++
	if p.peek().is("ESCAPE") {
		return nil, unrepresentable("LIKE ... ESCAPE")
	}
	switch op {
	case "like", "ilike":
		return qir.Pattern{Field: field, Regex: likeToRegex(t.text), CaseInsensitive: op == "ilike"}, nil
	default:
		re, ci := strings.CutPrefix(t.text, "(?i)")
		return qir.Pattern{Field: field, Regex: re, CaseInsensitive: ci}, nil
	}
}

// membership parses the parenthesized list or subquery after IN.
func (p *parser) membership(field string, op qir.MemberOp) (qir.Filter, error) {
	open := p.peek()
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	if p.peek().is("SELECT") {
		end, err := p.matching(open)
		if err != nil {
			return nil, err
		}
		inner := newParser(nil, p.depth)
		inner.clause = p.clause
		inner.toks = append(append([]token{}, p.toks[p.pos:end]...), token{kind: tokEOF, pos: p.toks[end].pos})
		if err := p.depth.Enter(); err != nil {
			return nil, err
		}
		stmt, err := inner.selectStatement()
		p.depth.Exit()
		if err != nil {
			return nil, err
		}
		if stmt.Kind != qir.KindFind {
			return nil, p.errorf("subquery must be a plain SELECT")
		}
		if _, err := qir.OutputField(stmt); err != nil {
			return nil, p.errorf("subquery must select exactly one column")
		}
		p.pos = end + 1
		return qir.SubqueryMembership{Field: field, Op: op, Query: &stmt}, nil
	}

	var values []ir.IRValue
	for {
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return qir.Membership{Field: field, Op: op, Values: values}, nil
}

// matching returns the index of the ')' closing the '(' just consumed.
func (p *parser) matching(open token) (int, error) {
	depth := 1
	for i := p.pos; i < len(p.toks); i++ {
		switch {
		case p.toks[i].isPunct("("):
			depth++
		case p.toks[i].isPunct(")"):
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &qerr.RelationalSyntaxError{Clause: p.clause, Position: open.pos, Reason: "unbalanced '('"}
}

// literal parses a constant: string, number, boolean, NULL, or a typed
// DATE/TIMESTAMP string.
func (p *parser) literal() (ir.IRValue, error) {
	t := p.peek()
	switch {
	case t.kind == tokString:
		p.pos++
		return ir.IRString(t.text), nil
	case t.kind == tokNumber:
		v, ok := number(t.text, false)
		if !ok {
			return nil, p.errorf("invalid number %s", t.text)
		}
		p.pos++
		return v, nil
	case t.isPunct("-") || t.isPunct("+"):
		n := p.peekAt(1)
		v, ok := number(n.text, t.text == "-")
		if n.kind != tokNumber || !ok {
			return nil, p.errorf("expected number after %s", t.text)
		}
		p.pos += 2
		return v, nil
	case t.is("TRUE"):
		p.pos++
		return ir.IRBool(true), nil
	case t.is("FALSE"):
		p.pos++
		return ir.IRBool(false), nil
	case t.is("NULL"):
		p.pos++
		return ir.IRNull{}, nil
	case t.is("DATE") || t.is("TIMESTAMP"):
		s := p.peekAt(1)
		if s.kind != tokString {
			return nil, p.errorf("expected string after %s", t.upper)
		}
		d, err := ir.ParseDate(s.text)
		if err != nil {
			return nil, &qerr.RelationalSyntaxError{Clause: p.clause, Position: s.pos, Reason: err.Error()}
		}
		p.pos += 2
		return ir.IRDate{Time: d}, nil
	}
	return nil, p.errorf("expected a literal, found %s", t)
}

func number(text string, negative bool) (ir.IRValue, bool) {
	if negative {
		text = "-" + text
	}
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return ir.IRInt(n), true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false
	}
	return ir.IRFloat(f), true
}

// count parses a non-negative integer, as used by LIMIT and OFFSET.
func (p *parser) count() (int64, error) {
	t := p.peek()
	if t.kind != tokNumber {
		return 0, p.errorf("expected a non-negative integer, found %s", t)
	}
	n, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil || n < 0 {
		return 0, p.errorf("expected a non-negative integer, found %s", t)
	}
	p.pos++
	return n, nil
}
