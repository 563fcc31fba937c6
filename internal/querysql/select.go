package querysql

import (
	"strings"

	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// clause is one top-level clause of a SELECT.
type clause struct {
	name string
	kw   token   // first keyword token
	body []token // tokens after the keyword(s)
	left bool    // LEFT [OUTER] JOIN
}

// splitClauses partitions a SELECT's tokens on clause keywords found at
// parenthesis depth 0. Because string literals are single tokens, text
// such as ' GROUP BY ' inside a literal never starts a clause.
func (p *parser) splitClauses() ([]clause, error) {
	var out []clause
	depth := 0
	toks := p.toks
	for i := 0; i < len(toks); {
		t := toks[i]
		if t.kind == tokEOF {
			break
		}
		if t.isPunct("(") {
			depth++
		}
		if t.isPunct(")") {
			depth--
		}
		name, width, left, err := clauseAt(toks, i, depth)
		if err != nil {
			return nil, err
		}
		if name == "" {
			if len(out) == 0 {
				return nil, &qerr.RelationalSyntaxError{Position: t.pos, Reason: "expected SELECT"}
			}
			out[len(out)-1].body = append(out[len(out)-1].body, t)
			i++
			continue
		}
		out = append(out, clause{name: name, kw: t, left: left})
		i += width
	}

	last := -1
	seen := map[string]bool{}
	for _, c := range out {
		rank := clauseRank[c.name]
		if c.name != clauseJoin && seen[c.name] {
			return nil, &qerr.RelationalSyntaxError{Clause: c.name, Position: c.kw.pos, Reason: "duplicate clause"}
		}
		if rank < last {
			return nil, &qerr.RelationalSyntaxError{Clause: c.name, Position: c.kw.pos, Reason: "clause out of order"}
		}
		seen[c.name] = true
		last = rank
	}
	if len(out) == 0 || out[0].name != clauseSelect {
		return nil, &qerr.RelationalSyntaxError{Position: 0, Reason: "expected SELECT"}
	}
	return out, nil
}

// clauseAt recognises a clause keyword at toks[i]. It returns the clause
// name and how many tokens the keyword spans.
func clauseAt(toks []token, i, depth int) (name string, width int, left bool, err error) {
	if depth != 0 {
		return "", 0, false, nil
	}
	t := toks[i]
	at := func(n int) token {
		if i+n < len(toks) {
			return toks[i+n]
		}
		return toks[len(toks)-1]
	}
	switch {
	case t.is("SELECT"):
		return clauseSelect, 1, false, nil
	case t.is("FROM"):
		return clauseFrom, 1, false, nil
	case t.is("JOIN"):
		return clauseJoin, 1, false, nil
	case t.is("INNER") && at(1).is("JOIN"):
		return clauseJoin, 2, false, nil
	case t.is("LEFT") && at(1).is("JOIN"):
		return clauseJoin, 2, true, nil
	case t.is("LEFT") && at(1).is("OUTER") && at(2).is("JOIN"):
		return clauseJoin, 3, true, nil
	case t.is("RIGHT") || t.is("FULL") || t.is("CROSS"):
		return "", 0, false, unrepresentable(t.upper + " JOIN")
	case t.is("WHERE"):
		return clauseWhere, 1, false, nil
	case t.is("GROUP") && at(1).is("BY"):
		return clauseGroupBy, 2, false, nil
	case t.is("HAVING"):
		return clauseHaving, 1, false, nil
	case t.is("ORDER") && at(1).is("BY"):
		return clauseOrderBy, 2, false, nil
	case t.is("LIMIT"):
		return clauseLimit, 1, false, nil
	case t.is("OFFSET"):
		return clauseOffset, 1, false, nil
	case t.is("UNION") || t.is("INTERSECT") || t.is("EXCEPT"):
		return "", 0, false, unrepresentable(t.upper)
	case t.is("WINDOW"):
		return "", 0, false, unrepresentable("WINDOW clause")
	}
	return "", 0, false, nil
}

// selectItem is one entry of the SELECT list.
type selectItem struct {
	star   bool
	column string
	fn     qir.AccFn
	agg    bool
	source string
	alias  string
	pos    int
}

// selectStatement parses SELECT into a Find, or an Aggregate when the
// query groups, aggregates or joins.
func (p *parser) selectStatement() (qir.Statement, error) {
	clauses, err := p.splitClauses()
	if err != nil {
		return qir.Statement{}, err
	}
	byName := map[string]clause{}
	var joins []clause
	for _, c := range clauses {
		if c.name == clauseJoin {
			joins = append(joins, c)
			continue
		}
		byName[c.name] = c
	}
	from, ok := byName[clauseFrom]
	if !ok {
		return qir.Statement{}, p.errorf("SELECT without FROM")
	}
	end := func(c clause) int {
		for i, other := range clauses {
			if other.kw.pos == c.kw.pos && i+1 < len(clauses) {
				return clauses[i+1].kw.pos
			}
		}
		return p.toks[len(p.toks)-1].pos
	}

	if err := p.from(p.sub(from.body, clauseFrom, end(from))); err != nil {
		return qir.Statement{}, err
	}

	var pipeline []qir.Stage
	for _, j := range joins {
		stages, err := p.join(p.sub(j.body, clauseJoin, end(j)), j.left)
		if err != nil {
			return qir.Statement{}, err
		}
		pipeline = append(pipeline, stages...)
	}

	sel := byName[clauseSelect]
	items, err := p.sub(sel.body, clauseSelect, end(sel)).selectList()
	if err != nil {
		return qir.Statement{}, err
	}

	var where qir.Filter
	if c, ok := byName[clauseWhere]; ok {
		sp := p.sub(c.body, clauseWhere, end(c))
		if where, err = sp.orExpr(); err != nil {
			return qir.Statement{}, err
		}
		if err := sp.expectEOF(); err != nil {
			return qir.Statement{}, err
		}
	}

	var groupBy []string
	if c, ok := byName[clauseGroupBy]; ok {
		if groupBy, err = p.sub(c.body, clauseGroupBy, end(c)).columnList(); err != nil {
			return qir.Statement{}, err
		}
	}

	hasAgg := false
	for _, it := range items {
		hasAgg = hasAgg || it.agg
	}
	grouped := hasAgg || len(groupBy) > 0

	var group *qir.GroupStage
	if grouped {
		if group, err = p.groupStage(items, groupBy); err != nil {
			return qir.Statement{}, err
		}
	}

	var having qir.Filter
	if c, ok := byName[clauseHaving]; ok {
		if !grouped {
			return qir.Statement{}, &qerr.RelationalSyntaxError{Clause: clauseHaving, Position: c.kw.pos, Reason: "HAVING without GROUP BY or aggregates"}
		}
		sp := p.sub(c.body, clauseHaving, end(c))
		sp.aggRef = groupRef(group)
		if having, err = sp.orExpr(); err != nil {
			return qir.Statement{}, err
		}
		if err := sp.expectEOF(); err != nil {
			return qir.Statement{}, err
		}
	}

	var sort []qir.SortKey
	if c, ok := byName[clauseOrderBy]; ok {
		sp := p.sub(c.body, clauseOrderBy, end(c))
		if grouped {
			sp.aggRef = groupRef(group)
		}
		if sort, err = sp.orderBy(); err != nil {
			return qir.Statement{}, err
		}
	}

	page, err := p.pagination(byName, end)
	if err != nil {
		return qir.Statement{}, err
	}

	if !grouped && len(joins) == 0 {
		proj, err := projection(items)
		if err != nil {
			return qir.Statement{}, err
		}
		return qir.Statement{
			Kind:       qir.KindFind,
			Target:     p.table,
			Filter:     where,
			Projection: proj,
			Sort:       sort,
			Page:       page,
		}, nil
	}

	if where != nil {
		pipeline = append(pipeline, qir.MatchStage{Filter: where})
	}
	if grouped {
		pipeline = append(pipeline, *group)
		if having != nil {
			pipeline = append(pipeline, qir.MatchStage{Filter: having})
		}
	} else {
		proj, err := projection(items)
		if err != nil {
			return qir.Statement{}, err
		}
		if proj != nil {
			pipeline = append(pipeline, qir.ProjectStage{Projection: *proj})
		}
	}
	if len(sort) > 0 {
		pipeline = append(pipeline, qir.SortStage{Keys: sort})
	}
	if page != nil && page.Skip != nil {
		pipeline = append(pipeline, qir.SkipStage{N: *page.Skip})
	}
	if page != nil && page.Limit != nil {
		pipeline = append(pipeline, qir.LimitStage{N: *page.Limit})
	}
	return qir.Statement{Kind: qir.KindAggregate, Target: p.table, Pipeline: pipeline}, nil
}

// from parses "table [[AS] alias]" and records the statement's target.
func (p *parser) from(sp *parser) error {
	if sp.peek().isPunct("(") {
		return unrepresentable("derived table in FROM")
	}
	table, err := sp.identifier("table name")
	if err != nil {
		return err
	}
	alias := ""
	if sp.accept("AS") {
		if alias, err = sp.identifier("alias"); err != nil {
			return err
		}
	} else if t := sp.peek(); t.kind == tokIdent && !isReserved(t) {
		alias = t.text
		sp.pos++
	}
	if sp.peek().isPunct(",") {
		return unrepresentable("implicit join (comma-separated FROM)")
	}
	if err := sp.expectEOF(); err != nil {
		return err
	}
	p.table, p.alias = table, alias
	return nil
}

// join parses "table [[AS] alias] ON local = alias.foreign" into a lookup
// followed by an unwind.
func (p *parser) join(sp *parser, left bool) ([]qir.Stage, error) {
	sp.table, sp.alias = p.table, p.alias
	table, err := sp.identifier("table name")
	if err != nil {
		return nil, err
	}
	as := table
	if sp.accept("AS") {
		if as, err = sp.identifier("alias"); err != nil {
			return nil, err
		}
	} else if t := sp.peek(); t.kind == tokIdent && !isReserved(t) {
		as = t.text
		sp.pos++
	}
	if sp.peek().is("USING") {
		return nil, unrepresentable("JOIN ... USING")
	}
	if err := sp.expect("ON"); err != nil {
		return nil, err
	}
	a, err := sp.identifier("column")
	if err != nil {
		return nil, err
	}
	if err := sp.expectPunct("="); err != nil {
		return nil, err
	}
	b, err := sp.identifier("column")
	if err != nil {
		return nil, err
	}
	if t := sp.peek(); t.is("AND") || t.is("OR") {
		return nil, unrepresentable("composite JOIN condition")
	}
	if err := sp.expectEOF(); err != nil {
		return nil, err
	}

	prefix := as + "."
	var local, foreign string
	switch {
	case strings.HasPrefix(b, prefix):
		local, foreign = a, strings.TrimPrefix(b, prefix)
	case strings.HasPrefix(a, prefix):
		local, foreign = b, strings.TrimPrefix(a, prefix)
	default:
		return nil, sp.errorf("JOIN condition must reference %s", as)
	}
	return []qir.Stage{
		qir.LookupStage{From: table, LocalField: p.column(local), ForeignField: foreign, As: as},
		qir.UnwindStage{Path: as, PreserveEmpty: left},
	}, nil
}

func (p *parser) selectList() ([]selectItem, error) {
	if p.peek().is("DISTINCT") {
		return nil, unrepresentable("SELECT DISTINCT")
	}
	var items []selectItem
	for {
		t := p.peek()
		item := selectItem{pos: t.pos}
		switch {
		case t.isPunct("*"):
			p.pos++
			item.star = true
		case t.kind == tokIdent && !isReserved(t) && p.peekAt(1).isPunct("("):
			fn, source, err := p.aggregateCall()
			if err != nil {
				return nil, err
			}
			item.agg, item.fn, item.source = true, fn, source
		default:
			col, err := p.identifier("column")
			if err != nil {
				return nil, err
			}
			item.column = p.column(col)
		}
		if p.accept("AS") {
			alias, err := p.identifier("alias")
			if err != nil {
				return nil, err
			}
			item.alias = alias
		}
		items = append(items, item)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.star && len(items) > 1 {
			return nil, &qerr.RelationalSyntaxError{Clause: clauseSelect, Position: it.pos, Reason: "* cannot be combined with other columns"}
		}
	}
	return items, nil
}

func (p *parser) columnList() ([]string, error) {
	var cols []string
	for {
		col, err := p.identifier("column")
		if err != nil {
			return nil, err
		}
		cols = append(cols, p.column(col))
		if !p.acceptPunct(",") {
			break
		}
	}
	return cols, p.expectEOF()
}

// projection builds the Find projection of a non-grouped SELECT list.
func projection(items []selectItem) (*qir.Projection, error) {
	if len(items) == 1 && items[0].star {
		return nil, nil
	}
	out := make([]qir.ProjectionItem, 0, len(items))
	for _, it := range items {
		if it.alias != "" && it.alias != it.column {
			out = append(out, qir.ProjectionItem{Field: it.alias, Include: true, Source: it.column})
			continue
		}
		out = append(out, qir.ProjectionItem{Field: it.column, Include: true})
	}
	return qir.NewProjection(out...)
}

// defaultKeyName names a compound group key component after its field.
func defaultKeyName(field string) string {
	return strings.ReplaceAll(field, ".", "_")
}

// defaultAggName names an aggregation that has no alias.
func defaultAggName(fn qir.AccFn, source string) string {
	if source == "" {
		return string(fn)
	}
	return string(fn) + "_" + strings.ReplaceAll(source, ".", "_")
}

func (p *parser) groupStage(items []selectItem, groupBy []string) (*qir.GroupStage, error) {
	g := &qir.GroupStage{}
	for _, field := range groupBy {
		name := ""
		if len(groupBy) > 1 {
			name = defaultKeyName(field)
		}
		g.Keys = append(g.Keys, qir.GroupKey{Name: name, Field: field})
	}
	for _, it := range items {
		switch {
		case it.star:
			return nil, &qerr.RelationalSyntaxError{Clause: clauseSelect, Position: it.pos, Reason: "* cannot be used with GROUP BY or aggregates"}
		case it.agg:
			name := it.alias
			if name == "" {
				name = defaultAggName(it.fn, it.source)
			}
			if _, dup := g.Aggregation(name); dup {
				return nil, &qerr.RelationalSyntaxError{Clause: clauseSelect, Position: it.pos, Reason: "duplicate output name " + name}
			}
			g.Aggregations = append(g.Aggregations, qir.Aggregation{Name: name, Fn: it.fn, Source: it.source})
		default:
			idx := -1
			for i, k := range g.Keys {
				if k.Field == it.column {
					idx = i
				}
			}
			if idx < 0 {
				return nil, &qerr.RelationalSyntaxError{Clause: clauseSelect, Position: it.pos, Reason: "column " + it.column + " must appear in GROUP BY or an aggregate"}
			}
			if it.alias != "" && it.alias != it.column {
				g.Keys[idx].Name = it.alias
			}
		}
	}
	return g, nil
}

// groupRef resolves aggregate calls against the group's outputs, adding
// an aggregation when the call has no matching output yet.
func groupRef(g *qir.GroupStage) aggLookup {
	return func(fn qir.AccFn, source string) string {
		for _, a := range g.Aggregations {
			if a.Fn == fn && a.Source == source {
				return a.Name
			}
		}
		name := defaultAggName(fn, source)
		g.Aggregations = append(g.Aggregations, qir.Aggregation{Name: name, Fn: fn, Source: source})
		return name
	}
}

func (p *parser) orderBy() ([]qir.SortKey, error) {
	var keys []qir.SortKey
	for {
		field, err := p.operand()
		if err != nil {
			return nil, err
		}
		dir := qir.Asc
		if p.accept("DESC") {
			dir = qir.Desc
		} else {
			p.accept("ASC")
		}
		if p.peek().is("NULLS") {
			return nil, unrepresentable("NULLS FIRST/LAST")
		}
		keys = append(keys, qir.SortKey{Field: field, Direction: dir})
		if !p.acceptPunct(",") {
			break
		}
	}
	return keys, p.expectEOF()
}

// pagination reads LIMIT n, LIMIT skip, n and OFFSET m.
func (p *parser) pagination(byName map[string]clause, end func(clause) int) (*qir.Pagination, error) {
	var page qir.Pagination
	if c, ok := byName[clauseLimit]; ok {
		sp := p.sub(c.body, clauseLimit, end(c))
		n, err := sp.count()
		if err != nil {
			return nil, err
		}
		if sp.acceptPunct(",") {
			m, err := sp.count()
			if err != nil {
				return nil, err
			}
			page.Skip, n = qir.Int64(n), m
		}
		if err := sp.expectEOF(); err != nil {
			return nil, err
		}
		page.Limit = qir.Int64(n)
	}
	if c, ok := byName[clauseOffset]; ok {
		if page.Skip != nil {
			return nil, &qerr.RelationalSyntaxError{Clause: clauseOffset, Position: c.kw.pos, Reason: "OFFSET given twice"}
		}
		sp := p.sub(c.body, clauseOffset, end(c))
		n, err := sp.count()
		if err != nil {
			return nil, err
		}
		sp.accept("ROWS")
		if err := sp.expectEOF(); err != nil {
			return nil, err
		}
		page.Skip = qir.Int64(n)
	}
	if page.Limit == nil && page.Skip == nil {
		return nil, nil
	}
	return &page, nil
}
