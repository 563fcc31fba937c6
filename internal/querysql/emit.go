package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Emitter renders QIR statements as SQL text.
//
// Every statement is rendered on one line and terminated by ';'.
// Relational text has no named intermediate results, so a producer
// statement referenced by a binding is inlined as IN (SELECT ...) at the
// point of use instead of being emitted on its own.
type Emitter struct {
	// Parameterize replaces literal values, LIKE and REGEXP patterns
	// included, with ? placeholders; the values are returned in
	// placeholder order.
	Parameterize bool

	// MaxDepth bounds nesting of filters and inlined subqueries.
	// Zero selects qir.DefaultMaxDepth.
	MaxDepth int
}

// Emit renders statements with the default Emitter.
func Emit(stmts []qir.Statement, bindings []qir.Binding) (string, error) {
	sql, _, err := (&Emitter{}).Emit(stmts, bindings)
	return sql, err
}

// Emit renders statements in order and returns the SQL text and, when
// Parameterize is set, the placeholder values.
func (e *Emitter) Emit(stmts []qir.Statement, bindings []qir.Binding) (string, []any, error) {
	w := &writer{
		e:        e,
		bindings: make(map[string]qir.Binding, len(bindings)),
		inlining: map[string]bool{},
		depth:    qir.NewDepthCounter(e.MaxDepth),
	}
	for _, b := range bindings {
		w.bindings[b.Variable] = b
	}

	var lines []string
	for i, s := range stmts {
		if _, inlined := w.bindings[s.Name]; inlined && s.Name != "" {
			continue
		}
		line, err := w.statement(s)
		if err != nil {
			return "", nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		lines = append(lines, line+";")
	}
	return strings.Join(lines, "\n"), w.params, nil
}

// writer carries the state of one Emit call.
type writer struct {
	e        *Emitter
	bindings map[string]qir.Binding
	inlining map[string]bool
	params   []any
	depth    *qir.DepthCounter
}

func emitUnrepresentable(construct string) error {
	return &qerr.UnrepresentableConstructError{Dialect: string(qir.Relational), Construct: construct}
}

func (w *writer) statement(s qir.Statement) (string, error) {
	switch s.Kind {
	case qir.KindFind:
		return w.find(s)
	case qir.KindAggregate:
		return w.aggregate(s)
	case qir.KindInsertOne, qir.KindInsertMany:
		return w.insert(s)
	case qir.KindUpdateOne, qir.KindUpdateMany:
		return w.update(s)
	case qir.KindDeleteOne, qir.KindDeleteMany:
		return w.delete(s)
	case qir.KindCreateSchema:
		return w.create(s)
	default:
		return "", &qerr.InvariantViolationError{Node: "Statement", Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
}

func (w *writer) find(s qir.Statement) (string, error) {
	cols, err := w.columns(s.Projection)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + ident(s.Target))
	if err := w.where(&b, "WHERE", s.Filter, nil); err != nil {
		return "", err
	}
	w.orderBy(&b, s.Sort)
	if s.Page != nil {
		w.page(&b, s.Page.Limit, s.Page.Skip)
	}
	return b.String(), nil
}

// columns renders a projection as a SELECT list.
func (w *writer) columns(p *qir.Projection) (string, error) {
	if p == nil || len(p.Items) == 0 {
		return "*", nil
	}
	if p.Exclusive() {
		return "", emitUnrepresentable("exclusion projection")
	}
	var cols []string
	for _, item := range p.Included() {
		if item.Computed() {
			cols = append(cols, ident(item.Source)+" AS "+ident(item.Field))
			continue
		}
		cols = append(cols, ident(item.Field))
	}
	return strings.Join(cols, ", "), nil
}

// aggregate renders a pipeline that fits the SELECT template:
//
//	[lookup unwind]* [match]* [group [match]*] [project] [sort] [skip] [limit]
//
// Any other stage order has no relational equivalent.
func (w *writer) aggregate(s qir.Statement) (string, error) {
	st := s.Pipeline
	i := 0

	var joins []string
	for i < len(st) {
		lk, ok := st[i].(qir.LookupStage)
		if !ok {
			break
		}
		var uw qir.UnwindStage
		if i+1 < len(st) {
			uw, ok = st[i+1].(qir.UnwindStage)
		}
		if i+1 >= len(st) || !ok || uw.Path != lk.As {
			return "", emitUnrepresentable("$lookup without a matching $unwind")
		}
		kw := "JOIN"
		if uw.PreserveEmpty {
			kw = "LEFT JOIN"
		}
		j := kw + " " + ident(lk.From)
		if lk.As != lk.From {
			j += " AS " + ident(lk.As)
		}
		local := ident(lk.LocalField)
		if !strings.Contains(lk.LocalField, ".") {
			local = ident(s.Target) + "." + local
		}
		j += " ON " + local + " = " + ident(lk.As) + "." + ident(lk.ForeignField)
		joins = append(joins, j)
		i += 2
	}

	var where []qir.Filter
	for ; i < len(st); i++ {
		m, ok := st[i].(qir.MatchStage)
		if !ok {
			break
		}
		where = append(where, m.Filter)
	}

	var group *qir.GroupStage
	var having []qir.Filter
	if i < len(st) {
		if g, ok := st[i].(qir.GroupStage); ok {
			group = &g
			for i++; i < len(st); i++ {
				m, ok := st[i].(qir.MatchStage)
				if !ok {
					break
				}
				having = append(having, m.Filter)
			}
		}
	}

	cols := "*"
	if group == nil && i < len(st) {
		if p, ok := st[i].(qir.ProjectStage); ok {
			c, err := w.columns(&p.Projection)
			if err != nil {
				return "", err
			}
			cols = c
			i++
		}
	}

	var sort []qir.SortKey
	if i < len(st) {
		if so, ok := st[i].(qir.SortStage); ok {
			sort = so.Keys
			i++
		}
	}
	var skip, limit *int64
	if i < len(st) {
		if sk, ok := st[i].(qir.SkipStage); ok {
			skip = qir.Int64(sk.N)
			i++
		}
	}
	if i < len(st) {
		if l, ok := st[i].(qir.LimitStage); ok {
			limit = qir.Int64(l.N)
			i++
		}
	}
	if i < len(st) {
		construct := "$" + qir.StageName(st[i])
		if i > 0 {
			construct += " stage after $" + qir.StageName(st[i-1])
		}
		return "", emitUnrepresentable(construct)
	}

	var groupBy []string
	if group != nil {
		var err error
		if cols, groupBy, err = w.groupColumns(*group); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + ident(s.Target))
	for _, j := range joins {
		b.WriteString(" " + j)
	}
	if err := w.where(&b, "WHERE", combine(where), nil); err != nil {
		return "", err
	}
	if len(groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(groupBy, ", "))
	}
	if err := w.where(&b, "HAVING", combine(having), group); err != nil {
		return "", err
	}
	w.orderBy(&b, sort)
	w.page(&b, limit, skip)
	return b.String(), nil
}

func combine(filters []qir.Filter) qir.Filter {
	if len(filters) == 0 {
		return nil
	}
	return qir.And(filters...)
}

// groupColumns renders the SELECT list and GROUP BY list of a group.
func (w *writer) groupColumns(g qir.GroupStage) (string, []string, error) {
	var cols, groupBy []string
	for _, k := range g.Keys {
		col := ident(k.Field)
		groupBy = append(groupBy, col)
		if k.Name != "" && k.Name != defaultKeyName(k.Field) {
			col += " AS " + ident(k.Name)
		}
		cols = append(cols, col)
	}
	for _, a := range g.Aggregations {
		call, err := aggregateCall(a)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, call+" AS "+ident(a.Name))
	}
	if len(cols) == 0 {
		return "", nil, emitUnrepresentable("$group without keys or aggregations")
	}
	return strings.Join(cols, ", "), groupBy, nil
}

func aggregateCall(a qir.Aggregation) (string, error) {
	fn, err := optable.ToDialect(qir.Relational, optable.Accumulator, string(a.Fn))
	if err != nil {
		return "", err
	}
	arg := "*"
	if a.Source != "" {
		arg = ident(a.Source)
	}
	return fn + "(" + arg + ")", nil
}

func (w *writer) where(b *strings.Builder, kw string, f qir.Filter, group *qir.GroupStage) error {
	if f == nil {
		return nil
	}
	text, err := w.filter(f, 0, group)
	if err != nil {
		return err
	}
	b.WriteString(" " + kw + " " + text)
	return nil
}

func (w *writer) orderBy(b *strings.Builder, keys []qir.SortKey) {
	if len(keys) == 0 {
		return
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		dir := "ASC"
		if k.Direction == qir.Desc {
			dir = "DESC"
		}
		parts[i] = ident(k.Field) + " " + dir
	}
	b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
}

func (w *writer) page(b *strings.Builder, limit, skip *int64) {
	if limit != nil {
		fmt.Fprintf(b, " LIMIT %d", *limit)
	}
	if skip != nil {
		fmt.Fprintf(b, " OFFSET %d", *skip)
	}
}

// precedence of a filter node; higher binds tighter.
func precedence(f qir.Filter) int {
	if l, ok := f.(qir.Logical); ok {
		switch l.Op {
		case qir.OpOr:
			return 1
		case qir.OpAnd:
			return 2
		}
	}
	return 3
}

// filter renders f. A child is parenthesized when it does not bind
// tighter than its parent, so the text parses back to the same tree.
func (w *writer) filter(f qir.Filter, parent int, group *qir.GroupStage) (string, error) {
	if err := w.depth.Enter(); err != nil {
		return "", err
	}
	defer w.depth.Exit()

	text, err := w.node(f, group)
	if err != nil {
		return "", err
	}
	if parent > 0 && precedence(f) <= parent && precedence(f) < 3 {
		return "(" + text + ")", nil
	}
	return text, nil
}

func (w *writer) node(f qir.Filter, group *qir.GroupStage) (string, error) {
	switch n := f.(type) {
	case qir.Logical:
		if n.Op == qir.OpNot {
			inner, err := w.filter(n.Children[0], 0, group)
			if err != nil {
				return "", err
			}
			return "NOT (" + inner + ")", nil
		}
		kw, err := optable.ToDialect(qir.Relational, optable.Logical, string(n.Op))
		if err != nil {
			return "", err
		}
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			if parts[i], err = w.filter(c, precedence(n), group); err != nil {
				return "", err
			}
		}
		return strings.Join(parts, " "+kw+" "), nil

	case qir.Comparison:
		field, err := w.field(n.Field, group)
		if err != nil {
			return "", err
		}
		if _, isNull := n.Value.(ir.IRNull); isNull && (n.Op == qir.OpEq || n.Op == qir.OpNe) {
			op := "exists"
			if n.Op == qir.OpEq {
				op = "notExists"
			}
			lex, err := optable.ToDialect(qir.Relational, optable.Existence, op)
			if err != nil {
				return "", err
			}
			return field + " " + lex, nil
		}
		op, err := optable.ToDialect(qir.Relational, optable.Comparison, string(n.Op))
		if err != nil {
			return "", err
		}
		v, err := w.value(n.Value)
		if err != nil {
			return "", err
		}
		return field + " " + op + " " + v, nil

	case qir.Existence:
		field, err := w.field(n.Field, group)
		if err != nil {
			return "", err
		}
		op := "notExists"
		if n.Exists {
			op = "exists"
		}
		lex, err := optable.ToDialect(qir.Relational, optable.Existence, op)
		if err != nil {
			return "", err
		}
		return field + " " + lex, nil

	case qir.Pattern:
		field, err := w.field(n.Field, group)
		if err != nil {
			return "", err
		}
		op, pattern := "regex", n.Regex
		if like, ok := regexToLike(n.Regex); ok {
			op, pattern = "like", like
			if n.CaseInsensitive {
				op = "ilike"
			}
		} else if n.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		lex, err := optable.ToDialect(qir.Relational, optable.Pattern, op)
		if err != nil {
			return "", err
		}
		v, err := w.value(ir.IRString(pattern))
		if err != nil {
			return "", err
		}
		return field + " " + lex + " " + v, nil

	case qir.Membership:
		field, err := w.field(n.Field, group)
		if err != nil {
			return "", err
		}
		op, err := optable.ToDialect(qir.Relational, optable.Membership, string(n.Op))
		if err != nil {
			return "", err
		}
		if n.Binding != "" {
			sub, err := w.inline(n.Binding)
			if err != nil {
				return "", err
			}
			return field + " " + op + " (" + sub + ")", nil
		}
		if len(n.Values) == 0 {
			return "", emitUnrepresentable("empty IN list")
		}
		vals := make([]string, len(n.Values))
		for i, v := range n.Values {
			if vals[i], err = w.value(v); err != nil {
				return "", err
			}
		}
		return field + " " + op + " (" + strings.Join(vals, ", ") + ")", nil

	case qir.SubqueryMembership:
		field, err := w.field(n.Field, group)
		if err != nil {
			return "", err
		}
		op, err := optable.ToDialect(qir.Relational, optable.Membership, string(n.Op))
		if err != nil {
			return "", err
		}
		sub, err := w.find(*n.Query)
		if err != nil {
			return "", err
		}
		return field + " " + op + " (" + sub + ")", nil
	}
	return "", &qerr.InvariantViolationError{Node: "Filter", Reason: fmt.Sprintf("unknown filter type %T", f)}
}

// field renders a field reference. Inside HAVING a reference to a group
// output is rendered as the aggregate call that produces it.
func (w *writer) field(name string, group *qir.GroupStage) (string, error) {
	if group != nil {
		if a, ok := group.Aggregation(name); ok {
			return aggregateCall(a)
		}
	}
	return ident(name), nil
}

// inline renders the producer bound to variable as a subquery.
func (w *writer) inline(variable string) (string, error) {
	b, ok := w.bindings[variable]
	if !ok {
		return "", &qerr.InvariantViolationError{Node: "Membership", Reason: fmt.Sprintf("no binding for %q", variable)}
	}
	if w.inlining[variable] {
		return "", &qerr.CyclicDependencyError{Target: b.Producer.Target}
	}
	w.inlining[variable] = true
	defer delete(w.inlining, variable)
	return w.find(b.Producer)
}

// value renders a literal, or a placeholder when parameterizing.
func (w *writer) value(v ir.IRValue) (string, error) {
	if w.e.Parameterize {
		param, err := irValueToParam(v)
		if err != nil {
			return "", err
		}
		w.params = append(w.params, param)
		return "?", nil
	}
	return literalSQL(v)
}

func literalSQL(v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case ir.IRNull:
		return "NULL", nil
	case ir.IRString:
		return quote(string(val)), nil
	case ir.IRInt, ir.IRFloat:
		return ir.FormatNumber(val), nil
	case ir.IRBool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case ir.IRDate:
		return "TIMESTAMP " + quote(val.Time.UTC().Format(ir.DateLayout)), nil
	case ir.IRObjectID:
		// Object ids are stored as VARCHAR(24) columns.
		return quote(string(val)), nil
	default:
		return "", emitUnrepresentable(ir.TypeName(v) + " literal")
	}
}

// irValueToParam converts an ir.IRValue to a Go native type for a SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRDate:
		return val.Time, nil
	case ir.IRObjectID:
		return string(val), nil
	default:
		return nil, emitUnrepresentable(ir.TypeName(v) + " parameter")
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ident renders a dotted field path, quoting segments that are not plain
// identifiers or that collide with reserved words.
func ident(path string) string {
	parts := strings.Split(path, ".")
	for i, part := range parts {
		if needsQuote(part) {
			parts[i] = `"` + part + `"`
		}
	}
	return strings.Join(parts, ".")
}

func needsQuote(s string) bool {
	if s == "" || !isIdentStart(s[0]) || reserved[strings.ToUpper(s)] {
		return true
	}
	for i := 1; i < len(s); i++ {
		if !isIdentStart(s[i]) && !isDigit(s[i]) {
			return true
		}
	}
	return false
}

func (w *writer) insert(s qir.Statement) (string, error) {
	var cols []string
	seen := map[string]bool{}
	for _, doc := range s.Documents {
		for _, k := range doc.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	if len(cols) == 0 {
		return "", emitUnrepresentable("insert of an empty document")
	}
	rows := make([]string, len(s.Documents))
	for i, doc := range s.Documents {
		vals := make([]string, len(cols))
		for j, c := range cols {
			v, ok := doc.Get(c)
			if !ok {
				v = ir.IRNull{}
			}
			text, err := w.value(v)
			if err != nil {
				return "", err
			}
			vals[j] = text
		}
		rows[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return "INSERT INTO " + ident(s.Target) + " (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(rows, ", "), nil
}

func (w *writer) update(s qir.Statement) (string, error) {
	var sets []string
	for _, clause := range s.Update {
		lex, err := optable.ToDialect(qir.Relational, optable.Update, string(clause.Op))
		if err != nil {
			return "", err
		}
		for _, p := range clause.Fields {
			col := ident(p.Key)
			switch clause.Op {
			case qir.UpdSet:
				v, err := w.value(p.Value)
				if err != nil {
					return "", err
				}
				sets = append(sets, col+" = "+v)
			case qir.UpdUnset, qir.UpdCurrentDate:
				sets = append(sets, col+" = "+lex)
			case qir.UpdInc, qir.UpdMul:
				op, v := lex, p.Value
				if neg, ok := negate(v); ok && clause.Op == qir.UpdInc && isNegative(v) {
					op, v = "-", neg
				}
				if _, ok := ir.AsInt(v); !ok {
					if _, isFloat := v.(ir.IRFloat); !isFloat {
						return "", emitUnrepresentable("non-numeric $" + string(clause.Op))
					}
				}
				text, err := w.value(v)
				if err != nil {
					return "", err
				}
				sets = append(sets, col+" = "+col+" "+op+" "+text)
			}
		}
	}
	var b strings.Builder
	b.WriteString("UPDATE " + ident(s.Target) + " SET " + strings.Join(sets, ", "))
	if err := w.where(&b, "WHERE", s.Filter, nil); err != nil {
		return "", err
	}
	if s.Kind == qir.KindUpdateOne {
		b.WriteString(" LIMIT 1")
	}
	return b.String(), nil
}

func isNegative(v ir.IRValue) bool {
	switch n := v.(type) {
	case ir.IRInt:
		return n < 0
	case ir.IRFloat:
		return n < 0
	}
	return false
}

func (w *writer) delete(s qir.Statement) (string, error) {
	var b strings.Builder
	b.WriteString("DELETE FROM " + ident(s.Target))
	if err := w.where(&b, "WHERE", s.Filter, nil); err != nil {
		return "", err
	}
	if s.Kind == qir.KindDeleteOne {
		b.WriteString(" LIMIT 1")
	}
	return b.String(), nil
}

func (w *writer) create(s qir.Statement) (string, error) {
	cols := make([]string, len(s.Schema))
	for i, f := range s.Schema {
		typ, ok := typeNames[f.Type]
		if !ok {
			return "", emitUnrepresentable("column type " + string(f.Type))
		}
		col := ident(f.Name) + " " + typ
		if f.Has(qir.Required) {
			col += " NOT NULL"
		}
		if f.Has(qir.Unique) {
			col += " UNIQUE"
		}
		if f.Has(qir.PrimaryKey) {
			col += " PRIMARY KEY"
		}
		cols[i] = col
	}
	return "CREATE TABLE " + ident(s.Target) + " (" + strings.Join(cols, ", ") + ")", nil
}
