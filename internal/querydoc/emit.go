package querydoc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/literal"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Emitter renders resolved QIR statements as document-method text.
//
// Producers (statements with a Name) are rendered as variable
// declarations; consumers reference them by name. Subqueries must be
// resolved before emitting.
type Emitter struct {
	// MaxDepth bounds filter nesting. Zero selects qir.DefaultMaxDepth.
	MaxDepth int
}

// Emit renders statements with the default Emitter.
func Emit(stmts []qir.Statement, bindings []qir.Binding) (string, error) {
	return (&Emitter{}).Emit(stmts, bindings)
}

// Emit renders statements in order, one per line.
func (e *Emitter) Emit(stmts []qir.Statement, bindings []qir.Binding) (string, error) {
	w := &docWriter{
		bindings: make(map[string]qir.Binding, len(bindings)),
		depth:    qir.NewDepthCounter(e.MaxDepth),
	}
	for _, b := range bindings {
		w.bindings[b.Variable] = b
	}
	var lines []string
	for i, s := range stmts {
		out, err := w.statement(s)
		if err != nil {
			return "", fmt.Errorf("statement %d: %w", i+1, err)
		}
		for _, line := range out {
			lines = append(lines, line+";")
		}
	}
	return strings.Join(lines, "\n"), nil
}

type docWriter struct {
	bindings map[string]qir.Binding
	depth    *qir.DepthCounter
}

func emitUnrepresentable(construct string) error {
	return &qerr.UnrepresentableConstructError{Dialect: string(qir.Document), Construct: construct}
}

// collection renders the db.<target> prefix.
func collection(target string) (string, error) {
	simple := target != ""
	for _, seg := range strings.Split(target, ".") {
		if !literal.IsIdent(seg) || seg == "getCollection" || seg == "createCollection" {
			simple = false
		}
	}
	if simple {
		return "db." + target, nil
	}
	var b strings.Builder
	if err := writeString(&b, target); err != nil {
		return "", err
	}
	return "db.getCollection(" + b.String() + ")", nil
}

// statement renders s. A createSchema with unique fields yields one
// createIndex line per field after the createCollection line.
func (w *docWriter) statement(s qir.Statement) ([]string, error) {
	if s.Kind == qir.KindCreateSchema {
		return w.create(s)
	}
	coll, err := collection(s.Target)
	if err != nil {
		return nil, err
	}
	var args []ir.IRValue
	var b strings.Builder
	switch s.Kind {
	case qir.KindFind:
		return w.find(s, coll)
	case qir.KindAggregate:
		var stages ir.IRArray
		for i, st := range s.Pipeline {
			doc, err := w.stage(st)
			if err != nil {
				return nil, fmt.Errorf("pipeline[%d]: %w", i, err)
			}
			stages = append(stages, doc)
		}
		args = append(args, stages)
	case qir.KindInsertOne:
		if len(s.Documents) != 1 {
			return nil, &qerr.InvariantViolationError{Node: "Statement(insertOne)", Reason: "exactly one document required"}
		}
		args = append(args, s.Documents[0])
	case qir.KindInsertMany:
		var docs ir.IRArray
		for _, d := range s.Documents {
			docs = append(docs, d)
		}
		args = append(args, docs)
	case qir.KindUpdateOne, qir.KindUpdateMany:
		filter, err := w.filterDoc(s.Filter)
		if err != nil {
			return nil, err
		}
		update, err := w.update(s.Update)
		if err != nil {
			return nil, err
		}
		args = append(args, filter, update)
	case qir.KindDeleteOne, qir.KindDeleteMany:
		filter, err := w.filterDoc(s.Filter)
		if err != nil {
			return nil, err
		}
		args = append(args, filter)
	default:
		return nil, &qerr.InvariantViolationError{Node: "Statement", Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
	if s.Name != "" {
		return nil, emitUnrepresentable(fmt.Sprintf("%s bound to a variable", s.Kind))
	}
	b.WriteString(coll + "." + string(s.Kind))
	if err := writeArgs(&b, args); err != nil {
		return nil, err
	}
	return []string{b.String()}, nil
}

func writeArgs(b *strings.Builder, args []ir.IRValue) error {
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeValue(b, a); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func (w *docWriter) find(s qir.Statement, coll string) ([]string, error) {
	filter, err := w.filterDoc(s.Filter)
	if err != nil {
		return nil, err
	}
	args := []ir.IRValue{filter}
	if s.Projection != nil && len(s.Projection.Items) > 0 {
		args = append(args, projectionDoc(*s.Projection))
	}

	var b strings.Builder
	if s.Name != "" {
		b.WriteString("var " + s.Name + " = ")
	}
	b.WriteString(coll + ".find")
	if err := writeArgs(&b, args); err != nil {
		return nil, err
	}
	if len(s.Sort) > 0 {
		b.WriteString(".sort(")
		if err := writeValue(&b, sortDoc(s.Sort)); err != nil {
			return nil, err
		}
		b.WriteByte(')')
	}
	if s.Page != nil {
		if s.Page.Skip != nil {
			fmt.Fprintf(&b, ".skip(%d)", *s.Page.Skip)
		}
		if s.Page.Limit != nil {
			fmt.Fprintf(&b, ".limit(%d)", *s.Page.Limit)
		}
	}
	if s.Name != "" {
		field, err := qir.OutputField(s)
		if err != nil {
			return nil, err
		}
		b.WriteString(".toArray().map(doc => doc." + field + ")")
	}
	return []string{b.String()}, nil
}

func projectionDoc(p qir.Projection) ir.IRObject {
	doc := make(ir.IRObject, 0, len(p.Items))
	for _, item := range p.Items {
		var v ir.IRValue = ir.IRInt(0)
		switch {
		case item.Computed():
			v = ir.IRString("$" + item.Source)
		case item.Include:
			v = ir.IRInt(1)
		}
		doc = append(doc, ir.O(item.Field, v))
	}
	return doc
}

func sortDoc(keys []qir.SortKey) ir.IRObject {
	doc := make(ir.IRObject, 0, len(keys))
	for _, k := range keys {
		dir := ir.IRInt(1)
		if k.Direction == qir.Desc {
			dir = -1
		}
		doc = append(doc, ir.O(k.Field, dir))
	}
	return doc
}

// filterDoc renders f as a query document; nil renders as {}.
func (w *docWriter) filterDoc(f qir.Filter) (ir.IRObject, error) {
	if f == nil {
		return ir.IRObject{}, nil
	}
	if err := w.depth.Enter(); err != nil {
		return nil, err
	}
	defer w.depth.Exit()

	switch n := f.(type) {
	case qir.Comparison:
		if n.Op == qir.OpEq {
			switch n.Value.(type) {
			case ir.IRObject, ir.IRRegex:
			default:
				return ir.IRObject{ir.O(n.Field, n.Value)}, nil
			}
		}
		lex, err := optable.ToDialect(qir.Document, optable.Comparison, string(n.Op))
		if err != nil {
			return nil, err
		}
		return ir.IRObject{ir.O(n.Field, ir.IRObject{ir.O(lex, n.Value)})}, nil
	case qir.Membership:
		lex, err := optable.ToDialect(qir.Document, optable.Membership, string(n.Op))
		if err != nil {
			return nil, err
		}
		var operand ir.IRValue = ir.IRArray(n.Values)
		if n.Binding != "" {
			if _, ok := w.bindings[n.Binding]; !ok {
				return nil, &qerr.InvariantViolationError{Node: "Membership", Reason: fmt.Sprintf("no binding for %q", n.Binding)}
			}
			operand = ir.IRRef{Name: n.Binding}
		}
		return ir.IRObject{ir.O(n.Field, ir.IRObject{ir.O(lex, operand)})}, nil
	case qir.Pattern:
		re := ir.IRRegex{Pattern: n.Regex}
		if n.CaseInsensitive {
			re.Flags = "i"
		}
		return ir.IRObject{ir.O(n.Field, re)}, nil
	case qir.Existence:
		lex, err := optable.ToDialect(qir.Document, optable.Existence, "exists")
		if err != nil {
			return nil, err
		}
		return ir.IRObject{ir.O(n.Field, ir.IRObject{ir.O(lex, ir.IRBool(n.Exists))})}, nil
	case qir.Logical:
		return w.logical(n)
	case qir.SubqueryMembership:
		return nil, &qerr.InvariantViolationError{Node: "SubqueryMembership", Reason: "subqueries must be resolved before emitting document text"}
	}
	return nil, &qerr.InvariantViolationError{Node: "Filter", Reason: fmt.Sprintf("unknown filter type %T", f)}
}

func (w *docWriter) logical(n qir.Logical) (ir.IRObject, error) {
	children := n.Children
	if n.Op == qir.OpNot && len(children) == 1 {
		if or, ok := children[0].(qir.Logical); ok && or.Op == qir.OpOr {
			children = or.Children
		}
	}
	docs := make([]ir.IRObject, 0, len(children))
	for _, c := range children {
		doc, err := w.filterDoc(c)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if n.Op == qir.OpAnd {
		if merged, ok := merge(docs); ok {
			return merged, nil
		}
	}
	lex, err := optable.ToDialect(qir.Document, optable.Logical, string(n.Op))
	if err != nil {
		return nil, err
	}
	arr := make(ir.IRArray, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	return ir.IRObject{ir.O(lex, arr)}, nil
}

// merge joins and-ed documents into one. A repeated field merges only
// when both conditions are operator documents with distinct operators.
func merge(docs []ir.IRObject) (ir.IRObject, bool) {
	var out ir.IRObject
	for _, d := range docs {
		for _, pair := range d {
			prev, seen := out.Get(pair.Key)
			if !seen {
				out = append(out, pair)
				continue
			}
			a, okA := operatorDoc(prev)
			b, okB := operatorDoc(pair.Value)
			if !okA || !okB || strings.HasPrefix(pair.Key, "$") {
				return nil, false
			}
			for _, op := range b {
				if _, dup := a.Get(op.Key); dup {
					return nil, false
				}
				a = append(a, op)
			}
			out = out.With(pair.Key, a)
		}
	}
	return out, true
}

func operatorDoc(v ir.IRValue) (ir.IRObject, bool) {
	obj, ok := v.(ir.IRObject)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	for _, p := range obj {
		if !strings.HasPrefix(p.Key, "$") {
			return nil, false
		}
	}
	return slices.Clone(obj), true
}

func (w *docWriter) update(spec qir.UpdateSpec) (ir.IRObject, error) {
	doc := make(ir.IRObject, 0, len(spec))
	for _, c := range spec {
		lex, err := optable.ToDialect(qir.Document, optable.Update, string(c.Op))
		if err != nil {
			return nil, err
		}
		doc = append(doc, ir.O(lex, c.Fields))
	}
	return doc, nil
}

func (w *docWriter) stage(s qir.Stage) (ir.IRObject, error) {
	var body ir.IRValue
	switch st := s.(type) {
	case qir.MatchStage:
		doc, err := w.filterDoc(st.Filter)
		if err != nil {
			return nil, err
		}
		body = doc
	case qir.GroupStage:
		doc, err := groupDoc(st)
		if err != nil {
			return nil, err
		}
		body = doc
	case qir.ProjectStage:
		body = projectionDoc(st.Projection)
	case qir.SortStage:
		body = sortDoc(st.Keys)
	case qir.LimitStage:
		body = ir.IRInt(st.N)
	case qir.SkipStage:
		body = ir.IRInt(st.N)
	case qir.LookupStage:
		body = ir.IRObject{
			ir.O("from", ir.IRString(st.From)),
			ir.O("localField", ir.IRString(st.LocalField)),
			ir.O("foreignField", ir.IRString(st.ForeignField)),
			ir.O("as", ir.IRString(st.As)),
		}
	case qir.UnwindStage:
		if st.PreserveEmpty {
			body = ir.IRObject{ir.O("path", ir.IRString("$"+st.Path)), ir.O("preserveNullAndEmptyArrays", ir.IRBool(true))}
		} else {
			body = ir.IRString("$" + st.Path)
		}
	default:
		return nil, &qerr.InvariantViolationError{Node: "Stage", Reason: fmt.Sprintf("unknown stage type %T", s)}
	}
	lex, err := optable.ToDialect(qir.Document, optable.Stage, qir.StageName(s))
	if err != nil {
		return nil, err
	}
	return ir.IRObject{ir.O(lex, body)}, nil
}

func groupDoc(g qir.GroupStage) (ir.IRObject, error) {
	var id ir.IRValue = ir.IRNull{}
	switch {
	case g.Scalar():
		id = ir.IRString("$" + g.Keys[0].Field)
	case len(g.Keys) > 0:
		keys := make(ir.IRObject, 0, len(g.Keys))
		for _, k := range g.Keys {
			keys = append(keys, ir.O(k.Name, ir.IRString("$"+k.Field)))
		}
		id = keys
	}
	doc := ir.IRObject{ir.O("_id", id)}
	for _, a := range g.Aggregations {
		var acc ir.IRObject
		switch {
		case a.Fn == qir.AccCount && a.Source == "":
			acc = ir.IRObject{ir.O("$sum", ir.IRInt(1))}
		case a.Fn == qir.AccCount:
			return nil, emitUnrepresentable(fmt.Sprintf("count of field %s", a.Source))
		default:
			lex, err := optable.ToDialect(qir.Document, optable.Accumulator, string(a.Fn))
			if err != nil {
				return nil, err
			}
			acc = ir.IRObject{ir.O(lex, ir.IRString("$"+a.Source))}
		}
		doc = append(doc, ir.O(a.Name, acc))
	}
	return doc, nil
}

// create renders createCollection with a $jsonSchema validator, then one
// createIndex per unique field.
func (w *docWriter) create(s qir.Statement) ([]string, error) {
	var required ir.IRArray
	props := make(ir.IRObject, 0, len(s.Schema))
	var unique []string
	for _, f := range s.Schema {
		prop := ir.IRObject{ir.O("bsonType", ir.IRString(f.Type))}
		if f.Has(qir.PrimaryKey) && f.Name != qir.IDField {
			prop = append(prop, ir.O("primaryKey", ir.IRBool(true)))
		}
		if f.Has(qir.Required) {
			required = append(required, ir.IRString(f.Name))
		}
		if f.Has(qir.Unique) {
			unique = append(unique, f.Name)
		}
		props = append(props, ir.O(f.Name, prop))
	}
	schema := ir.IRObject{ir.O("bsonType", ir.IRString("object"))}
	if len(required) > 0 {
		schema = append(schema, ir.O("required", required))
	}
	schema = append(schema, ir.O("properties", props))
	opts := ir.IRObject{ir.O("validator", ir.IRObject{ir.O("$jsonSchema", schema)})}

	var b strings.Builder
	b.WriteString("db.createCollection")
	if err := writeArgs(&b, []ir.IRValue{ir.IRString(s.Target), opts}); err != nil {
		return nil, err
	}
	lines := []string{b.String()}

	coll, err := collection(s.Target)
	if err != nil {
		return nil, err
	}
	for _, field := range unique {
		b.Reset()
		b.WriteString(coll + ".createIndex")
		args := []ir.IRValue{ir.IRObject{ir.O(field, ir.IRInt(1))}, ir.IRObject{ir.O("unique", ir.IRBool(true))}}
		if err := writeArgs(&b, args); err != nil {
			return nil, err
		}
		lines = append(lines, b.String())
	}
	return lines, nil
}
