package queryrec

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

func decodeJSON(data []byte) (ir.IRValue, error) {
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return nil, &qerr.LiteralSyntaxError{Position: int(syn.Offset), Reason: syn.Error()}
		}
		return nil, &qerr.LiteralSyntaxError{Reason: err.Error()}
	}
	return v, nil
}

// decoder turns a generic value tree into statements.
type decoder struct {
	depth *qir.DepthCounter
}

func (d *decoder) record(root ir.IRValue) (Record, error) {
	obj, err := asObject(root, "document")
	if err != nil {
		return Record{}, err
	}
	if err := checkKeys(obj, "document", "version", "statements", "bindings"); err != nil {
		return Record{}, err
	}
	if v, ok := obj.Get("version"); ok {
		s, isStr := v.(ir.IRString)
		if !isStr || string(s) != ir.RecordVersion {
			return Record{}, invalid("document", "unsupported version %s (want %q)", describe(v), ir.RecordVersion)
		}
	}

	var rec Record
	raw, ok := obj.Get("statements")
	if !ok {
		return Record{}, invalid("document", "missing statements")
	}
	list, ok := raw.(ir.IRArray)
	if !ok {
		return Record{}, invalid("document", "statements must be an array, got %s", ir.TypeName(raw))
	}
	for i, item := range list {
		s, err := d.statement(item)
		if err != nil {
			return Record{}, fmt.Errorf("statements[%d]: %w", i, err)
		}
		rec.Statements = append(rec.Statements, s)
	}

	if raw, ok := obj.Get("bindings"); ok {
		list, ok := raw.(ir.IRArray)
		if !ok {
			return Record{}, invalid("document", "bindings must be an array, got %s", ir.TypeName(raw))
		}
		for i, item := range list {
			b, err := binding(item, rec.Statements)
			if err != nil {
				return Record{}, fmt.Errorf("bindings[%d]: %w", i, err)
			}
			rec.Bindings = append(rec.Bindings, b)
		}
	}
	return rec, nil
}

func binding(v ir.IRValue, stmts []qir.Statement) (qir.Binding, error) {
	obj, err := asObject(v, "binding")
	if err != nil {
		return qir.Binding{}, err
	}
	if err := checkKeys(obj, "binding", "variable", "consumer_path"); err != nil {
		return qir.Binding{}, err
	}
	variable, err := str(obj, "variable", "binding", true)
	if err != nil {
		return qir.Binding{}, err
	}
	path, err := str(obj, "consumer_path", "binding", false)
	if err != nil {
		return qir.Binding{}, err
	}
	i := slices.IndexFunc(stmts, func(s qir.Statement) bool { return s.Name == variable })
	if i < 0 {
		return qir.Binding{}, invalid("binding", "no statement is named %q", variable)
	}
	return qir.Binding{Variable: variable, Producer: stmts[i], ConsumerPath: path}, nil
}

var statementKeys = []string{
	"kind", "target", "name", "filter", "projection", "sort", "limit", "skip",
	"pipeline", "documents", "update", "schema", "fingerprint",
}

func (d *decoder) statement(v ir.IRValue) (qir.Statement, error) {
	if err := d.depth.Enter(); err != nil {
		return qir.Statement{}, err
	}
	defer d.depth.Exit()

	obj, err := asObject(v, "statement")
	if err != nil {
		return qir.Statement{}, err
	}
	if err := checkKeys(obj, "statement", statementKeys...); err != nil {
		return qir.Statement{}, err
	}
	kind, err := str(obj, "kind", "statement", true)
	if err != nil {
		return qir.Statement{}, err
	}
	s := qir.Statement{Kind: qir.Kind(kind)}
	if !slices.Contains(qir.Kinds, s.Kind) {
		return qir.Statement{}, invalid("statement", "unknown kind %q", kind)
	}
	if s.Target, err = str(obj, "target", "statement", true); err != nil {
		return qir.Statement{}, err
	}
	if s.Name, err = str(obj, "name", "statement", false); err != nil {
		return qir.Statement{}, err
	}

	for _, p := range obj {
		switch p.Key {
		case "filter":
			s.Filter, err = d.filter(p.Value)
		case "projection":
			s.Projection, err = projection(p.Value)
		case "sort":
			s.Sort, err = sortKeys(p.Value)
		case "limit", "skip":
			var n int64
			if n, err = count(p.Value, p.Key); err == nil {
				if s.Page == nil {
					s.Page = &qir.Pagination{}
				}
				if p.Key == "limit" {
					s.Page.Limit = &n
				} else {
					s.Page.Skip = &n
				}
			}
		case "pipeline":
			s.Pipeline, err = d.pipeline(p.Value)
		case "documents":
			s.Documents, err = d.documents(p.Value)
		case "update":
			s.Update, err = d.updateSpec(p.Value)
		case "schema":
			s.Schema, err = schema(p.Value)
		}
		if err != nil {
			return qir.Statement{}, err
		}
	}
	return s, nil
}

func (d *decoder) filter(v ir.IRValue) (qir.Filter, error) {
	if err := d.depth.Enter(); err != nil {
		return nil, err
	}
	defer d.depth.Exit()

	obj, err := asObject(v, "filter")
	if err != nil {
		return nil, err
	}
	typ, err := str(obj, "type", "filter", true)
	if err != nil {
		return nil, err
	}
	node := "filter(" + typ + ")"
	switch typ {
	case "comparison":
		if err := checkKeys(obj, node, "type", "field", "op", "value"); err != nil {
			return nil, err
		}
		field, op, err := fieldOp(obj, node, compareOps)
		if err != nil {
			return nil, err
		}
		val, ok := obj.Get("value")
		if !ok {
			return nil, invalid(node, "missing value")
		}
		if err := d.value(val); err != nil {
			return nil, err
		}
		return qir.Comparison{Field: field, Op: qir.CompareOp(op), Value: val}, nil
	case "membership":
		if err := checkKeys(obj, node, "type", "field", "op", "values", "binding"); err != nil {
			return nil, err
		}
		field, op, err := fieldOp(obj, node, memberOps)
		if err != nil {
			return nil, err
		}
		m := qir.Membership{Field: field, Op: qir.MemberOp(op)}
		if m.Binding, err = str(obj, "binding", node, false); err != nil {
			return nil, err
		}
		raw, hasValues := obj.Get("values")
		switch {
		case hasValues && m.Binding != "":
			return nil, invalid(node, "binding and values are exclusive")
		case hasValues:
			arr, ok := raw.(ir.IRArray)
			if !ok {
				return nil, invalid(node, "values must be an array, got %s", ir.TypeName(raw))
			}
			if err := d.value(arr); err != nil {
				return nil, err
			}
			m.Values = []ir.IRValue(arr)
		case m.Binding == "":
			return nil, invalid(node, "values or binding required")
		}
		return m, nil
	case "pattern":
		if err := checkKeys(obj, node, "type", "field", "regex", "case_insensitive"); err != nil {
			return nil, err
		}
		field, err := str(obj, "field", node, true)
		if err != nil {
			return nil, err
		}
		re, ok := obj.Get("regex")
		if !ok {
			return nil, invalid(node, "missing regex")
		}
		rs, ok := re.(ir.IRString)
		if !ok {
			return nil, invalid(node, "regex must be a string, got %s", ir.TypeName(re))
		}
		ci, err := boolean(obj, "case_insensitive", node)
		if err != nil {
			return nil, err
		}
		return qir.Pattern{Field: field, Regex: string(rs), CaseInsensitive: ci}, nil
	case "existence":
		if err := checkKeys(obj, node, "type", "field", "exists"); err != nil {
			return nil, err
		}
		field, err := str(obj, "field", node, true)
		if err != nil {
			return nil, err
		}
		if _, ok := obj.Get("exists"); !ok {
			return nil, invalid(node, "missing exists")
		}
		exists, err := boolean(obj, "exists", node)
		if err != nil {
			return nil, err
		}
		return qir.Existence{Field: field, Exists: exists}, nil
	case "logical":
		if err := checkKeys(obj, node, "type", "op", "children"); err != nil {
			return nil, err
		}
		op, err := str(obj, "op", node, true)
		if err != nil {
			return nil, err
		}
		raw, ok := obj.Get("children")
		if !ok {
			return nil, invalid(node, "missing children")
		}
		arr, ok := raw.(ir.IRArray)
		if !ok {
			return nil, invalid(node, "children must be an array, got %s", ir.TypeName(raw))
		}
		if op != string(qir.OpAnd) && op != string(qir.OpOr) && op != string(qir.OpNot) {
			return nil, unsupported(node, op)
		}
		l := qir.Logical{Op: qir.LogicalOp(op)}
		for i, c := range arr {
			child, err := d.filter(c)
			if err != nil {
				return nil, fmt.Errorf("children[%d]: %w", i, err)
			}
			l.Children = append(l.Children, child)
		}
		return l, nil
	case "subquery":
		if err := checkKeys(obj, node, "type", "field", "op", "query"); err != nil {
			return nil, err
		}
		field, op, err := fieldOp(obj, node, memberOps)
		if err != nil {
			return nil, err
		}
		raw, ok := obj.Get("query")
		if !ok {
			return nil, invalid(node, "missing query")
		}
		q, err := d.statement(raw)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return qir.SubqueryMembership{Field: field, Op: qir.MemberOp(op), Query: &q}, nil
	}
	return nil, invalid("filter", "unknown filter type %q", typ)
}

var (
	compareOps = []string{string(qir.OpEq), string(qir.OpNe), string(qir.OpGt), string(qir.OpGte), string(qir.OpLt), string(qir.OpLte)}
	memberOps  = []string{string(qir.OpIn), string(qir.OpNotIn)}
)

func fieldOp(obj ir.IRObject, node string, ops []string) (string, string, error) {
	field, err := str(obj, "field", node, true)
	if err != nil {
		return "", "", err
	}
	op, err := str(obj, "op", node, true)
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(ops, op) {
		return "", "", unsupported(node, op)
	}
	return field, op, nil
}

func unsupported(category, op string) error {
	return &qerr.UnsupportedOperatorError{Dialect: string(qir.Record), Category: category, Operator: op}
}

// value bounds the nesting of a literal.
func (d *decoder) value(v ir.IRValue) error {
	switch val := v.(type) {
	case ir.IRArray:
		if err := d.depth.Enter(); err != nil {
			return err
		}
		defer d.depth.Exit()
		for _, elem := range val {
			if err := d.value(elem); err != nil {
				return err
			}
		}
	case ir.IRObject:
		if err := d.depth.Enter(); err != nil {
			return err
		}
		defer d.depth.Exit()
		for _, p := range val {
			if err := d.value(p.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *decoder) pipeline(v ir.IRValue) ([]qir.Stage, error) {
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, invalid("statement", "pipeline must be an array, got %s", ir.TypeName(v))
	}
	stages := make([]qir.Stage, 0, len(arr))
	for i, item := range arr {
		st, err := d.stage(item)
		if err != nil {
			return nil, fmt.Errorf("pipeline[%d]: %w", i, err)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func (d *decoder) stage(v ir.IRValue) (qir.Stage, error) {
	obj, err := asObject(v, "stage")
	if err != nil {
		return nil, err
	}
	name, err := str(obj, "stage", "stage", true)
	if err != nil {
		return nil, err
	}
	node := "stage(" + name + ")"
	switch name {
	case "match":
		if err := checkKeys(obj, node, "stage", "filter"); err != nil {
			return nil, err
		}
		raw, ok := obj.Get("filter")
		if !ok {
			return nil, invalid(node, "missing filter")
		}
		f, err := d.filter(raw)
		if err != nil {
			return nil, err
		}
		return qir.MatchStage{Filter: f}, nil
	case "group":
		if err := checkKeys(obj, node, "stage", "keys", "aggregations"); err != nil {
			return nil, err
		}
		return group(obj, node)
	case "project":
		if err := checkKeys(obj, node, "stage", "projection"); err != nil {
			return nil, err
		}
		raw, _ := obj.Get("projection")
		p, err := projection(raw)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, invalid(node, "missing projection")
		}
		return qir.ProjectStage{Projection: *p}, nil
	case "sort":
		if err := checkKeys(obj, node, "stage", "keys"); err != nil {
			return nil, err
		}
		raw, _ := obj.Get("keys")
		keys, err := sortKeys(raw)
		if err != nil {
			return nil, err
		}
		return qir.SortStage{Keys: keys}, nil
	case "limit", "skip":
		if err := checkKeys(obj, node, "stage", "n"); err != nil {
			return nil, err
		}
		raw, ok := obj.Get("n")
		if !ok {
			return nil, invalid(node, "missing n")
		}
		n, err := count(raw, name)
		if err != nil {
			return nil, err
		}
		if name == "limit" {
			return qir.LimitStage{N: n}, nil
		}
		return qir.SkipStage{N: n}, nil
	case "lookup":
		if err := checkKeys(obj, node, "stage", "from", "local_field", "foreign_field", "as"); err != nil {
			return nil, err
		}
		var l qir.LookupStage
		for _, f := range []struct {
			key string
			dst *string
		}{{"from", &l.From}, {"local_field", &l.LocalField}, {"foreign_field", &l.ForeignField}, {"as", &l.As}} {
			if *f.dst, err = str(obj, f.key, node, true); err != nil {
				return nil, err
			}
		}
		return l, nil
	case "unwind":
		if err := checkKeys(obj, node, "stage", "path", "preserve_empty"); err != nil {
			return nil, err
		}
		path, err := str(obj, "path", node, true)
		if err != nil {
			return nil, err
		}
		preserve, err := boolean(obj, "preserve_empty", node)
		if err != nil {
			return nil, err
		}
		return qir.UnwindStage{Path: path, PreserveEmpty: preserve}, nil
	}
	return nil, unsupported("stage", name)
}

func group(obj ir.IRObject, node string) (qir.Stage, error) {
	var g qir.GroupStage
	if raw, ok := obj.Get("keys"); ok {
		items, err := objects(raw, node+" keys")
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := checkKeys(item, node+" key", "name", "field"); err != nil {
				return nil, err
			}
			var k qir.GroupKey
			if k.Name, err = str(item, "name", node+" key", false); err != nil {
				return nil, err
			}
			if k.Field, err = str(item, "field", node+" key", true); err != nil {
				return nil, err
			}
			g.Keys = append(g.Keys, k)
		}
	}
	if raw, ok := obj.Get("aggregations"); ok {
		items, err := objects(raw, node+" aggregations")
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if err := checkKeys(item, node+" aggregation", "name", "fn", "source"); err != nil {
				return nil, err
			}
			var a qir.Aggregation
			if a.Name, err = str(item, "name", node+" aggregation", true); err != nil {
				return nil, err
			}
			fn, err := str(item, "fn", node+" aggregation", true)
			if err != nil {
				return nil, err
			}
			a.Fn = qir.AccFn(fn)
			if a.Source, err = str(item, "source", node+" aggregation", false); err != nil {
				return nil, err
			}
			g.Aggregations = append(g.Aggregations, a)
		}
	}
	return g, nil
}

func projection(v ir.IRValue) (*qir.Projection, error) {
	if v == nil {
		return nil, nil
	}
	items, err := objects(v, "projection")
	if err != nil {
		return nil, err
	}
	out := make([]qir.ProjectionItem, 0, len(items))
	for _, item := range items {
		if err := checkKeys(item, "projection item", "field", "include", "source"); err != nil {
			return nil, err
		}
		var p qir.ProjectionItem
		if p.Field, err = str(item, "field", "projection item", true); err != nil {
			return nil, err
		}
		if p.Include, err = boolean(item, "include", "projection item"); err != nil {
			return nil, err
		}
		if p.Source, err = str(item, "source", "projection item", false); err != nil {
			return nil, err
		}
		if p.Source != "" {
			p.Include = true
		}
		out = append(out, p)
	}
	return qir.NewProjection(out...)
}

func sortKeys(v ir.IRValue) ([]qir.SortKey, error) {
	if v == nil {
		return nil, invalid("sort", "missing keys")
	}
	items, err := objects(v, "sort")
	if err != nil {
		return nil, err
	}
	keys := make([]qir.SortKey, 0, len(items))
	for _, item := range items {
		if err := checkKeys(item, "sort key", "field", "direction"); err != nil {
			return nil, err
		}
		field, err := str(item, "field", "sort key", true)
		if err != nil {
			return nil, err
		}
		dir, err := str(item, "direction", "sort key", false)
		if err != nil {
			return nil, err
		}
		if dir == "" {
			dir = string(qir.Asc)
		}
		keys = append(keys, qir.SortKey{Field: field, Direction: qir.Direction(dir)})
	}
	return keys, nil
}

func (d *decoder) documents(v ir.IRValue) ([]ir.IRObject, error) {
	items, err := objects(v, "documents")
	if err != nil {
		return nil, err
	}
	for _, doc := range items {
		if err := d.value(doc); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (d *decoder) updateSpec(v ir.IRValue) (qir.UpdateSpec, error) {
	items, err := objects(v, "update")
	if err != nil {
		return nil, err
	}
	var spec qir.UpdateSpec
	for _, item := range items {
		if err := checkKeys(item, "update clause", "op", "fields"); err != nil {
			return nil, err
		}
		op, err := str(item, "op", "update clause", true)
		if err != nil {
			return nil, err
		}
		raw, ok := item.Get("fields")
		if !ok {
			return nil, invalid("update clause", "missing fields")
		}
		fields, err := asObject(raw, "update fields")
		if err != nil {
			return nil, err
		}
		if err := d.value(fields); err != nil {
			return nil, err
		}
		if slices.ContainsFunc(spec, func(c qir.UpdateClause) bool { return c.Op == qir.UpdateOp(op) }) {
			return nil, invalid("update clause", "operator %q appears twice", op)
		}
		spec = append(spec, qir.UpdateClause{Op: qir.UpdateOp(op), Fields: fields})
	}
	return spec, nil
}

func schema(v ir.IRValue) (qir.SchemaDef, error) {
	items, err := objects(v, "schema")
	if err != nil {
		return nil, err
	}
	def := make(qir.SchemaDef, 0, len(items))
	for _, item := range items {
		if err := checkKeys(item, "schema field", "name", "type", "constraints"); err != nil {
			return nil, err
		}
		var f qir.FieldDef
		if f.Name, err = str(item, "name", "schema field", true); err != nil {
			return nil, err
		}
		typ, err := str(item, "type", "schema field", true)
		if err != nil {
			return nil, err
		}
		f.Type = qir.FieldType(typ)
		if raw, ok := item.Get("constraints"); ok {
			arr, ok := raw.(ir.IRArray)
			if !ok {
				return nil, invalid("schema field", "constraints must be an array, got %s", ir.TypeName(raw))
			}
			for _, c := range arr {
				cs, ok := c.(ir.IRString)
				switch {
				case !ok:
					return nil, invalid("schema field", "constraint must be a string, got %s", ir.TypeName(c))
				case qir.Constraint(cs) != qir.Required && qir.Constraint(cs) != qir.Unique && qir.Constraint(cs) != qir.PrimaryKey:
					return nil, invalid("schema field", "unknown constraint %q", string(cs))
				}
				f = f.With(qir.Constraint(cs))
			}
		}
		def = append(def, f)
	}
	return def, nil
}

func asObject(v ir.IRValue, node string) (ir.IRObject, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, invalid(node, "expected an object, got %s", ir.TypeName(v))
	}
	return obj, nil
}

func objects(v ir.IRValue, node string) ([]ir.IRObject, error) {
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, invalid(node, "expected an array, got %s", ir.TypeName(v))
	}
	out := make([]ir.IRObject, 0, len(arr))
	for i, item := range arr {
		obj, err := asObject(item, fmt.Sprintf("%s[%d]", node, i))
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

func checkKeys(obj ir.IRObject, node string, allowed ...string) error {
	seen := make(map[string]bool, len(obj))
	for _, p := range obj {
		if !slices.Contains(allowed, p.Key) {
			return invalid(node, "unknown key %q", p.Key)
		}
		if seen[p.Key] {
			return invalid(node, "duplicate key %q", p.Key)
		}
		seen[p.Key] = true
	}
	return nil
}

func str(obj ir.IRObject, key, node string, required bool) (string, error) {
	v, ok := obj.Get(key)
	if !ok {
		if required {
			return "", invalid(node, "missing %s", key)
		}
		return "", nil
	}
	s, ok := v.(ir.IRString)
	if !ok {
		return "", invalid(node, "%s must be a string, got %s", key, ir.TypeName(v))
	}
	if required && s == "" {
		return "", invalid(node, "empty %s", key)
	}
	return string(s), nil
}

func boolean(obj ir.IRObject, key, node string) (bool, error) {
	v, ok := obj.Get(key)
	if !ok {
		return false, nil
	}
	b, ok := v.(ir.IRBool)
	if !ok {
		return false, invalid(node, "%s must be a bool, got %s", key, ir.TypeName(v))
	}
	return bool(b), nil
}

func count(v ir.IRValue, what string) (int64, error) {
	n, ok := ir.AsInt(v)
	if !ok || n < 0 {
		return 0, invalid(what, "must be a non-negative integer, got %s", describe(v))
	}
	return n, nil
}

func describe(v ir.IRValue) string {
	out, err := ir.MarshalIRValue(v, "")
	if err != nil {
		return ir.TypeName(v)
	}
	return string(out)
}
