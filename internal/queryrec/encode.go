package queryrec

import (
	"fmt"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qir"
)

func recordValue(r Record) (ir.IRObject, error) {
	stmts := make(ir.IRArray, 0, len(r.Statements))
	for i, s := range r.Statements {
		obj, err := statementValue(s)
		if err != nil {
			return nil, fmt.Errorf("statements[%d]: %w", i, err)
		}
		fp, err := ir.Fingerprint(obj)
		if err != nil {
			return nil, fmt.Errorf("statements[%d]: %w", i, err)
		}
		stmts = append(stmts, append(obj, ir.O("fingerprint", ir.IRString(fp))))
	}
	doc := ir.IRObject{
		ir.O("version", ir.IRString(ir.RecordVersion)),
		ir.O("statements", stmts),
	}
	if len(r.Bindings) > 0 {
		bindings := make(ir.IRArray, 0, len(r.Bindings))
		for _, b := range r.Bindings {
			obj := ir.IRObject{ir.O("variable", ir.IRString(b.Variable))}
			if b.ConsumerPath != "" {
				obj = append(obj, ir.O("consumer_path", ir.IRString(b.ConsumerPath)))
			}
			bindings = append(bindings, obj)
		}
		doc = append(doc, ir.O("bindings", bindings))
	}
	return doc, nil
}

// StatementFingerprint returns the fingerprint Encode writes for s.
func StatementFingerprint(s qir.Statement) (string, error) {
	obj, err := statementValue(s)
	if err != nil {
		return "", err
	}
	return ir.Fingerprint(obj)
}

func statementValue(s qir.Statement) (ir.IRObject, error) {
	obj := ir.IRObject{
		ir.O("kind", ir.IRString(s.Kind)),
		ir.O("target", ir.IRString(s.Target)),
	}
	if s.Name != "" {
		obj = append(obj, ir.O("name", ir.IRString(s.Name)))
	}
	if s.Filter != nil {
		f, err := filterValue(s.Filter)
		if err != nil {
			return nil, err
		}
		obj = append(obj, ir.O("filter", f))
	}
	if s.Projection != nil {
		obj = append(obj, ir.O("projection", projectionValue(*s.Projection)))
	}
	if len(s.Sort) > 0 {
		obj = append(obj, ir.O("sort", sortValue(s.Sort)))
	}
	if s.Page != nil {
		if s.Page.Limit != nil {
			obj = append(obj, ir.O("limit", ir.IRInt(*s.Page.Limit)))
		}
		if s.Page.Skip != nil {
			obj = append(obj, ir.O("skip", ir.IRInt(*s.Page.Skip)))
		}
	}
	if len(s.Pipeline) > 0 {
		stages := make(ir.IRArray, 0, len(s.Pipeline))
		for i, st := range s.Pipeline {
			v, err := stageValue(st)
			if err != nil {
				return nil, fmt.Errorf("pipeline[%d]: %w", i, err)
			}
			stages = append(stages, v)
		}
		obj = append(obj, ir.O("pipeline", stages))
	}
	if len(s.Documents) > 0 {
		docs := make(ir.IRArray, len(s.Documents))
		for i, d := range s.Documents {
			docs[i] = d
		}
		obj = append(obj, ir.O("documents", docs))
	}
	if len(s.Update) > 0 {
		clauses := make(ir.IRArray, 0, len(s.Update))
		for _, c := range s.Update {
			clauses = append(clauses, ir.IRObject{ir.O("op", ir.IRString(c.Op)), ir.O("fields", c.Fields)})
		}
		obj = append(obj, ir.O("update", clauses))
	}
	if len(s.Schema) > 0 {
		fields := make(ir.IRArray, 0, len(s.Schema))
		for _, f := range s.Schema {
			fo := ir.IRObject{ir.O("name", ir.IRString(f.Name)), ir.O("type", ir.IRString(f.Type))}
			if len(f.Constraints) > 0 {
				cs := make(ir.IRArray, len(f.Constraints))
				for i, c := range f.Constraints {
					cs[i] = ir.IRString(c)
				}
				fo = append(fo, ir.O("constraints", cs))
			}
			fields = append(fields, fo)
		}
		obj = append(obj, ir.O("schema", fields))
	}
	return obj, nil
}

func filterValue(f qir.Filter) (ir.IRObject, error) {
	switch n := f.(type) {
	case qir.Comparison:
		return ir.IRObject{
			ir.O("type", ir.IRString("comparison")),
			ir.O("field", ir.IRString(n.Field)),
			ir.O("op", ir.IRString(n.Op)),
			ir.O("value", n.Value),
		}, nil
	case qir.Membership:
		obj := ir.IRObject{
			ir.O("type", ir.IRString("membership")),
			ir.O("field", ir.IRString(n.Field)),
			ir.O("op", ir.IRString(n.Op)),
		}
		if n.Binding != "" {
			return append(obj, ir.O("binding", ir.IRString(n.Binding))), nil
		}
		values := ir.IRArray(n.Values)
		if values == nil {
			values = ir.IRArray{}
		}
		return append(obj, ir.O("values", values)), nil
	case qir.Pattern:
		obj := ir.IRObject{
			ir.O("type", ir.IRString("pattern")),
			ir.O("field", ir.IRString(n.Field)),
			ir.O("regex", ir.IRString(n.Regex)),
		}
		if n.CaseInsensitive {
			obj = append(obj, ir.O("case_insensitive", ir.IRBool(true)))
		}
		return obj, nil
	case qir.Existence:
		return ir.IRObject{
			ir.O("type", ir.IRString("existence")),
			ir.O("field", ir.IRString(n.Field)),
			ir.O("exists", ir.IRBool(n.Exists)),
		}, nil
	case qir.Logical:
		children := make(ir.IRArray, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := filterValue(c)
			if err != nil {
				return nil, err
			}
			children = append(children, v)
		}
		return ir.IRObject{
			ir.O("type", ir.IRString("logical")),
			ir.O("op", ir.IRString(n.Op)),
			ir.O("children", children),
		}, nil
	case qir.SubqueryMembership:
		if n.Query == nil {
			return nil, invalid("filter", "subquery on %q has no query", n.Field)
		}
		q, err := statementValue(*n.Query)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{
			ir.O("type", ir.IRString("subquery")),
			ir.O("field", ir.IRString(n.Field)),
			ir.O("op", ir.IRString(n.Op)),
			ir.O("query", q),
		}, nil
	}
	return nil, invalid("filter", "unknown filter type %T", f)
}

func projectionValue(p qir.Projection) ir.IRArray {
	items := make(ir.IRArray, 0, len(p.Items))
	for _, item := range p.Items {
		obj := ir.IRObject{ir.O("field", ir.IRString(item.Field)), ir.O("include", ir.IRBool(item.Include))}
		if item.Source != "" {
			obj = append(obj, ir.O("source", ir.IRString(item.Source)))
		}
		items = append(items, obj)
	}
	return items
}

func sortValue(keys []qir.SortKey) ir.IRArray {
	out := make(ir.IRArray, 0, len(keys))
	for _, k := range keys {
		out = append(out, ir.IRObject{ir.O("field", ir.IRString(k.Field)), ir.O("direction", ir.IRString(k.Direction))})
	}
	return out
}

func stageValue(s qir.Stage) (ir.IRObject, error) {
	obj := ir.IRObject{ir.O("stage", ir.IRString(qir.StageName(s)))}
	switch st := s.(type) {
	case qir.MatchStage:
		f, err := filterValue(st.Filter)
		if err != nil {
			return nil, err
		}
		return append(obj, ir.O("filter", f)), nil
	case qir.GroupStage:
		keys := make(ir.IRArray, 0, len(st.Keys))
		for _, k := range st.Keys {
			ko := ir.IRObject{}
			if k.Name != "" {
				ko = append(ko, ir.O("name", ir.IRString(k.Name)))
			}
			keys = append(keys, append(ko, ir.O("field", ir.IRString(k.Field))))
		}
		aggs := make(ir.IRArray, 0, len(st.Aggregations))
		for _, a := range st.Aggregations {
			ao := ir.IRObject{ir.O("name", ir.IRString(a.Name)), ir.O("fn", ir.IRString(a.Fn))}
			if a.Source != "" {
				ao = append(ao, ir.O("source", ir.IRString(a.Source)))
			}
			aggs = append(aggs, ao)
		}
		return append(obj, ir.O("keys", keys), ir.O("aggregations", aggs)), nil
	case qir.ProjectStage:
		return append(obj, ir.O("projection", projectionValue(st.Projection))), nil
	case qir.SortStage:
		return append(obj, ir.O("keys", sortValue(st.Keys))), nil
	case qir.LimitStage:
		return append(obj, ir.O("n", ir.IRInt(st.N))), nil
	case qir.SkipStage:
		return append(obj, ir.O("n", ir.IRInt(st.N))), nil
	case qir.LookupStage:
		return append(obj,
			ir.O("from", ir.IRString(st.From)),
			ir.O("local_field", ir.IRString(st.LocalField)),
			ir.O("foreign_field", ir.IRString(st.ForeignField)),
			ir.O("as", ir.IRString(st.As)),
		), nil
	case qir.UnwindStage:
		return append(obj, ir.O("path", ir.IRString(st.Path)), ir.O("preserve_empty", ir.IRBool(st.PreserveEmpty))), nil
	}
	return nil, invalid("stage", "unknown stage type %T", s)
}
