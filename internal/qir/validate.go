package qir

import (
	"fmt"
	"slices"

	"github.com/roach88/querybridge/internal/qerr"
)

// Validate checks the structural invariants of a statement.
//
// Rules:
//  1. Logical nodes have the correct arity (not: 1, and/or: >= 1)
//  2. Every aggregation names a source field (count may omit it)
//  3. A schema declares at most one primary key
//  4. Projections respect polarity
//  5. Optional fields are only populated when meaningful for Kind
//
// Validate is a pure function with no side effects.
func Validate(s Statement) error {
	v := &validator{depth: NewDepthCounter(0)}
	return v.statement(s)
}

// ValidateWithLimit is Validate with an explicit nesting limit.
func ValidateWithLimit(s Statement, maxDepth int) error {
	v := &validator{depth: NewDepthCounter(maxDepth)}
	return v.statement(s)
}

type validator struct {
	depth *DepthCounter
}

func violation(node, format string, args ...any) error {
	return &qerr.InvariantViolationError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

func (v *validator) statement(s Statement) error {
	if err := v.depth.Enter(); err != nil {
		return err
	}
	defer v.depth.Exit()

	if s.Target == "" {
		return violation("Statement", "%s has no target", s.Kind)
	}
	if err := v.kindFields(s); err != nil {
		return err
	}
	if s.Filter != nil {
		if err := v.filter(s.Filter); err != nil {
			return err
		}
	}
	if s.Projection != nil {
		if err := s.Projection.check(); err != nil {
			return err
		}
	}
	if err := sortKeys(s.Sort); err != nil {
		return err
	}
	if s.Page != nil {
		if s.Page.Limit != nil && *s.Page.Limit < 0 {
			return violation("Pagination", "negative limit %d", *s.Page.Limit)
		}
		if s.Page.Skip != nil && *s.Page.Skip < 0 {
			return violation("Pagination", "negative skip %d", *s.Page.Skip)
		}
	}
	for i, stage := range s.Pipeline {
		if err := v.stage(stage); err != nil {
			return fmt.Errorf("pipeline[%d]: %w", i, err)
		}
	}
	for _, clause := range s.Update {
		if len(clause.Fields) == 0 {
			return violation("UpdateSpec", "operator %s has no fields", clause.Op)
		}
	}
	return schema(s.Schema)
}

// kindFields enforces that optional fields match the statement kind.
func (v *validator) kindFields(s Statement) error {
	node := "Statement(" + string(s.Kind) + ")"
	if s.Filter != nil && !s.Kind.HasFilter() {
		return violation(node, "filter not allowed")
	}
	if s.Kind != KindFind && (s.Projection != nil || len(s.Sort) > 0 || s.Page != nil) {
		return violation(node, "projection, sort and pagination are only allowed on find")
	}
	if (s.Kind == KindAggregate) != (len(s.Pipeline) > 0) {
		if s.Kind == KindAggregate {
			return violation(node, "pipeline must have at least one stage")
		}
		return violation(node, "pipeline not allowed")
	}
	switch {
	case s.Kind == KindInsertOne && len(s.Documents) != 1:
		return violation(node, "exactly one document required, got %d", len(s.Documents))
	case s.Kind == KindInsertMany && len(s.Documents) == 0:
		return violation(node, "at least one document required")
	case !s.Kind.IsInsert() && len(s.Documents) > 0:
		return violation(node, "documents not allowed")
	}
	if s.Kind.IsUpdate() != (len(s.Update) > 0) {
		if s.Kind.IsUpdate() {
			return violation(node, "update operators required")
		}
		return violation(node, "update operators not allowed")
	}
	if (s.Kind == KindCreateSchema) != (len(s.Schema) > 0) {
		if s.Kind == KindCreateSchema {
			return violation(node, "at least one field required")
		}
		return violation(node, "schema not allowed")
	}
	return nil
}

func (v *validator) filter(f Filter) error {
	if err := v.depth.Enter(); err != nil {
		return err
	}
	defer v.depth.Exit()

	switch node := f.(type) {
	case Comparison:
		if node.Field == "" {
			return violation("Comparison", "empty field")
		}
		if node.Value == nil {
			return violation("Comparison", "field %q has no value", node.Field)
		}
	case Membership:
		if node.Field == "" {
			return violation("Membership", "empty field")
		}
		if node.Binding != "" && len(node.Values) > 0 {
			return violation("Membership", "field %q has both a binding and literal values", node.Field)
		}
	case Pattern:
		if node.Field == "" {
			return violation("Pattern", "empty field")
		}
	case Existence:
		if node.Field == "" {
			return violation("Existence", "empty field")
		}
	case Logical:
		switch node.Op {
		case OpNot:
			if len(node.Children) != 1 {
				return violation("Logical(not)", "requires exactly one child, got %d", len(node.Children))
			}
		case OpAnd, OpOr:
			if len(node.Children) == 0 {
				return violation("Logical("+string(node.Op)+")", "requires at least one child")
			}
		default:
			return violation("Logical", "unknown operator %q", node.Op)
		}
		for _, child := range node.Children {
			if child == nil {
				return violation("Logical("+string(node.Op)+")", "nil child")
			}
			if err := v.filter(child); err != nil {
				return err
			}
		}
	case SubqueryMembership:
		if node.Query == nil {
			return violation("SubqueryMembership", "field %q has no query", node.Field)
		}
		if node.Query.Kind != KindFind {
			return violation("SubqueryMembership", "inner statement must be a find, got %s", node.Query.Kind)
		}
		return v.statement(*node.Query)
	default:
		return violation("Filter", "unknown filter type %T", f)
	}
	return nil
}

func (v *validator) stage(s Stage) error {
	switch st := s.(type) {
	case MatchStage:
		if st.Filter == nil {
			return violation("MatchStage", "nil filter")
		}
		return v.filter(st.Filter)
	case GroupStage:
		return group(st)
	case ProjectStage:
		if len(st.Projection.Items) == 0 {
			return violation("ProjectStage", "empty projection")
		}
		return st.Projection.check()
	case SortStage:
		if len(st.Keys) == 0 {
			return violation("SortStage", "no sort keys")
		}
		return sortKeys(st.Keys)
	case LimitStage:
		if st.N < 0 {
			return violation("LimitStage", "negative limit %d", st.N)
		}
	case SkipStage:
		if st.N < 0 {
			return violation("SkipStage", "negative skip %d", st.N)
		}
	case LookupStage:
		if st.From == "" || st.LocalField == "" || st.ForeignField == "" || st.As == "" {
			return violation("LookupStage", "from, localField, foreignField and as are required")
		}
	case UnwindStage:
		if st.Path == "" {
			return violation("UnwindStage", "empty path")
		}
	default:
		return violation("Stage", "unknown stage type %T", s)
	}
	return nil
}

func group(g GroupStage) error {
	for i, k := range g.Keys {
		if k.Field == "" {
			return violation("GroupStage", "key %d has no field", i)
		}
		if k.Name == "" && len(g.Keys) > 1 {
			return violation("GroupStage", "compound key %d has no name", i)
		}
	}
	names := make(map[string]bool, len(g.Aggregations))
	for _, a := range g.Aggregations {
		if a.Name == "" {
			return violation("GroupStage", "aggregation without a name")
		}
		if names[a.Name] {
			return violation("GroupStage", "aggregation %q declared twice", a.Name)
		}
		names[a.Name] = true
		switch a.Fn {
		case AccSum, AccAvg, AccMin, AccMax, AccFirst, AccLast, AccPush, AccAddToSet:
			if a.Source == "" {
				return violation("GroupStage", "aggregation %q (%s) has no source field", a.Name, a.Fn)
			}
		case AccCount:
		default:
			return violation("GroupStage", "aggregation %q has unknown function %q", a.Name, a.Fn)
		}
	}
	return nil
}

func sortKeys(keys []SortKey) error {
	for _, k := range keys {
		if k.Field == "" {
			return violation("Sort", "empty field")
		}
		if k.Direction != Asc && k.Direction != Desc {
			return violation("Sort", "field %q has invalid direction %q", k.Field, k.Direction)
		}
	}
	return nil
}

func schema(def SchemaDef) error {
	seen := make(map[string]bool, len(def))
	primary := ""
	for _, f := range def {
		if f.Name == "" {
			return violation("SchemaDef", "field without a name")
		}
		if seen[f.Name] {
			return violation("SchemaDef", "field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		if !validType(f.Type) {
			return violation("SchemaDef", "field %q has unknown type %q", f.Name, f.Type)
		}
		if f.Has(PrimaryKey) {
			if primary != "" {
				return violation("SchemaDef", "fields %q and %q are both primary keys", primary, f.Name)
			}
			primary = f.Name
		}
	}
	return nil
}

func validType(t FieldType) bool {
	return slices.Contains(FieldTypes, t)
}
