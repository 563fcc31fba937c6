package qir

import (
	"fmt"
	"slices"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
)

// Statement is one canonical query.
//
// Optional fields are populated only when meaningful for Kind:
//
//	Find          Filter, Projection, Sort, Page
//	Aggregate     Pipeline
//	Insert*       Documents
//	Update*       Filter, Update
//	Delete*       Filter
//	CreateSchema  Schema
//
// Name is set only by the resolver, on producer statements; it is the
// variable the producer's result is bound to.
type Statement struct {
	Kind       Kind
	Target     string
	Name       string
	Filter     Filter
	Projection *Projection
	Sort       []SortKey
	Page       *Pagination
	Pipeline   []Stage
	Documents  []ir.IRObject
	Update     UpdateSpec
	Schema     SchemaDef
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one entry of a sort specification. The first key is primary.
type SortKey struct {
	Field     string
	Direction Direction
}

// Pagination bounds a Find. Nil fields are absent.
type Pagination struct {
	Limit *int64
	Skip  *int64
}

// Int64 returns a pointer to n, for Pagination literals.
func Int64(n int64) *int64 { return &n }

// IDField is the identifier field whose exclusion may mix with inclusions.
const IDField = "_id"

// ProjectionItem is one projected field.
//
// An inclusion has Include set; an exclusion has Include unset; a computed
// alias has Source set to the source field path and Include set.
type ProjectionItem struct {
	Field   string
	Include bool
	Source  string
}

// Computed reports whether the item is an alias of another field.
func (p ProjectionItem) Computed() bool { return p.Source != "" }

// Projection is an ordered list of projected fields.
type Projection struct {
	Items []ProjectionItem
}

// NewProjection builds a Projection, enforcing the polarity rule:
// inclusions and exclusions never mix except exclusion of _id, and
// exclusions never mix with computed items.
func NewProjection(items ...ProjectionItem) (*Projection, error) {
	p := &Projection{Items: items}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p Projection) check() error {
	var include, exclude, computed bool
	seen := make(map[string]bool, len(p.Items))
	for _, item := range p.Items {
		if item.Field == "" {
			return &qerr.InvariantViolationError{Node: "Projection", Reason: "empty field name"}
		}
		if seen[item.Field] {
			return &qerr.InvariantViolationError{Node: "Projection", Reason: fmt.Sprintf("field %q projected twice", item.Field)}
		}
		seen[item.Field] = true
		switch {
		case item.Computed():
			computed = true
		case item.Include:
			include = true
		case item.Field != IDField:
			exclude = true
		}
	}
	if exclude && (include || computed) {
		return &qerr.InvariantViolationError{Node: "Projection", Reason: "inclusion and exclusion cannot be mixed (only _id may be excluded alongside inclusions)"}
	}
	return nil
}

// Exclusive reports whether the projection only excludes fields.
func (p Projection) Exclusive() bool {
	if len(p.Items) == 0 {
		return false
	}
	for _, item := range p.Items {
		if item.Include {
			return false
		}
	}
	return true
}

// Included returns the included or computed items, dropping exclusions.
func (p Projection) Included() []ProjectionItem {
	var out []ProjectionItem
	for _, item := range p.Items {
		if item.Include {
			out = append(out, item)
		}
	}
	return out
}

// UpdateOp is a canonical update operator.
type UpdateOp string

const (
	UpdSet         UpdateOp = "set"
	UpdUnset       UpdateOp = "unset"
	UpdInc         UpdateOp = "inc"
	UpdMul         UpdateOp = "mul"
	UpdRename      UpdateOp = "rename"
	UpdMin         UpdateOp = "min"
	UpdMax         UpdateOp = "max"
	UpdCurrentDate UpdateOp = "currentDate"
	UpdPush        UpdateOp = "push"
	UpdPull        UpdateOp = "pull"
	UpdAddToSet    UpdateOp = "addToSet"
)

// UpdateClause applies one operator to a set of fields.
type UpdateClause struct {
	Op     UpdateOp
	Fields ir.IRObject
}

// UpdateSpec keeps operators in the order they were written. Each operator
// appears at most once.
type UpdateSpec []UpdateClause

// Add returns a copy of u with field set under op, merging into an
// existing clause for op.
func (u UpdateSpec) Add(op UpdateOp, field string, value ir.IRValue) UpdateSpec {
	out := slices.Clone(u)
	for i, c := range out {
		if c.Op == op {
			out[i].Fields = c.Fields.With(field, value)
			return out
		}
	}
	return append(out, UpdateClause{Op: op, Fields: ir.IRObject{ir.O(field, value)}})
}

// FieldType is a canonical scalar column type.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeLong     FieldType = "long"
	TypeDouble   FieldType = "double"
	TypeDecimal  FieldType = "decimal"
	TypeBool     FieldType = "bool"
	TypeDate     FieldType = "date"
	TypeObjectID FieldType = "objectId"
	TypeArray    FieldType = "array"
	TypeObject   FieldType = "object"
)

// FieldTypes lists every canonical type.
var FieldTypes = []FieldType{
	TypeString, TypeInt, TypeLong, TypeDouble, TypeDecimal,
	TypeBool, TypeDate, TypeObjectID, TypeArray, TypeObject,
}

// Constraint is a column constraint.
type Constraint string

const (
	Required   Constraint = "required"
	Unique     Constraint = "unique"
	PrimaryKey Constraint = "primaryKey"
)

// constraintOrder is the order constraints are stored and emitted in.
var constraintOrder = []Constraint{Required, Unique, PrimaryKey}

// FieldDef declares one field of a schema.
type FieldDef struct {
	Name        string
	Type        FieldType
	Constraints []Constraint
}

// Has reports whether the field carries constraint c.
func (f FieldDef) Has(c Constraint) bool {
	return slices.Contains(f.Constraints, c)
}

// With returns a copy of f with c added, constraints kept in canonical order.
func (f FieldDef) With(c Constraint) FieldDef {
	if f.Has(c) {
		return f
	}
	var out []Constraint
	for _, known := range constraintOrder {
		if known == c || f.Has(known) {
			out = append(out, known)
		}
	}
	f.Constraints = out
	return f
}

// SchemaDef is an ordered list of field declarations.
type SchemaDef []FieldDef

// Binding ties a producer's result to the consumer filter that uses it.
type Binding struct {
	Variable     string
	Producer     Statement
	ConsumerPath string
}

// OutputField returns the single field a producer statement yields.
func OutputField(s Statement) (string, error) {
	if s.Kind != KindFind {
		return "", &qerr.InvariantViolationError{Node: "Binding", Reason: fmt.Sprintf("producer must be a find, got %s", s.Kind)}
	}
	if s.Projection == nil {
		return "", &qerr.InvariantViolationError{Node: "Binding", Reason: "producer must project exactly one field"}
	}
	items := s.Projection.Included()
	if len(items) != 1 {
		return "", &qerr.InvariantViolationError{Node: "Binding", Reason: fmt.Sprintf("producer must project exactly one field, got %d", len(items))}
	}
	return items[0].Field, nil
}
