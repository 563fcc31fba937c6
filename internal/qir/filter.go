package qir

import "github.com/roach88/querybridge/internal/ir"

// Filter represents a boolean predicate tree.
//
// This is a sealed interface - only types in this package implement it.
// A nil Filter means "match everything".
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// CompareOp is a canonical comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "eq"
	OpNe  CompareOp = "ne"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
)

// MemberOp is a canonical membership operator.
type MemberOp string

const (
	OpIn    MemberOp = "in"
	OpNotIn MemberOp = "notIn"
)

// LogicalOp is a canonical logical connective.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
	OpNot LogicalOp = "not"
)

// Comparison represents <field> <op> <value>.
//
// Field is a dot-path. Comparing against ir.IRNull with eq/ne is how
// "IS NULL"/"IS NOT NULL" style tests on values are expressed.
type Comparison struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (Comparison) filterNode() {}

// Membership represents <field> IN (<values>).
//
// When Binding is set the values are the materialized result of a prior
// producer statement and Values is empty.
type Membership struct {
	Field   string
	Op      MemberOp
	Values  []ir.IRValue
	Binding string
}

func (Membership) filterNode() {}

// Pattern represents a regular-expression match on a field.
// Regex uses RE2-compatible syntax without delimiters.
type Pattern struct {
	Field           string
	Regex           string
	CaseInsensitive bool
}

func (Pattern) filterNode() {}

// Existence tests whether a field is present (and non-null).
type Existence struct {
	Field  string
	Exists bool
}

func (Existence) filterNode() {}

// Logical combines child filters.
// Invariant: OpNot has exactly one child; OpAnd/OpOr have at least one.
type Logical struct {
	Op       LogicalOp
	Children []Filter
}

func (Logical) filterNode() {}

// SubqueryMembership represents <field> IN (<query>), the dependency case.
// Query must be a Find whose output is a single field.
type SubqueryMembership struct {
	Field string
	Op    MemberOp
	Query *Statement
}

func (SubqueryMembership) filterNode() {}

// And builds an and-node, collapsing a single child to itself.
func And(children ...Filter) Filter {
	if len(children) == 1 {
		return children[0]
	}
	return Logical{Op: OpAnd, Children: children}
}

// Not builds a not-node.
func Not(child Filter) Filter {
	return Logical{Op: OpNot, Children: []Filter{child}}
}
