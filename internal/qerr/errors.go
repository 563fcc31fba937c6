// Package qerr defines the error kinds raised while translating queries.
//
// Every kind is a struct type with a stable Code. All kinds are terminal
// for the statement being processed: there is no partial output and
// nothing is retried.
package qerr

import (
	"errors"
	"fmt"
)

// Code categorizes translation errors.
type Code string

const (
	// CodeLiteralSyntax indicates a malformed embedded literal.
	CodeLiteralSyntax Code = "LITERAL_SYNTAX"

	// CodeRelationalSyntax indicates malformed relational text.
	CodeRelationalSyntax Code = "RELATIONAL_SYNTAX"

	// CodeDocumentMethodSyntax indicates malformed document-method text.
	CodeDocumentMethodSyntax Code = "DOCUMENT_METHOD_SYNTAX"

	// CodeUnsupportedOperator indicates an operator missing from a dialect's table.
	CodeUnsupportedOperator Code = "UNSUPPORTED_OPERATOR"

	// CodeUnsupportedChainedCall indicates an unknown chained method call.
	CodeUnsupportedChainedCall Code = "UNSUPPORTED_CHAINED_CALL"

	// CodeInvariantViolation indicates a structurally invalid QIR.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// CodeCyclicDependency indicates a producer that depends on its consumer.
	CodeCyclicDependency Code = "CYCLIC_DEPENDENCY"

	// CodeDepthExceeded indicates nesting beyond the configured limit.
	CodeDepthExceeded Code = "DEPTH_EXCEEDED"

	// CodeUnrepresentable indicates a construct the target dialect cannot express.
	CodeUnrepresentable Code = "UNREPRESENTABLE_CONSTRUCT"

	// CodeUnknown is returned by CodeOf for errors outside this package.
	CodeUnknown Code = "UNKNOWN"
)

// Coded is implemented by every error kind in this package.
type Coded interface {
	error
	Code() Code
}

// CodeOf returns the code of the first Coded error in err's chain.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}

// LiteralSyntaxError reports a literal that cannot be parsed.
// Position is a byte offset into the statement text.
type LiteralSyntaxError struct {
	Position int
	Reason   string
}

func (e *LiteralSyntaxError) Error() string {
	return fmt.Sprintf("literal syntax error at position %d: %s", e.Position, e.Reason)
}

func (e *LiteralSyntaxError) Code() Code { return CodeLiteralSyntax }

// RelationalSyntaxError reports malformed relational text.
type RelationalSyntaxError struct {
	// Clause names the clause being parsed (e.g. "WHERE"), empty before
	// the statement kind is known.
	Clause   string
	Position int
	Reason   string
}

func (e *RelationalSyntaxError) Error() string {
	if e.Clause != "" {
		return fmt.Sprintf("relational syntax error in %s at position %d: %s", e.Clause, e.Position, e.Reason)
	}
	return fmt.Sprintf("relational syntax error at position %d: %s", e.Position, e.Reason)
}

func (e *RelationalSyntaxError) Code() Code { return CodeRelationalSyntax }

// DocumentMethodSyntaxError reports malformed document-method text.
type DocumentMethodSyntaxError struct {
	Position int
	Reason   string
}

func (e *DocumentMethodSyntaxError) Error() string {
	return fmt.Sprintf("document syntax error at position %d: %s", e.Position, e.Reason)
}

func (e *DocumentMethodSyntaxError) Code() Code { return CodeDocumentMethodSyntax }

// UnsupportedOperatorError reports an operator the dialect's table lacks.
type UnsupportedOperatorError struct {
	Dialect  string
	Category string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("%s dialect does not support %s operator %q", e.Dialect, e.Category, e.Operator)
}

func (e *UnsupportedOperatorError) Code() Code { return CodeUnsupportedOperator }

// UnsupportedChainedCallError reports an unknown chained call such as .explain().
type UnsupportedChainedCallError struct {
	Name     string
	Position int
}

func (e *UnsupportedChainedCallError) Error() string {
	return fmt.Sprintf("unsupported chained call %q at position %d", e.Name, e.Position)
}

func (e *UnsupportedChainedCallError) Code() Code { return CodeUnsupportedChainedCall }

// InvariantViolationError reports a QIR node that breaks a structural rule.
type InvariantViolationError struct {
	Node   string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Node, e.Reason)
}

func (e *InvariantViolationError) Code() Code { return CodeInvariantViolation }

// CyclicDependencyError reports a producer statement reachable from itself.
type CyclicDependencyError struct {
	Target string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency through statement on %q", e.Target)
}

func (e *CyclicDependencyError) Code() Code { return CodeCyclicDependency }

// DepthExceededError reports nesting beyond the depth limit.
type DepthExceededError struct {
	Depth int
	Max   int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("nesting depth %d exceeds maximum %d", e.Depth, e.Max)
}

func (e *DepthExceededError) Code() Code { return CodeDepthExceeded }

// UnrepresentableConstructError reports a construct a dialect cannot express.
type UnrepresentableConstructError struct {
	Dialect   string
	Construct string
}

func (e *UnrepresentableConstructError) Error() string {
	return fmt.Sprintf("%s dialect cannot represent %s", e.Dialect, e.Construct)
}

func (e *UnrepresentableConstructError) Code() Code { return CodeUnrepresentable }

// IsInvariantViolation returns true if err is an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	return CodeOf(err) == CodeInvariantViolation
}

// IsUnsupportedOperator returns true if err is an UnsupportedOperatorError.
func IsUnsupportedOperator(err error) bool {
	return CodeOf(err) == CodeUnsupportedOperator
}
