// Package qir provides the Query Intermediate Representation: the canonical,
// dialect-neutral statement model every parser produces and every emitter
// consumes.
//
// ARCHITECTURE:
//
//	[document text]   ─┐               ┌─→ [document text]
//	[relational text] ─┼─→ [QIR] ─→ resolve ─┼─→ [relational text]
//	[record]          ─┘               └─→ [record]
//
// SEALED INTERFACES:
//
// Filter and Stage are sealed interfaces using the marker method pattern.
// Only types in this package implement them, which keeps type switches in
// emitters exhaustive.
//
//	switch f := filter.(type) {
//	case Comparison:
//	case Membership:
//	case Pattern:
//	case Existence:
//	case Logical:
//	case SubqueryMembership:
//	}
//
// IMMUTABILITY:
//
// QIR nodes are value trees. Transformations (the resolver, the emitters)
// build new trees and never mutate a node in place. The only pointer in the
// tree is SubqueryMembership.Query, which the resolver uses to detect
// hand-built cycles.
//
// VALIDATION:
//
// Validate checks structural invariants once, when a parser builds a
// statement. Violations are InvariantViolationError and indicate a parser
// defect or a hand-built tree, never bad user input.
package qir
