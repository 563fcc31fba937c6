// Package resolve flattens subqueries into named producer statements.
//
// Resolve walks each statement's filter and $match stages depth first,
// left to right. Every qir.SubqueryMembership becomes a producer statement,
// emitted ahead of its consumer, and the node itself becomes a
// qir.Membership that references the producer by name. Names are derived
// from the producer's target plus a per-target counter, so the same input
// always yields the same names in the same order.
//
// Nest is the inverse: it folds bound producers back into the statements
// that reference them.
package resolve
