// Package translate connects the dialect parsers, the dependency resolver
// and the dialect emitters.
//
// A translation runs text through the source dialect's parser into QIR
// statements with subqueries nested, flattens them with resolve.Resolve,
// and renders the result with the target dialect's emitter:
//
//	out, err := translate.Translate(`SELECT name FROM users WHERE age > 25`,
//		qir.Relational, qir.Document)
//	// db.users.find({age: {$gt: 25}}, {name: 1});
//
// Translator carries options (depth limit, SQL placeholders, record
// format, logger) and adds per-statement and batch entry points. All entry
// points are pure: nothing is executed and no state is shared between
// calls.
package translate
