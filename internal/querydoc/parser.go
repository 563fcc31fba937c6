package querydoc

import (
	"fmt"

	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/resolve"
)

// Options configures parsing.
type Options struct {
	// MaxDepth bounds literal and filter nesting. Zero selects
	// qir.DefaultMaxDepth.
	MaxDepth int
}

// Result is the outcome of parsing one statement of a script.
type Result struct {
	Text      string
	Statement qir.Statement
	Err       error
}

// Parse parses every statement in src and returns the first failure.
func Parse(src string, opts Options) ([]qir.Statement, error) {
	results, err := ParseEach(src, opts)
	if err != nil {
		return nil, err
	}
	stmts := make([]qir.Statement, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		stmts = append(stmts, r.Statement)
	}
	return stmts, nil
}

// ParseEach parses every statement in src independently. Producer
// declarations and createIndex calls do not yield results of their own:
// producers are nested into the statements that reference them and unique
// indexes are merged into the preceding createCollection. The returned
// error reports only failures that prevent splitting the script.
func ParseEach(src string, opts Options) ([]Result, error) {
	spans, err := splitScript(src)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, &qerr.DocumentMethodSyntaxError{Position: 0, Reason: "no statements"}
	}

	sp := &scriptParser{
		opts:      opts,
		producers: map[string]qir.Binding{},
		schemas:   map[string]int{},
	}
	var results []Result
	for _, s := range spans {
		d, err := sp.parse(s)
		if err != nil {
			results = append(results, Result{Text: s.text, Err: err})
			continue
		}
		switch {
		case d.variable != "":
			if _, dup := sp.producers[d.variable]; dup {
				results = append(results, Result{Text: s.text, Err: syntaxErr(s.pos, fmt.Sprintf("variable %s declared twice", d.variable))})
				continue
			}
			sp.producers[d.variable] = qir.Binding{Variable: d.variable, Producer: d.stmt}
			sp.order = append(sp.order, d.variable)
		case d.index != nil:
			if err := sp.mergeIndex(results, d.index); err != nil {
				results = append(results, Result{Text: s.text, Err: err})
			}
		default:
			stmt, err := sp.nest(d)
			if err == nil && stmt.Kind == qir.KindCreateSchema {
				sp.schemas[stmt.Target] = len(results)
			}
			results = append(results, Result{Text: s.text, Statement: stmt, Err: err})
		}
	}
	return results, nil
}

// scriptParser carries state across the statements of one script.
type scriptParser struct {
	opts      Options
	producers map[string]qir.Binding
	order     []string
	schemas   map[string]int // target → index of its createCollection result
}

// nest folds the producers d references into d's statement and validates it.
func (sp *scriptParser) nest(d decl) (qir.Statement, error) {
	bindings := make([]qir.Binding, 0, len(sp.order))
	for _, name := range sp.order {
		bindings = append(bindings, sp.producers[name])
	}
	nested, err := resolve.Nest([]qir.Statement{d.stmt}, bindings)
	if err != nil {
		return qir.Statement{}, err
	}
	if err := qir.ValidateWithLimit(nested[0], sp.opts.MaxDepth); err != nil {
		return qir.Statement{}, err
	}
	return nested[0], nil
}

// mergeIndex applies a unique index to its collection's schema.
func (sp *scriptParser) mergeIndex(results []Result, idx *indexSpec) error {
	i, ok := sp.schemas[idx.target]
	if !ok {
		return &qerr.UnrepresentableConstructError{Dialect: string(qir.Document), Construct: "createIndex without a preceding createCollection for " + idx.target}
	}
	if !idx.unique {
		return nil
	}
	schema := results[i].Statement.Schema
	for j := range schema {
		if schema[j].Name == idx.field {
			schema[j] = schema[j].With(qir.Unique)
			return nil
		}
	}
	return syntaxErr(idx.pos, fmt.Sprintf("index field %s is not declared in the schema of %s", idx.field, idx.target))
}
