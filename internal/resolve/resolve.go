package resolve

import (
	"fmt"
	"strings"

	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Options configures resolution.
type Options struct {
	// MaxDepth bounds subquery nesting. Zero selects qir.DefaultMaxDepth.
	MaxDepth int
}

// Plan is the resolved form of a statement list. Every producer precedes
// the first statement that consumes it.
type Plan struct {
	Statements []qir.Statement
	Bindings   []qir.Binding
}

// Resolve flattens the subqueries of stmts. Statements without subqueries
// pass through unchanged and keep their relative order.
func Resolve(stmts []qir.Statement, opts Options) (Plan, error) {
	r := &resolver{
		depth:    qir.NewDepthCounter(opts.MaxDepth),
		counters: map[string]int{},
		visiting: map[*qir.Statement]bool{},
	}
	for i := range stmts {
		s := &stmts[i]
		r.visiting[s] = true
		out, err := r.statement(*s)
		delete(r.visiting, s)
		if err != nil {
			return Plan{}, fmt.Errorf("statement %d: %w", i+1, err)
		}
		r.plan.Statements = append(r.plan.Statements, out)
	}
	return r.plan, nil
}

type resolver struct {
	plan     Plan
	depth    *qir.DepthCounter
	counters map[string]int
	visiting map[*qir.Statement]bool
}

// statement returns a copy of s with every subquery replaced by a binding.
func (r *resolver) statement(s qir.Statement) (qir.Statement, error) {
	f, err := r.filter(s.Filter)
	if err != nil {
		return qir.Statement{}, err
	}
	s.Filter = f

	if len(s.Pipeline) > 0 {
		pipeline := make([]qir.Stage, len(s.Pipeline))
		for i, st := range s.Pipeline {
			m, ok := st.(qir.MatchStage)
			if !ok {
				pipeline[i] = st
				continue
			}
			f, err := r.filter(m.Filter)
			if err != nil {
				return qir.Statement{}, fmt.Errorf("pipeline[%d]: %w", i, err)
			}
			pipeline[i] = qir.MatchStage{Filter: f}
		}
		s.Pipeline = pipeline
	}
	return s, nil
}

func (r *resolver) filter(f qir.Filter) (qir.Filter, error) {
	switch n := f.(type) {
	case qir.Logical:
		children := make([]qir.Filter, len(n.Children))
		for i, c := range n.Children {
			rc, err := r.filter(c)
			if err != nil {
				return nil, err
			}
			children[i] = rc
		}
		return qir.Logical{Op: n.Op, Children: children}, nil
	case qir.SubqueryMembership:
		name, err := r.subquery(n)
		if err != nil {
			return nil, err
		}
		return qir.Membership{Field: n.Field, Op: n.Op, Binding: name}, nil
	default:
		return f, nil
	}
}

// subquery emits the producer for n, after any producers it depends on,
// and returns its name.
func (r *resolver) subquery(n qir.SubqueryMembership) (string, error) {
	if n.Query == nil {
		return "", &qerr.InvariantViolationError{Node: "SubqueryMembership", Reason: "missing query"}
	}
	if r.visiting[n.Query] {
		return "", &qerr.CyclicDependencyError{Target: n.Query.Target}
	}
	if err := r.depth.Enter(); err != nil {
		return "", err
	}
	defer r.depth.Exit()

	r.visiting[n.Query] = true
	inner, err := r.statement(*n.Query)
	delete(r.visiting, n.Query)
	if err != nil {
		return "", err
	}
	if _, err := qir.OutputField(inner); err != nil {
		return "", err
	}

	name := r.name(inner.Target)
	inner.Name = name
	r.plan.Statements = append(r.plan.Statements, inner)
	r.plan.Bindings = append(r.plan.Bindings, qir.Binding{Variable: name, Producer: inner, ConsumerPath: n.Field})
	return name, nil
}

// name returns the next variable name for target.
func (r *resolver) name(target string) string {
	base := sanitize(target)
	r.counters[base]++
	return fmt.Sprintf("%s_%d", base, r.counters[base])
}

// sanitize maps a collection name onto identifier characters.
func sanitize(target string) string {
	var b strings.Builder
	for i, c := range target {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			b.WriteRune(c)
		case c >= '0' && c <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "result"
	}
	return b.String()
}
