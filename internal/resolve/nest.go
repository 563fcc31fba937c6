package resolve

import (
	"fmt"

	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Nest folds bound producers back into their consumers. Statements named
// by a binding are dropped; every other statement is returned with its
// binding references replaced by qir.SubqueryMembership nodes.
func Nest(stmts []qir.Statement, bindings []qir.Binding) ([]qir.Statement, error) {
	n := &nester{bindings: make(map[string]qir.Binding, len(bindings)), visiting: map[string]bool{}}
	for _, b := range bindings {
		n.bindings[b.Variable] = b
	}

	out := make([]qir.Statement, 0, len(stmts))
	for i, s := range stmts {
		if _, bound := n.bindings[s.Name]; bound && s.Name != "" {
			continue
		}
		nested, err := n.statement(s)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		out = append(out, nested)
	}
	return out, nil
}

type nester struct {
	bindings map[string]qir.Binding
	visiting map[string]bool
}

func (n *nester) statement(s qir.Statement) (qir.Statement, error) {
	f, err := n.filter(s.Filter)
	if err != nil {
		return qir.Statement{}, err
	}
	s.Filter = f
	if len(s.Pipeline) > 0 {
		pipeline := make([]qir.Stage, len(s.Pipeline))
		for i, st := range s.Pipeline {
			if m, ok := st.(qir.MatchStage); ok {
				f, err := n.filter(m.Filter)
				if err != nil {
					return qir.Statement{}, fmt.Errorf("pipeline[%d]: %w", i, err)
				}
				st = qir.MatchStage{Filter: f}
			}
			pipeline[i] = st
		}
		s.Pipeline = pipeline
	}
	return s, nil
}

func (n *nester) filter(f qir.Filter) (qir.Filter, error) {
	switch node := f.(type) {
	case qir.Logical:
		children := make([]qir.Filter, len(node.Children))
		for i, c := range node.Children {
			nc, err := n.filter(c)
			if err != nil {
				return nil, err
			}
			children[i] = nc
		}
		return qir.Logical{Op: node.Op, Children: children}, nil
	case qir.Membership:
		if node.Binding == "" {
			return node, nil
		}
		b, ok := n.bindings[node.Binding]
		if !ok {
			return nil, &qerr.InvariantViolationError{Node: "Membership", Reason: fmt.Sprintf("no binding for %q", node.Binding)}
		}
		if n.visiting[node.Binding] {
			return nil, &qerr.CyclicDependencyError{Target: b.Producer.Target}
		}
		n.visiting[node.Binding] = true
		producer, err := n.statement(b.Producer)
		delete(n.visiting, node.Binding)
		if err != nil {
			return nil, err
		}
		producer.Name = ""
		return qir.SubqueryMembership{Field: node.Field, Op: node.Op, Query: &producer}, nil
	default:
		return f, nil
	}
}
