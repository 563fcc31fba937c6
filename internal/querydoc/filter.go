package querydoc

import (
	"fmt"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// filter converts a query document. The empty document matches everything.
func (p *stmtParser) filter(obj ir.IRObject) (qir.Filter, error) {
	if len(obj) == 0 {
		return nil, nil
	}
	children := make([]qir.Filter, 0, len(obj))
	for _, pair := range obj {
		f, err := p.entry(pair.Key, pair.Value)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	return qir.And(children...), nil
}

func (p *stmtParser) entry(key string, v ir.IRValue) (qir.Filter, error) {
	if !strings.HasPrefix(key, "$") {
		return p.condition(key, v)
	}
	op, err := optable.ToCanonical(qir.Document, optable.Logical, key)
	if err != nil {
		switch key {
		case "$expr", "$where", "$text", "$jsonSchema":
			return nil, unrepresentable(key + " query")
		}
		return nil, err
	}
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) == 0 {
		return nil, p.errorf("%s takes a non-empty array", key)
	}
	children := make([]qir.Filter, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.IRObject)
		if !ok || len(obj) == 0 {
			return nil, p.errorf("%s element %d must be a non-empty document", key, i)
		}
		child, err := p.filter(obj)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if qir.LogicalOp(op) == qir.OpNot {
		if len(children) == 1 {
			return qir.Not(children[0]), nil
		}
		return qir.Not(qir.Logical{Op: qir.OpOr, Children: children}), nil
	}
	return qir.Logical{Op: qir.LogicalOp(op), Children: children}, nil
}

// condition converts the value a field is tested against.
func (p *stmtParser) condition(field string, v ir.IRValue) (qir.Filter, error) {
	switch val := v.(type) {
	case ir.IRRegex:
		return p.pattern(field, val)
	case ir.IRObject:
		if len(val) > 0 && strings.HasPrefix(val[0].Key, "$") {
			return p.operators(field, val)
		}
	}
	if err := p.plain(v); err != nil {
		return nil, err
	}
	return qir.Comparison{Field: field, Op: qir.OpEq, Value: v}, nil
}

// operators converts an operator document such as {$gt: 1, $lt: 5}.
func (p *stmtParser) operators(field string, obj ir.IRObject) (qir.Filter, error) {
	var out []qir.Filter
	for i := 0; i < len(obj); i++ {
		key, v := obj[i].Key, obj[i].Value
		if !strings.HasPrefix(key, "$") {
			return nil, p.errorf("condition on %s mixes operators with the field %s", field, key)
		}
		switch key {
		case "$regex":
			re := ir.IRRegex{}
			switch rv := v.(type) {
			case ir.IRString:
				re.Pattern = string(rv)
			case ir.IRRegex:
				re = rv
			default:
				return nil, p.errorf("$regex on %s takes a string or regex, got %s", field, ir.TypeName(v))
			}
			if i+1 < len(obj) && obj[i+1].Key == "$options" {
				flags, ok := obj[i+1].Value.(ir.IRString)
				if !ok {
					return nil, p.errorf("$options on %s must be a string", field)
				}
				re.Flags = string(flags)
				i++
			}
			f, err := p.pattern(field, re)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			continue
		case "$options":
			return nil, p.errorf("$options on %s without $regex", field)
		case "$not":
			switch v.(type) {
			case ir.IRRegex, ir.IRObject:
			default:
				return nil, p.errorf("$not on %s takes a regex or operator document", field)
			}
			inner, err := p.condition(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, qir.Not(inner))
			continue
		}

		if op, err := optable.ToCanonical(qir.Document, optable.Comparison, key); err == nil {
			if err := p.plain(v); err != nil {
				return nil, err
			}
			out = append(out, qir.Comparison{Field: field, Op: qir.CompareOp(op), Value: v})
			continue
		}
		if op, err := optable.ToCanonical(qir.Document, optable.Membership, key); err == nil {
			f, err := p.membership(field, qir.MemberOp(op), v)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			continue
		}
		if _, err := optable.ToCanonical(qir.Document, optable.Existence, key); err == nil {
			exists, err := p.flag(v, key)
			if err != nil {
				return nil, err
			}
			out = append(out, qir.Existence{Field: field, Exists: exists})
			continue
		}
		return nil, &qerr.UnsupportedOperatorError{Dialect: string(qir.Document), Category: string(optable.Comparison), Operator: key}
	}
	return qir.And(out...), nil
}

func (p *stmtParser) membership(field string, op qir.MemberOp, v ir.IRValue) (qir.Filter, error) {
	switch val := v.(type) {
	case ir.IRRef:
		if _, ok := p.sp.producers[val.Name]; !ok {
			return nil, p.errorf("undefined variable %s", val.Name)
		}
		return qir.Membership{Field: field, Op: op, Binding: val.Name}, nil
	case ir.IRArray:
		if err := p.plain(val); err != nil {
			return nil, err
		}
		return qir.Membership{Field: field, Op: op, Values: []ir.IRValue(val)}, nil
	}
	return nil, p.errorf("membership on %s takes an array or a variable, got %s", field, ir.TypeName(v))
}

// pattern converts a regex condition. Only the i flag has a relational
// counterpart.
func (p *stmtParser) pattern(field string, re ir.IRRegex) (qir.Filter, error) {
	ci := false
	for _, f := range re.Flags {
		if f != 'i' {
			return nil, unrepresentable(fmt.Sprintf("regex flag %q", f))
		}
		ci = true
	}
	return qir.Pattern{Field: field, Regex: strings.ReplaceAll(re.Pattern, `\/`, "/"), CaseInsensitive: ci}, nil
}

// flag reads a boolean operand, accepting 0 and 1.
func (p *stmtParser) flag(v ir.IRValue, what string) (bool, error) {
	switch b := v.(type) {
	case ir.IRBool:
		return bool(b), nil
	case ir.IRInt, ir.IRFloat:
		if n, ok := ir.AsInt(b); ok && (n == 0 || n == 1) {
			return n == 1, nil
		}
	}
	return false, p.errorf("%s takes a boolean, got %s", what, ir.TypeName(v))
}

// plain rejects variables outside membership operands.
func (p *stmtParser) plain(v ir.IRValue) error {
	switch val := v.(type) {
	case ir.IRRef:
		return p.errorf("variable %s can only be the operand of $in or $nin", val.Name)
	case ir.IRArray:
		for _, elem := range val {
			if err := p.plain(elem); err != nil {
				return err
			}
		}
	case ir.IRObject:
		for _, pair := range val {
			if err := p.plain(pair.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// projection converts {f: 1, g: 0, h: "$src"}.
func (p *stmtParser) projection(obj ir.IRObject) (*qir.Projection, error) {
	if len(obj) == 0 {
		return nil, nil
	}
	items := make([]qir.ProjectionItem, 0, len(obj))
	for _, pair := range obj {
		item := qir.ProjectionItem{Field: pair.Key}
		switch v := pair.Value.(type) {
		case ir.IRString:
			if !strings.HasPrefix(string(v), "$") || len(v) < 2 {
				return nil, unrepresentable(fmt.Sprintf("literal projection value for %s", pair.Key))
			}
			item.Include, item.Source = true, string(v[1:])
		case ir.IRObject:
			return nil, unrepresentable(fmt.Sprintf("computed projection expression for %s", pair.Key))
		default:
			include, err := p.flag(v, "projection of "+pair.Key)
			if err != nil {
				return nil, err
			}
			item.Include = include
		}
		items = append(items, item)
	}
	return qir.NewProjection(items...)
}

func (p *stmtParser) sortKeys(obj ir.IRObject) ([]qir.SortKey, error) {
	keys := make([]qir.SortKey, 0, len(obj))
	for _, pair := range obj {
		n, ok := ir.AsInt(pair.Value)
		switch {
		case ok && n == 1:
			keys = append(keys, qir.SortKey{Field: pair.Key, Direction: qir.Asc})
		case ok && n == -1:
			keys = append(keys, qir.SortKey{Field: pair.Key, Direction: qir.Desc})
		default:
			return nil, p.errorf("sort direction for %s must be 1 or -1", pair.Key)
		}
	}
	return keys, nil
}

// updateSpec converts an update document of operator clauses.
func (p *stmtParser) updateSpec(v ir.IRValue) (qir.UpdateSpec, error) {
	switch doc := v.(type) {
	case ir.IRArray:
		return nil, unrepresentable("pipeline-style update")
	case ir.IRObject:
		if len(doc) == 0 {
			return nil, p.errorf("update document is empty")
		}
		var spec qir.UpdateSpec
		for _, clause := range doc {
			if !strings.HasPrefix(clause.Key, "$") {
				return nil, unrepresentable("replacement document in update")
			}
			op, err := optable.ToCanonical(qir.Document, optable.Update, clause.Key)
			if err != nil {
				return nil, err
			}
			fields, ok := clause.Value.(ir.IRObject)
			if !ok || len(fields) == 0 {
				return nil, p.errorf("%s takes a non-empty document", clause.Key)
			}
			for _, f := range fields {
				val := f.Value
				switch qir.UpdateOp(op) {
				case qir.UpdUnset:
					val = ir.IRString("")
				case qir.UpdCurrentDate:
					val = ir.IRBool(true)
				}
				spec = spec.Add(qir.UpdateOp(op), f.Key, val)
			}
		}
		return spec, nil
	}
	return nil, p.errorf("update must be a document, got %s", ir.TypeName(v))
}
