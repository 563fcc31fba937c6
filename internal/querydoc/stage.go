package querydoc

import (
	"fmt"
	"strings"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qir"
)

func (p *stmtParser) stage(v ir.IRValue) (qir.Stage, error) {
	obj, ok := v.(ir.IRObject)
	if !ok || len(obj) != 1 {
		return nil, p.errorf("a pipeline stage must be a document with exactly one key")
	}
	key, body := obj[0].Key, obj[0].Value
	if key == "$count" {
		name, ok := body.(ir.IRString)
		if !ok || name == "" {
			return nil, p.errorf("$count takes a field name")
		}
		return qir.GroupStage{Aggregations: []qir.Aggregation{{Name: string(name), Fn: qir.AccCount}}}, nil
	}
	op, err := optable.ToCanonical(qir.Document, optable.Stage, key)
	if err != nil {
		return nil, err
	}

	switch op {
	case "match":
		doc, ok := body.(ir.IRObject)
		if !ok {
			return nil, p.errorf("$match takes a document")
		}
		f, err := p.filter(doc)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, p.errorf("$match document is empty")
		}
		return qir.MatchStage{Filter: f}, nil
	case "group":
		return p.group(body)
	case "project":
		doc, ok := body.(ir.IRObject)
		if !ok || len(doc) == 0 {
			return nil, p.errorf("$project takes a non-empty document")
		}
		proj, err := p.projection(doc)
		if err != nil {
			return nil, err
		}
		return qir.ProjectStage{Projection: *proj}, nil
	case "sort":
		doc, ok := body.(ir.IRObject)
		if !ok || len(doc) == 0 {
			return nil, p.errorf("$sort takes a non-empty document")
		}
		keys, err := p.sortKeys(doc)
		if err != nil {
			return nil, err
		}
		return qir.SortStage{Keys: keys}, nil
	case "limit":
		n, err := p.count(body, "$limit")
		return qir.LimitStage{N: n}, err
	case "skip":
		n, err := p.count(body, "$skip")
		return qir.SkipStage{N: n}, err
	case "lookup":
		return p.lookup(body)
	case "unwind":
		return p.unwind(body)
	}
	return nil, unrepresentable(key + " stage")
}

// fieldRef strips the $ from a field reference such as "$dept".
func fieldRef(v ir.IRValue) (string, bool) {
	s, ok := v.(ir.IRString)
	if !ok || len(s) < 2 || s[0] != '$' || s[1] == '$' {
		return "", false
	}
	return string(s[1:]), true
}

func (p *stmtParser) group(body ir.IRValue) (qir.Stage, error) {
	doc, ok := body.(ir.IRObject)
	if !ok {
		return nil, p.errorf("$group takes a document")
	}
	id, ok := doc.Get("_id")
	if !ok {
		return nil, p.errorf("$group requires _id")
	}

	var g qir.GroupStage
	switch key := id.(type) {
	case ir.IRNull:
	case ir.IRString:
		field, ok := fieldRef(key)
		if !ok {
			return nil, unrepresentable("constant $group _id")
		}
		g.Keys = []qir.GroupKey{{Field: field}}
	case ir.IRObject:
		for _, pair := range key {
			field, ok := fieldRef(pair.Value)
			if !ok || strings.HasPrefix(pair.Key, "$") {
				return nil, unrepresentable(fmt.Sprintf("computed $group key %s", pair.Key))
			}
			g.Keys = append(g.Keys, qir.GroupKey{Name: pair.Key, Field: field})
		}
	default:
		return nil, unrepresentable("computed $group _id")
	}

	for _, pair := range doc {
		if pair.Key == "_id" {
			continue
		}
		acc, ok := pair.Value.(ir.IRObject)
		if !ok || len(acc) != 1 {
			return nil, p.errorf("$group output %s must be a single accumulator", pair.Key)
		}
		fn, err := optable.ToCanonical(qir.Document, optable.Accumulator, acc[0].Key)
		if err != nil {
			return nil, err
		}
		a := qir.Aggregation{Name: pair.Key, Fn: qir.AccFn(fn)}
		arg := acc[0].Value
		switch {
		case a.Fn == qir.AccCount:
			if obj, ok := arg.(ir.IRObject); !ok || len(obj) > 0 {
				return nil, p.errorf("$count accumulator takes {}")
			}
		case a.Fn == qir.AccSum && isOne(arg):
			a.Fn = qir.AccCount
		default:
			src, ok := fieldRef(arg)
			if !ok {
				return nil, unrepresentable(fmt.Sprintf("%s of an expression in %s", acc[0].Key, pair.Key))
			}
			a.Source = src
		}
		g.Aggregations = append(g.Aggregations, a)
	}
	return g, nil
}

func isOne(v ir.IRValue) bool {
	n, ok := ir.AsInt(v)
	return ok && n == 1
}

func (p *stmtParser) lookup(body ir.IRValue) (qir.Stage, error) {
	doc, ok := body.(ir.IRObject)
	if !ok {
		return nil, p.errorf("$lookup takes a document")
	}
	var st qir.LookupStage
	for _, pair := range doc {
		var dst *string
		switch pair.Key {
		case "from":
			dst = &st.From
		case "localField":
			dst = &st.LocalField
		case "foreignField":
			dst = &st.ForeignField
		case "as":
			dst = &st.As
		case "pipeline", "let":
			return nil, unrepresentable("$lookup with a pipeline")
		default:
			return nil, p.errorf("unknown $lookup field %s", pair.Key)
		}
		s, ok := pair.Value.(ir.IRString)
		if !ok {
			return nil, p.errorf("$lookup %s must be a string", pair.Key)
		}
		*dst = string(s)
	}
	if st.From == "" || st.LocalField == "" || st.ForeignField == "" || st.As == "" {
		return nil, p.errorf("$lookup requires from, localField, foreignField and as")
	}
	return st, nil
}

func (p *stmtParser) unwind(body ir.IRValue) (qir.Stage, error) {
	if path, ok := fieldRef(body); ok {
		return qir.UnwindStage{Path: path}, nil
	}
	doc, ok := body.(ir.IRObject)
	if !ok {
		return nil, p.errorf("$unwind takes a field path or a document")
	}
	var st qir.UnwindStage
	for _, pair := range doc {
		switch pair.Key {
		case "path":
			path, ok := fieldRef(pair.Value)
			if !ok {
				return nil, p.errorf("$unwind path must be a field path such as \"$items\"")
			}
			st.Path = path
		case "preserveNullAndEmptyArrays":
			b, ok := pair.Value.(ir.IRBool)
			if !ok {
				return nil, p.errorf("preserveNullAndEmptyArrays must be a boolean")
			}
			st.PreserveEmpty = bool(b)
		default:
			return nil, unrepresentable("$unwind option " + pair.Key)
		}
	}
	if st.Path == "" {
		return nil, p.errorf("$unwind requires path")
	}
	return st, nil
}

// bsonTypes maps validator type names onto field types.
var bsonTypes = func() map[string]qir.FieldType {
	m := map[string]qir.FieldType{"timestamp": qir.TypeDate}
	for _, t := range qir.FieldTypes {
		m[string(t)] = t
	}
	return m
}()

func (p *stmtParser) createCollection(verb call, chain []call) (qir.Statement, error) {
	if err := arity(verb, 1, 2); err != nil {
		return qir.Statement{}, err
	}
	if err := noChain(chain); err != nil {
		return qir.Statement{}, err
	}
	name, err := p.stringArg(verb.args[0], "collection name")
	if err != nil {
		return qir.Statement{}, err
	}
	s := qir.Statement{Kind: qir.KindCreateSchema, Target: name}
	if len(verb.args) == 1 {
		return qir.Statement{}, unrepresentable("createCollection without a $jsonSchema validator")
	}

	opts, err := p.object(verb.args[1], false, "createCollection options")
	if err != nil {
		return qir.Statement{}, err
	}
	var schema ir.IRObject
	for _, pair := range opts {
		switch pair.Key {
		case "validator":
			validator, ok := pair.Value.(ir.IRObject)
			if !ok || len(validator) != 1 || validator[0].Key != "$jsonSchema" {
				return qir.Statement{}, unrepresentable("validator other than $jsonSchema")
			}
			if schema, ok = validator[0].Value.(ir.IRObject); !ok {
				return qir.Statement{}, p.errorf("$jsonSchema must be a document")
			}
		case "validationLevel", "validationAction":
		default:
			return qir.Statement{}, unrepresentable("createCollection option " + pair.Key)
		}
	}
	if schema == nil {
		return qir.Statement{}, unrepresentable("createCollection without a $jsonSchema validator")
	}
	s.Schema, err = p.jsonSchema(schema)
	return s, err
}

// jsonSchema converts {bsonType: "object", required: [...], properties: {...}}.
func (p *stmtParser) jsonSchema(schema ir.IRObject) (qir.SchemaDef, error) {
	var def qir.SchemaDef
	props, _ := schema.Get("properties")
	propObj, ok := props.(ir.IRObject)
	if props != nil && !ok {
		return nil, p.errorf("$jsonSchema properties must be a document")
	}
	hasPK := false
	for _, prop := range propObj {
		spec, ok := prop.Value.(ir.IRObject)
		if !ok {
			return nil, p.errorf("property %s must be a document", prop.Key)
		}
		f := qir.FieldDef{Name: prop.Key}
		for _, attr := range spec {
			switch attr.Key {
			case "bsonType":
				name, _ := attr.Value.(ir.IRString)
				t, known := bsonTypes[string(name)]
				if !known {
					return nil, p.errorf("property %s has unknown bsonType %q", prop.Key, string(name))
				}
				f.Type = t
			case "unique", "primaryKey":
				b, ok := attr.Value.(ir.IRBool)
				if !ok {
					return nil, p.errorf("%s of %s must be a boolean", attr.Key, prop.Key)
				}
				if b {
					f = f.With(qir.Constraint(attr.Key))
				}
			case "description":
			default:
				return nil, unrepresentable(fmt.Sprintf("property constraint %s on %s", attr.Key, prop.Key))
			}
		}
		if f.Type == "" {
			return nil, p.errorf("property %s has no bsonType", prop.Key)
		}
		hasPK = hasPK || f.Has(qir.PrimaryKey)
		def = append(def, f)
	}
	if !hasPK {
		for i := range def {
			if def[i].Name == qir.IDField {
				def[i] = def[i].With(qir.PrimaryKey)
			}
		}
	}

	req, _ := schema.Get("required")
	if req != nil {
		arr, ok := req.(ir.IRArray)
		if !ok {
			return nil, p.errorf("$jsonSchema required must be an array")
		}
		for _, r := range arr {
			name, ok := r.(ir.IRString)
			if !ok {
				return nil, p.errorf("$jsonSchema required entries must be strings")
			}
			i := indexOf(def, string(name))
			if i < 0 {
				return nil, p.errorf("required field %s has no property", name)
			}
			def[i] = def[i].With(qir.Required)
		}
	}
	return def, nil
}

func indexOf(def qir.SchemaDef, name string) int {
	for i, f := range def {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (p *stmtParser) createIndex(verb call, chain []call) (*indexSpec, error) {
	if err := arity(verb, 1, 2); err != nil {
		return nil, err
	}
	if err := noChain(chain); err != nil {
		return nil, err
	}
	keys, err := p.object(verb.args[0], false, "index keys")
	if err != nil {
		return nil, err
	}
	if len(keys) != 1 {
		return nil, unrepresentable("compound index")
	}
	if _, err := p.sortKeys(keys); err != nil {
		return nil, err
	}
	idx := &indexSpec{target: p.target, field: keys[0].Key, pos: verb.pos}
	if len(verb.args) == 2 {
		opts, err := p.object(verb.args[1], false, "index options")
		if err != nil {
			return nil, err
		}
		for _, pair := range opts {
			switch pair.Key {
			case "unique":
				b, ok := pair.Value.(ir.IRBool)
				if !ok {
					return nil, p.errorf("index option unique must be a boolean")
				}
				idx.unique = bool(b)
			case "name":
			default:
				return nil, unrepresentable("index option " + pair.Key)
			}
		}
	}
	return idx, nil
}
