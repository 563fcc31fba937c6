package querysql

import (
	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/optable"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// insertStatement parses INSERT INTO t (cols) VALUES (...), (...).
func (p *parser) insertStatement() (qir.Statement, error) {
	p.clause = "INSERT"
	p.pos++ // INSERT
	if err := p.expect("INTO"); err != nil {
		return qir.Statement{}, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return qir.Statement{}, err
	}
	if p.peek().is("SELECT") {
		return qir.Statement{}, unrepresentable("INSERT ... SELECT")
	}
	if !p.peek().isPunct("(") {
		return qir.Statement{}, p.errorf("INSERT requires a column list")
	}
	p.pos++
	var cols []string
	for {
		col, err := p.identifier("column")
		if err != nil {
			return qir.Statement{}, err
		}
		cols = append(cols, col)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return qir.Statement{}, err
	}
	if p.peek().is("SELECT") {
		return qir.Statement{}, unrepresentable("INSERT ... SELECT")
	}
	p.clause = "VALUES"
	if err := p.expect("VALUES"); err != nil {
		return qir.Statement{}, err
	}

	var docs []ir.IRObject
	for {
		rowStart := p.peek()
		if err := p.expectPunct("("); err != nil {
			return qir.Statement{}, err
		}
		doc := ir.IRObject{}
		for i := 0; ; i++ {
			v, err := p.literal()
			if err != nil {
				return qir.Statement{}, err
			}
			if i >= len(cols) {
				return qir.Statement{}, &qerr.RelationalSyntaxError{Clause: p.clause, Position: rowStart.pos, Reason: "more values than columns"}
			}
			doc = append(doc, ir.O(cols[i], v))
			if !p.acceptPunct(",") {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return qir.Statement{}, err
		}
		if len(doc) != len(cols) {
			return qir.Statement{}, &qerr.RelationalSyntaxError{Clause: p.clause, Position: rowStart.pos, Reason: "fewer values than columns"}
		}
		docs = append(docs, doc)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectEOF(); err != nil {
		return qir.Statement{}, err
	}

	kind := qir.KindInsertMany
	if len(docs) == 1 {
		kind = qir.KindInsertOne
	}
	return qir.Statement{Kind: kind, Target: table, Documents: docs}, nil
}

// updateStatement parses UPDATE t SET ... [WHERE ...] [LIMIT 1].
func (p *parser) updateStatement() (qir.Statement, error) {
	p.clause = "UPDATE"
	p.pos++ // UPDATE
	table, err := p.identifier("table name")
	if err != nil {
		return qir.Statement{}, err
	}
	p.table = table
	p.clause = "SET"
	if err := p.expect("SET"); err != nil {
		return qir.Statement{}, err
	}

	var spec qir.UpdateSpec
	for {
		col, err := p.identifier("column")
		if err != nil {
			return qir.Statement{}, err
		}
		col = p.column(col)
		if err := p.expectPunct("="); err != nil {
			return qir.Statement{}, err
		}
		op, v, err := p.assignment(col)
		if err != nil {
			return qir.Statement{}, err
		}
		spec = spec.Add(op, col, v)
		if !p.acceptPunct(",") {
			break
		}
	}

	filter, one, err := p.whereAndLimit()
	if err != nil {
		return qir.Statement{}, err
	}
	kind := qir.KindUpdateMany
	if one {
		kind = qir.KindUpdateOne
	}
	return qir.Statement{Kind: kind, Target: table, Filter: filter, Update: spec}, nil
}

// assignment parses the right side of "col = ...".
func (p *parser) assignment(col string) (qir.UpdateOp, ir.IRValue, error) {
	t := p.peek()
	switch {
	case t.is("NULL"):
		p.pos++
		return qir.UpdUnset, ir.IRString(""), nil
	case t.is("CURRENT_TIMESTAMP") || t.is("NOW"):
		p.pos++
		if t.is("NOW") {
			if err := p.expectPunct("("); err != nil {
				return "", nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return "", nil, err
			}
		}
		return qir.UpdCurrentDate, ir.IRBool(true), nil
	case t.kind == tokIdent && !isReserved(t) && !isLiteralKeyword(t):
		if p.column(t.text) != col {
			return "", nil, unrepresentable("assignment from another column " + t.text)
		}
		p.pos++
		opTok := p.next()
		canonical, err := optable.ToCanonical(qir.Relational, optable.Update, opTok.text)
		op := qir.UpdateOp(canonical)
		switch {
		case opTok.text == "-":
			op, err = qir.UpdInc, nil
		case err != nil || (op != qir.UpdInc && op != qir.UpdMul):
			return "", nil, &qerr.UnsupportedOperatorError{Dialect: string(qir.Relational), Category: string(optable.Update), Operator: opTok.text}
		}
		v, err := p.literal()
		if err != nil {
			return "", nil, err
		}
		if opTok.text == "-" {
			neg, ok := negate(v)
			if !ok {
				return "", nil, p.errorf("expected a number after -")
			}
			v = neg
		}
		return op, v, nil
	}
	v, err := p.literal()
	if err != nil {
		return "", nil, err
	}
	return qir.UpdSet, v, nil
}

func negate(v ir.IRValue) (ir.IRValue, bool) {
	switch n := v.(type) {
	case ir.IRInt:
		return -n, true
	case ir.IRFloat:
		return -n, true
	}
	return nil, false
}

// deleteStatement parses DELETE FROM t [WHERE ...] [LIMIT 1].
func (p *parser) deleteStatement() (qir.Statement, error) {
	p.clause = "DELETE"
	p.pos++ // DELETE
	if err := p.expect("FROM"); err != nil {
		return qir.Statement{}, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return qir.Statement{}, err
	}
	p.table = table
	filter, one, err := p.whereAndLimit()
	if err != nil {
		return qir.Statement{}, err
	}
	kind := qir.KindDeleteMany
	if one {
		kind = qir.KindDeleteOne
	}
	return qir.Statement{Kind: kind, Target: table, Filter: filter}, nil
}

// whereAndLimit parses the optional tail shared by UPDATE and DELETE.
func (p *parser) whereAndLimit() (qir.Filter, bool, error) {
	var filter qir.Filter
	if p.accept("WHERE") {
		p.clause = clauseWhere
		f, err := p.orExpr()
		if err != nil {
			return nil, false, err
		}
		filter = f
	}
	one := false
	if p.accept("LIMIT") {
		p.clause = clauseLimit
		n, err := p.count()
		if err != nil {
			return nil, false, err
		}
		if n != 1 {
			return nil, false, unrepresentable("LIMIT other than 1 on UPDATE or DELETE")
		}
		one = true
	}
	if t := p.peek(); t.is("ORDER") {
		return nil, false, unrepresentable("ORDER BY on UPDATE or DELETE")
	}
	return filter, one, p.expectEOF()
}

// sqlTypes maps SQL type names to canonical field types.
var sqlTypes = map[string]qir.FieldType{
	"VARCHAR": qir.TypeString, "CHAR": qir.TypeString, "TEXT": qir.TypeString,
	"NVARCHAR": qir.TypeString, "STRING": qir.TypeString, "UUID": qir.TypeString,
	"INT": qir.TypeInt, "INTEGER": qir.TypeInt, "SMALLINT": qir.TypeInt, "TINYINT": qir.TypeInt,
	"MEDIUMINT": qir.TypeInt, "BIGINT": qir.TypeLong,
	"DOUBLE": qir.TypeDouble, "FLOAT": qir.TypeDouble, "REAL": qir.TypeDouble,
	"DECIMAL": qir.TypeDecimal, "NUMERIC": qir.TypeDecimal,
	"BOOL": qir.TypeBool, "BOOLEAN": qir.TypeBool,
	"DATE": qir.TypeDate, "DATETIME": qir.TypeDate, "TIMESTAMP": qir.TypeDate,
	"JSON": qir.TypeObject, "JSONB": qir.TypeObject,
}

// typeNames maps canonical field types to the SQL type emitted for them.
var typeNames = map[qir.FieldType]string{
	qir.TypeString:   "VARCHAR(255)",
	qir.TypeInt:      "INTEGER",
	qir.TypeLong:     "BIGINT",
	qir.TypeDouble:   "DOUBLE PRECISION",
	qir.TypeDecimal:  "DECIMAL",
	qir.TypeBool:     "BOOLEAN",
	qir.TypeDate:     "TIMESTAMP",
	qir.TypeObjectID: "VARCHAR(24)",
	qir.TypeArray:    "JSON",
	qir.TypeObject:   "JSON",
}

// createStatement parses CREATE TABLE t (col TYPE constraints, ...).
func (p *parser) createStatement() (qir.Statement, error) {
	p.clause = "CREATE TABLE"
	p.pos++ // CREATE
	if err := p.expect("TABLE"); err != nil {
		return qir.Statement{}, err
	}
	if p.peek().is("IF") {
		return qir.Statement{}, unrepresentable("CREATE TABLE IF NOT EXISTS")
	}
	table, err := p.identifier("table name")
	if err != nil {
		return qir.Statement{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return qir.Statement{}, err
	}

	var schema qir.SchemaDef
	for {
		switch t := p.peek(); {
		case t.is("PRIMARY") || t.is("UNIQUE"):
			if err := p.tableConstraint(schema); err != nil {
				return qir.Statement{}, err
			}
		case t.is("CONSTRAINT") || t.is("FOREIGN") || t.is("CHECK"):
			return qir.Statement{}, unrepresentable("table constraint " + t.upper)
		default:
			f, err := p.columnDef()
			if err != nil {
				return qir.Statement{}, err
			}
			schema = append(schema, f)
		}
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return qir.Statement{}, err
	}
	if err := p.expectEOF(); err != nil {
		return qir.Statement{}, err
	}
	return qir.Statement{Kind: qir.KindCreateSchema, Target: table, Schema: schema}, nil
}

func (p *parser) columnDef() (qir.FieldDef, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return qir.FieldDef{}, err
	}
	typeTok := p.peek()
	if typeTok.kind != tokIdent {
		return qir.FieldDef{}, p.errorf("expected type for column %s", name)
	}
	p.pos++
	ft, ok := sqlTypes[typeTok.upper]
	if !ok {
		return qir.FieldDef{}, &qerr.RelationalSyntaxError{Clause: p.clause, Position: typeTok.pos, Reason: "unknown column type " + typeTok.text}
	}
	if typeTok.is("DOUBLE") {
		p.accept("PRECISION")
	}
	if p.acceptPunct("(") {
		// Length and precision arguments carry no canonical meaning.
		for !p.peek().isPunct(")") {
			if p.peek().kind != tokNumber && !p.peek().isPunct(",") {
				return qir.FieldDef{}, p.errorf("expected type arguments, found %s", p.peek())
			}
			p.pos++
		}
		p.pos++
	}

	f := qir.FieldDef{Name: name, Type: ft}
	for {
		switch t := p.peek(); {
		case t.is("NOT") && p.peekAt(1).is("NULL"):
			p.pos += 2
			f = f.With(qir.Required)
		case t.is("NULL"):
			p.pos++
		case t.is("UNIQUE"):
			p.pos++
			f = f.With(qir.Unique)
		case t.is("PRIMARY") && p.peekAt(1).is("KEY"):
			p.pos += 2
			f = f.With(qir.PrimaryKey)
		case t.isPunct(",") || t.isPunct(")"):
			return f, nil
		case t.kind == tokIdent:
			return qir.FieldDef{}, unrepresentable("column constraint " + t.upper)
		default:
			return qir.FieldDef{}, p.errorf("unexpected %s in column %s", t, name)
		}
	}
}

// tableConstraint applies PRIMARY KEY (col) or UNIQUE (col) to a declared column.
func (p *parser) tableConstraint(schema qir.SchemaDef) error {
	c := qir.Unique
	if p.accept("PRIMARY", "KEY") {
		c = qir.PrimaryKey
	} else {
		p.pos++ // UNIQUE
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	col, err := p.identifier("column")
	if err != nil {
		return err
	}
	if p.peek().isPunct(",") {
		return unrepresentable("multi-column " + string(c) + " constraint")
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	for i := range schema {
		if schema[i].Name == col {
			schema[i] = schema[i].With(c)
			return nil
		}
	}
	return p.errorf("constraint references undeclared column %s", col)
}
