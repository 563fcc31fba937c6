package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

func parseOne(t *testing.T, src string) qir.Statement {
	t.Helper()
	stmts, err := Parse(src, Options{})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestParse_Find(t *testing.T) {
	got := parseOne(t, "SELECT name, age FROM users WHERE age > 25 ORDER BY name DESC LIMIT 10 OFFSET 5")

	proj, err := qir.NewProjection(
		qir.ProjectionItem{Field: "name", Include: true},
		qir.ProjectionItem{Field: "age", Include: true},
	)
	require.NoError(t, err)

	want := qir.Statement{
		Kind:       qir.KindFind,
		Target:     "users",
		Filter:     qir.Comparison{Field: "age", Op: qir.OpGt, Value: ir.IRInt(25)},
		Projection: proj,
		Sort:       []qir.SortKey{{Field: "name", Direction: qir.Desc}},
		Page:       &qir.Pagination{Limit: qir.Int64(10), Skip: qir.Int64(5)},
	}
	assert.Equal(t, want, got)
}

func TestParse_LimitCommaForm(t *testing.T) {
	got := parseOne(t, "select * from t limit 20, 10")
	require.NotNil(t, got.Page)
	assert.Equal(t, int64(20), *got.Page.Skip)
	assert.Equal(t, int64(10), *got.Page.Limit)
	assert.Nil(t, got.Projection)
}

func TestParse_ClauseKeywordsInsideLiterals(t *testing.T) {
	stmts, err := Parse("SELECT * FROM t WHERE s = ' GROUP BY ' AND x = 'a;b'; SELECT * FROM u", Options{})
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	want := qir.Logical{Op: qir.OpAnd, Children: []qir.Filter{
		qir.Comparison{Field: "s", Op: qir.OpEq, Value: ir.IRString(" GROUP BY ")},
		qir.Comparison{Field: "x", Op: qir.OpEq, Value: ir.IRString("a;b")},
	}}
	assert.Equal(t, qir.KindFind, stmts[0].Kind)
	assert.Equal(t, want, stmts[0].Filter)
	assert.Empty(t, stmts[0].Pipeline)
	assert.Equal(t, "u", stmts[1].Target)
}

func TestParse_FilterPrecedence(t *testing.T) {
	got := parseOne(t, "SELECT * FROM t WHERE a = 1 OR b = 2 AND NOT c = 3")

	want := qir.Logical{Op: qir.OpOr, Children: []qir.Filter{
		qir.Comparison{Field: "a", Op: qir.OpEq, Value: ir.IRInt(1)},
		qir.Logical{Op: qir.OpAnd, Children: []qir.Filter{
			qir.Comparison{Field: "b", Op: qir.OpEq, Value: ir.IRInt(2)},
			qir.Not(qir.Comparison{Field: "c", Op: qir.OpEq, Value: ir.IRInt(3)}),
		}},
	}}
	assert.Equal(t, want, got.Filter)
}

func TestParse_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		where string
		want  qir.Filter
	}{
		{"is null", "deleted_at IS NULL", qir.Comparison{Field: "deleted_at", Op: qir.OpEq, Value: ir.IRNull{}}},
		{"is not null", "email IS NOT NULL", qir.Comparison{Field: "email", Op: qir.OpNe, Value: ir.IRNull{}}},
		{"in list", "status IN ('a', 'b')", qir.Membership{Field: "status", Op: qir.OpIn, Values: []ir.IRValue{ir.IRString("a"), ir.IRString("b")}}},
		{"not in list", "id NOT IN (1, 2)", qir.Membership{Field: "id", Op: qir.OpNotIn, Values: []ir.IRValue{ir.IRInt(1), ir.IRInt(2)}}},
		{"between", "age BETWEEN 18 AND 65", qir.Logical{Op: qir.OpAnd, Children: []qir.Filter{
			qir.Comparison{Field: "age", Op: qir.OpGte, Value: ir.IRInt(18)},
			qir.Comparison{Field: "age", Op: qir.OpLte, Value: ir.IRInt(65)},
		}}},
		{"like prefix", "name LIKE 'Jo%'", qir.Pattern{Field: "name", Regex: "^Jo"}},
		{"ilike contains", "name ILIKE '%smith%'", qir.Pattern{Field: "name", Regex: "smith", CaseInsensitive: true}},
		{"not like", "name NOT LIKE 'a_c'", qir.Not(qir.Pattern{Field: "name", Regex: "^a.c$"})},
		{"regexp", "code REGEXP '(?i)^ab[0-9]+'", qir.Pattern{Field: "code", Regex: "^ab[0-9]+", CaseInsensitive: true}},
		{"not equal alias", "a != 'x'", qir.Comparison{Field: "a", Op: qir.OpNe, Value: ir.IRString("x")}},
		{"negative float", "score < -1.5", qir.Comparison{Field: "score", Op: qir.OpLt, Value: ir.IRFloat(-1.5)}},
		{"boolean", "active = TRUE", qir.Comparison{Field: "active", Op: qir.OpEq, Value: ir.IRBool(true)}},
		{"quoted escape", "name = 'O''Brien'", qir.Comparison{Field: "name", Op: qir.OpEq, Value: ir.IRString("O'Brien")}},
		{"qualified column", "t.a = 1", qir.Comparison{Field: "a", Op: qir.OpEq, Value: ir.IRInt(1)}},
		{"nested path", "address.city = 'Oslo'", qir.Comparison{Field: "address.city", Op: qir.OpEq, Value: ir.IRString("Oslo")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOne(t, "SELECT * FROM t WHERE "+tt.where)
			assert.Equal(t, tt.want, got.Filter)
		})
	}
}

func TestParse_DateLiteral(t *testing.T) {
	got := parseOne(t, "SELECT * FROM events WHERE at >= DATE '2024-01-02'")
	cmp, ok := got.Filter.(qir.Comparison)
	require.True(t, ok)
	d, ok := cmp.Value.(ir.IRDate)
	require.True(t, ok)
	assert.Equal(t, "2024-01-02T00:00:00Z", d.Time.Format(ir.DateLayout))
}

func TestParse_Subquery(t *testing.T) {
	got := parseOne(t, "SELECT * FROM orders WHERE user_id IN (SELECT id FROM users WHERE active = TRUE)")

	sub, ok := got.Filter.(qir.SubqueryMembership)
	require.True(t, ok, "filter is %T", got.Filter)
	assert.Equal(t, "user_id", sub.Field)
	assert.Equal(t, qir.OpIn, sub.Op)
	require.NotNil(t, sub.Query)
	assert.Equal(t, "users", sub.Query.Target)
	field, err := qir.OutputField(*sub.Query)
	require.NoError(t, err)
	assert.Equal(t, "id", field)
	assert.Equal(t, qir.Comparison{Field: "active", Op: qir.OpEq, Value: ir.IRBool(true)}, sub.Query.Filter)
}

func TestParse_SubqueryMustSelectOneColumn(t *testing.T) {
	for _, src := range []string{
		"SELECT * FROM orders WHERE user_id IN (SELECT id, name FROM users)",
		"SELECT * FROM orders WHERE user_id IN (SELECT * FROM users)",
	} {
		_, err := Parse(src, Options{})
		require.Error(t, err, src)
		var syn *qerr.RelationalSyntaxError
		require.ErrorAs(t, err, &syn)
		assert.Contains(t, syn.Reason, "exactly one column")
	}
}

func TestParse_GroupHaving(t *testing.T) {
	got := parseOne(t, "SELECT dept, COUNT(*) AS n FROM employees GROUP BY dept HAVING COUNT(*) > 5 ORDER BY n DESC")

	want := qir.Statement{
		Kind:   qir.KindAggregate,
		Target: "employees",
		Pipeline: []qir.Stage{
			qir.GroupStage{
				Keys:         []qir.GroupKey{{Field: "dept"}},
				Aggregations: []qir.Aggregation{{Name: "n", Fn: qir.AccCount}},
			},
			qir.MatchStage{Filter: qir.Comparison{Field: "n", Op: qir.OpGt, Value: ir.IRInt(5)}},
			qir.SortStage{Keys: []qir.SortKey{{Field: "n", Direction: qir.Desc}}},
		},
	}
	assert.Equal(t, want, got)
}

func TestParse_HavingSynthesizesAggregation(t *testing.T) {
	got := parseOne(t, "SELECT dept FROM employees GROUP BY dept HAVING SUM(salary) > 1000")

	require.Len(t, got.Pipeline, 2)
	g, ok := got.Pipeline[0].(qir.GroupStage)
	require.True(t, ok)
	assert.Equal(t, []qir.Aggregation{{Name: "sum_salary", Fn: qir.AccSum, Source: "salary"}}, g.Aggregations)
	assert.Equal(t, qir.MatchStage{Filter: qir.Comparison{Field: "sum_salary", Op: qir.OpGt, Value: ir.IRInt(1000)}}, got.Pipeline[1])
}

func TestParse_CompoundGroupKeys(t *testing.T) {
	got := parseOne(t, "SELECT region, city AS town, AVG(price) FROM shops GROUP BY region, city")

	g, ok := got.Pipeline[0].(qir.GroupStage)
	require.True(t, ok)
	assert.Equal(t, []qir.GroupKey{{Name: "region", Field: "region"}, {Name: "town", Field: "city"}}, g.Keys)
	assert.Equal(t, []qir.Aggregation{{Name: "avg_price", Fn: qir.AccAvg, Source: "price"}}, g.Aggregations)
}

func TestParse_NonGroupedColumn(t *testing.T) {
	_, err := Parse("SELECT name, COUNT(*) FROM t GROUP BY dept", Options{})
	var syn *qerr.RelationalSyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, clauseSelect, syn.Clause)
}

func TestParse_Join(t *testing.T) {
	got := parseOne(t, "SELECT * FROM orders o LEFT JOIN users u ON o.user_id = u.id WHERE u.active = TRUE LIMIT 3")

	want := []qir.Stage{
		qir.LookupStage{From: "users", LocalField: "user_id", ForeignField: "id", As: "u"},
		qir.UnwindStage{Path: "u", PreserveEmpty: true},
		qir.MatchStage{Filter: qir.Comparison{Field: "u.active", Op: qir.OpEq, Value: ir.IRBool(true)}},
		qir.LimitStage{N: 3},
	}
	assert.Equal(t, qir.KindAggregate, got.Kind)
	assert.Equal(t, "orders", got.Target)
	assert.Equal(t, want, got.Pipeline)
}

func TestParse_Insert(t *testing.T) {
	got := parseOne(t, "INSERT INTO users (name, age) VALUES ('a', 1), ('b', NULL)")

	assert.Equal(t, qir.KindInsertMany, got.Kind)
	assert.Equal(t, []ir.IRObject{
		{ir.O("name", ir.IRString("a")), ir.O("age", ir.IRInt(1))},
		{ir.O("name", ir.IRString("b")), ir.O("age", ir.IRNull{})},
	}, got.Documents)

	one := parseOne(t, "INSERT INTO users (name) VALUES ('c')")
	assert.Equal(t, qir.KindInsertOne, one.Kind)
}

func TestParse_Update(t *testing.T) {
	got := parseOne(t, "UPDATE users SET age = age + 1, name = 'x', nick = NULL, seen = NOW(), score = score - 2 WHERE id = 3 LIMIT 1")

	assert.Equal(t, qir.KindUpdateOne, got.Kind)
	assert.Equal(t, qir.Comparison{Field: "id", Op: qir.OpEq, Value: ir.IRInt(3)}, got.Filter)
	assert.Equal(t, qir.UpdateSpec{
		{Op: qir.UpdInc, Fields: ir.IRObject{ir.O("age", ir.IRInt(1)), ir.O("score", ir.IRInt(-2))}},
		{Op: qir.UpdSet, Fields: ir.IRObject{ir.O("name", ir.IRString("x"))}},
		{Op: qir.UpdUnset, Fields: ir.IRObject{ir.O("nick", ir.IRString(""))}},
		{Op: qir.UpdCurrentDate, Fields: ir.IRObject{ir.O("seen", ir.IRBool(true))}},
	}, got.Update)
}

func TestParse_Delete(t *testing.T) {
	got := parseOne(t, "DELETE FROM sessions WHERE expired = TRUE")
	assert.Equal(t, qir.KindDeleteMany, got.Kind)
	assert.Equal(t, "sessions", got.Target)
}

func TestParse_CreateTable(t *testing.T) {
	got := parseOne(t, `CREATE TABLE users (
		id BIGINT,
		email VARCHAR(120) NOT NULL,
		score DOUBLE PRECISION,
		price DECIMAL(10, 2) UNIQUE,
		PRIMARY KEY (id)
	)`)

	assert.Equal(t, qir.KindCreateSchema, got.Kind)
	assert.Equal(t, qir.SchemaDef{
		{Name: "id", Type: qir.TypeLong, Constraints: []qir.Constraint{qir.PrimaryKey}},
		{Name: "email", Type: qir.TypeString, Constraints: []qir.Constraint{qir.Required}},
		{Name: "score", Type: qir.TypeDouble},
		{Name: "price", Type: qir.TypeDecimal, Constraints: []qir.Constraint{qir.Unique}},
	}, got.Schema)
}

func TestParse_MultipleStatements(t *testing.T) {
	stmts, err := Parse("SELECT * FROM a; -- comment\n;SELECT * FROM b;", Options{})
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "a", stmts[0].Target)
	assert.Equal(t, "b", stmts[1].Target)
}

func TestParseEach_IsolatesFailures(t *testing.T) {
	results, err := ParseEach("SELECT * FROM a; SELECT FROM; DELETE FROM c", Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "SELECT * FROM a", results[0].Text)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "c", results[2].Statement.Target)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		clause string
	}{
		{"clause out of order", "SELECT * FROM t LIMIT 1 WHERE a = 1", clauseWhere},
		{"duplicate clause", "SELECT * FROM t WHERE a = 1 WHERE b = 2", clauseWhere},
		{"missing operand", "SELECT * FROM t WHERE a =", clauseWhere},
		{"bad limit", "SELECT * FROM t LIMIT x", clauseLimit},
		{"value count", "INSERT INTO t (a, b) VALUES (1)", "VALUES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, Options{})
			var syn *qerr.RelationalSyntaxError
			require.ErrorAs(t, err, &syn)
			assert.Equal(t, tt.clause, syn.Clause)
			assert.Equal(t, qerr.CodeRelationalSyntax, qerr.CodeOf(err))
		})
	}
}

func TestParse_Unrepresentable(t *testing.T) {
	for _, src := range []string{
		"SELECT DISTINCT a FROM t",
		"SELECT * FROM a UNION SELECT * FROM b",
		"WITH x AS (SELECT * FROM t) SELECT * FROM x",
		"SELECT * FROM a RIGHT JOIN b ON a.id = b.id",
		"SELECT * FROM a JOIN b USING (id)",
		"SELECT * FROM t WHERE a = b",
		"SELECT COUNT(DISTINCT a) FROM t",
		"SELECT ROW_NUMBER() OVER (ORDER BY a) FROM t",
		"SELECT RANK() OVER (PARTITION BY b ORDER BY a) AS r FROM t",
		"SELECT SUM(x) OVER (PARTITION BY b) FROM t",
		"SELECT * FROM (SELECT * FROM t) x",
		"UPDATE t SET a = b",
		"DELETE FROM t LIMIT 5",
		"CREATE TABLE IF NOT EXISTS t (a INT)",
		"CREATE TABLE t (a INT DEFAULT 0)",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src, Options{})
			require.Error(t, err)
			assert.Equal(t, qerr.CodeUnrepresentable, qerr.CodeOf(err), "got %v", err)
		})
	}
}

func TestParse_FunctionCallUnsupported(t *testing.T) {
	_, err := Parse("SELECT * FROM t WHERE LOWER(name) = 'a'", Options{})
	var unsupported *qerr.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "LOWER", unsupported.Operator)
}

func TestParse_DepthLimit(t *testing.T) {
	_, err := Parse("SELECT * FROM t WHERE ((((a = 1))))", Options{MaxDepth: 3})
	var depth *qerr.DepthExceededError
	require.ErrorAs(t, err, &depth)
	assert.Equal(t, 3, depth.Max)

	_, err = Parse("SELECT * FROM t WHERE ((((a = 1))))", Options{})
	assert.NoError(t, err)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("  ; ;", Options{})
	assert.Equal(t, qerr.CodeRelationalSyntax, qerr.CodeOf(err))
}
