package querysql

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

func TestEmit_RoundTrip(t *testing.T) {
	// Each statement is already in emitted form, so parse then emit must
	// reproduce it exactly.
	tests := []string{
		"SELECT * FROM users;",
		"SELECT name, age FROM users WHERE age > 25 AND status = 'active' ORDER BY age DESC LIMIT 10 OFFSET 5;",
		"SELECT name AS n FROM users;",
		"SELECT * FROM t WHERE a = 1 OR b = 2 AND NOT (c = 3);",
		"SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3;",
		"SELECT * FROM t WHERE deleted_at IS NULL AND email IS NOT NULL;",
		"SELECT * FROM t WHERE status IN ('a', 'b') AND id NOT IN (1, 2);",
		"SELECT * FROM t WHERE name LIKE 'Jo%' OR name ILIKE '%smith%';",
		"SELECT * FROM t WHERE code REGEXP '^ab[0-9]+$';",
		"SELECT * FROM t WHERE name = 'O''Brien';",
		"SELECT * FROM t WHERE at >= TIMESTAMP '2024-01-02T03:04:05Z';",
		`SELECT * FROM t WHERE "order" = 1 AND "first name" = 'x';`,
		"SELECT * FROM orders WHERE user_id IN (SELECT id FROM users WHERE active = TRUE);",
		"SELECT dept, COUNT(*) AS n FROM employees GROUP BY dept HAVING COUNT(*) > 5 ORDER BY n DESC;",
		"SELECT region, city AS town, AVG(price) AS avg_price FROM shops WHERE open = TRUE GROUP BY region, city;",
		"SELECT * FROM orders LEFT JOIN users AS u ON orders.user_id = u.id WHERE u.active = TRUE LIMIT 3;",
		"SELECT total, u.name FROM orders JOIN users AS u ON orders.user_id = u.id;",
		"INSERT INTO users (name, age) VALUES ('a', 1), ('b', NULL);",
		"UPDATE users SET age = age + 1, score = score - 2, name = 'x', nick = NULL, seen = CURRENT_TIMESTAMP WHERE id = 3 LIMIT 1;",
		"UPDATE prices SET amount = amount * 1.1;",
		"DELETE FROM sessions WHERE expired = TRUE;",
		"DELETE FROM sessions WHERE id = 1 LIMIT 1;",
		"CREATE TABLE users (id BIGINT PRIMARY KEY, email VARCHAR(255) NOT NULL UNIQUE, score DOUBLE PRECISION);",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			stmts, err := Parse(src, Options{})
			require.NoError(t, err)
			got, err := Emit(stmts, nil)
			require.NoError(t, err)
			assert.Equal(t, src, got)
		})
	}
}

func TestEmit_Golden(t *testing.T) {
	src := `select name, age from users where age > 25 and status = 'active' order by age desc limit 10;
select dept, count(*) as n from employees group by dept having count(*) > 5;
insert into users (name, age) values ('a', 1), ('b', 2);
update users set age = age - 1 where name like 'A%';
delete from users where id in (select user_id from bans) limit 1;
create table users (id integer primary key, email text not null unique);`

	stmts, err := Parse(src, Options{})
	require.NoError(t, err)
	got, err := Emit(stmts, nil)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "script", []byte(got+"\n"))
}

func TestEmit_Parameterized(t *testing.T) {
	at := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	s := qir.Statement{
		Kind:   qir.KindFind,
		Target: "events",
		Filter: qir.And(
			qir.Comparison{Field: "kind", Op: qir.OpEq, Value: ir.IRString("click")},
			qir.Comparison{Field: "at", Op: qir.OpGte, Value: ir.IRDate{Time: at}},
			qir.Membership{Field: "user", Op: qir.OpIn, Values: []ir.IRValue{ir.IRObjectID("65a1b2c3d4e5f60718293a4b"), ir.IRInt(7)}},
			qir.Pattern{Field: "page", Regex: "^/docs"},
		),
	}

	e := &Emitter{Parameterize: true}
	got, params, err := e.Emit([]qir.Statement{s}, nil)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM events WHERE kind = ? AND at >= ? AND user IN (?, ?) AND page LIKE ?;", got)
	assert.NotContains(t, got, "click")
	assert.NotContains(t, got, "/docs")
	assert.Equal(t, []any{"click", at, "65a1b2c3d4e5f60718293a4b", int64(7), "/docs%"}, params)
}

func TestEmit_InlinesBindings(t *testing.T) {
	proj, err := qir.NewProjection(qir.ProjectionItem{Field: "order_id", Include: true})
	require.NoError(t, err)
	producer := qir.Statement{
		Kind:       qir.KindFind,
		Target:     "order_items",
		Name:       "order_items_1",
		Filter:     qir.Comparison{Field: "sku", Op: qir.OpEq, Value: ir.IRString("A1")},
		Projection: proj,
	}
	consumer := qir.Statement{
		Kind:   qir.KindFind,
		Target: "orders",
		Filter: qir.Membership{Field: "_id", Op: qir.OpIn, Binding: "order_items_1"},
	}
	bindings := []qir.Binding{{Variable: "order_items_1", Producer: producer, ConsumerPath: "filter._id"}}

	got, err := Emit([]qir.Statement{producer, consumer}, bindings)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM orders WHERE _id IN (SELECT order_id FROM order_items WHERE sku = 'A1');", got)
}

func TestEmit_MissingBinding(t *testing.T) {
	s := qir.Statement{
		Kind:   qir.KindFind,
		Target: "orders",
		Filter: qir.Membership{Field: "_id", Op: qir.OpIn, Binding: "nope"},
	}
	_, err := Emit([]qir.Statement{s}, nil)
	assert.True(t, qerr.IsInvariantViolation(err))
}

func TestEmit_NullComparison(t *testing.T) {
	s := qir.Statement{
		Kind:   qir.KindFind,
		Target: "t",
		Filter: qir.And(
			qir.Comparison{Field: "a", Op: qir.OpEq, Value: ir.IRNull{}},
			qir.Comparison{Field: "b", Op: qir.OpNe, Value: ir.IRNull{}},
		),
	}
	got, err := Emit([]qir.Statement{s}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a IS NULL AND b IS NOT NULL;", got)
}

func TestEmit_Pattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern qir.Pattern
		want    string
	}{
		{"prefix", qir.Pattern{Field: "n", Regex: "^abc"}, "n LIKE 'abc%'"},
		{"exact", qir.Pattern{Field: "n", Regex: "^a.c$"}, "n LIKE 'a_c'"},
		{"escaped percent", qir.Pattern{Field: "n", Regex: "50%"}, `n LIKE '%50\%%'`},
		{"escaped dot", qir.Pattern{Field: "n", Regex: `^a\.b`}, "n LIKE 'a.b%'"},
		{"class needs regexp", qir.Pattern{Field: "n", Regex: "^[a-z]+$"}, "n REGEXP '^[a-z]+$'"},
		{"insensitive regexp", qir.Pattern{Field: "n", Regex: `\d+`, CaseInsensitive: true}, `n REGEXP '(?i)\d+'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := qir.Statement{Kind: qir.KindFind, Target: "t", Filter: tt.pattern}
			got, err := Emit([]qir.Statement{s}, nil)
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM t WHERE "+tt.want+";", got)
		})
	}
}

func TestEmit_Unrepresentable(t *testing.T) {
	exclusion, err := qir.NewProjection(qir.ProjectionItem{Field: "password"})
	require.NoError(t, err)

	tests := []struct {
		name string
		stmt qir.Statement
	}{
		{"exclusion projection", qir.Statement{Kind: qir.KindFind, Target: "t", Projection: exclusion}},
		{"empty in list", qir.Statement{Kind: qir.KindFind, Target: "t", Filter: qir.Membership{Field: "a", Op: qir.OpIn}}},
		{"array literal", qir.Statement{Kind: qir.KindFind, Target: "t", Filter: qir.Comparison{Field: "a", Op: qir.OpEq, Value: ir.IRArray{ir.IRInt(1)}}}},
		{"unwind without lookup", qir.Statement{Kind: qir.KindAggregate, Target: "t", Pipeline: []qir.Stage{qir.UnwindStage{Path: "tags"}}}},
		{"match after limit", qir.Statement{Kind: qir.KindAggregate, Target: "t", Pipeline: []qir.Stage{
			qir.LimitStage{N: 1},
			qir.MatchStage{Filter: qir.Existence{Field: "a", Exists: true}},
		}}},
		{"nested insert value", qir.Statement{Kind: qir.KindInsertOne, Target: "t", Documents: []ir.IRObject{
			{ir.O("tags", ir.IRArray{ir.IRString("x")})},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Emit([]qir.Statement{tt.stmt}, nil)
			require.Error(t, err)
			assert.Equal(t, qerr.CodeUnrepresentable, qerr.CodeOf(err), "got %v", err)
		})
	}
}

func TestEmit_UnsupportedOperators(t *testing.T) {
	// first/last have no relational aggregate, and most update operators
	// have no SET form.
	group := qir.Statement{Kind: qir.KindAggregate, Target: "t", Pipeline: []qir.Stage{
		qir.GroupStage{Keys: []qir.GroupKey{{Field: "k"}}, Aggregations: []qir.Aggregation{{Name: "f", Fn: qir.AccFirst, Source: "v"}}},
	}}
	_, err := Emit([]qir.Statement{group}, nil)
	assert.True(t, qerr.IsUnsupportedOperator(err), "got %v", err)

	update := qir.Statement{Kind: qir.KindUpdateMany, Target: "t",
		Update: qir.UpdateSpec{}.Add(qir.UpdPush, "tags", ir.IRString("x"))}
	_, err = Emit([]qir.Statement{update}, nil)
	assert.True(t, qerr.IsUnsupportedOperator(err), "got %v", err)
}

func TestEmit_InsertUnionOfKeys(t *testing.T) {
	s := qir.Statement{Kind: qir.KindInsertMany, Target: "t", Documents: []ir.IRObject{
		{ir.O("a", ir.IRInt(1))},
		{ir.O("b", ir.IRBool(false)), ir.O("a", ir.IRInt(2))},
	}}
	got, err := Emit([]qir.Statement{s}, nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (1, NULL), (2, FALSE);", got)
}

// TestEmit_SQLitePrepares checks that emitted text is accepted by a real
// SQL engine, not only by this package's own parser.
func TestEmit_SQLitePrepares(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	schema := `CREATE TABLE users (id BIGINT PRIMARY KEY, name VARCHAR(255) NOT NULL, age INTEGER, dept VARCHAR(255), active BOOLEAN);
CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id BIGINT, total DOUBLE PRECISION);`
	stmts, err := Parse(schema, Options{})
	require.NoError(t, err)
	ddl, err := Emit(stmts, nil)
	require.NoError(t, err)
	_, err = db.Exec(ddl)
	require.NoError(t, err)

	queries := []string{
		"SELECT name, age FROM users WHERE age > 25 AND name LIKE 'A%' ORDER BY age DESC LIMIT 10 OFFSET 5",
		"SELECT * FROM users WHERE dept IS NULL OR NOT (active = TRUE)",
		"SELECT dept, COUNT(*) AS n, AVG(age) AS avg_age FROM users GROUP BY dept HAVING COUNT(*) > 1 ORDER BY n DESC",
		"SELECT * FROM orders LEFT JOIN users AS u ON orders.user_id = u.id WHERE u.active = TRUE",
		"SELECT * FROM orders WHERE user_id IN (SELECT id FROM users WHERE age BETWEEN 18 AND 30)",
		"INSERT INTO users (id, name, age) VALUES (1, 'a', 30), (2, 'b', NULL)",
		"UPDATE users SET age = age + 1, dept = NULL WHERE id = 1",
		"DELETE FROM orders WHERE total < 0",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			stmts, err := Parse(q, Options{})
			require.NoError(t, err)
			text, err := Emit(stmts, nil)
			require.NoError(t, err)

			prepared, err := db.Prepare(text)
			require.NoError(t, err, text)
			prepared.Close()
		})
	}
}
