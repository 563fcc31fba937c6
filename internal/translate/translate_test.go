package translate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/querydoc"
	"github.com/roach88/querybridge/internal/queryrec"
)

const banScript = "var bans_1 = db.bans.find({active: true}, {user_id: 1}).toArray().map(doc => doc.user_id);\n" +
	"db.users.deleteMany({_id: {$in: bans_1}});"

func TestTranslate_Pairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		from, to qir.Dialect
		want     string
	}{
		{
			name:  "relational to document",
			input: "SELECT name, age FROM users WHERE age > 25 AND status = 'active' ORDER BY age DESC LIMIT 10;",
			from:  qir.Relational, to: qir.Document,
			want: `db.users.find({age: {$gt: 25}, status: "active"}, {name: 1, age: 1}).sort({age: -1}).limit(10);`,
		},
		{
			name:  "document to relational",
			input: `db.users.find({age: {$gt: 25}, status: "active"}, {name: 1, age: 1}).sort({age: -1}).limit(10);`,
			from:  qir.Document, to: qir.Relational,
			want: "SELECT name, age FROM users WHERE age > 25 AND status = 'active' ORDER BY age DESC LIMIT 10;",
		},
		{
			name:  "producer inlined as subquery",
			input: banScript,
			from:  qir.Document, to: qir.Relational,
			want: "DELETE FROM users WHERE _id IN (SELECT user_id FROM bans WHERE active = TRUE);",
		},
		{
			name:  "subquery materialized as producer",
			input: "DELETE FROM users WHERE _id IN (SELECT user_id FROM bans WHERE active = TRUE);",
			from:  qir.Relational, to: qir.Document,
			want: banScript,
		},
		{
			name:  "uneven insertMany fills missing keys",
			input: `db.t.insertMany([{a: 1}, {a: 2, b: "x"}]);`,
			from:  qir.Document, to: qir.Relational,
			want: "INSERT INTO t (a, b) VALUES (1, NULL), (2, 'x');",
		},
		{
			name:  "filled keys come back as null",
			input: "INSERT INTO t (a, b) VALUES (1, NULL), (2, 'x');",
			from:  qir.Relational, to: qir.Document,
			want: `db.t.insertMany([{a: 1, b: null}, {a: 2, b: "x"}]);`,
		},
		{
			name:  "document to document",
			input: banScript,
			from:  qir.Document, to: qir.Document,
			want: banScript,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Translate(tt.input, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslate_NullComparisons(t *testing.T) {
	pairs := []struct{ sql, doc string }{
		{"SELECT * FROM t WHERE a IS NULL;", "db.t.find({a: null});"},
		{"SELECT * FROM t WHERE a IS NOT NULL;", "db.t.find({a: {$ne: null}});"},
	}
	for _, p := range pairs {
		t.Run(p.sql, func(t *testing.T) {
			doc, err := Translate(p.sql, qir.Relational, qir.Document)
			require.NoError(t, err)
			assert.Equal(t, p.doc, doc)

			sql, err := Translate(p.doc, qir.Document, qir.Relational)
			require.NoError(t, err)
			assert.Equal(t, p.sql, sql)
		})
	}
}

func TestTranslate_ThroughRecord(t *testing.T) {
	inputs := []string{
		"SELECT name, age FROM users WHERE age > 25 ORDER BY age DESC LIMIT 10;",
		"DELETE FROM users WHERE _id IN (SELECT user_id FROM bans WHERE active = TRUE);",
		"INSERT INTO users (name, age) VALUES ('a', 1), ('b', NULL);",
	}
	for _, format := range []queryrec.Format{queryrec.JSON, queryrec.YAML} {
		for _, sql := range inputs {
			t.Run(string(format)+"/"+sql, func(t *testing.T) {
				tr := New(Options{RecordFormat: format})
				rec, err := tr.Translate(sql, qir.Relational, qir.Record)
				require.NoError(t, err)

				back, err := tr.Translate(rec.Text, qir.Record, qir.Relational)
				require.NoError(t, err)
				assert.Equal(t, sql, back.Text)
			})
		}
	}
}

func TestTranslate_PipelineSurvivesRelational(t *testing.T) {
	doc := `db.orders.aggregate([{$match: {status: "A"}}, {$group: {_id: "$cust_id", total: {$sum: "$amount"}}}, {$sort: {total: -1}}, {$limit: 5}]);`

	sql, err := Translate(doc, qir.Document, qir.Relational)
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY cust_id")

	back, err := Translate(sql, qir.Relational, qir.Document)
	require.NoError(t, err)

	stmts, err := querydoc.Parse(back, querydoc.Options{})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	var names []string
	for _, st := range stmts[0].Pipeline {
		names = append(names, qir.StageName(st))
	}
	assert.Equal(t, []string{"match", "group", "sort", "limit"}, names)
	assert.Equal(t, doc, back)
}

func TestTranslate_Parameterized(t *testing.T) {
	tr := New(Options{Parameterize: true})
	out, err := tr.Translate(`db.users.find({name: "x", age: {$gt: 3}});`, qir.Document, qir.Relational)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE name = ? AND age > ?;", out.Text)
	assert.Equal(t, []any{"x", int64(3)}, out.Params)
}

func TestTranslate_Errors(t *testing.T) {
	_, err := Translate("db.users.find({a: {$bogus: 1}});", qir.Document, qir.Relational)
	assert.Equal(t, qerr.CodeUnsupportedOperator, qerr.CodeOf(err))

	_, err = Translate("SELECT * FROM t;", "cobol", qir.Document)
	assert.Error(t, err)

	_, err = Translate("SELECT * FROM t;", qir.Relational, "cobol")
	assert.Error(t, err)

	_, err = New(Options{MaxDepth: 2}).Translate("SELECT * FROM t WHERE a IN (SELECT a FROM u WHERE b IN (SELECT b FROM v));", qir.Relational, qir.Document)
	var de *qerr.DepthExceededError
	assert.ErrorAs(t, err, &de)
}

func TestParseToQIR_RecordIsNested(t *testing.T) {
	rec, err := Translate(banScript, qir.Document, qir.Record)
	require.NoError(t, err)

	stmts, err := ParseToQIR(rec, qir.Record)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	sub, ok := stmts[0].Filter.(qir.SubqueryMembership)
	require.True(t, ok, "filter is %T", stmts[0].Filter)
	assert.Equal(t, "bans", sub.Query.Target)
	assert.Empty(t, sub.Query.Name)
}

func TestEmitFromQIR_ResolvesNestedInput(t *testing.T) {
	proj, err := qir.NewProjection(qir.ProjectionItem{Field: "user_id", Include: true})
	require.NoError(t, err)
	stmt := qir.Statement{
		Kind:   qir.KindDeleteMany,
		Target: "users",
		Filter: qir.SubqueryMembership{Field: "_id", Op: qir.OpIn, Query: &qir.Statement{
			Kind:       qir.KindFind,
			Target:     "bans",
			Filter:     qir.Comparison{Field: "active", Op: qir.OpEq, Value: ir.IRBool(true)},
			Projection: proj,
		}},
	}
	got, err := EmitFromQIR([]qir.Statement{stmt}, nil, qir.Document)
	require.NoError(t, err)
	assert.Equal(t, banScript, got)
}

func TestTranslator_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := New(Options{Logger: logger}).Translate("SELECT * FROM t;", qir.Relational, qir.Document)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=parsed")
	assert.Contains(t, buf.String(), "msg=resolved")
	assert.Contains(t, buf.String(), "msg=emitted")
}

func TestTranslateEach_IsolatesFailures(t *testing.T) {
	src := "db.users.find({a: 1});\ndb.users.find({a: {$bogus: 1}});\ndb.users.deleteOne({_id: 2});"
	results, err := New(Options{}).TranslateEach(src, qir.Document, qir.Relational)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "SELECT * FROM users WHERE a = 1;", results[0].Output.Text)

	var se *StatementError
	require.ErrorAs(t, results[1].Err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, qerr.CodeUnsupportedOperator, qerr.CodeOf(results[1].Err))

	assert.NoError(t, results[2].Err)
	assert.Equal(t, "DELETE FROM users WHERE _id = 2 LIMIT 1;", results[2].Output.Text)
}

func TestTranslateEach_Record(t *testing.T) {
	rec, err := Translate("SELECT * FROM a;\nSELECT * FROM b;", qir.Relational, qir.Record)
	require.NoError(t, err)

	results, err := New(Options{}).TranslateEach(rec, qir.Record, qir.Relational)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "SELECT * FROM a;", results[0].Output.Text)
	assert.Equal(t, "SELECT * FROM b;", results[1].Output.Text)
}

func TestTranslateBatch(t *testing.T) {
	inputs := []string{
		"SELECT * FROM a WHERE x = 1;",
		"SELECT * FROM;",
		"DELETE FROM c WHERE y = 2;",
	}
	results, err := New(Options{Workers: 2}).TranslateBatch(context.Background(), inputs, qir.Relational, qir.Document)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "db.a.find({x: 1});", results[0].Output.Text)
	assert.Equal(t, "db.c.deleteMany({y: 2});", results[2].Output.Text)

	var se *StatementError
	require.ErrorAs(t, results[1].Err, &se)
	assert.Equal(t, 1, se.Index)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestTranslateBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).TranslateBatch(ctx, []string{"SELECT * FROM a;"}, qir.Relational, qir.Document)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDetect(t *testing.T) {
	tests := []struct {
		input string
		want  qir.Dialect
	}{
		{"db.users.find({age: {$gt: 18}})", qir.Document},
		{`db.getCollection("order-items").deleteOne({_id: 1})`, qir.Document},
		{"var x = db.a.find({}, {b: 1}).toArray().map(doc => doc.b);", qir.Document},
		{"SELECT * FROM users WHERE created_at > NOW()", qir.Relational},
		{"select name from users where age > 3", qir.Relational},
		{"SELECT * FROM users WHERE email::text LIKE '%@example.com'", qir.Relational},
		{"PRAGMA table_info(users)", qir.Relational},
		{`{"version": "1", "statements": []}`, qir.Record},
		{"statements:\n  - kind: find\n    target: users\n", qir.Record},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Detect(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Detect("hello world")
	assert.ErrorIs(t, err, ErrUnknownDialect)
}
