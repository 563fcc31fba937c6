package querydoc

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/resolve"
)

// roundTrip parses src, resolves subqueries and emits the result.
func roundTrip(t *testing.T, src string) string {
	t.Helper()
	stmts, err := Parse(src, Options{})
	require.NoError(t, err)
	plan, err := resolve.Resolve(stmts, resolve.Options{})
	require.NoError(t, err)
	out, err := Emit(plan.Statements, plan.Bindings)
	require.NoError(t, err)
	return out
}

func TestEmit_RoundTrip(t *testing.T) {
	// Each script is already in emitted form.
	tests := []string{
		`db.users.find({});`,
		`db.users.find({age: {$gt: 25}, status: "active"}, {name: 1, age: 1}).sort({age: -1}).skip(5).limit(10);`,
		`db.users.find({$or: [{a: 1}, {b: {$ne: null}}]});`,
		`db.users.find({$nor: [{a: 1}]});`,
		`db.users.find({$nor: [{a: 1}, {b: 2}]});`,
		`db.users.find({name: /^jo/i, path: /^\/api\//});`,
		`db.users.find({tags: {$in: ["a", "b"]}, n: {$nin: [1, 2]}});`,
		`db.users.find({email: {$exists: true}, phone: {$exists: false}});`,
		`db.events.find({at: {$gte: ISODate("2024-01-02T03:04:05Z")}, _id: ObjectId("65f000000000000000000001")});`,
		`db.users.find({age: {$gt: 1, $lt: 5}});`,
		`db.users.find({$and: [{a: 1}, {a: {$ne: 2}}]});`,
		`db.users.find({address: {$eq: {city: "Oslo"}}});`,
		`db.users.find({}, {_id: 0, name: 1, n: "$profile.name"});`,
		`db.getCollection("order-items").find({"a b": 1, "x.y": "q\"uote"});`,
		`db.orders.aggregate([{$match: {status: "A"}}, {$group: {_id: "$cust_id", total: {$sum: "$amount"}, n: {$sum: 1}}}, {$sort: {total: -1}}, {$limit: 5}]);`,
		`db.orders.aggregate([{$lookup: {from: "users", localField: "user_id", foreignField: "_id", as: "u"}}, {$unwind: {path: "$u", preserveNullAndEmptyArrays: true}}, {$project: {total: 1, name: "$u.name"}}, {$skip: 2}]);`,
		`db.sales.aggregate([{$group: {_id: {region: "$region", city: "$city"}, avg: {$avg: "$price"}}}]);`,
		`db.sales.aggregate([{$group: {_id: null, n: {$sum: 1}}}, {$unwind: "$tags"}]);`,
		`db.users.insertOne({name: "a", age: 1});`,
		`db.users.insertMany([{name: "a"}, {name: "b", tags: ["x"]}]);`,
		`db.users.updateOne({_id: 3}, {$inc: {age: 1}, $set: {name: "x"}, $unset: {nick: ""}, $currentDate: {seen: true}});`,
		`db.users.updateMany({}, {$mul: {price: 1.1}});`,
		`db.sessions.deleteMany({expired: true});`,
		`db.sessions.deleteOne({_id: 1});`,
		"db.createCollection(\"users\", {validator: {$jsonSchema: {bsonType: \"object\", required: [\"email\"], properties: {_id: {bsonType: \"objectId\"}, email: {bsonType: \"string\"}, score: {bsonType: \"double\"}}}}});\ndb.users.createIndex({email: 1}, {unique: true});",
		"db.createCollection(\"codes\", {validator: {$jsonSchema: {bsonType: \"object\", properties: {code: {bsonType: \"string\", primaryKey: true}}}}});",
		"var order_items_1 = db.order_items.find({product_id: 123}, {order_id: 1}).toArray().map(doc => doc.order_id);\ndb.users.deleteMany({order_id: {$in: order_items_1}});",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, src, roundTrip(t, src))
		})
	}
}

func TestEmit_Golden(t *testing.T) {
	src := `// users over 25
db.users.find({ age: { $gt: 25 }, status: 'active' }, { name: 1 })
  .sort({ age: -1 })
  .limit(10)
var banned = db.bans.distinct('user_id', { active: true })
db.users.deleteMany({ _id: { $in: banned } });
db.orders.aggregate([
  { $match: { status: "A" } },
  { $group: { _id: "$cust_id", total: { $sum: "$amount" } } },
]).toArray()
db.users.findOne({ email: "a@b.c" })`

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "script", []byte(roundTrip(t, src)+"\n"))
}

func TestEmit_StableAfterOnePass(t *testing.T) {
	// Merged conditions normalize on the first pass and then stay fixed.
	src := `db.t.find({$and: [{a: {$gt: 1}}, {a: {$lt: 9}}], b: {$not: {$in: [1]}}})`
	first := roundTrip(t, src)
	assert.Equal(t, `db.t.find({a: {$gt: 1, $lt: 9}, $nor: [{b: {$in: [1]}}]});`, first)
	assert.Equal(t, first, roundTrip(t, first))
}

func TestEmit_Errors(t *testing.T) {
	inner := qir.Statement{Kind: qir.KindFind, Target: "b", Projection: &qir.Projection{Items: []qir.ProjectionItem{{Field: "id", Include: true}}}}
	tests := map[string]struct {
		stmt qir.Statement
		code qerr.Code
	}{
		"unresolved subquery": {
			stmt: qir.Statement{Kind: qir.KindFind, Target: "a", Filter: qir.SubqueryMembership{Field: "id", Op: qir.OpIn, Query: &inner}},
			code: qerr.CodeInvariantViolation,
		},
		"missing binding": {
			stmt: qir.Statement{Kind: qir.KindFind, Target: "a", Filter: qir.Membership{Field: "id", Op: qir.OpIn, Binding: "ids"}},
			code: qerr.CodeInvariantViolation,
		},
		"count of field": {
			stmt: qir.Statement{Kind: qir.KindAggregate, Target: "a", Pipeline: []qir.Stage{
				qir.GroupStage{Aggregations: []qir.Aggregation{{Name: "n", Fn: qir.AccCount, Source: "email"}}},
			}},
			code: qerr.CodeUnrepresentable,
		},
		"invalid utf-8 string": {
			stmt: qir.Statement{Kind: qir.KindFind, Target: "a", Filter: qir.Comparison{Field: "s", Op: qir.OpEq, Value: ir.IRString("\xff\xfe")}},
			code: qerr.CodeUnrepresentable,
		},
		"named insert": {
			stmt: qir.Statement{Kind: qir.KindInsertOne, Target: "a", Name: "x", Documents: []ir.IRObject{{ir.O("a", ir.IRInt(1))}}},
			code: qerr.CodeUnrepresentable,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Emit([]qir.Statement{tt.stmt}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, qerr.CodeOf(err), "got %v", err)
		})
	}
}

func TestEmit_FindOneAsLimit(t *testing.T) {
	assert.Equal(t, `db.users.find({a: 1}).limit(1);`, roundTrip(t, `db.users.findOne({a: 1})`))
}

func TestWriteValue(t *testing.T) {
	tests := []struct {
		v    ir.IRValue
		want string
	}{
		{ir.IRString("<tag> & \"q\""), `"<tag> & \"q\""`},
		{ir.IRFloat(2.5), `2.5`},
		{ir.IRRegex{Pattern: "a/b", Flags: "i"}, `/a\/b/i`},
		{ir.IRRegex{Pattern: `a\/b`}, `/a\/b/`},
		{ir.IRObject{ir.O("$set", ir.IRObject{}), ir.O("1x", ir.IRArray{})}, `{$set: {}, "1x": []}`},
		{ir.IRRef{Name: "ids"}, `ids`},
	}
	for _, tt := range tests {
		got, err := render(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
