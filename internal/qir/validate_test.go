package qir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
)

func eq(field string, v ir.IRValue) Comparison {
	return Comparison{Field: field, Op: OpEq, Value: v}
}

func TestValidate_ValidFind(t *testing.T) {
	proj, err := NewProjection(ProjectionItem{Field: "name", Include: true})
	require.NoError(t, err)

	s := Statement{
		Kind:   KindFind,
		Target: "users",
		Filter: Logical{Op: OpOr, Children: []Filter{
			eq("a", ir.IRInt(1)),
			Not(Pattern{Field: "name", Regex: "^a"}),
		}},
		Projection: proj,
		Sort:       []SortKey{{Field: "age", Direction: Desc}},
		Page:       &Pagination{Limit: Int64(10)},
	}

	assert.NoError(t, Validate(s))
}

func TestNewProjection_Polarity(t *testing.T) {
	tests := []struct {
		name    string
		items   []ProjectionItem
		wantErr bool
	}{
		{"inclusion only", []ProjectionItem{{Field: "name", Include: true}, {Field: "age", Include: true}}, false},
		{"exclusion only", []ProjectionItem{{Field: "password"}, {Field: "token"}}, false},
		{"inclusion with _id exclusion", []ProjectionItem{{Field: "name", Include: true}, {Field: "_id"}}, false},
		{"computed with inclusion", []ProjectionItem{{Field: "n", Include: true, Source: "name"}, {Field: "age", Include: true}}, false},
		{"mixed inclusion and exclusion", []ProjectionItem{{Field: "name", Include: true}, {Field: "age"}}, true},
		{"computed with exclusion", []ProjectionItem{{Field: "n", Include: true, Source: "name"}, {Field: "age"}}, true},
		{"duplicate field", []ProjectionItem{{Field: "a", Include: true}, {Field: "a", Include: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProjection(tt.items...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, qerr.IsInvariantViolation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_LogicalArity(t *testing.T) {
	notTwo := Statement{Kind: KindFind, Target: "t", Filter: Logical{Op: OpNot, Children: []Filter{eq("a", ir.IRInt(1)), eq("b", ir.IRInt(2))}}}
	err := Validate(notTwo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one child")

	emptyAnd := Statement{Kind: KindDeleteMany, Target: "t", Filter: Logical{Op: OpAnd}}
	err = Validate(emptyAnd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one child")
}

func TestValidate_GroupAggregationSource(t *testing.T) {
	s := Statement{Kind: KindAggregate, Target: "orders", Pipeline: []Stage{
		GroupStage{Keys: []GroupKey{{Field: "customer"}}, Aggregations: []Aggregation{
			{Name: "n", Fn: AccCount},
			{Name: "total", Fn: AccSum},
		}},
	}}

	err := Validate(s)
	require.Error(t, err)
	assert.True(t, qerr.IsInvariantViolation(err))
	assert.Contains(t, err.Error(), `"total"`)
	assert.Contains(t, err.Error(), "pipeline[0]")
}

func TestValidate_SinglePrimaryKey(t *testing.T) {
	s := Statement{Kind: KindCreateSchema, Target: "users", Schema: SchemaDef{
		{Name: "id", Type: TypeInt, Constraints: []Constraint{PrimaryKey}},
		{Name: "email", Type: TypeString, Constraints: []Constraint{Unique, PrimaryKey}},
	}}

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both primary keys")
}

func TestValidate_KindFieldCompatibility(t *testing.T) {
	tests := []struct {
		name string
		stmt Statement
	}{
		{"filter on insert", Statement{Kind: KindInsertMany, Target: "t", Filter: eq("a", ir.IRInt(1)), Documents: []ir.IRObject{{ir.O("a", ir.IRInt(1))}}}},
		{"insertOne with two documents", Statement{Kind: KindInsertOne, Target: "t", Documents: []ir.IRObject{{}, {}}}},
		{"update without operators", Statement{Kind: KindUpdateMany, Target: "t"}},
		{"aggregate without stages", Statement{Kind: KindAggregate, Target: "t"}},
		{"sort on delete", Statement{Kind: KindDeleteOne, Target: "t", Sort: []SortKey{{Field: "a", Direction: Asc}}}},
		{"missing target", Statement{Kind: KindFind}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.stmt)
			require.Error(t, err)
			assert.True(t, qerr.IsInvariantViolation(err), "got %v", err)
		})
	}
}

func TestValidate_SubqueryMustBeFind(t *testing.T) {
	inner := &Statement{Kind: KindAggregate, Target: "items", Pipeline: []Stage{LimitStage{N: 1}}}
	s := Statement{Kind: KindFind, Target: "orders", Filter: SubqueryMembership{Field: "id", Op: OpIn, Query: inner}}

	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a find")
}

func TestValidateWithLimit_Depth(t *testing.T) {
	var f Filter = eq("a", ir.IRInt(1))
	for range 10 {
		f = Not(f)
	}
	s := Statement{Kind: KindFind, Target: "t", Filter: f}

	assert.NoError(t, ValidateWithLimit(s, 64))

	err := ValidateWithLimit(s, 5)
	var de *qerr.DepthExceededError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 5, de.Max)
}
