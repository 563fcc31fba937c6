package qir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybridge/internal/ir"
)

func TestUpdateSpecAddMergesOperators(t *testing.T) {
	var u UpdateSpec
	u = u.Add(UpdSet, "a", ir.IRInt(1))
	u = u.Add(UpdInc, "b", ir.IRInt(2))
	u = u.Add(UpdSet, "c", ir.IRString("x"))

	require.Len(t, u, 2)
	assert.Equal(t, UpdSet, u[0].Op)
	assert.Equal(t, []string{"a", "c"}, u[0].Fields.Keys())
	assert.Equal(t, UpdInc, u[1].Op)
}

func TestFieldDefWithKeepsCanonicalOrder(t *testing.T) {
	f := FieldDef{Name: "id", Type: TypeInt}
	f = f.With(PrimaryKey).With(Required).With(PrimaryKey)

	assert.Equal(t, []Constraint{Required, PrimaryKey}, f.Constraints)
	assert.True(t, f.Has(PrimaryKey))
	assert.False(t, f.Has(Unique))
}

func TestOutputField(t *testing.T) {
	proj, err := NewProjection(ProjectionItem{Field: "order_id", Include: true}, ProjectionItem{Field: "_id"})
	require.NoError(t, err)

	field, err := OutputField(Statement{Kind: KindFind, Target: "order_items", Projection: proj})
	require.NoError(t, err)
	assert.Equal(t, "order_id", field)

	_, err = OutputField(Statement{Kind: KindFind, Target: "order_items"})
	assert.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("sql")
	require.NoError(t, err)
	assert.Equal(t, Relational, d)

	d, err = ParseDialect("mongo")
	require.NoError(t, err)
	assert.Equal(t, Document, d)

	_, err = ParseDialect("sparql")
	assert.Error(t, err)
}

func TestProjectionHelpers(t *testing.T) {
	excl := Projection{Items: []ProjectionItem{{Field: "password"}}}
	assert.True(t, excl.Exclusive())
	assert.Empty(t, excl.Included())

	incl := Projection{Items: []ProjectionItem{{Field: "a", Include: true}, {Field: "_id"}}}
	assert.False(t, incl.Exclusive())
	assert.Len(t, incl.Included(), 1)
}
