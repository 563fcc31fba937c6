package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRObjectWithKeepsPosition(t *testing.T) {
	obj := IRObject{O("a", IRInt(1)), O("b", IRInt(2))}

	updated := obj.With("a", IRInt(10))
	assert.Equal(t, []string{"a", "b"}, updated.Keys())
	v, ok := updated.Get("a")
	require.True(t, ok)
	assert.Equal(t, IRInt(10), v)

	// original untouched
	v, _ = obj.Get("a")
	assert.Equal(t, IRInt(1), v)

	appended := obj.With("c", IRBool(true))
	assert.Equal(t, []string{"a", "b", "c"}, appended.Keys())
}

func TestEqual(t *testing.T) {
	d1 := IRDate{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d2 := IRDate{Time: d1.Time.In(time.FixedZone("x", 3600))}

	assert.True(t, Equal(d1, d2))
	assert.True(t, Equal(IRArray{IRInt(1), IRString("a")}, IRArray{IRInt(1), IRString("a")}))
	assert.False(t, Equal(IRInt(1), IRFloat(1)))
	assert.False(t, Equal(
		IRObject{O("a", IRInt(1)), O("b", IRInt(2))},
		IRObject{O("b", IRInt(2)), O("a", IRInt(1))},
	), "key order is significant")
}

func TestAsInt(t *testing.T) {
	n, ok := AsInt(IRFloat(3))
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = AsInt(IRFloat(3.5))
	assert.False(t, ok)

	_, ok = AsInt(IRString("3"))
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	tests := []string{
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00",
		"2024-03-01 10:00:00",
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseDate(in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}

	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}
