package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikeToRegex(t *testing.T) {
	tests := []struct {
		like string
		want string
	}{
		{"abc", "^abc$"},
		{"abc%", "^abc"},
		{"%abc", "abc$"},
		{"%abc%", "abc"},
		{"a_c", "^a.c$"},
		{"a.b%", `^a\.b`},
		{`50\%%`, `^50%`},
	}
	for _, tt := range tests {
		t.Run(tt.like, func(t *testing.T) {
			assert.Equal(t, tt.want, likeToRegex(tt.like))
		})
	}
}

func TestRegexToLike(t *testing.T) {
	tests := []struct {
		re   string
		want string
		ok   bool
	}{
		{"^abc$", "abc", true},
		{"^abc", "abc%", true},
		{"abc", "%abc%", true},
		{"^a.*z$", "a%z", true},
		{`^a\.b$`, "a.b", true},
		{"^100_%", `100\_\%%`, true},
		{`^\d+$`, "", false},
		{"^(a|b)$", "", false},
		{"^a+$", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.re, func(t *testing.T) {
			got, ok := regexToLike(tt.re)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLikeRoundTrip(t *testing.T) {
	for _, like := range []string{"abc", "abc%", "%abc", "%a_c%", "x%y"} {
		re := likeToRegex(like)
		back, ok := regexToLike(re)
		assert.True(t, ok, like)
		assert.Equal(t, like, back)
	}
}
