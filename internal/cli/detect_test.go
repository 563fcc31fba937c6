package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT * FROM users WHERE a = 1;", "relational"},
		{"db.users.find({a: 1});", "document"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			out, err := execute(t, tt.input, "detect")
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestDetect_JSON(t *testing.T) {
	out, err := execute(t, "db.users.find({a: 1});", "detect", "--format", "json")
	require.NoError(t, err)

	var result DetectResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "document", result.Dialect)
}

func TestDetect_Unknown(t *testing.T) {
	out, err := execute(t, "hello world", "detect")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeUndetectable+"]")
}
