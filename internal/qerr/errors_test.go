package qerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("statement 2: %w", &UnsupportedOperatorError{Dialect: "relational", Category: "accumulator", Operator: "first"})

	assert.Equal(t, CodeUnsupportedOperator, CodeOf(err))
	assert.True(t, IsUnsupportedOperator(err))
	assert.False(t, IsInvariantViolation(err))
	assert.Contains(t, err.Error(), `"first"`)
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("boom")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err      Coded
		code     Code
		contains string
	}{
		{&LiteralSyntaxError{Position: 7, Reason: "unterminated string"}, CodeLiteralSyntax, "position 7"},
		{&RelationalSyntaxError{Clause: "WHERE", Position: 3, Reason: "x"}, CodeRelationalSyntax, "in WHERE"},
		{&RelationalSyntaxError{Position: 0, Reason: "empty"}, CodeRelationalSyntax, "position 0: empty"},
		{&DocumentMethodSyntaxError{Position: 1, Reason: "y"}, CodeDocumentMethodSyntax, "document syntax"},
		{&UnsupportedChainedCallError{Name: "explain"}, CodeUnsupportedChainedCall, `"explain"`},
		{&InvariantViolationError{Node: "Projection", Reason: "mixed"}, CodeInvariantViolation, "Projection"},
		{&CyclicDependencyError{Target: "users"}, CodeCyclicDependency, "users"},
		{&DepthExceededError{Depth: 65, Max: 64}, CodeDepthExceeded, "65"},
		{&UnrepresentableConstructError{Dialect: "relational", Construct: "$unwind"}, CodeUnrepresentable, "$unwind"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code())
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}
