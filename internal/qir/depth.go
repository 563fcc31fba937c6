package qir

import "github.com/roach88/querybridge/internal/qerr"

// DefaultMaxDepth bounds nesting of literals, filters and subqueries.
const DefaultMaxDepth = 64

// DepthCounter tracks nesting depth during recursive descent.
type DepthCounter struct {
	depth    int
	maxDepth int
}

// NewDepthCounter creates a counter. A non-positive max selects DefaultMaxDepth.
func NewDepthCounter(max int) *DepthCounter {
	if max <= 0 {
		max = DefaultMaxDepth
	}
	return &DepthCounter{maxDepth: max}
}

// Enter increments depth and returns DepthExceededError if the limit is exceeded.
func (c *DepthCounter) Enter() error {
	c.depth++
	if c.depth > c.maxDepth {
		return &qerr.DepthExceededError{Depth: c.depth, Max: c.maxDepth}
	}
	return nil
}

// Exit decrements depth.
func (c *DepthCounter) Exit() {
	c.depth--
}

// Max returns the configured limit.
func (c *DepthCounter) Max() int { return c.maxDepth }
