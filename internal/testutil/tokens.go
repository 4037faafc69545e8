package testutil

import (
	"fmt"
	"sync"
)

// FixedTokens returns predetermined run tokens in order, enabling
// deterministic trace output and golden comparison.
//
// Safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a generator that returns tokens in order. When
// the supplied tokens run out, it continues with "run-N" counters rather
// than failing, so scenarios need not pre-count their pipeline runs.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idx++
	if g.idx <= len(g.tokens) {
		return g.tokens[g.idx-1]
	}
	return fmt.Sprintf("run-%d", g.idx)
}
