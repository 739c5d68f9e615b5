// Package ids generates identifiers for subscriptions and notifications.
package ids

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
// Implemented by UUIDv7 (production) and Fixed (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so subscription
// ids sort by creation time in relay logs.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers for testing, then falls back to
// a numbered sequence with the given prefix once they run out.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu     sync.Mutex
	prefix string
	tokens []string
	idx    int
}

// NewFixed creates a generator returning tokens in order.
//
//	gen := NewFixed("sub", "a", "b")
//	gen.Generate() // "a"
//	gen.Generate() // "b"
//	gen.Generate() // "sub-3"
func NewFixed(prefix string, tokens ...string) *Fixed {
	return &Fixed{prefix: prefix, tokens: tokens}
}

// Generate returns the next identifier.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.tokens) {
		return g.tokens[g.idx-1]
	}
	return g.prefix + "-" + strconv.Itoa(g.idx)
}
