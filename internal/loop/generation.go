package loop

import "sync/atomic"

// Generation is a monotonically advancing token used to detect stale
// asynchronous continuations.
//
// Thread-safety: Generation is safe for concurrent use (atomic operations).
type Generation struct {
	seq atomic.Int64
}

// NewGeneration creates a generation counter starting at 0.
func NewGeneration() *Generation {
	return &Generation{}
}

// Next advances the generation and returns the new token.
// Every token returned by Next supersedes all earlier ones.
func (g *Generation) Next() int64 {
	return g.seq.Add(1)
}

// Current returns the latest issued token without advancing.
func (g *Generation) Current() int64 {
	return g.seq.Load()
}

// IsCurrent reports whether token is still the latest issued token.
func (g *Generation) IsCurrent(token int64) bool {
	return g.seq.Load() == token
}
