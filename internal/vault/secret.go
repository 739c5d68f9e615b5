package vault

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Secret is a decrypted wallet secret held in locked, guarded memory.
//
// A nil *Secret is valid and reads as destroyed.
type Secret struct {
	mu  sync.Mutex
	buf *memguard.LockedBuffer
}

// NewSecret moves b into locked memory. b is wiped.
func NewSecret(b []byte) *Secret {
	return &Secret{buf: memguard.NewBufferFromBytes(b)}
}

// Use calls fn with the plaintext. fn must not retain the slice.
// Returns false if the secret has been destroyed.
func (s *Secret) Use(fn func(plaintext []byte)) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil || !s.buf.IsAlive() {
		return false
	}
	fn(s.buf.Bytes())
	return true
}

// Alive reports whether the plaintext is still available.
func (s *Secret) Alive() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf != nil && s.buf.IsAlive()
}

// Destroy wipes and releases the plaintext. Idempotent.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
}
