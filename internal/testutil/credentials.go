package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when more requests arrive than were
// scripted.
var ErrScriptExhausted = errors.New("credential script exhausted")

// CredentialAnswer is one scripted reply. A nil Key with a nil Err means
// the user cancelled the prompt.
type CredentialAnswer struct {
	Key []byte
	Err error
}

// ScriptedCredentials answers RequestMasterKey calls in order.
//
// Gate, when non-nil, blocks each request until a value is received on it,
// letting tests hold an unlock in flight.
type ScriptedCredentials struct {
	Gate chan struct{}

	mu      sync.Mutex
	answers []CredentialAnswer
	calls   int
	allowed []bool
}

// NewScriptedCredentials creates a provider that replies with answers.
func NewScriptedCredentials(answers ...CredentialAnswer) *ScriptedCredentials {
	return &ScriptedCredentials{answers: answers}
}

// Key is shorthand for a successful answer.
func Key(k string) CredentialAnswer {
	return CredentialAnswer{Key: []byte(k)}
}

// Cancel is shorthand for a cancelled prompt.
func Cancel() CredentialAnswer {
	return CredentialAnswer{}
}

// RequestMasterKey returns the next scripted answer.
func (s *ScriptedCredentials) RequestMasterKey(ctx context.Context, allowCancel bool) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.allowed = append(s.allowed, allowCancel)
	gate := s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		return nil, ErrScriptExhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	if a.Key == nil {
		return nil, a.Err
	}
	return append([]byte(nil), a.Key...), a.Err
}

// Calls returns how many requests have been made.
func (s *ScriptedCredentials) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// AllowCancel returns the allowCancel flag of every request, in order.
func (s *ScriptedCredentials) AllowCancel() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.allowed...)
}
