package store

import (
	"encoding/json"
	"log/slog"
)

// Store is the persistence collaborator consumed by the client core.
//
// Implementations must be safe for concurrent use. Failures are logged by
// the implementation and never surface to the caller.
type Store interface {
	// Load returns the value stored under key, or false if absent.
	Load(key string) ([]byte, bool)
	// Save stores value under key, replacing any previous value.
	Save(key string, value []byte)
	// Delete removes key. Deleting an absent key is a no-op.
	Delete(key string)
}

// LoadJSON loads key and decodes it into a T.
// A missing or undecodable record reads as absent.
func LoadJSON[T any](s Store, key string) (T, bool) {
	var v T
	raw, ok := s.Load(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("stored record is not valid JSON",
			"key", key,
			"error", err,
		)
		return v, false
	}
	return v, true
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(s Store, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode record failed",
			"key", key,
			"error", err,
		)
		return
	}
	s.Save(key, raw)
}
