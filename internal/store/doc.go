// Package store provides the key-value persistence the client core keeps its
// durable state in (encrypted wallet records, last feed selections).
//
// The core consumes persistence through the Store interface, which is
// synchronous and best-effort: a backend failure is logged and never
// returned to the caller. A failed Load reads as "absent".
//
// # Backends
//
//   - SQLite: single-file database, WAL mode, user_version migrations
//   - Badger: embedded LSM key-value store, optional in-memory mode
//   - Memory: map-backed, for tests and ephemeral sessions
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
