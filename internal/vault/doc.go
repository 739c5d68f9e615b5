// Package vault guards the wallet connection secret.
//
// Only an encrypted Record is ever persisted. Unlock asks the credential
// provider for a master key, decrypts the record and keeps the plaintext in
// locked memory inside a cell. A record that fails to decrypt is purged so
// a bad ciphertext cannot cause repeated failed prompts. Lock and
// Disconnect wipe the in-memory secret and delete the record.
//
// Concurrent unlocks for the same identifier share one prompt. Each unlock
// carries the generation it was started under; one that completes after a
// Lock is discarded instead of committed.
package vault
