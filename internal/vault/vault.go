package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/loader"
	"github.com/roach88/ember/internal/loop"
	"github.com/roach88/ember/internal/metrics"
	"github.com/roach88/ember/internal/store"
)

// ErrCancelled is returned by Connect when the user dismissed the prompt.
var ErrCancelled = errors.New("master key request cancelled")

// Outcome is the result of Unlock. Cancellation and corruption are
// outcomes, not errors.
type Outcome string

const (
	OutcomeUnlocked     Outcome = "unlocked"
	OutcomeNotConnected Outcome = "not_connected"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeCorrupted    Outcome = "corrupted"
	// OutcomeSuperseded means a Lock happened while the unlock was waiting
	// on the credential provider; nothing was committed.
	OutcomeSuperseded Outcome = "superseded"
)

// CredentialProvider supplies the master key, possibly by prompting the
// user. A nil key with a nil error means the user cancelled.
type CredentialProvider interface {
	RequestMasterKey(ctx context.Context, allowCancel bool) ([]byte, error)
}

// UnlockOptions are passed through to the credential provider.
type UnlockOptions struct {
	AllowCancel bool
}

// Vault owns one wallet record.
//
// Thread-safety: Vault is safe for concurrent use.
type Vault struct {
	id      string
	store   store.Store
	creds   CredentialProvider
	crypto  Crypto
	unlocks *loader.Loader[Outcome]
	gen     *loop.Generation
	now     func() time.Time
	metrics *metrics.Collector
	logger  *slog.Logger

	secret *cell.Cell[*Secret]
	info   *cell.Cell[*Info]
}

// Option configures a Vault.
type Option func(*Vault)

// WithIdentifier sets the record identifier. Default: DefaultIdentifier.
func WithIdentifier(id string) Option {
	return func(v *Vault) { v.id = id }
}

// WithClock sets the time source for Record.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithMetrics records unlock outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(v *Vault) { v.metrics = c }
}

// WithLogger sets the vault logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// New creates a locked vault. Connection metadata of an existing record is
// loaded; the secret stays encrypted until Unlock.
func New(st store.Store, creds CredentialProvider, crypto Crypto, opts ...Option) *Vault {
	v := &Vault{
		id:     DefaultIdentifier,
		store:  st,
		creds:  creds,
		crypto: crypto,
		gen:    loop.NewGeneration(),
		now:    time.Now,
		logger: slog.Default(),
		secret: cell.Named[*Secret]("vault.secret", nil),
		info:   cell.Named[*Info]("vault.info", nil),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.unlocks = loader.New[Outcome]("vault_unlock",
		loader.WithMetrics(v.metrics),
		loader.WithLogger(v.logger),
	)

	if rec, ok := v.load(); ok {
		info := rec.Info
		v.info.Set(&info)
	}
	return v
}

// Secret is the decrypted secret, nil while locked.
func (v *Vault) Secret() cell.Readable[*Secret] { return v.secret }

// Info is the stored connection metadata, nil when not connected.
func (v *Vault) Info() cell.Readable[*Info] { return v.info }

// Connected reports whether an encrypted record exists.
func (v *Vault) Connected() bool {
	_, ok := v.store.Load(recordKey(v.id))
	return ok
}

// Unlocked reports whether the decrypted secret is in memory.
func (v *Vault) Unlocked() bool {
	return v.secret.Get().Alive()
}

// Connect parses uri, encrypts its secret under a master key from the
// credential provider and persists the record. The vault is unlocked on
// success. A malformed uri returns a *ConnectionError and changes nothing.
func (v *Vault) Connect(ctx context.Context, uri string, opts UnlockOptions) (Info, error) {
	conn, err := ParseConnection(uri)
	if err != nil {
		return Info{}, err
	}

	key, err := v.creds.RequestMasterKey(ctx, opts.AllowCancel)
	if err != nil {
		return Info{}, fmt.Errorf("request master key: %w", err)
	}
	if key == nil {
		return Info{}, ErrCancelled
	}
	defer memguard.WipeBytes(key)

	plaintext := []byte(conn.Secret)
	sealed, err := v.crypto.Encrypt(plaintext, key)
	if err != nil {
		memguard.WipeBytes(plaintext)
		return Info{}, fmt.Errorf("encrypt wallet secret: %w", err)
	}

	info := conn.Info()
	rec := Record{
		Identifier: v.id,
		Ciphertext: sealed.Ciphertext,
		IV:         sealed.IV,
		Salt:       sealed.Salt,
		CreatedAt:  v.now().UTC(),
		Info:       info,
	}

	v.gen.Next()
	store.SaveJSON(v.store, recordKey(v.id), rec)
	v.replaceSecret(NewSecret(plaintext))
	v.info.Set(&info)

	v.logger.Info("wallet connected",
		"identifier", v.id,
		"wallet_pubkey", info.WalletPubkey,
		"relays", len(info.Relays),
	)
	return info, nil
}

// Unlock decrypts the stored record into memory.
//
// Concurrent calls share one credential request; the first caller's
// options apply to all of them. A wrong key or corrupted record purges the
// record and returns OutcomeCorrupted. Errors are reserved for credential
// provider failures and caller cancellation.
func (v *Vault) Unlock(ctx context.Context, opts UnlockOptions) (Outcome, error) {
	if v.Unlocked() {
		return OutcomeUnlocked, nil
	}

	token := v.gen.Current()
	outcome, err := v.unlocks.Ensure(ctx, v.id, func(ctx context.Context) (Outcome, error) {
		return v.unlock(ctx, token, opts)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (v *Vault) unlock(ctx context.Context, token int64, opts UnlockOptions) (Outcome, error) {
	outcome, err := v.decryptRecord(ctx, token, opts)
	if err == nil {
		v.metrics.UnlockOutcome(string(outcome))
		v.logger.Info("wallet unlock finished",
			"identifier", v.id,
			"outcome", outcome,
		)
	}
	return outcome, err
}

func (v *Vault) decryptRecord(ctx context.Context, token int64, opts UnlockOptions) (Outcome, error) {
	rec, ok := v.load()
	if !ok {
		return OutcomeNotConnected, nil
	}

	key, err := v.creds.RequestMasterKey(ctx, opts.AllowCancel)
	if err != nil {
		return "", fmt.Errorf("request master key: %w", err)
	}
	if key == nil {
		return OutcomeCancelled, nil
	}
	defer memguard.WipeBytes(key)

	if !v.gen.IsCurrent(token) {
		return OutcomeSuperseded, nil
	}

	plaintext, err := v.crypto.Decrypt(rec.Ciphertext, rec.IV, rec.Salt, key)
	if err != nil {
		if !v.gen.IsCurrent(token) {
			return OutcomeSuperseded, nil
		}
		v.logger.Warn("wallet record unrecoverable, purging",
			"identifier", v.id,
			"error", err,
		)
		v.purge()
		return OutcomeCorrupted, nil
	}

	if !v.commitSecret(token, NewSecret(plaintext)) {
		return OutcomeSuperseded, nil
	}
	return OutcomeUnlocked, nil
}

// Lock wipes the in-memory secret and deletes the persisted record. Any
// unlock still waiting on the credential provider will not commit.
func (v *Vault) Lock() {
	v.purge()
	v.logger.Info("wallet locked", "identifier", v.id)
}

// Disconnect locks the vault and drops any pending unlock so the next
// Unlock starts fresh.
func (v *Vault) Disconnect() {
	v.purge()
	v.unlocks.Forget(v.id)
	v.logger.Info("wallet disconnected", "identifier", v.id)
}

func (v *Vault) purge() {
	v.gen.Next()
	v.replaceSecret(nil)
	v.store.Delete(recordKey(v.id))
	v.info.Set(nil)
}

func (v *Vault) replaceSecret(s *Secret) {
	var old *Secret
	v.secret.Update(func(cur *Secret) *Secret {
		old = cur
		return s
	})
	if old != s {
		old.Destroy()
	}
}

// commitSecret installs s if token is still current and destroys it
// otherwise. The check runs inside the cell update, which purge also goes
// through, so a Lock either precedes the check or clears s afterwards.
func (v *Vault) commitSecret(token int64, s *Secret) bool {
	var old *Secret
	committed := false
	v.secret.Update(func(cur *Secret) *Secret {
		if !v.gen.IsCurrent(token) {
			return cur
		}
		committed = true
		old = cur
		return s
	})
	if !committed {
		s.Destroy()
		return false
	}
	if old != s {
		old.Destroy()
	}
	return true
}

func (v *Vault) load() (Record, bool) {
	return store.LoadJSON[Record](v.store, recordKey(v.id))
}
