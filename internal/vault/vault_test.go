package vault

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ember/internal/store"
	"github.com/roach88/ember/internal/testutil"
)

var allowCancel = UnlockOptions{AllowCancel: true}

func connected(t *testing.T, st store.Store, key string) {
	t.Helper()
	v := New(st, testutil.NewScriptedCredentials(testutil.Key(key)), XChaCha{})
	_, err := v.Connect(context.Background(), testURI(), allowCancel)
	require.NoError(t, err)
}

func secretOf(t *testing.T, v *Vault) string {
	t.Helper()
	var got string
	require.True(t, v.Secret().Get().Use(func(b []byte) { got = string(b) }))
	return got
}

func TestVault_UnlockWithoutRecord(t *testing.T) {
	creds := testutil.NewScriptedCredentials()
	v := New(store.NewMemory(), creds, XChaCha{})

	outcome, err := v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotConnected, outcome)
	assert.Zero(t, creds.Calls(), "no prompt without a record")
}

func TestVault_ConnectPersistsOnlyCiphertext(t *testing.T) {
	st := store.NewMemory()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := New(st, testutil.NewScriptedCredentials(testutil.Key("pw")), XChaCha{}, WithClock(func() time.Time { return fixed }))

	info, err := v.Connect(context.Background(), testURI(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, testPubkey, info.WalletPubkey)

	raw, ok := st.Load("vault/default")
	require.True(t, ok)
	assert.False(t, bytes.Contains(raw, []byte(testSecret)))

	rec, ok := store.LoadJSON[Record](st, "vault/default")
	require.True(t, ok)
	assert.Equal(t, "default", rec.Identifier)
	assert.Equal(t, fixed, rec.CreatedAt)
	assert.Equal(t, testPubkey, rec.Info.WalletPubkey)

	assert.True(t, v.Unlocked())
	assert.Equal(t, testSecret, secretOf(t, v))
	require.NotNil(t, v.Info().Get())
}

func TestVault_ConnectMalformedChangesNothing(t *testing.T) {
	st := store.NewMemory()
	creds := testutil.NewScriptedCredentials(testutil.Key("pw"))
	v := New(st, creds, XChaCha{})

	_, err := v.Connect(context.Background(), "nostr+walletconnect://nope", allowCancel)
	assert.True(t, IsConnectionError(err))
	assert.Zero(t, st.Len())
	assert.Zero(t, creds.Calls())
	assert.False(t, v.Unlocked())
}

func TestVault_ConnectCancelled(t *testing.T) {
	st := store.NewMemory()
	v := New(st, testutil.NewScriptedCredentials(testutil.Cancel()), XChaCha{})

	_, err := v.Connect(context.Background(), testURI(), allowCancel)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, st.Len())
}

func TestVault_UnlockRestoresSecret(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	creds := testutil.NewScriptedCredentials(testutil.Key("pw"))
	v := New(st, creds, XChaCha{})
	require.NotNil(t, v.Info().Get(), "metadata loads without unlocking")
	assert.False(t, v.Unlocked())

	outcome, err := v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
	assert.Equal(t, testSecret, secretOf(t, v))
	assert.Equal(t, []bool{true}, creds.AllowCancel())

	// Already unlocked: no second prompt.
	outcome, err = v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnlocked, outcome)
	assert.Equal(t, 1, creds.Calls())
}

func TestVault_WrongKeyPurgesRecord(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "right")

	v := New(st, testutil.NewScriptedCredentials(testutil.Key("wrong")), XChaCha{})
	outcome, err := v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCorrupted, outcome)

	_, ok := st.Load("vault/default")
	assert.False(t, ok, "record purged")
	assert.False(t, v.Unlocked())
	assert.Nil(t, v.Info().Get())

	outcome, err = v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotConnected, outcome)
}

func TestVault_CancelLeavesRecord(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")
	before, _ := st.Load("vault/default")

	v := New(st, testutil.NewScriptedCredentials(testutil.Cancel()), XChaCha{})
	outcome, err := v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)

	after, ok := st.Load("vault/default")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.False(t, v.Unlocked())
}

func TestVault_ProviderErrorLeavesRecord(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	boom := errors.New("keychain unavailable")
	v := New(st, testutil.NewScriptedCredentials(testutil.CredentialAnswer{Err: boom}), XChaCha{})
	_, err := v.Unlock(context.Background(), allowCancel)
	assert.ErrorIs(t, err, boom)
	assert.True(t, v.Connected())
}

func TestVault_LockClearsMemoryAndRecord(t *testing.T) {
	st := store.NewMemory()
	v := New(st, testutil.NewScriptedCredentials(testutil.Key("pw")), XChaCha{})
	_, err := v.Connect(context.Background(), testURI(), allowCancel)
	require.NoError(t, err)
	held := v.Secret().Get()

	v.Lock()

	assert.Nil(t, v.Secret().Get())
	assert.False(t, held.Alive(), "old secret wiped")
	assert.False(t, v.Connected())
	assert.Nil(t, v.Info().Get())
}

func TestVault_Disconnect(t *testing.T) {
	st := store.NewMemory()
	v := New(st, testutil.NewScriptedCredentials(testutil.Key("pw")), XChaCha{})
	_, err := v.Connect(context.Background(), testURI(), allowCancel)
	require.NoError(t, err)

	v.Disconnect()
	assert.False(t, v.Unlocked())
	assert.Zero(t, st.Len())
}

func TestVault_ConcurrentUnlockSharesOnePrompt(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	creds := testutil.NewScriptedCredentials(testutil.Key("pw"))
	creds.Gate = make(chan struct{})
	v := New(st, creds, XChaCha{})

	const callers = 8
	outcomes := make([]Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], _ = v.Unlock(context.Background(), allowCancel)
		}(i)
	}

	require.Eventually(t, func() bool { return creds.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(creds.Gate)
	wg.Wait()

	assert.Equal(t, 1, creds.Calls())
	for _, o := range outcomes {
		assert.Equal(t, OutcomeUnlocked, o)
	}
}

func TestVault_LockDuringPromptDiscardsUnlock(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	creds := testutil.NewScriptedCredentials(testutil.Key("pw"))
	creds.Gate = make(chan struct{})
	v := New(st, creds, XChaCha{})

	done := make(chan Outcome, 1)
	go func() {
		o, _ := v.Unlock(context.Background(), allowCancel)
		done <- o
	}()

	require.Eventually(t, func() bool { return creds.Calls() == 1 }, time.Second, time.Millisecond)
	v.Lock()
	close(creds.Gate)

	assert.Equal(t, OutcomeSuperseded, <-done)
	assert.False(t, v.Unlocked())
	assert.False(t, v.Connected())
}

// lockingCrypto runs onDecrypt after a successful decrypt, before the
// vault commits the plaintext.
type lockingCrypto struct {
	XChaCha
	onDecrypt func()
}

func (c *lockingCrypto) Decrypt(ciphertext, iv, salt, key []byte) ([]byte, error) {
	plaintext, err := c.XChaCha.Decrypt(ciphertext, iv, salt, key)
	if err == nil && c.onDecrypt != nil {
		c.onDecrypt()
	}
	return plaintext, err
}

func TestVault_LockAfterDecryptDiscardsUnlock(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	crypto := &lockingCrypto{}
	v := New(st, testutil.NewScriptedCredentials(testutil.Key("pw")), crypto)
	crypto.onDecrypt = v.Lock

	outcome, err := v.Unlock(context.Background(), allowCancel)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, outcome)
	assert.False(t, v.Unlocked())
	assert.Nil(t, v.Secret().Get())
}

func TestVault_CommitSecretRejectsStaleToken(t *testing.T) {
	v := New(store.NewMemory(), testutil.NewScriptedCredentials(), XChaCha{})
	token := v.gen.Current()
	v.Lock()

	s := NewSecret([]byte("plaintext"))
	assert.False(t, v.commitSecret(token, s))
	assert.False(t, s.Alive(), "rejected secret is wiped")
	assert.False(t, v.Unlocked())

	fresh := NewSecret([]byte("plaintext"))
	assert.True(t, v.commitSecret(v.gen.Current(), fresh))
	assert.True(t, v.Unlocked())
}

func TestVault_CallerCancellationStopsWaiting(t *testing.T) {
	st := store.NewMemory()
	connected(t, st, "pw")

	creds := testutil.NewScriptedCredentials(testutil.Key("pw"))
	creds.Gate = make(chan struct{})
	v := New(st, creds, XChaCha{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := v.Unlock(ctx, allowCancel)
		errc <- err
	}()

	require.Eventually(t, func() bool { return creds.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// The shared prompt is still answered and commits.
	close(creds.Gate)
	require.Eventually(t, v.Unlocked, time.Second, time.Millisecond)
}

func TestVault_WithIdentifier(t *testing.T) {
	st := store.NewMemory()
	v := New(st, testutil.NewScriptedCredentials(testutil.Key("pw")), XChaCha{}, WithIdentifier("work"))
	_, err := v.Connect(context.Background(), testURI(), allowCancel)
	require.NoError(t, err)

	_, ok := st.Load("vault/work")
	assert.True(t, ok)
}
