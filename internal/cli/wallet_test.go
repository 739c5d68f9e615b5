package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ember/internal/testutil"
	"github.com/roach88/ember/internal/vault"
)

const (
	walletPubkey = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	walletURI    = "nostr+walletconnect://" + walletPubkey +
		"?relay=wss://relay.example.com&secret=71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c&lud16=alice@example.com"
)

// walletEnv runs wallet subcommands against one data directory.
type walletEnv struct {
	t    *testing.T
	opts *WalletOptions
}

func newWalletEnv(t *testing.T, creds vault.CredentialProvider) *walletEnv {
	return &walletEnv{
		t: t,
		opts: &WalletOptions{
			RootOptions: &RootOptions{Format: "json", Storage: "sqlite", DataDir: t.TempDir()},
			Credentials: creds,
		},
	}
}

func (e *walletEnv) run(stdin string, args ...string) (WalletStatus, string, error) {
	e.t.Helper()
	buf := &bytes.Buffer{}
	cmd := newWalletCommand(e.opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()

	var resp struct {
		Status string       `json:"status"`
		Data   WalletStatus `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp.Data, buf.String(), err
}

func TestWallet_ConnectStatusUnlock(t *testing.T) {
	creds := testutil.NewScriptedCredentials(testutil.Key("hunter2"), testutil.Key("hunter2"))
	env := newWalletEnv(t, creds)

	status, _, err := env.run("", "connect", walletURI)
	require.NoError(t, err)
	assert.Equal(t, "unlocked", status.State)
	assert.Equal(t, walletPubkey, status.WalletPubkey)
	assert.Equal(t, []string{"wss://relay.example.com"}, status.Relays)
	assert.Equal(t, "alice@example.com", status.LUD16)

	// A fresh process starts locked with metadata only.
	status, _, err = env.run("", "status")
	require.NoError(t, err)
	assert.Equal(t, "locked", status.State)
	assert.Equal(t, walletPubkey, status.WalletPubkey)
	assert.Equal(t, []string{"default"}, status.Records)

	status, _, err = env.run("", "unlock")
	require.NoError(t, err)
	assert.Equal(t, "unlocked", status.State)
	assert.Equal(t, "unlocked", status.Outcome)

	assert.Equal(t, []bool{true, true}, creds.AllowCancel())
}

func TestWallet_WrongKeyPurgesRecord(t *testing.T) {
	env := newWalletEnv(t, testutil.NewScriptedCredentials(testutil.Key("hunter2"), testutil.Key("wrong")))

	_, _, err := env.run("", "connect", walletURI)
	require.NoError(t, err)

	status, _, err := env.run("", "unlock")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "corrupted", status.Outcome)
	assert.Equal(t, "disconnected", status.State)

	status, _, err = env.run("", "status")
	require.NoError(t, err)
	assert.Equal(t, "disconnected", status.State)
	assert.Empty(t, status.Records)
}

func TestWallet_UnlockCancelled(t *testing.T) {
	env := newWalletEnv(t, testutil.NewScriptedCredentials(testutil.Key("hunter2"), testutil.Cancel()))

	_, _, err := env.run("", "connect", walletURI)
	require.NoError(t, err)

	status, _, err := env.run("", "unlock")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "cancelled", status.Outcome)
	assert.Equal(t, "locked", status.State)
}

func TestWallet_UnlockNotConnected(t *testing.T) {
	env := newWalletEnv(t, testutil.NewScriptedCredentials())

	status, _, err := env.run("", "unlock")
	require.Error(t, err)
	assert.Equal(t, "not_connected", status.Outcome)
}

func TestWallet_LockAndDisconnect(t *testing.T) {
	for _, sub := range []string{"lock", "disconnect"} {
		t.Run(sub, func(t *testing.T) {
			env := newWalletEnv(t, testutil.NewScriptedCredentials(testutil.Key("hunter2")))

			_, _, err := env.run("", "connect", walletURI)
			require.NoError(t, err)

			status, _, err := env.run("", sub)
			require.NoError(t, err)
			assert.Equal(t, "disconnected", status.State)
			assert.Empty(t, status.WalletPubkey)
		})
	}
}

func TestWallet_ConnectErrors(t *testing.T) {
	t.Run("invalid_uri", func(t *testing.T) {
		env := newWalletEnv(t, testutil.NewScriptedCredentials(testutil.Key("hunter2")))
		_, out, err := env.run("", "connect", "nostr+walletconnect://abc?secret=00")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "E_INVALID_INPUT")
		assert.NotContains(t, out, "secret=00")
	})

	t.Run("cancelled", func(t *testing.T) {
		env := newWalletEnv(t, testutil.NewScriptedCredentials(testutil.Cancel()))
		_, out, err := env.run("", "connect", walletURI)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.ErrorIs(t, err, vault.ErrCancelled)
		assert.Contains(t, out, "connect cancelled")
	})
}

func TestWallet_PromptFromStdin(t *testing.T) {
	env := newWalletEnv(t, nil)

	status, _, err := env.run("hunter2\n", "connect", walletURI)
	require.NoError(t, err)
	assert.Equal(t, "unlocked", status.State)

	status, _, err = env.run("hunter2\n", "unlock")
	require.NoError(t, err)
	assert.Equal(t, "unlocked", status.Outcome)

	// An empty answer cancels.
	status, _, err = env.run("\n", "unlock")
	require.Error(t, err)
	assert.Equal(t, "cancelled", status.Outcome)
}

func TestWalletStatus_Text(t *testing.T) {
	text := WalletStatus{
		State:        "locked",
		WalletPubkey: walletPubkey,
		Relays:       []string{"wss://a.example.com", "wss://b.example.com"},
	}.Text()
	assert.Contains(t, text, "wallet: locked\n")
	assert.Contains(t, text, "relays: wss://a.example.com, wss://b.example.com\n")
	assert.NotContains(t, text, "outcome")
}
