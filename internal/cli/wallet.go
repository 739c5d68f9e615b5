package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ember/internal/app"
	"github.com/roach88/ember/internal/store"
	"github.com/roach88/ember/internal/vault"
)

// WalletOptions holds flags shared by the wallet subcommands.
type WalletOptions struct {
	*RootOptions

	// Credentials overrides the terminal prompt (for testing).
	Credentials vault.CredentialProvider
}

// WalletStatus is the output of every wallet subcommand.
type WalletStatus struct {
	State        string   `json:"state"` // disconnected | locked | unlocked
	Outcome      string   `json:"outcome,omitempty"`
	WalletPubkey string   `json:"wallet_pubkey,omitempty"`
	Relays       []string `json:"relays,omitempty"`
	LUD16        string   `json:"lud16,omitempty"`
	Records      []string `json:"records,omitempty"`
}

// Text renders the status for text output.
func (s WalletStatus) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "wallet: %s\n", s.State)
	if s.Outcome != "" {
		fmt.Fprintf(&b, "outcome: %s\n", s.Outcome)
	}
	if s.WalletPubkey != "" {
		fmt.Fprintf(&b, "wallet pubkey: %s\n", s.WalletPubkey)
		fmt.Fprintf(&b, "relays: %s\n", strings.Join(s.Relays, ", "))
	}
	if s.LUD16 != "" {
		fmt.Fprintf(&b, "lightning address: %s\n", s.LUD16)
	}
	if len(s.Records) > 0 {
		fmt.Fprintf(&b, "records: %s\n", strings.Join(s.Records, ", "))
	}
	return b.String()
}

// NewWalletCommand creates the wallet command group.
func NewWalletCommand(rootOpts *RootOptions) *cobra.Command {
	return newWalletCommand(&WalletOptions{RootOptions: rootOpts})
}

func newWalletCommand(opts *WalletOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the encrypted wallet connection",
		Long: `Connect, unlock, lock and inspect the wallet connection.

The connection secret is encrypted under a master key read from the
terminal and only the encrypted record is stored. An empty master key
cancels the prompt.`,
	}

	cmd.AddCommand(newWalletConnectCommand(opts))
	cmd.AddCommand(newWalletUnlockCommand(opts))
	cmd.AddCommand(newWalletLockCommand(opts))
	cmd.AddCommand(newWalletDisconnectCommand(opts))
	cmd.AddCommand(newWalletStatusCommand(opts))
	return cmd
}

func newWalletConnectCommand(opts *WalletOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "connect <uri>",
		Short:         "Store a wallet connection string",
		Example:       `  ember wallet connect "nostr+walletconnect://<pubkey>?relay=wss://relay.example.com&secret=<hex>"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault.Vault, f *OutputFormatter) error {
				info, err := v.Connect(ctx, args[0], vault.UnlockOptions{AllowCancel: true})
				switch {
				case errors.Is(err, vault.ErrCancelled):
					return f.Fail(ExitFailure, ErrCodeWallet, "connect cancelled", err)
				case vault.IsConnectionError(err):
					return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid connection string", err)
				case err != nil:
					return f.Fail(ExitFailure, ErrCodeWallet, "connect failed", err)
				}
				return f.Success(WalletStatus{
					State:        "unlocked",
					WalletPubkey: info.WalletPubkey,
					Relays:       info.Relays,
					LUD16:        info.LUD16,
				})
			})
		},
	}
}

func newWalletUnlockCommand(opts *WalletOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Decrypt the stored connection to verify the master key",
		Long: `Decrypt the stored wallet connection. A wrong master key or a corrupted
record removes the record; the command then exits 1 with outcome
"corrupted".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(ctx context.Context, v *vault.Vault, f *OutputFormatter) error {
				outcome, err := v.Unlock(ctx, vault.UnlockOptions{AllowCancel: true})
				if err != nil {
					return f.Fail(ExitFailure, ErrCodeWallet, "unlock failed", err)
				}
				status := walletStatus(v)
				status.Outcome = string(outcome)
				if outcome != vault.OutcomeUnlocked {
					if err := f.Success(status); err != nil {
						return err
					}
					return NewExitError(ExitFailure, "wallet "+string(outcome))
				}
				return f.Success(status)
			})
		},
	}
}

func newWalletLockCommand(opts *WalletOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "lock",
		Short:         "Lock the wallet and remove the stored record",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(_ context.Context, v *vault.Vault, f *OutputFormatter) error {
				v.Lock()
				return f.Success(walletStatus(v))
			})
		},
	}
}

func newWalletDisconnectCommand(opts *WalletOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "disconnect",
		Short:         "Forget the wallet connection",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withVault(cmd, func(_ context.Context, v *vault.Vault, f *OutputFormatter) error {
				v.Disconnect()
				return f.Success(walletStatus(v))
			})
		},
	}
}

func newWalletStatusCommand(opts *WalletOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the stored wallet connection without unlocking",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, st store.Store, v *vault.Vault, f *OutputFormatter) error {
				status := walletStatus(v)
				if kl, ok := st.(keyLister); ok {
					keys, err := kl.Keys(ctx, "vault/")
					if err != nil {
						return f.Fail(ExitFailure, ErrCodeInternal, "list wallet records", err)
					}
					for _, k := range keys {
						status.Records = append(status.Records, strings.TrimPrefix(k, "vault/"))
					}
				}
				return f.Success(status)
			})
		},
	}
}

// keyLister is implemented by stores that can enumerate keys.
type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

func (o *WalletOptions) withVault(cmd *cobra.Command, fn func(context.Context, *vault.Vault, *OutputFormatter) error) error {
	return o.withStore(cmd, func(ctx context.Context, _ store.Store, v *vault.Vault, f *OutputFormatter) error {
		return fn(ctx, v, f)
	})
}

// withStore opens the configured store and a vault over it for the
// duration of fn.
func (o *WalletOptions) withStore(cmd *cobra.Command, fn func(context.Context, store.Store, *vault.Vault, *OutputFormatter) error) error {
	formatter := o.formatter(cmd)
	logger := o.logger(cmd.ErrOrStderr())

	cfg, err := o.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	st, closeStore, err := app.OpenStore(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to open store", err)
	}
	defer closeWith(logger, closeStore)

	creds := o.Credentials
	if creds == nil {
		creds = &PromptCredentials{In: cmd.InOrStdin(), Out: promptWriter(cmd)}
	}
	v := vault.New(st, creds, vault.XChaCha{}, vault.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, st, v, formatter)
}

func walletStatus(v *vault.Vault) WalletStatus {
	s := WalletStatus{State: "disconnected"}
	switch {
	case v.Unlocked():
		s.State = "unlocked"
	case v.Connected():
		s.State = "locked"
	}
	if info := v.Info().Get(); info != nil {
		s.WalletPubkey = info.WalletPubkey
		s.Relays = info.Relays
		s.LUD16 = info.LUD16
	}
	return s
}

// promptWriter keeps prompts off stdout so JSON output stays parseable.
func promptWriter(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}

func closeWith(logger *slog.Logger, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("error closing store", "error", err)
	}
}
