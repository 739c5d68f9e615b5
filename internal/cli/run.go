package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ember/internal/app"
	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/router"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Identity is the logged-in pubkey. Empty runs logged out.
	Identity string

	// Feed selects the feed at startup. Empty keeps the persisted selection.
	Feed string

	// Relay overrides the configured relays with one URL.
	Relay string

	// Duration stops the core after the given time. Zero runs until
	// interrupted.
	Duration time.Duration

	// Deps is passed to app.New (for testing).
	Deps app.Deps
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client core",
		Long: `Run the client core against the configured relays.

The feed orchestrator follows the persisted feed selection and identity,
and new feed heads are announced as notifications. Route and feed status
changes are logged to stderr.

Example:
  ember run --identity <pubkey> --feed following
  ember run --relay wss://relay.example.com --duration 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCore(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Identity, "identity", "", "logged-in pubkey")
	cmd.Flags().StringVar(&opts.Feed, "feed", "", "feed selector to activate at startup")
	cmd.Flags().StringVar(&opts.Relay, "relay", "", "relay URL (overrides relays)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runCore(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Relay != "" {
		cfg.Relays = []string{opts.Relay}
	}

	var sel feed.Selector
	if opts.Feed != "" {
		sel, err = feed.ParseSelector(opts.Feed)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid feed", err)
		}
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	deps := opts.Deps
	deps.Logger = logger
	if deps.Identity == "" {
		deps.Identity = opts.Identity
	}
	a, err := app.New(ctx, cfg, deps)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to start client core", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing client core", "error", closeErr)
		}
	}()

	if sel != "" {
		if err := a.Selection.Select(sel); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid feed", err)
		}
	}

	unsubRoute := a.Router.State().Subscribe(func(s router.State) {
		logger.Debug("route changed", "route", s.Active.String(), "tab", string(s.Tab))
	})
	defer unsubRoute()
	unsubStatus := a.Feed.Status().Subscribe(func(s feed.Status) {
		logger.Info("feed status", "status", string(s), "feed", string(a.Selection.Active().Get()))
	})
	defer unsubStatus()
	unsubErr := a.Feed.Err().Subscribe(func(fe *feed.Error) {
		if fe != nil {
			logger.Warn("feed error", "code", string(fe.Code), "error", fe.Error())
		}
	})
	defer unsubErr()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	if formatter.Format == "text" {
		fmt.Fprintln(cmd.OutOrStdout(), "Client core started.")
		if opts.Duration == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
		}
	}

	if err := a.Run(ctx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInternal, "client core error", err)
	}

	logger.Info("client core stopped")
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"feed":   string(a.Feed.Status().Get()),
			"route":  a.Router.ActiveRoute().Get().String(),
			"status": "stopped",
		})
	}
	return nil
}
