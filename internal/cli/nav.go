package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ember/internal/router"
)

// NavScript is a list of navigation intents replayed by the nav command.
type NavScript struct {
	Steps []NavStep `yaml:"steps"`
}

// NavStep is one navigation intent. Origin defaults to the visible tab.
type NavStep struct {
	Do     string `yaml:"do"`
	Tab    string `yaml:"tab,omitempty"`
	ID     string `yaml:"id,omitempty"`
	Pubkey string `yaml:"pubkey,omitempty"`
	URI    string `yaml:"uri,omitempty"`
	Origin string `yaml:"origin,omitempty"`
}

// NavStepResult is the route after one step.
type NavStepResult struct {
	Do    string `json:"do"`
	Route string `json:"route"`
	Error string `json:"error,omitempty"`
}

// NavResult is the final navigation state.
type NavResult struct {
	Route     string          `json:"route"`
	Tab       string          `json:"tab"`
	CanGoBack bool            `json:"can_go_back"`
	History   []string        `json:"history"`
	Steps     []NavStepResult `json:"steps"`
}

// Text renders the result for text output.
func (r NavResult) Text() string {
	var b strings.Builder
	for i, s := range r.Steps {
		if s.Error != "" {
			fmt.Fprintf(&b, "%2d. %-13s ✗ %s\n", i+1, s.Do, s.Error)
			continue
		}
		fmt.Fprintf(&b, "%2d. %-13s → %s\n", i+1, s.Do, s.Route)
	}
	fmt.Fprintf(&b, "\nroute: %s\ntab: %s\n", r.Route, r.Tab)
	if len(r.History) == 0 {
		b.WriteString("history: (empty)\n")
	} else {
		fmt.Fprintf(&b, "history: %s\n", strings.Join(r.History, " < "))
	}
	return b.String()
}

// NewNavCommand creates the nav command.
func NewNavCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav <script.yaml>",
		Short: "Replay navigation intents on the router",
		Long: `Replay a script of navigation intents on a router configured from the
config file's detail_tabs and print the resulting state.

Script format:
  steps:
    - do: navigate      # tab
      tab: discover
    - do: open_post     # id, origin
      id: e1
    - do: open_profile  # pubkey, origin
      pubkey: bob
    - do: follow        # uri, origin
      uri: ember://tab/wallet
    - do: back

A failing step leaves the state unchanged and the command exits 1.

Example:
  ember nav ./session.yaml
  ember nav ./session.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNav(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runNav(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	script, err := loadNavScript(path)
	if err != nil {
		if os.IsNotExist(err) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "script not found", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid script", err)
	}

	tabs := make([]router.Tab, 0, len(cfg.DetailTabs))
	for _, t := range cfg.DetailTabs {
		tab, err := router.ParseTab(t)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid detail_tabs", err)
		}
		tabs = append(tabs, tab)
	}
	r := router.New(router.WithDetailTabs(tabs...), router.WithLogger(opts.logger(cmd.ErrOrStderr())))
	defer r.Close()

	result := NavResult{Steps: make([]NavStepResult, 0, len(script.Steps))}
	failed := 0
	for _, step := range script.Steps {
		sr := NavStepResult{Do: step.Do}
		if err := applyNavStep(r, step); err != nil {
			sr.Error = err.Error()
			failed++
		}
		sr.Route = r.ActiveRoute().Get().String()
		formatter.VerboseLog("%s → %s", step.Do, sr.Route)
		result.Steps = append(result.Steps, sr)
	}

	state := r.State().Get()
	result.Route = state.Active.String()
	result.Tab = string(state.Tab)
	result.CanGoBack = r.CanGoBack().Get()
	result.History = make([]string, 0, len(state.History))
	for _, rt := range state.History {
		result.History = append(result.History, rt.String())
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d navigation step(s) failed", failed))
	}
	return nil
}

func applyNavStep(r *router.Router, step NavStep) error {
	origin := r.VisibleTab().Get()
	if step.Origin != "" {
		tab, err := router.ParseTab(step.Origin)
		if err != nil {
			return err
		}
		origin = tab
	}

	switch step.Do {
	case "navigate":
		tab, err := router.ParseTab(step.Tab)
		if err != nil {
			return err
		}
		r.NavigateToPage(tab)
	case "open_post":
		if step.ID == "" {
			return fmt.Errorf("open_post requires id")
		}
		r.OpenPost(step.ID, origin, nil)
	case "open_profile":
		if step.Pubkey == "" {
			return fmt.Errorf("open_profile requires pubkey")
		}
		r.OpenProfile(step.Pubkey, origin)
	case "follow":
		return r.Follow(step.URI, origin)
	case "back":
		r.GoBack()
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}
	return nil
}

// loadNavScript reads path with strict field validation.
func loadNavScript(path string) (*NavScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var script NavScript
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("steps list is required and must be non-empty")
	}
	return &script, nil
}
