package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ember/internal/config"
)

// ConfigView is the effective configuration as printed by the config
// command. Keys match the config file.
type ConfigView struct {
	SettleInterval string   `json:"settle_interval" yaml:"settle_interval"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	Storage        string   `json:"storage" yaml:"storage"`
	DatabasePath   string   `json:"database_path" yaml:"database_path"`
	Relays         []string `json:"relays" yaml:"relays"`
	DetailTabs     []string `json:"detail_tabs" yaml:"detail_tabs"`
	NotifyRate     float64  `json:"notify_rate" yaml:"notify_rate"`
	NotifyBurst    int      `json:"notify_burst" yaml:"notify_burst"`
	FeedLimit      int      `json:"feed_limit" yaml:"feed_limit"`
}

// Text renders the view as YAML.
func (v ConfigView) Text() string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err.Error() + "\n"
	}
	return string(data)
}

func newConfigView(cfg config.Config) ConfigView {
	relays := cfg.Relays
	if relays == nil {
		relays = []string{}
	}
	tabs := cfg.DetailTabs
	if tabs == nil {
		tabs = []string{}
	}
	return ConfigView{
		SettleInterval: cfg.SettleInterval.String(),
		DataDir:        cfg.DataDir,
		Storage:        cfg.Storage,
		DatabasePath:   cfg.DatabasePath(),
		Relays:         relays,
		DetailTabs:     tabs,
		NotifyRate:     cfg.NotifyRate,
		NotifyBurst:    cfg.NotifyBurst,
		FeedLimit:      cfg.FeedLimit,
	}
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Load the config file, apply flag overrides, validate, and print the
result. Exits 2 if the config is invalid.

Example:
  ember config --config ./ember.cue
  ember config --storage badger --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
			}
			return formatter.Success(newConfigView(cfg))
		},
	}
}
