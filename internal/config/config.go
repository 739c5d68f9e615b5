// Package config loads client configuration from CUE or YAML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// Config is the validated client configuration.
type Config struct {
	SettleInterval time.Duration `validate:"gte=0,lte=10s"`
	DataDir        string        `validate:"required"`
	Storage        string        `validate:"oneof=sqlite badger memory"`
	Relays         []string      `validate:"dive,url"`
	DetailTabs     []string      `validate:"dive,oneof=home discover notifications messages wallet profile settings"`
	NotifyRate     float64       `validate:"gt=0"`
	NotifyBurst    int           `validate:"gte=1"`
	FeedLimit      int           `validate:"gte=1,lte=1000"`
}

// file is the on-disk shape shared by both formats.
type file struct {
	SettleInterval string   `json:"settle_interval" yaml:"settle_interval"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	Storage        string   `json:"storage" yaml:"storage"`
	Relays         []string `json:"relays" yaml:"relays"`
	DetailTabs     []string `json:"detail_tabs" yaml:"detail_tabs"`
	NotifyRate     float64  `json:"notify_rate" yaml:"notify_rate"`
	NotifyBurst    int      `json:"notify_burst" yaml:"notify_burst"`
	FeedLimit      int      `json:"feed_limit" yaml:"feed_limit"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		SettleInterval: 100 * time.Millisecond,
		DataDir:        ".ember",
		Storage:        StorageSQLite,
		DetailTabs:     []string{"profile"},
		NotifyRate:     1,
		NotifyBurst:    5,
		FeedLimit:      100,
	}
}

// DatabasePath is the SQLite file or Badger directory under DataDir.
func (c Config) DatabasePath() string {
	switch c.Storage {
	case StorageBadger:
		return filepath.Join(c.DataDir, "badger")
	default:
		return filepath.Join(c.DataDir, "ember.db")
	}
}

// Validate checks c against the field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads path. A directory or .cue file is evaluated as CUE against the
// schema; .yaml and .yml are decoded over the defaults. An empty path
// returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	var f file
	switch {
	case info.IsDir():
		f, err = loadCUEDir(path)
	case strings.HasSuffix(path, ".cue"):
		f, err = loadCUEFile(path)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		f, err = loadYAML(path)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension", path)
	}
	if err != nil {
		return Config{}, err
	}

	cfg, err := f.config()
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (f file) config() (Config, error) {
	d, err := time.ParseDuration(f.SettleInterval)
	if err != nil {
		return Config{}, fmt.Errorf("settle_interval: %w", err)
	}
	return Config{
		SettleInterval: d,
		DataDir:        f.DataDir,
		Storage:        f.Storage,
		Relays:         f.Relays,
		DetailTabs:     f.DetailTabs,
		NotifyRate:     f.NotifyRate,
		NotifyBurst:    f.NotifyBurst,
		FeedLimit:      f.FeedLimit,
	}, nil
}

func defaultFile() file {
	d := Default()
	return file{
		SettleInterval: d.SettleInterval.String(),
		DataDir:        d.DataDir,
		Storage:        d.Storage,
		DetailTabs:     d.DetailTabs,
		NotifyRate:     d.NotifyRate,
		NotifyBurst:    d.NotifyBurst,
		FeedLimit:      d.FeedLimit,
	}
}

func loadYAML(path string) (file, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return file{}, fmt.Errorf("read config: %w", err)
	}
	f := defaultFile()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return file{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

func loadCUEFile(path string) (file, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return file{}, fmt.Errorf("read config: %w", err)
	}
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return file{}, fmt.Errorf("compile config %s: %w", path, err)
	}
	return decodeCUE(ctx, value, path)
}

func loadCUEDir(dir string) (file, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return file{}, fmt.Errorf("config %s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return file{}, fmt.Errorf("load config %s: %w", dir, inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return file{}, fmt.Errorf("build config %s: %w", dir, err)
	}
	return decodeCUE(ctx, value, dir)
}

// decodeCUE unifies value with the schema, fills defaults and decodes it.
func decodeCUE(ctx *cue.Context, value cue.Value, path string) (file, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return file{}, fmt.Errorf("compile schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return file{}, fmt.Errorf("config %s: %w", path, err)
	}

	var f file
	if err := unified.Decode(&f); err != nil {
		return file{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return f, nil
}
