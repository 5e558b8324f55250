// Package config holds the settings shared by every grammarctl command.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
)

// Dispatch modes for the training scheduler.
const (
	DispatchExec  = "exec"
	DispatchQueue = "queue"
)

// Config is the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Logs     LogsConfig     `yaml:"logs" mapstructure:"logs"`
	Checker  CheckerConfig  `yaml:"checker" mapstructure:"checker"`
	Cleanup  CleanupConfig  `yaml:"cleanup" mapstructure:"cleanup"`
	Stats    StatsConfig    `yaml:"stats" mapstructure:"stats"`
	Training TrainingConfig `yaml:"training" mapstructure:"training"`
	Feedback FeedbackConfig `yaml:"feedback" mapstructure:"feedback"`
}

// StoreConfig locates the rule store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LedgerConfig locates the feedback and training database.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogsConfig controls the daily operation logs.
type LogsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CheckerConfig controls request-time checking.
type CheckerConfig struct {
	ReloadInterval time.Duration `yaml:"reload_interval" mapstructure:"reload_interval"`
}

// CleanupConfig controls the cleaner.
type CleanupConfig struct {
	Preserve             []string `yaml:"preserve" mapstructure:"preserve"`
	LexiconPath          string   `yaml:"lexicon_path" mapstructure:"lexicon_path"`
	KeepWords            []string `yaml:"keep_words" mapstructure:"keep_words"`
	AbortOnBackupFailure bool     `yaml:"abort_on_backup_failure" mapstructure:"abort_on_backup_failure"`
}

// StatsConfig controls the statistics report.
type StatsConfig struct {
	TopTypes int `yaml:"top_types" mapstructure:"top_types"`
}

// TrainingConfig controls scheduling and running model training.
type TrainingConfig struct {
	Threshold      int64         `yaml:"threshold" mapstructure:"threshold"`
	Window         time.Duration `yaml:"window" mapstructure:"window"`
	VersionPrefix  string        `yaml:"version_prefix" mapstructure:"version_prefix"`
	Dispatch       string        `yaml:"dispatch" mapstructure:"dispatch"`
	TrainerCommand string        `yaml:"trainer_command" mapstructure:"trainer_command"`
	TrainerArgs    []string      `yaml:"trainer_args" mapstructure:"trainer_args"`
	TrainerTimeout time.Duration `yaml:"trainer_timeout" mapstructure:"trainer_timeout"`
	TrainerDir     string        `yaml:"trainer_dir" mapstructure:"trainer_dir"`
	TrainerEnv     []string      `yaml:"trainer_env" mapstructure:"trainer_env"`
	WorkDir        string        `yaml:"work_dir" mapstructure:"work_dir"`
	FeedbackLimit  int           `yaml:"feedback_limit" mapstructure:"feedback_limit"`
}

// FeedbackConfig controls the feedback processor.
type FeedbackConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store:   StoreConfig{Path: "models/grammar_rules.yaml"},
		Ledger:  LedgerConfig{Path: "data/grammar.db"},
		Logs:    LogsConfig{Dir: "logs"},
		Checker: CheckerConfig{ReloadInterval: 250 * time.Millisecond},
		Cleanup: CleanupConfig{Preserve: []string{"spelling"}},
		Stats:   StatsConfig{TopTypes: 5},
		Training: TrainingConfig{
			Threshold:      10,
			Window:         24 * time.Hour,
			VersionPrefix:  "1.0",
			Dispatch:       DispatchExec,
			TrainerCommand: "python3",
			TrainerArgs:    []string{"scripts/train_model.py"},
			TrainerTimeout: 10 * time.Minute,
			WorkDir:        "data/temp",
			FeedbackLimit:  1000,
		},
		Feedback: FeedbackConfig{BatchSize: 100},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Store.Path == "":
		return invalid("store.path must be set")
	case c.Training.Threshold <= 0:
		return invalid("training.threshold must be positive")
	case c.Training.Window <= 0:
		return invalid("training.window must be positive")
	case c.Training.Dispatch != DispatchExec && c.Training.Dispatch != DispatchQueue:
		return invalid(fmt.Sprintf("training.dispatch must be %q or %q, got %q", DispatchExec, DispatchQueue, c.Training.Dispatch))
	case c.Training.FeedbackLimit <= 0:
		return invalid("training.feedback_limit must be positive")
	case c.Training.TrainerTimeout < 0:
		return invalid("training.trainer_timeout must not be negative")
	case c.Stats.TopTypes <= 0:
		return invalid("stats.top_types must be positive")
	case c.Feedback.BatchSize <= 0:
		return invalid("feedback.batch_size must be positive")
	case c.Checker.ReloadInterval < 0:
		return invalid("checker.reload_interval must not be negative")
	}
	for _, kv := range c.Training.TrainerEnv {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return invalid(fmt.Sprintf("training.trainer_env entries must be KEY=VALUE, got %q", kv))
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, msg)
}
