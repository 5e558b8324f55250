package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/grammar/pkg/grammar/internalerr"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `store:
  path: /srv/grammar/rules.yaml
training:
  threshold: 25
  window: 12h
  dispatch: queue
  trainer_dir: /srv/trainer
  trainer_env: ["MODEL_TAG=blue"]
cleanup:
  preserve: [spelling, punctuation]
  keep_words: [is]
  abort_on_backup_failure: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/grammar/rules.yaml", cfg.Store.Path)
	assert.Equal(t, int64(25), cfg.Training.Threshold)
	assert.Equal(t, 12*time.Hour, cfg.Training.Window)
	assert.Equal(t, DispatchQueue, cfg.Training.Dispatch)
	assert.Equal(t, "/srv/trainer", cfg.Training.TrainerDir)
	assert.Equal(t, []string{"MODEL_TAG=blue"}, cfg.Training.TrainerEnv)
	assert.Equal(t, []string{"spelling", "punctuation"}, cfg.Cleanup.Preserve)
	assert.Equal(t, []string{"is"}, cfg.Cleanup.KeepWords)
	assert.True(t, cfg.Cleanup.AbortOnBackupFailure)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Feedback.BatchSize)
	assert.Equal(t, "1.0", cfg.Training.VersionPrefix)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  dispatch: carrier-pigeon\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty store path": func(c *Config) { c.Store.Path = "" },
		"zero threshold":   func(c *Config) { c.Training.Threshold = 0 },
		"zero window":      func(c *Config) { c.Training.Window = 0 },
		"zero top types":   func(c *Config) { c.Stats.TopTypes = 0 },
		"zero batch":       func(c *Config) { c.Feedback.BatchSize = 0 },
		"zero limit":       func(c *Config) { c.Training.FeedbackLimit = 0 },
		"env without =":    func(c *Config) { c.Training.TrainerEnv = []string{"MODEL_TAG"} },
		"env without key":  func(c *Config) { c.Training.TrainerEnv = []string{"=blue"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), internalerr.ErrInvalidConfig)
		})
	}
}

func TestDefaultRoundTripsThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(Default())
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, 24*time.Hour, cfg.Training.Window)
}
