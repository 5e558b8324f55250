package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/grammar/pkg/grammar/config"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/store"
	"github.com/cognicore/grammar/pkg/grammar/store/filestore"
	"github.com/cognicore/grammar/pkg/grammar/store/sqlite"
)

// syncBuffer lets the training worker and the scheduler share one output.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type env struct {
	t      *testing.T
	dir    string
	config string
}

func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`store:
  path: %[1]s/models/grammar_rules.yaml
ledger:
  path: %[1]s/data/grammar.db
logs:
  dir: %[1]s/logs
training:
  work_dir: %[1]s/work
%[2]s`, dir, extra)
	path := filepath.Join(dir, "grammarctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &env{t: t, dir: dir, config: path}
}

// appendConfig adds raw YAML to the end of the config file.
func (e *env) appendConfig(text string) {
	e.t.Helper()
	f, err := os.OpenFile(e.config, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(e.t, err)
	_, err = f.WriteString(text)
	require.NoError(e.t, err)
	require.NoError(e.t, f.Close())
}

func (e *env) run(stdin string, args ...string) (string, int, error) {
	e.t.Helper()
	out := &syncBuffer{}
	root := NewRootCmd(strings.NewReader(stdin), out)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	cmd, err := root.ExecuteContextC(context.Background())
	return out.String(), ExitCode(cmd, err), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, _, err := e.run("", args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *env) storePath() string {
	return filepath.Join(e.dir, "models", "grammar_rules.yaml")
}

func (e *env) ledger() store.Ledger {
	e.t.Helper()
	l, err := sqlite.OpenSQLite(context.Background(), filepath.Join(e.dir, "data", "grammar.db"))
	require.NoError(e.t, err)
	e.t.Cleanup(func() { l.Close() })
	return l
}

func TestAddThenCheck(t *testing.T) {
	e := newEnv(t, "")

	assert.Equal(t, "Added rule [tense] 'goed' (count 1)\n", e.mustRun("add", "tense", "goed", "went"))
	assert.Equal(t, "Updated rule [tense] 'goed' (count 2)\n", e.mustRun("add", "tense", "goed", "went"))

	out := e.mustRun("check", "We goed home")
	assert.Equal(t, "tense:\n  - 'goed' should probably be 'went'\n", out)

	out, code, err := e.run("They goedx nowhere", "check", "-")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "No issues found\n", out)
}

func TestCheckJSON(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun("add", "tense", "goed", "went")

	out := e.mustRun("check", "--json", "We GOED home and I buyed it")
	var issues map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &issues))
	assert.Equal(t, []string{
		"'buyed' should probably be 'bought'",
		"'goed' should probably be 'went'",
	}, issues["tense"])
}

func TestCheckHTML(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun("add", "grammar", "I goed", "I went")

	out := e.mustRun("check", "--html", "<p>I</p><p>goed <b>home</b></p>")
	assert.Equal(t, "grammar:\n  - 'I goed' should probably be 'I went'\n", out)
}

func TestCheckWatchReadsLines(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun("add", "tense", "goed", "went")

	out, _, err := e.run("We goed home\n\nall good\n", "check", "--watch")
	require.NoError(t, err)
	assert.Equal(t, "tense:\n  - 'goed' should probably be 'went'\nNo issues found\n", out)
}

func TestMissingStoreIsFatal(t *testing.T) {
	e := newEnv(t, "")

	for _, args := range [][]string{{"clean"}, {"stats"}, {"check", "text"}} {
		_, code, err := e.run("", args...)
		require.ErrorIs(t, err, internalerr.ErrMissingStore, args)
		assert.Equal(t, 1, code, args)
	}
}

func TestParseFailureIsFatal(t *testing.T) {
	e := newEnv(t, "")
	require.NoError(t, os.MkdirAll(filepath.Dir(e.storePath()), 0o755))
	require.NoError(t, os.WriteFile(e.storePath(), []byte("rules: [unterminated"), 0o644))

	_, code, err := e.run("", "clean", "--targeted")
	require.ErrorIs(t, err, internalerr.ErrParseFailure)
	assert.Equal(t, 1, code)
}

func TestUsageErrors(t *testing.T) {
	e := newEnv(t, "")

	_, code, err := e.run("", "add", "tense", "buyed")
	require.Error(t, err)
	assert.Equal(t, 2, code)

	_, code, err = e.run("", "clean", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, 2, code)

	_, code, err = e.run("", "train")
	require.Error(t, err)
	assert.Equal(t, 2, code)

	_, code, err = e.run("", "add", "tense", "", "bought")
	require.ErrorIs(t, err, internalerr.ErrInvalidInput)
	assert.Equal(t, 2, code)
}

func TestResetCleanAndStats(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun("reset")
	e.mustRun("add", "grammar", "is", "are")
	e.mustRun("add", "spelling", "is", "iss")

	out := e.mustRun("clean", "--targeted")
	assert.Contains(t, out, "Saved updated rules")

	rs, err := filestore.New(e.storePath()).Load(context.Background())
	require.NoError(t, err)
	for _, r := range rs.Rules["grammar"] {
		assert.NotEqual(t, "is", r.Original)
	}
	var kept bool
	for _, r := range rs.Rules["spelling"] {
		kept = kept || r.Original == "is"
	}
	assert.True(t, kept, "spelling rules are preserved")

	logs, err := filepath.Glob(filepath.Join(e.dir, "logs", "grammar_rules_cleanup_*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	out = e.mustRun("stats", "--top", "2")
	assert.Contains(t, out, "Grammar rule statistics")
	assert.Contains(t, out, "Rule store size:")
}

func TestFeedbackAddAndProcess(t *testing.T) {
	e := newEnv(t, "")

	out := e.mustRun("feedback", "add", "--reviewer-id", "7", "--essay-id", "42",
		"--type", "missed_issue", "--error-type", "tense", "--wrong", "goed", "--correct", "went")
	assert.Equal(t, "Recorded feedback 1 (missed_issue)\n", out)

	_, code, err := e.run("", "feedback", "add", "--type", "false_positive")
	require.ErrorIs(t, err, internalerr.ErrInvalidInput)
	assert.Equal(t, 2, code)

	e.mustRun("feedback", "process")

	rs, err := filestore.New(e.storePath()).Load(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rs.Rules["tense"])
	var found bool
	for _, r := range rs.Rules["tense"] {
		if r.Original == "goed" {
			found = true
			assert.Equal(t, []string{"went"}, r.Corrected)
		}
	}
	assert.True(t, found)

	pending, err := e.ledger().UnprocessedFeedback(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduleBelowThreshold(t *testing.T) {
	e := newEnv(t, "")
	e.mustRun("feedback", "add", "--type", "general", "--comment", "nice", "--usable")

	out := e.mustRun("schedule")
	assert.Contains(t, out, "Not enough feedback (need at least 10, have 1), skipping training")
}

func TestScheduleInlineTrains(t *testing.T) {
	e := newEnv(t, `  threshold: 3
  trainer_command: sh
  trainer_args: ["-c", "echo trained $4", "trainer"]
`)
	for i := 0; i < 3; i++ {
		e.mustRun("feedback", "add", "--type", "missed_issue", "--wrong", "buyed", "--correct", "bought", "--usable")
	}

	out := e.mustRun("schedule", "--inline")
	assert.Contains(t, out, "Created training job (ID: 1), version 1.0.1")
	assert.Contains(t, out, "trained 1.0.1")

	l := e.ledger()
	job, err := l.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, job.Status)

	versions, err := l.Versions(context.Background(), "1.0.")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.1"}, versions)

	out = e.mustRun("schedule", "--inline")
	assert.Contains(t, out, "have 0")
}

func TestScheduleInlineTrainerDirAndEnv(t *testing.T) {
	e := newEnv(t, `  threshold: 1
  trainer_command: sh
  trainer_args: ["-c", "echo \"trainer in $(basename \"$PWD\") tag $MODEL_TAG\"", "trainer"]
  trainer_env: ["MODEL_TAG=blue"]
`)
	home := filepath.Join(e.dir, "trainer-home")
	require.NoError(t, os.MkdirAll(home, 0o755))
	e.appendConfig("  trainer_dir: " + home + "\n")
	e.mustRun("feedback", "add", "--type", "missed_issue", "--wrong", "goed", "--correct", "went", "--usable")

	out := e.mustRun("schedule", "--inline")
	assert.Contains(t, out, "trainer in trainer-home tag blue")
}

func TestTargetedCleanKeepWords(t *testing.T) {
	e := newEnv(t, "")
	e.appendConfig("cleanup:\n  keep_words: [\"IS\"]\n")
	e.mustRun("reset")
	e.mustRun("add", "grammar", "is", "are")
	e.mustRun("add", "grammar", "was", "were")

	e.mustRun("clean", "--targeted")

	rs, err := filestore.New(e.storePath()).Load(context.Background())
	require.NoError(t, err)
	var got []string
	for _, r := range rs.Rules["grammar"] {
		if r.Original == "is" || r.Original == "was" {
			got = append(got, r.Original)
		}
	}
	assert.Equal(t, []string{"is"}, got)
}

func TestConfigLayering(t *testing.T) {
	e := newEnv(t, "")
	override := filepath.Join(e.dir, "elsewhere.yaml")
	t.Setenv("GRAMMAR_STORE_PATH", override)
	t.Setenv("GRAMMAR_STATS_TOP_TYPES", "3")

	out := e.mustRun("config", "show")
	assert.Contains(t, out, "path: "+override)
	assert.Contains(t, out, "top_types: 3")
	assert.Contains(t, out, "Config file: "+e.config)

	flagged := filepath.Join(e.dir, "flag.yaml")
	out = e.mustRun("--store", flagged, "config", "show")
	assert.Contains(t, out, "path: "+flagged)
}

func TestInvalidConfig(t *testing.T) {
	e := newEnv(t, "  dispatch: carrier-pigeon\n")
	_, code, err := e.run("", "stats")
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	assert.Equal(t, 2, code)
}

func TestConfigInit(t *testing.T) {
	e := newEnv(t, "")
	path := filepath.Join(e.dir, "generated", "grammarctl.yaml")

	out := e.mustRun("config", "init", path)
	assert.Contains(t, out, "Created default configuration")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, _, err = e.run("", "config", "init", path)
	require.Error(t, err)
	e.mustRun("config", "init", "--force", path)
}

func TestConfigValidate(t *testing.T) {
	e := newEnv(t, "")

	out := e.mustRun("config", "validate")
	assert.Contains(t, out, "Configuration valid: "+e.config)

	bad := filepath.Join(e.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("training:\n  dispatch: carrier-pigeon\n"), 0o644))
	_, code, err := e.run("", "config", "validate", bad)
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	assert.Equal(t, 2, code)

	require.NoError(t, os.WriteFile(bad, []byte("training:\n  trainer_env: [\"NOEQUALS\"]\n"), 0o644))
	_, _, err = e.run("", "config", "validate", bad)
	require.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, _, err = e.run("", "config", "validate", filepath.Join(e.dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExitCodeForBatchErrors(t *testing.T) {
	root := NewRootCmd(strings.NewReader(""), &bytes.Buffer{})
	clean, _, err := root.Find([]string{"clean"})
	require.NoError(t, err)
	add, _, err := root.Find([]string{"add"})
	require.NoError(t, err)

	persist := fmt.Errorf("save: %w", internalerr.ErrPersistFailed)
	assert.Equal(t, 0, ExitCode(clean, persist))
	assert.Equal(t, 1, ExitCode(add, persist))
	assert.Equal(t, 1, ExitCode(clean, internalerr.ErrMissingStore))
	assert.Equal(t, 0, ExitCode(clean, nil))
}

func TestVersion(t *testing.T) {
	e := newEnv(t, "")
	assert.Equal(t, "grammarctl dev\n", e.mustRun("version"))
}
