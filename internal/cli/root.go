// Package cli implements the grammarctl command tree.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/grammar/internal/logging"
	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/config"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/store"
	"github.com/cognicore/grammar/pkg/grammar/store/filestore"
	"github.com/cognicore/grammar/pkg/grammar/store/sqlite"
)

// Version is set at build time.
var Version = "dev"

const (
	envPrefix = "GRAMMAR"

	// batchAnnotation marks commands meant for cron: only store failures
	// turn into a non-zero exit status.
	batchAnnotation = "batch"
)

// app carries the state shared by one command invocation.
type app struct {
	cfgFile   string
	storePath string
	verbose   bool
	jsonLogs  bool

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger

	in  io.Reader
	out io.Writer
	now func() time.Time
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{
		v:      viper.New(),
		cfg:    config.Default(),
		logger: zap.NewNop(),
		in:     in,
		out:    out,
		now:    time.Now,
	}
}

// NewRootCmd builds the command tree reading from in and writing reports to
// out.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	return newApp(in, out).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grammarctl",
		Short: "Grammar rule store maintenance",
		Long: `grammarctl manages the learned grammar rule store used by the essay checker.

It records corrections, checks text against the learned rules, prunes
low value rules, reports statistics, processes reviewer feedback and
schedules model training.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.logger = logger
			return a.initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync(a.logger)
		},
	}
	root.SetOut(a.out)
	root.SetIn(a.in)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./grammarctl.yaml or $HOME/.grammarctl/config.yaml)")
	flags.StringVar(&a.storePath, "store", "", "rule store path (overrides store.path)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.jsonLogs, "log-json", false, "JSON diagnostics on stderr")
	_ = a.v.BindPFlag("store.path", flags.Lookup("store"))

	root.AddCommand(
		a.addCmd(),
		a.checkCmd(),
		a.cleanCmd(),
		a.statsCmd(),
		a.resetCmd(),
		a.scheduleCmd(),
		a.trainCmd(),
		a.feedbackCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

// initConfig layers flags > GRAMMAR_* env > config file > defaults.
func (a *app) initConfig() error {
	defaults, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}
	a.v.SetConfigType("yaml")
	if err := a.v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if path := a.configPath(); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.MergeInConfig(); err != nil {
			return fmt.Errorf("%w: read config: %v", internalerr.ErrInvalidConfig, err)
		}
		a.logger.Debug("using config file", zap.String("path", path))
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	cfg := config.Default()
	if err := a.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// configPath returns the --config file, else the first existing default
// location, else "".
func (a *app) configPath() string {
	if a.cfgFile != "" {
		return a.cfgFile
	}
	for _, path := range defaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func defaultConfigPaths() []string {
	paths := []string{"grammarctl.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".grammarctl", "config.yaml"))
	}
	return paths
}

func (a *app) ruleStore() *filestore.Store {
	return filestore.New(a.cfg.Store.Path, filestore.WithLogger(a.logger))
}

func (a *app) ledger(ctx context.Context) (store.Ledger, error) {
	path := a.cfg.Ledger.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	l, err := sqlite.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return l, nil
}

func (a *app) journal(name string) *auditlog.Journal {
	return auditlog.New(a.cfg.Logs.Dir, name, auditlog.WithConsole(a.out), auditlog.WithClock(a.now))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "grammarctl %s\n", Version)
		},
	}
}

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exactArgs wraps cobra.ExactArgs so that argument mistakes are reported as
// usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func maxArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MaximumNArgs(n))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func batch() map[string]string {
	return map[string]string{batchAnnotation: "true"}
}

// ExitCode maps the outcome of cmd to a process status. Batch commands
// report operational errors but exit 0 unless the store is missing or
// unparsable.
func ExitCode(cmd *cobra.Command, err error) int {
	if err == nil {
		return 0
	}
	var usage usageError
	switch {
	case internalerr.IsFatal(err):
		return 1
	case errors.As(err, &usage),
		errors.Is(err, internalerr.ErrInvalidInput),
		errors.Is(err, internalerr.ErrInvalidConfig):
		return 2
	case cmd != nil && cmd.Annotations[batchAnnotation] == "true":
		return 0
	default:
		return 1
	}
}

// Execute runs grammarctl with the process arguments and returns the exit
// status.
func Execute(ctx context.Context) int {
	root := NewRootCmd(os.Stdin, os.Stdout)
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.As(err, new(usageError)) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
	}
	return ExitCode(cmd, err)
}
