package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/grammar/pkg/grammar/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `View and manage grammarctl configuration.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags (--store)
  2. Environment variables (GRAMMAR_*, e.g. GRAMMAR_STORE_PATH)
  3. Config file (--config, ./grammarctl.yaml, $HOME/.grammarctl/config.yaml)
  4. Built-in defaults`,
	}
	cmd.AddCommand(a.configShowCmd(), a.configInitCmd(), a.configValidateCmd())
	return cmd
}

func (a *app) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("error marshaling config: %w", err)
			}

			source := "built-in defaults"
			if path := a.configPath(); path != "" {
				source = path
			}
			fmt.Fprintf(a.out, "Config file: %s\n", source)
			fmt.Fprintln(a.out, "═══════════════════════════════════════════════════════════")
			fmt.Fprint(a.out, string(data))
			fmt.Fprintln(a.out, "═══════════════════════════════════════════════════════════")
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, "Configuration hierarchy (highest to lowest priority):")
			fmt.Fprintln(a.out, "  1. CLI flags")
			fmt.Fprintln(a.out, "  2. Environment variables (GRAMMAR_*)")
			fmt.Fprintln(a.out, "  3. Config file")
			fmt.Fprintln(a.out, "  4. Built-in defaults")
			return nil
		},
	}
}

func (a *app) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "grammarctl.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, statErr := os.Stat(path); statErr == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse 'grammarctl config show' to view it, or pass --force to overwrite", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("error creating config directory: %w", err)
				}
			}

			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("error marshaling config: %w", err)
			}
			header := "# grammarctl configuration\n" +
				"#\n" +
				"# Configuration hierarchy (highest to lowest priority):\n" +
				"#   1. CLI flags\n" +
				"#   2. Environment variables (GRAMMAR_*, dots become underscores)\n" +
				"#   3. This config file\n" +
				"#   4. Built-in defaults\n\n"
			if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
				return fmt.Errorf("error writing config: %w", err)
			}

			fmt.Fprintf(a.out, "✓ Created default configuration: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a configuration file over the built-in defaults",
		Long: `Load a configuration file over the built-in defaults and report the first
invalid setting. Environment variables and flags are not applied. Without
an argument the active config file is checked.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return usageError{errors.New("no config file found; pass a path")}
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✓ Configuration valid: %s\n", path)
			return nil
		},
	}
}
