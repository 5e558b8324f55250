package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/grammar/pkg/grammar/lexicon"
	"github.com/cognicore/grammar/pkg/grammar/maintenance"
	"github.com/cognicore/grammar/pkg/grammar/matcher"
	"github.com/cognicore/grammar/pkg/grammar/stats"
)

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <type> <wrong> <correct>",
		Short: "Record a correction in the rule store",
		Long: `Record that <wrong> should be written as <correct> under error type <type>.

An existing rule for <wrong> has its correction replaced and its count
incremented. The store is created with the default rules when missing.`,
		Args: exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.ruleStore().Add(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			verb := "Updated"
			if res.Created {
				verb = "Added"
			}
			fmt.Fprintf(a.out, "%s rule [%s] '%s' (count %d)\n", verb, res.Type, res.Original, res.Count)
			return nil
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the rule store with the default rules",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.ruleStore()
			if err := s.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Rule store %s reset to defaults\n", s.Path())
			return nil
		},
	}
}

func (a *app) checkCmd() *cobra.Command {
	var (
		watch   bool
		jsonOut bool
		isHTML  bool
	)
	cmd := &cobra.Command{
		Use:   "check [text|-]",
		Short: "Check text against the learned rules",
		Long: `Check text against the learned rules and print the suggestions by error type.

With no argument or "-" the text is read from stdin. With --watch every
stdin line is checked on its own while the rule store is reloaded whenever
it changes on disk.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			checker := matcher.NewChecker(a.ruleStore(), matcher.New(),
				matcher.WithCheckerLogger(a.logger),
				matcher.WithReloadInterval(a.cfg.Checker.ReloadInterval))
			if err := checker.Reload(ctx); err != nil {
				return err
			}

			prepare := strings.TrimSpace
			if isHTML {
				prepare = matcher.PlainText
			}
			if watch {
				return a.watchLines(ctx, checker, prepare, jsonOut)
			}

			text, err := checkInput(args, a.in)
			if err != nil {
				return err
			}
			return a.printIssues(checker.Check(prepare(text)), jsonOut)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "check stdin line by line and reload rules on change")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print issues as JSON")
	cmd.Flags().BoolVar(&isHTML, "html", false, "strip HTML markup before checking")
	return cmd
}

func checkInput(args []string, in io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// watchLines checks stdin line by line until EOF or cancellation while the
// checker follows the rule store.
func (a *app) watchLines(ctx context.Context, checker *matcher.Checker, prepare func(string) string, jsonOut bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return checker.Watch(ctx)
	})
	g.Go(func() error {
		defer cancel()
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			line := prepare(scanner.Text())
			if line == "" {
				continue
			}
			if err := a.printIssues(checker.Check(line), jsonOut); err != nil {
				return err
			}
		}
		return scanner.Err()
	})
	return g.Wait()
}

func (a *app) printIssues(issues matcher.Issues, jsonOut bool) error {
	if jsonOut {
		if issues == nil {
			issues = matcher.Issues{}
		}
		return json.NewEncoder(a.out).Encode(issues)
	}
	if len(issues) == 0 {
		fmt.Fprintln(a.out, "No issues found")
		return nil
	}
	types := make([]string, 0, len(issues))
	for t := range issues {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(a.out, "%s:\n", t)
		for _, s := range issues[t] {
			fmt.Fprintf(a.out, "  - %s\n", s)
		}
	}
	return nil
}

func (a *app) cleanCmd() *cobra.Command {
	var targeted bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Prune low value rules from the rule store",
		Long: `Prune low value rules after writing a timestamped backup.

By default every single-word rule is removed. With --targeted only
single-word rules whose word is a common function word are removed, and
the error types listed in cleanup.preserve are left alone. Words listed in
cleanup.keep_words are dropped from the lexicon before cleaning.`,
		Args:        exactArgs(0),
		Annotations: batch(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var policy maintenance.Policy = maintenance.Blanket{}
			if targeted {
				lex, err := a.lexicon()
				if err != nil {
					return err
				}
				policy = maintenance.NewTargeted(a.cfg.Cleanup.Preserve, lex)
			}

			c := &maintenance.Cleaner{
				Store:                a.ruleStore(),
				Journal:              a.journal(maintenance.JournalName),
				Logger:               a.logger,
				Now:                  a.now,
				AbortOnBackupFailure: a.cfg.Cleanup.AbortOnBackupFailure,
			}
			res, err := c.Run(cmd.Context(), policy)
			if err != nil {
				return err
			}
			a.logger.Info("cleanup finished",
				zap.String("policy", res.Policy),
				zap.Int("removed", res.Removed),
				zap.Int("remaining", res.After))
			return nil
		},
	}
	cmd.Flags().BoolVar(&targeted, "targeted", false, "remove only common-word rules outside preserved types")
	return cmd
}

// lexicon returns the configured lexicon minus cleanup.keep_words.
func (a *app) lexicon() (*lexicon.Lexicon, error) {
	lex := lexicon.Default()
	if path := a.cfg.Cleanup.LexiconPath; path != "" {
		var err error
		if lex, err = lexicon.LoadFromYAML(path); err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
	}
	for _, w := range a.cfg.Cleanup.KeepWords {
		lex.Remove(w)
	}
	return lex, nil
}

func (a *app) statsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:         "stats",
		Short:       "Report rule counts by error type",
		Args:        exactArgs(0),
		Annotations: batch(),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.ruleStore()
			rs, err := s.Load(cmd.Context())
			if err != nil {
				return err
			}
			info, err := s.Info()
			if err != nil {
				return err
			}
			if top <= 0 {
				top = a.cfg.Stats.TopTypes
			}
			return stats.Render(a.out, stats.Compute(rs), info, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "number of error types to show examples for (default stats.top_types)")
	return cmd
}
