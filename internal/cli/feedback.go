package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/feedback"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

func (a *app) feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and process reviewer feedback",
	}
	cmd.AddCommand(a.feedbackProcessCmd(), a.feedbackAddCmd())
	return cmd
}

func (a *app) feedbackProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Apply unprocessed feedback to the rule store",
		Long: `Apply up to feedback.batch_size unprocessed feedback records to the rule store.

Missed issues become rules, false positives demote the matching rules and
general remarks are only counted.`,
		Args:        exactArgs(0),
		Annotations: batch(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			p := &feedback.Processor{
				Store:     a.ruleStore(),
				Ledger:    ledger,
				BatchSize: a.cfg.Feedback.BatchSize,
				Journal:   a.journal(feedback.JournalName),
				Logger:    a.logger,
				Now:       a.now,
			}
			st, err := p.Run(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("feedback processed",
				zap.Int("records", st.Records),
				zap.Int("missed_issues", st.MissedIssues),
				zap.Int("false_positives", st.FalsePositives),
				zap.Int("skipped", st.Skipped))
			return nil
		},
	}
}

func (a *app) feedbackAddCmd() *cobra.Command {
	var (
		f            store.Feedback
		feedbackType string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record one feedback entry",
		Example: `  grammarctl feedback add --reviewer-id 7 --essay-id 42 --type missed_issue \
    --error-type tense --wrong buyed --correct bought --usable`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Type = store.FeedbackType(feedbackType)
			if err := feedback.Validate(f); err != nil {
				return err
			}

			ctx := cmd.Context()
			ledger, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			id, err := ledger.InsertFeedback(ctx, f)
			if err != nil {
				return fmt.Errorf("record feedback: %w", err)
			}
			fmt.Fprintf(a.out, "Recorded feedback %d (%s)\n", id, f.Type)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&f.EssayID, "essay-id", 0, "essay the feedback refers to")
	flags.Int64Var(&f.ReviewerID, "reviewer-id", 0, "reviewer giving the feedback")
	flags.StringVar(&feedbackType, "type", string(store.FeedbackMissedIssue), "missed_issue, false_positive or general")
	flags.StringVar(&f.ErrorType, "error-type", "", "error type of a missed issue (classified when empty)")
	flags.StringVar(&f.Wrong, "wrong", "", "erroneous or wrongly flagged expression")
	flags.StringVar(&f.Correct, "correct", "", "corrected expression")
	flags.StringVar(&f.Comment, "comment", "", "free-form remark")
	flags.BoolVar(&f.UsableForTraining, "usable", false, "allow the entry to be used for model training")
	return cmd
}
