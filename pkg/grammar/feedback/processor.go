// Package feedback turns reviewer feedback into rule changes.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/rules"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

// DefaultBatchSize is how many records one run processes.
const DefaultBatchSize = 100

// JournalName is the daily log file prefix of processing runs.
const JournalName = "grammar_feedback"

// Ledger is the part of store.Ledger the processor uses.
type Ledger interface {
	UnprocessedFeedback(ctx context.Context, limit int) ([]store.Feedback, error)
	MarkFeedbackProcessed(ctx context.Context, id int64) error
	CreateJob(ctx context.Context, j store.Job) (int64, error)
}

// Stats summarizes one processing run.
type Stats struct {
	Records        int
	MissedIssues   int
	FalsePositives int
	General        int
	Skipped        int
	Saved          bool
	Elapsed        time.Duration
}

// Processor applies unprocessed feedback to the rule store.
type Processor struct {
	Store     store.RuleStore
	Ledger    Ledger
	BatchSize int
	Journal   *auditlog.Journal
	Logger    *zap.Logger
	Now       func() time.Time
}

// Validate checks that f carries what its type needs.
func Validate(f store.Feedback) error {
	switch f.Type {
	case store.FeedbackMissedIssue:
		if f.Wrong == "" || f.Correct == "" {
			return fmt.Errorf("missed_issue needs wrong and correct expressions: %w", internalerr.ErrInvalidInput)
		}
	case store.FeedbackFalsePositive:
		if f.Wrong == "" {
			return fmt.Errorf("false_positive needs the flagged expression: %w", internalerr.ErrInvalidInput)
		}
	case store.FeedbackGeneral:
	default:
		return fmt.Errorf("unknown feedback type %q: %w", f.Type, internalerr.ErrInvalidInput)
	}
	return nil
}

// ErrorType returns the rule bucket for a missed issue.
func ErrorType(f store.Feedback) string {
	if f.ErrorType != "" && f.ErrorType != rules.UnknownType {
		return f.ErrorType
	}
	return Classify(f.Wrong, f.Correct)
}

// Run processes one batch. All rule changes land in a single store update;
// records are marked processed only once that update is saved.
func (p *Processor) Run(ctx context.Context) (st Stats, err error) {
	if p.Store == nil || p.Ledger == nil {
		return st, errors.New("feedback processor: invalid configuration")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	journal := p.Journal
	if journal == nil {
		journal = auditlog.Discard()
	}
	limit := p.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	start := now()
	defer func() {
		st.Elapsed = now().Sub(start)
		journal.Printf("Processing finished in %.2f seconds", st.Elapsed.Seconds())
		if err := journal.Flush(); err != nil {
			logger.Warn("write feedback log", zap.Error(err))
		}
	}()

	journal.Begin("Processing grammar feedback")

	records, err := p.Ledger.UnprocessedFeedback(ctx, limit)
	if err != nil {
		journal.Printf("Error: cannot read feedback: %v", err)
		return st, err
	}
	st.Records = len(records)
	journal.Printf("Found %d unprocessed feedback records", len(records))
	if len(records) == 0 {
		return st, nil
	}

	if _, err := p.Store.Info(); err != nil {
		journal.Printf("Existing rules unavailable, starting a new rule set")
	}

	err = p.Store.Upsert(ctx, func(rs *rules.RuleSet) error {
		st.MissedIssues, st.FalsePositives, st.General, st.Skipped = 0, 0, 0, 0
		for _, f := range records {
			p.apply(rs, f, &st, journal)
		}
		rs.SortByCount()
		return nil
	})
	if err != nil {
		journal.Printf("Error saving grammar rules: %v", err)
		logger.Error("save rules", zap.Error(err))
		return st, err
	}
	st.Saved = true
	journal.Printf("Grammar rules updated")
	journal.Printf("- added or updated %d missed issues", st.MissedIssues)
	journal.Printf("- handled %d false positives", st.FalsePositives)
	journal.Printf("- recorded %d general comments", st.General)

	var errs []error
	for _, f := range records {
		if err := p.markProcessed(ctx, f.ID, now()); err != nil {
			journal.Printf("Error marking feedback %d processed: %v", f.ID, err)
			errs = append(errs, err)
		}
	}
	logger.Info("feedback processed",
		zap.Int("records", st.Records),
		zap.Int("missed", st.MissedIssues),
		zap.Int("false_positives", st.FalsePositives),
		zap.Int("general", st.General))
	return st, errors.Join(errs...)
}

func (p *Processor) apply(rs *rules.RuleSet, f store.Feedback, st *Stats, journal *auditlog.Journal) {
	switch f.Type {
	case store.FeedbackMissedIssue:
		if f.Wrong == "" {
			st.Skipped++
			return
		}
		errType := ErrorType(f)
		if _, err := rs.Add(errType, f.Wrong, f.Correct); err != nil {
			st.Skipped++
			journal.Printf("Skipped feedback %d: %v", f.ID, err)
			return
		}
		st.MissedIssues++
		journal.Printf("Missed issue: '%s' -> '%s' (type: %s)", f.Wrong, f.Correct, errType)

	case store.FeedbackFalsePositive:
		if f.Wrong == "" {
			st.Skipped++
			return
		}
		touched := rs.Demote(f.Wrong)
		st.FalsePositives++
		journal.Printf("False positive: '%s' (%d rules demoted)", f.Wrong, touched)

	case store.FeedbackGeneral:
		if f.Comment == "" {
			st.Skipped++
			return
		}
		st.General++
		journal.Printf("General feedback ID: %d", f.ID)

	default:
		st.Skipped++
		journal.Printf("Skipped feedback %d: unknown type %q", f.ID, f.Type)
	}
}

func (p *Processor) markProcessed(ctx context.Context, id int64, at time.Time) error {
	if err := p.Ledger.MarkFeedbackProcessed(ctx, id); err != nil {
		return err
	}
	_, err := p.Ledger.CreateJob(ctx, store.Job{
		FeedbackID:  id,
		ProcessType: store.ProcessGrammarFeedback,
		Status:      store.StatusProcessed,
		Notes:       "grammar feedback processed automatically",
		CreatedAt:   at,
		ProcessedAt: at,
	})
	return err
}
