// Package maintenance prunes low value rules from the rule store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/rules"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

// JournalName is the daily log file prefix of cleanup runs.
const JournalName = "grammar_rules_cleanup"

// Cleaner applies a Policy to the rule store in one critical section.
type Cleaner struct {
	Store   store.RuleStore
	Journal *auditlog.Journal
	Logger  *zap.Logger
	Now     func() time.Time

	// AbortOnBackupFailure stops the run when the pre-cleanup backup cannot
	// be written. By default the run continues with a warning.
	AbortOnBackupFailure bool
}

// TypeResult summarizes one error type.
type TypeResult struct {
	Type        string
	Description string
	Before      int
	After       int
	Removed     int
}

// Result summarizes the cleaning run.
type Result struct {
	Policy     string
	Types      []TypeResult
	Before     int
	After      int
	Removed    int
	Percent    float64
	BackupPath string
	BackupErr  error
	Saved      bool
	Elapsed    time.Duration
}

// Run prunes the store with p. Missing and unparsable stores are returned
// as internalerr.ErrMissingStore and internalerr.ErrParseFailure; in both
// cases nothing is written.
func (c *Cleaner) Run(ctx context.Context, p Policy) (Result, error) {
	res := Result{Policy: p.Name()}
	if c.Store == nil {
		return res, errors.New("cleaner: invalid configuration")
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	journal := c.Journal
	if journal == nil {
		journal = auditlog.Discard()
	}
	defer func() {
		if err := journal.Flush(); err != nil {
			logger.Warn("write cleanup log", zap.Error(err))
		}
	}()

	start := now()
	journal.Begin(fmt.Sprintf("Cleaning grammar rules (%s)", p.Name()))

	if _, err := c.Store.Info(); err != nil {
		journal.Printf("Error: rule store not found: %s", c.Store.Path())
		return res, err
	}

	err := c.Store.Update(ctx, func(rs *rules.RuleSet) error {
		res.BackupPath, res.BackupErr = c.Store.Backup(start)
		if res.BackupErr != nil {
			journal.Printf("Warning: could not create backup %s: %v", res.BackupPath, res.BackupErr)
			logger.Warn("backup failed", zap.String("path", res.BackupPath), zap.Error(res.BackupErr))
			if c.AbortOnBackupFailure {
				return res.BackupErr
			}
		} else {
			journal.Printf("Backup created: %s", res.BackupPath)
		}
		journal.Printf("Rules loaded")

		for _, errType := range rs.Types() {
			tr := prune(rs, errType, p)
			res.Types = append(res.Types, tr)
			res.Before += tr.Before
			res.After += tr.After
			res.Removed += tr.Removed
			journal.Printf("Type '%s' (%s): %d rules, removed %d, kept %d",
				errType, tr.Description, tr.Before, tr.Removed, tr.After)
		}
		return nil
	})

	switch {
	case err == nil:
		res.Saved = true
		res.Percent = percent(res.Removed, res.Before)
		journal.Printf("Total: %d rules before", res.Before)
		journal.Printf("Removed %d rules (%.2f%%)", res.Removed, res.Percent)
		journal.Printf("Kept %d rules", res.After)
		journal.Printf("Saved updated rules")
	case errors.Is(err, internalerr.ErrParseFailure):
		journal.Printf("Error: cannot parse rule store or format is invalid")
	case errors.Is(err, internalerr.ErrBackupFailed):
		journal.Printf("Error: aborted, rules left unchanged")
	default:
		journal.Printf("Error: %v", err)
	}

	res.Elapsed = now().Sub(start)
	journal.Printf("Cleanup finished in %.2f seconds", res.Elapsed.Seconds())
	logger.Info("cleanup finished",
		zap.String("policy", res.Policy),
		zap.Int("before", res.Before),
		zap.Int("removed", res.Removed),
		zap.Bool("saved", res.Saved),
		zap.Duration("elapsed", res.Elapsed))

	return res, err
}

func prune(rs *rules.RuleSet, errType string, p Policy) TypeResult {
	bucket := rs.Rules[errType]
	kept := make([]rules.Rule, 0, len(bucket))
	for _, r := range bucket {
		if p.Keep(errType, r) {
			kept = append(kept, r)
		}
	}
	rs.Rules[errType] = kept
	return TypeResult{
		Type:        errType,
		Description: rs.Describe(errType),
		Before:      len(bucket),
		After:       len(kept),
		Removed:     len(bucket) - len(kept),
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
