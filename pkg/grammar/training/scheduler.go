// Package training decides when to retrain the grammar model and drives the
// external trainer.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

const (
	DefaultThreshold     = 10
	DefaultWindow        = 24 * time.Hour
	DefaultVersionPrefix = "1.0"

	// SchedulerJournal is the daily log file prefix of scheduling passes.
	SchedulerJournal = "ai_training_scheduler"
)

// Reason explains a scheduling decision.
type Reason string

const (
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonInFlight       Reason = "in_flight"
	ReasonDispatched     Reason = "dispatched"
)

// SchedulerLedger is the part of store.Ledger the scheduler reads and writes.
type SchedulerLedger interface {
	CountTrainableFeedback(ctx context.Context) (int64, error)
	CountInFlight(ctx context.Context, pt store.ProcessType, since time.Time) (int64, error)
	Versions(ctx context.Context, prefix string) ([]string, error)
	CreateJob(ctx context.Context, j store.Job) (int64, error)
}

// Dispatcher hands a task to the trainer without waiting for it to finish.
// The returned string describes the invocation for the logs.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) (string, error)
}

// Decision is the outcome of one scheduling pass.
type Decision struct {
	Reason        Reason
	FeedbackCount int64
	InFlight      int64
	Task          Task
	Invocation    string
}

// Scheduler creates at most one pending training job per pass.
type Scheduler struct {
	Ledger        SchedulerLedger
	Dispatcher    Dispatcher
	Threshold     int64
	Window        time.Duration
	VersionPrefix string
	Journal       *auditlog.Journal
	Logger        *zap.Logger
	Now           func() time.Time
}

// Run performs one scheduling pass.
func (s *Scheduler) Run(ctx context.Context) (Decision, error) {
	var d Decision
	if s.Ledger == nil || s.Dispatcher == nil {
		return d, errors.New("scheduler: invalid configuration")
	}
	threshold, window, prefix := s.Threshold, s.Window, s.VersionPrefix
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = DefaultVersionPrefix
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	journal := s.Journal
	if journal == nil {
		journal = auditlog.Discard()
	}
	defer func() {
		if err := journal.Flush(); err != nil {
			logger.Warn("write scheduler log", zap.Error(err))
		}
	}()

	journal.Begin("Checking AI training schedule")
	fail := func(err error) (Decision, error) {
		journal.Printf("Error during scheduling: %v", err)
		return d, err
	}

	count, err := s.Ledger.CountTrainableFeedback(ctx)
	if err != nil {
		return fail(err)
	}
	d.FeedbackCount = count
	journal.Printf("Found %d feedback records not yet used for training", count)

	if count < threshold {
		d.Reason = ReasonBelowThreshold
		journal.Printf("Not enough feedback (need at least %d, have %d), skipping training", threshold, count)
		logger.Info("training skipped", zap.String("reason", string(d.Reason)), zap.Int64("feedback", count))
		return d, nil
	}

	start := now()
	running, err := s.Ledger.CountInFlight(ctx, store.ProcessModelTraining, start.Add(-window))
	if err != nil {
		return fail(err)
	}
	d.InFlight = running
	if running > 0 {
		d.Reason = ReasonInFlight
		journal.Printf("A training job is already in progress, skipping")
		logger.Info("training skipped", zap.String("reason", string(d.Reason)), zap.Int64("in_flight", running))
		return d, nil
	}

	versions, err := s.Ledger.Versions(ctx, prefix+".")
	if err != nil {
		return fail(err)
	}
	version := NextVersion(versions, prefix)

	jobID, err := s.Ledger.CreateJob(ctx, store.Job{
		ProcessType: store.ProcessModelTraining,
		Status:      store.StatusPending,
		Version:     version,
		Notes:       fmt.Sprintf("planned training of version %s from %d feedback records", version, count),
		CreatedAt:   start,
	})
	if err != nil {
		return fail(err)
	}
	d.Task = Task{RunID: NewRunID(start), JobID: jobID, Version: version}
	journal.Printf("Created training job (ID: %d), version %s", jobID, version)

	invocation, err := s.Dispatcher.Dispatch(ctx, d.Task)
	if err != nil {
		return fail(fmt.Errorf("dispatch job %d: %w", jobID, err))
	}
	d.Reason = ReasonDispatched
	d.Invocation = invocation
	journal.Printf("Started trainer: %s", invocation)
	logger.Info("training dispatched",
		zap.Int64("job_id", jobID),
		zap.String("version", version),
		zap.String("run_id", d.Task.RunID.String()))
	return d, nil
}
