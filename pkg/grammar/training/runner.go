package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/auditlog"
	"github.com/cognicore/grammar/pkg/grammar/store"
)

// DefaultFeedbackLimit caps how many records one run trains on.
const DefaultFeedbackLimit = 1000

// Request is what a Trainer receives.
type Request struct {
	JobID        int64
	Version      string
	FeedbackFile string
	Records      int
	// Log receives progress lines, including trainer output.
	Log *auditlog.Journal
}

// Trainer produces a model version from exported feedback.
type Trainer interface {
	Train(ctx context.Context, req Request) error
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, req Request) error

func (f TrainerFunc) Train(ctx context.Context, req Request) error { return f(ctx, req) }

// Runner executes one training job and owns its status transitions:
// pending → processing → success | failed.
type Runner struct {
	Ledger  store.Ledger
	Trainer Trainer
	// WorkDir receives the exported feedback files.
	WorkDir string
	// LogDir receives model_training_<job>_YYYYMMDD.log. Empty disables it.
	LogDir        string
	Console       io.Writer
	FeedbackLimit int
	Timeout       time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// Run trains task.JobID. The returned error is also recorded on the job.
func (r *Runner) Run(ctx context.Context, task Task) error {
	if r.Ledger == nil || r.Trainer == nil {
		return errors.New("runner: invalid configuration")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []auditlog.Option{auditlog.WithTimestamps()}
	if r.Console != nil {
		opts = append(opts, auditlog.WithConsole(r.Console))
	}
	if r.Now != nil {
		opts = append(opts, auditlog.WithClock(r.Now))
	}
	journal := auditlog.New(r.LogDir, fmt.Sprintf("model_training_%d", task.JobID), opts...)
	defer func() {
		if err := journal.Flush(); err != nil {
			logger.Warn("write training log", zap.Error(err))
		}
	}()

	if err := r.Ledger.UpdateJobStatus(ctx, task.JobID, store.StatusProcessing, ""); err != nil {
		journal.Printf("Error: cannot start job %d: %v", task.JobID, err)
		return err
	}
	journal.Printf("Starting training job %d, version %s (run %s)", task.JobID, task.Version, task.RunID)

	records, err := r.train(ctx, task, journal)
	if err != nil {
		journal.Printf("Training failed: %v", err)
		if uerr := r.Ledger.UpdateJobStatus(context.WithoutCancel(ctx), task.JobID, store.StatusFailed,
			"training failed: "+err.Error()); uerr != nil {
			journal.Printf("Error updating job status: %v", uerr)
			logger.Error("mark job failed", zap.Int64("job_id", task.JobID), zap.Error(uerr))
		}
		return err
	}

	note := fmt.Sprintf("model version %s trained from %d feedback records", task.Version, records)
	if err := r.Ledger.UpdateJobStatus(ctx, task.JobID, store.StatusSuccess, note); err != nil {
		journal.Printf("Error updating job status: %v", err)
		return err
	}
	journal.Printf("Training succeeded")
	return nil
}

func (r *Runner) train(ctx context.Context, task Task, journal *auditlog.Journal) (int, error) {
	limit := r.FeedbackLimit
	if limit <= 0 {
		limit = DefaultFeedbackLimit
	}
	feedback, err := r.Ledger.TrainableFeedback(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("collect feedback: %w", err)
	}
	journal.Printf("Collected %d feedback records", len(feedback))

	file, err := r.exportFeedback(task.JobID, feedback)
	if err != nil {
		return 0, err
	}
	journal.Printf("Feedback exported to %s", file)

	trainCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		trainCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	err = r.Trainer.Train(trainCtx, Request{
		JobID:        task.JobID,
		Version:      task.Version,
		FeedbackFile: file,
		Records:      len(feedback),
		Log:          journal,
	})
	if err != nil {
		return 0, err
	}

	// The version is recorded first so a failure leaves the feedback trainable.
	if err := r.Ledger.RecordVersion(ctx, store.ModelVersion{Version: task.Version, JobID: task.JobID}); err != nil {
		return 0, fmt.Errorf("record version: %w", err)
	}

	ids := make([]int64, 0, len(feedback))
	for _, f := range feedback {
		ids = append(ids, f.ID)
	}
	if len(ids) == 0 {
		journal.Printf("No feedback records to mark as used")
	} else {
		if err := r.Ledger.MarkFeedbackUsed(ctx, ids); err != nil {
			return 0, fmt.Errorf("mark feedback used: %w", err)
		}
		journal.Printf("Marked %d feedback records as used in model", len(ids))
	}

	return len(feedback), nil
}

func (r *Runner) exportFeedback(jobID int64, feedback []store.Feedback) (string, error) {
	dir := r.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	if feedback == nil {
		feedback = []store.Feedback{}
	}
	data, err := json.MarshalIndent(feedback, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode feedback: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("feedback_data_%d.json", jobID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write feedback: %w", err)
	}
	return path, nil
}
