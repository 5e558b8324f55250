package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/grammar/pkg/grammar/config"
	"github.com/cognicore/grammar/pkg/grammar/internalerr"
	"github.com/cognicore/grammar/pkg/grammar/store"
	"github.com/cognicore/grammar/pkg/grammar/training"
)

func (a *app) scheduleCmd() *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create and dispatch a training job when enough feedback has arrived",
		Long: `Create a pending model training job when at least training.threshold
feedback records are waiting and no training job is in flight.

The job is handed to a separate "grammarctl train" process by default.
With --inline, or training.dispatch set to "queue", it runs in this
process and the command returns when training has finished.`,
		Args:        exactArgs(0),
		Annotations: batch(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			var dispatcher training.Dispatcher
			if inline || a.cfg.Training.Dispatch == config.DispatchQueue {
				queue := training.NewQueueDispatcher(a.runner(ledger), 1, a.logger)
				defer queue.Close()
				dispatcher = queue
			} else {
				d, err := a.execDispatcher()
				if err != nil {
					return err
				}
				dispatcher = d
			}

			t := a.cfg.Training
			s := &training.Scheduler{
				Ledger:        ledger,
				Dispatcher:    dispatcher,
				Threshold:     t.Threshold,
				Window:        t.Window,
				VersionPrefix: t.VersionPrefix,
				Journal:       a.journal(training.SchedulerJournal),
				Logger:        a.logger,
				Now:           a.now,
			}
			_, err = s.Run(ctx)
			return err
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "run the training job in this process")
	return cmd
}

// execDispatcher re-invokes this binary with the settings this invocation
// resolved from flags.
func (a *app) execDispatcher() (*training.ExecDispatcher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	var args []string
	if path := a.configPath(); path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if a.storePath != "" {
		args = append(args, "--store", a.storePath)
	}
	return &training.ExecDispatcher{Command: exe, Args: args, Logger: a.logger}, nil
}

func (a *app) runner(ledger store.Ledger) *training.Runner {
	t := a.cfg.Training
	return &training.Runner{
		Ledger: ledger,
		Trainer: training.CommandTrainer{
			Command: t.TrainerCommand,
			Args:    t.TrainerArgs,
			Dir:     t.TrainerDir,
			Env:     t.TrainerEnv,
		},
		WorkDir:       t.WorkDir,
		LogDir:        a.cfg.Logs.Dir,
		Console:       a.out,
		FeedbackLimit: t.FeedbackLimit,
		Timeout:       t.TrainerTimeout,
		Logger:        a.logger,
		Now:           a.now,
	}
}

func (a *app) trainCmd() *cobra.Command {
	var (
		jobID   int64
		version string
		runID   string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a scheduled training job",
		Long: `Run training job --task-id: export its feedback, invoke
training.trainer_command and record the resulting model version.

--version defaults to the version stored on the job.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID <= 0 {
				return usageError{errors.New("--task-id is required")}
			}
			task := training.Task{JobID: jobID, Version: version}
			if runID != "" {
				id, err := ulid.Parse(runID)
				if err != nil {
					return usageError{fmt.Errorf("invalid --run-id: %w", err)}
				}
				task.RunID = id
			} else {
				task.RunID = training.NewRunID(a.now())
			}

			ctx := cmd.Context()
			ledger, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if task.Version == "" {
				job, err := ledger.GetJob(ctx, jobID)
				if err != nil {
					return fmt.Errorf("job %d: %w", jobID, err)
				}
				if job.Version == "" {
					return fmt.Errorf("%w: job %d has no version, pass --version", internalerr.ErrInvalidInput, jobID)
				}
				task.Version = job.Version
			}

			a.logger.Info("training started",
				zap.Int64("job_id", task.JobID),
				zap.String("version", task.Version),
				zap.Stringer("run_id", task.RunID))
			return a.runner(ledger).Run(ctx, task)
		},
	}
	cmd.Flags().Int64Var(&jobID, "task-id", 0, "training job id")
	cmd.Flags().StringVar(&version, "version", "", "model version to produce")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier assigned by the scheduler")
	return cmd
}
