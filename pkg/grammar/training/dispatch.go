package training

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/grammar/internal/worker"
)

// TrainArgs renders the arguments of the train subcommand for task.
func TrainArgs(task Task) []string {
	return []string{
		"train",
		"--task-id=" + strconv.FormatInt(task.JobID, 10),
		"--version=" + task.Version,
		"--run-id=" + task.RunID.String(),
	}
}

// ExecDispatcher starts the trainer as a separate process and returns
// immediately. The exit status is logged when the process ends, provided
// the dispatching process is still alive.
type ExecDispatcher struct {
	// Command is the executable providing the train subcommand.
	Command string
	// Args are placed before the train subcommand, e.g. --config.
	Args   []string
	Logger *zap.Logger
}

// Dispatch implements Dispatcher.
func (d *ExecDispatcher) Dispatch(_ context.Context, task Task) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	args := append(append([]string{}, d.Args...), TrainArgs(task)...)
	// Not bound to the caller's context: the trainer outlives the scheduler.
	cmd := exec.Command(d.Command, args...)
	invocation := d.Command + " " + strings.Join(args, " ")

	if err := cmd.Start(); err != nil {
		return invocation, fmt.Errorf("start trainer: %w", err)
	}
	logger.Info("trainer started", zap.String("command", invocation), zap.Int("pid", cmd.Process.Pid))

	go func() {
		err := cmd.Wait()
		if err != nil {
			logger.Warn("trainer exited", zap.Int64("job_id", task.JobID), zap.Error(err))
			return
		}
		logger.Info("trainer exited", zap.Int64("job_id", task.JobID))
	}()
	return invocation, nil
}

// QueueDispatcher runs tasks in-process on a worker pool.
type QueueDispatcher struct {
	pool   *worker.Pool
	runner *Runner
	logger *zap.Logger
}

type runJob struct {
	runner *Runner
	task   Task
}

type runResult struct {
	task Task
	err  error
}

func (r runResult) GetError() error { return r.err }

func (j runJob) Execute(ctx context.Context) worker.Result {
	return runResult{task: j.task, err: j.runner.Run(ctx, j.task)}
}

// NewQueueDispatcher starts workers goroutines consuming dispatched tasks
// with runner. Close must be called to release them.
func NewQueueDispatcher(runner *Runner, workers int, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &QueueDispatcher{runner: runner, logger: logger}
	q.pool = worker.NewPool(workers, workers*2, q.report)
	q.pool.Start()
	return q
}

// Dispatch implements Dispatcher.
func (q *QueueDispatcher) Dispatch(_ context.Context, task Task) (string, error) {
	if err := q.pool.Submit(runJob{runner: q.runner, task: task}); err != nil {
		return "", err
	}
	return fmt.Sprintf("queued job %d (version %s, run %s)", task.JobID, task.Version, task.RunID), nil
}

// Close waits for queued tasks to finish.
func (q *QueueDispatcher) Close() {
	q.pool.Wait()
}

func (q *QueueDispatcher) report(r worker.Result) {
	res := r.(runResult)
	if res.err != nil {
		q.logger.Warn("training run failed", zap.Int64("job_id", res.task.JobID), zap.Error(res.err))
		return
	}
	q.logger.Info("training run finished", zap.Int64("job_id", res.task.JobID), zap.String("version", res.task.Version))
}
