package training

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// maxLogLine bounds one relayed output line; longer lines are cut.
	maxLogLine = 64 * 1024
	// waitDelay bounds how long Wait waits for the output pipes after the
	// trainer exits or is killed.
	waitDelay = 5 * time.Second
)

// CommandTrainer runs an external training program:
//
//	<Command> <Args...> --feedback <file> --version <version>
//
// Its stdout and stderr are streamed into the run's log.
type CommandTrainer struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// Train implements Trainer. A non-zero exit is returned as an error.
func (t CommandTrainer) Train(ctx context.Context, req Request) error {
	if t.Command == "" {
		return fmt.Errorf("trainer command not configured")
	}
	args := append(append([]string{}, t.Args...), "--feedback", req.FeedbackFile, "--version", req.Version)
	cmd := exec.CommandContext(ctx, t.Command, args...)
	cmd.Dir = t.Dir
	cmd.WaitDelay = waitDelay
	if len(t.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if req.Log != nil {
		req.Log.Printf("Running: %s %s", t.Command, strings.Join(args, " "))
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start trainer: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error { return relay(stdout, req, "") })
	g.Go(func() error { return relay(stderr, req, "stderr: ") })
	readErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("trainer stopped: %w", ctx.Err())
		}
		return fmt.Errorf("trainer failed: %w", err)
	}
	if readErr != nil {
		return fmt.Errorf("read trainer output: %w", readErr)
	}
	return nil
}

func relay(r io.Reader, req Request, prefix string) error {
	br := bufio.NewReaderSize(r, maxLogLine)
	for {
		line, err := br.ReadSlice('\n')
		text := strings.TrimRight(string(line), "\r\n")
		truncated := false
		// Skip the rest of an over-long line so the child never blocks on a full pipe.
		for err == bufio.ErrBufferFull {
			truncated = true
			_, err = br.ReadSlice('\n')
		}
		if truncated {
			text += " [truncated]"
		}
		if (len(line) > 0 || truncated) && req.Log != nil {
			req.Log.Printf("%s%s", prefix, text)
		}
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			_, _ = io.Copy(io.Discard, r)
			return err
		}
	}
}
