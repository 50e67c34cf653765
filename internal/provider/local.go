package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/marcus/daybreak/internal/logging"
)

// DefaultTimeout is the default wall-clock budget for a local tool run.
const DefaultTimeout = 120 * time.Second

// CommandRunner executes external commands. Allows mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, dir string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner is the default CommandRunner using os/exec. On context expiry it
// sends the child a single SIGTERM and returns immediately; a late exit from
// the process is discarded rather than surfaced as a second result.
type ExecRunner struct{}

// Run starts the command and waits for exit or context expiry.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, dir string) (string, string, int, error) {
	cmd := exec.Command(name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", "", -1, &SpawnError{Command: name, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		return stdoutBuf.String(), stderrBuf.String(), exitCode, err

	case <-ctx.Done():
		// One termination signal, no escalation. The buffered channel lets
		// the waiter goroutine finish whenever the child actually dies.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		return "", "", -1, ctx.Err()
	}
}

// localExecutor spawns a configured CLI tool with the prompt as the final
// positional argument. Arguments are passed as a vector, never through a
// shell.
type localExecutor struct {
	command string
	args    []string
	pricing *Pricing
	timeout time.Duration
	runner  CommandRunner
	logger  *logging.Logger
}

func (e *localExecutor) run(ctx context.Context, prompt string, opts RunOptions) (*Result, error) {
	timeout := e.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(e.args)+3)
	args = append(args, e.args...)
	if opts.Sandbox != "" {
		args = append(args, "--sandbox", opts.Sandbox)
	}
	args = append(args, prompt)

	start := time.Now()
	stdout, stderr, exitCode, err := e.runner.Run(ctx, e.command, args, opts.Cwd)
	elapsed := time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warnf("%s timed out after %s", e.command, timeout)
		return nil, &TimeoutError{Command: e.command, After: timeout}
	}

	if err != nil {
		var spawn *SpawnError
		if errors.As(err, &spawn) {
			return nil, spawn
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", e.command, err)
		}
		// Non-zero exit is a result, not a hard failure; the tool ran and
		// the caller gets its exit code and stderr.
	}

	result := &Result{
		Raw:      stdout,
		Parsed:   ParseOutput(stdout),
		ExitCode: exitCode,
		Stderr:   stderr,
		Duration: elapsed,
	}

	if exitCode != 0 {
		result.Error = strings.TrimSpace(stderr)
		if result.Error == "" {
			result.Error = fmt.Sprintf("%s exited with code %d", e.command, exitCode)
		}
		return result, nil
	}

	// Local tools report no token counts. Estimate from output size so cost
	// tracking stays comparable across backends.
	if est := EstimateUsage(int64(len(stdout)) / 4); est != nil {
		result.TokenUsage = est
		result.Cost = Cost(est, e.pricing)
		result.Warning = "token usage estimated from output size"
	}

	return result, nil
}
