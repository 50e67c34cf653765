package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/daybreak/internal/logging"
)

// MockRunner is a test double for CommandRunner.
type MockRunner struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Delay    time.Duration // Simulate slow command

	// Captured values
	CapturedName string
	CapturedArgs []string
	CapturedDir  string
	Calls        int
}

func (m *MockRunner) Run(ctx context.Context, name string, args []string, dir string) (string, string, int, error) {
	m.CapturedName = name
	m.CapturedArgs = args
	m.CapturedDir = dir
	m.Calls++

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", "", -1, ctx.Err()
		}
	}

	return m.Stdout, m.Stderr, m.ExitCode, m.Err
}

func newLocalExecutor(runner CommandRunner, pricing *Pricing) *localExecutor {
	return &localExecutor{
		command: "tool",
		args:    []string{"--quiet"},
		pricing: pricing,
		timeout: DefaultTimeout,
		runner:  runner,
		logger:  logging.Component("test"),
	}
}

func TestLocalRun_Success(t *testing.T) {
	runner := &MockRunner{Stdout: `done: {"answer": 42}`}
	e := newLocalExecutor(runner, nil)

	result, err := e.run(context.Background(), "what is the answer", RunOptions{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Raw != `done: {"answer": 42}` {
		t.Errorf("Raw = %q", result.Raw)
	}
	if string(result.Parsed) != `{"answer": 42}` {
		t.Errorf("Parsed = %s, want embedded object", result.Parsed)
	}
	if !result.IsSuccess() {
		t.Error("IsSuccess() = false, want true")
	}
}

func TestLocalRun_ArgumentOrder(t *testing.T) {
	runner := &MockRunner{Stdout: "ok"}
	e := newLocalExecutor(runner, nil)

	_, err := e.run(context.Background(), "the prompt", RunOptions{Sandbox: "strict", Cwd: "/tmp/work"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	want := []string{"--quiet", "--sandbox", "strict", "the prompt"}
	if len(runner.CapturedArgs) != len(want) {
		t.Fatalf("args = %v, want %v", runner.CapturedArgs, want)
	}
	for i, arg := range want {
		if runner.CapturedArgs[i] != arg {
			t.Errorf("args[%d] = %q, want %q", i, runner.CapturedArgs[i], arg)
		}
	}
	if runner.CapturedDir != "/tmp/work" {
		t.Errorf("dir = %q, want /tmp/work", runner.CapturedDir)
	}
	if runner.CapturedName != "tool" {
		t.Errorf("name = %q, want tool", runner.CapturedName)
	}
}

func TestLocalRun_NonZeroExit(t *testing.T) {
	runner := &MockRunner{Stderr: "compile failed\n", ExitCode: 3}
	e := newLocalExecutor(runner, nil)

	result, err := e.run(context.Background(), "prompt", RunOptions{})
	if err != nil {
		t.Fatalf("run() error = %v, want nil (non-zero exit is a result)", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Error != "compile failed" {
		t.Errorf("Error = %q, want trimmed stderr", result.Error)
	}
	if result.IsSuccess() {
		t.Error("IsSuccess() = true, want false")
	}
	if result.TokenUsage != nil {
		t.Error("TokenUsage set on failed run, want nil")
	}
}

func TestLocalRun_NonZeroExitEmptyStderr(t *testing.T) {
	runner := &MockRunner{ExitCode: 9}
	e := newLocalExecutor(runner, nil)

	result, err := e.run(context.Background(), "prompt", RunOptions{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if result.Error != "tool exited with code 9" {
		t.Errorf("Error = %q, want synthesized message", result.Error)
	}
}

func TestLocalRun_Timeout(t *testing.T) {
	runner := &MockRunner{Delay: 5 * time.Second}
	e := newLocalExecutor(runner, nil)

	start := time.Now()
	_, err := e.run(context.Background(), "prompt", RunOptions{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("run() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.After != 50*time.Millisecond {
		t.Errorf("TimeoutError.After = %v, want 50ms", timeoutErr.After)
	}
	if elapsed < 50*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Errorf("timeout took %v, want ~50-150ms", elapsed)
	}
}

// deafRunner ignores cancellation and returns after its delay, like a tool
// that finishes just as the deadline fires.
type deafRunner struct {
	delay  time.Duration
	stdout string
}

func (r *deafRunner) Run(ctx context.Context, name string, args []string, dir string) (string, string, int, error) {
	time.Sleep(r.delay)
	return r.stdout, "", 0, nil
}

func TestLocalRun_FinishAfterDeadlineKeepsOutput(t *testing.T) {
	runner := &deafRunner{delay: 60 * time.Millisecond, stdout: "late but done"}
	e := newLocalExecutor(runner, nil)

	result, err := e.run(context.Background(), "prompt", RunOptions{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("run() error = %v, want completed result", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Raw != "late but done" {
		t.Errorf("Raw = %q, output dropped", result.Raw)
	}
}

func TestLocalRun_SpawnError(t *testing.T) {
	spawn := &SpawnError{Command: "tool", Err: errors.New("executable file not found")}
	runner := &MockRunner{Err: spawn, ExitCode: -1}
	e := newLocalExecutor(runner, nil)

	_, err := e.run(context.Background(), "prompt", RunOptions{})
	var got *SpawnError
	if !errors.As(err, &got) {
		t.Fatalf("run() error = %v, want *SpawnError", err)
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Error("spawn error should not look like a timeout")
	}
}

func TestLocalRun_EstimatedUsage(t *testing.T) {
	// 400 bytes of output -> ~100 tokens estimated, split 50/50.
	out := make([]byte, 400)
	for i := range out {
		out[i] = 'x'
	}
	pricing := &Pricing{Input: 10, Output: 40, Unit: PerMillionTokens}
	runner := &MockRunner{Stdout: string(out)}
	e := newLocalExecutor(runner, pricing)

	result, err := e.run(context.Background(), "prompt", RunOptions{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if result.TokenUsage == nil {
		t.Fatal("TokenUsage = nil, want estimate")
	}
	if result.TokenUsage.Total() != 100 {
		t.Errorf("estimated total = %d, want 100", result.TokenUsage.Total())
	}
	if result.Warning == "" {
		t.Error("Warning empty, want estimation notice")
	}
	if result.Cost == nil {
		t.Error("Cost = nil, want estimate from pricing")
	}
}

func TestLocalRun_NoPricingStillEstimatesTokens(t *testing.T) {
	runner := &MockRunner{Stdout: "some output text"}
	e := newLocalExecutor(runner, nil)

	result, err := e.run(context.Background(), "prompt", RunOptions{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if result.TokenUsage == nil {
		t.Error("TokenUsage = nil, want estimate without pricing")
	}
	if result.Cost != nil {
		t.Errorf("Cost = %v, want nil without pricing", *result.Cost)
	}
}

func TestExecRunner_ExitCode(t *testing.T) {
	r := &ExecRunner{}
	_, _, exitCode, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; exit 7"}, "")
	if exitCode != 7 {
		t.Errorf("exitCode = %d, want 7", exitCode)
	}
	if err == nil {
		t.Error("err = nil, want *exec.ExitError")
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	r := &ExecRunner{}
	stdout, stderr, exitCode, err := r.Run(context.Background(), "sh", []string{"-c", "echo hello; echo oops >&2"}, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exitCode = %d, want 0", exitCode)
	}
	if stdout != "hello\n" {
		t.Errorf("stdout = %q, want hello", stdout)
	}
	if stderr != "oops\n" {
		t.Errorf("stderr = %q, want oops", stderr)
	}
}

func TestExecRunner_ContextCancelReturnsPromptly(t *testing.T) {
	r := &ExecRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, exitCode, err := r.Run(ctx, "sleep", []string{"10"}, "")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if exitCode != -1 {
		t.Errorf("exitCode = %d, want -1", exitCode)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Run() returned after %v, should not wait for the child", elapsed)
	}
}

func TestExecRunner_SpawnFailure(t *testing.T) {
	r := &ExecRunner{}
	_, _, _, err := r.Run(context.Background(), "/nonexistent/definitely-not-a-binary", nil, "")

	var spawn *SpawnError
	if !errors.As(err, &spawn) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
}
