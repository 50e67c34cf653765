package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited indicates a call was denied by the local rate-limit window
// or the remote API kept returning 429 until the retry budget ran out.
var ErrRateLimited = errors.New("rate limit exceeded")

// ConfigError reports a malformed provider descriptor. It is raised at
// construction and is never retryable.
type ConfigError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Field, e.Reason)
}

// SpawnError reports that a local command could not be started at all
// (missing binary, permission denied). Distinct from a timeout.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that a local process exceeded its wall-clock budget
// and was sent a termination signal.
type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Command, e.After)
}

// StatusError reports a non-2xx HTTP response from a remote backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// SubmitError reports that the devserver rejected the initial job submission;
// there is no task to poll.
type SubmitError struct {
	StatusCode int
	Message    string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("devserver submit failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// TaskFailedError reports that the devserver executed the task and marked it
// failed.
type TaskFailedError struct {
	TaskID string
	Reason string
}

func (e *TaskFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "task failed"
	}
	return fmt.Sprintf("devserver task %s: %s", e.TaskID, reason)
}

// PollTimeoutError reports that a devserver task did not reach a terminal
// status before the client's polling budget elapsed. This is a client-side
// terminal state; the server may still finish the task later.
type PollTimeoutError struct {
	TaskID string
	Waited time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("devserver task %s: no terminal status after %s", e.TaskID, e.Waited)
}
