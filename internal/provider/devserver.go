package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcus/daybreak/internal/logging"
)

const (
	// DefaultPollInterval is the fixed delay between devserver status checks.
	DefaultPollInterval = time.Second

	// DefaultMaxPollTime bounds how long the client waits for a terminal
	// status before giving up on its side.
	DefaultMaxPollTime = 300 * time.Second
)

// Task statuses reported by a devserver. The server owns the state machine
// queued -> running -> {completed, failed}; the client only observes it, and
// additionally imposes a timeout from any non-terminal state.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

type submitRequest struct {
	Provider string     `json:"provider"`
	Prompt   string     `json:"prompt"`
	Opts     submitOpts `json:"opts"`
}

type submitOpts struct {
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Sandbox      string         `json:"sandbox,omitempty"`
	Cwd          string         `json:"cwd,omitempty"`
	TimeoutMs    int64          `json:"timeoutMs,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"taskId"`
}

type taskStatus struct {
	Status string  `json:"status"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// devserverExecutor submits a job to a remote devserver and polls its status
// endpoint until the task is terminal. Submit and poll failures are hard
// errors; unlike the remote API path there is no degraded result to return.
type devserverExecutor struct {
	name         string
	baseURL      string
	pricing      *Pricing
	pollInterval time.Duration
	maxPollTime  time.Duration
	client       *http.Client
	logger       *logging.Logger
}

func (e *devserverExecutor) run(ctx context.Context, prompt string, opts RunOptions) (*Result, error) {
	taskID, err := e.submit(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	e.logger.Debugf("%s: submitted task %s", e.name, taskID)

	start := time.Now()
	polls := 0
	for {
		status, err := e.poll(ctx, taskID)
		if err != nil {
			return nil, err
		}
		polls++

		switch status.Status {
		case TaskCompleted:
			result := status.Result
			if result == nil {
				result = &Result{}
			}
			result.Duration = time.Since(start)
			// A zero exit code with an error set is contradictory; keep
			// the error and mark the run failed.
			if result.ExitCode == 0 && result.Error != "" {
				result.ExitCode = 1
			}
			if result.Cost == nil && result.TokenUsage != nil {
				result.Cost = Cost(result.TokenUsage, e.pricing)
			}
			e.logger.Debugf("%s: task %s completed after %d polls", e.name, taskID, polls)
			return result, nil

		case TaskFailed:
			return nil, &TaskFailedError{TaskID: taskID, Reason: status.Error}

		default:
			// queued, running, or anything else the server invents: wait.
			if elapsed := time.Since(start); elapsed >= e.maxPollTime {
				return nil, &PollTimeoutError{TaskID: taskID, Waited: elapsed}
			}
			if err := sleepCtx(ctx, e.pollInterval); err != nil {
				return nil, err
			}
		}
	}
}

func (e *devserverExecutor) submit(ctx context.Context, prompt string, opts RunOptions) (string, error) {
	body := submitRequest{
		Provider: e.name,
		Prompt:   prompt,
		Opts: submitOpts{
			OutputSchema: opts.OutputSchema,
			Sandbox:      opts.Sandbox,
			Cwd:          opts.Cwd,
			TimeoutMs:    opts.Timeout.Milliseconds(),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/run", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting task: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading submit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SubmitError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody, resp.StatusCode)}
	}

	var sr submitResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("parsing submit response: %w", err)
	}
	if sr.TaskID == "" {
		return "", &SubmitError{StatusCode: resp.StatusCode, Message: "no taskId in response"}
	}

	return sr.TaskID, nil
}

func (e *devserverExecutor) poll(ctx context.Context, taskID string) (*taskStatus, error) {
	url := e.baseURL + "/api/task/" + taskID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating poll request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading poll response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody, resp.StatusCode)}
	}

	var status taskStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("parsing poll response: %w", err)
	}

	return &status, nil
}
