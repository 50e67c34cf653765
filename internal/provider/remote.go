package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/marcus/daybreak/internal/logging"
	"github.com/marcus/daybreak/internal/metrics"
)

const (
	// DefaultMaxRetries bounds the remote request loop.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for the linear backoff used when a
	// 429 carries no Retry-After header.
	DefaultRetryDelay = time.Second
)

// chatRequest is the OpenAI-compatible completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// errorBody is the error envelope most OpenAI-compatible servers return on
// non-2xx responses.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// remoteExecutor posts to {baseURL}/v1/chat/completions with bounded retries.
// Rate-limit responses honor Retry-After when present and non-zero, otherwise
// back off linearly. Exhausted attempts surface as a Result with exitCode 1,
// never as a returned error; callers must not crash on backend flakiness.
type remoteExecutor struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	pricing    *Pricing
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *logging.Logger
}

func (e *remoteExecutor) run(ctx context.Context, prompt string, opts RunOptions) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body := chatRequest{
		Model:    e.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if opts.OutputSchema != nil {
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: "response", Schema: opts.OutputSchema},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		status, header, respBody, err := e.post(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			e.logger.Warnf("%s: request failed (attempt %d/%d): %v", e.name, attempt+1, e.maxRetries, err)
			if attempt < e.maxRetries-1 {
				metrics.RecordRetry(e.name)
				if err := sleepCtx(ctx, e.retryDelay); err != nil {
					return nil, err
				}
			}
			continue
		}

		switch {
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w (HTTP 429)", ErrRateLimited)
			if attempt < e.maxRetries-1 {
				delay := retryAfter(header)
				if delay <= 0 {
					delay = e.retryDelay * time.Duration(attempt+1)
				}
				e.logger.Warnf("%s: rate limited, retrying in %s", e.name, delay)
				metrics.RecordRetry(e.name)
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue

		case status < 200 || status >= 300:
			lastErr = &StatusError{StatusCode: status, Message: apiErrorMessage(respBody, status)}
			e.logger.Warnf("%s: %v (attempt %d/%d)", e.name, lastErr, attempt+1, e.maxRetries)
			continue
		}

		var resp chatResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			lastErr = fmt.Errorf("parsing response: %w", err)
			continue
		}
		if resp.Error != nil {
			lastErr = &StatusError{StatusCode: status, Message: resp.Error.Message}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no completion returned")
			continue
		}

		raw := resp.Choices[0].Message.Content
		usage := &TokenUsage{Input: resp.Usage.PromptTokens, Output: resp.Usage.CompletionTokens}
		pricing := e.pricing
		if pricing == nil {
			pricing = DefaultPricing(e.model)
		}

		return &Result{
			Raw:        raw,
			Parsed:     ParseOutput(raw),
			ExitCode:   0,
			TokenUsage: usage,
			Cost:       Cost(usage, pricing),
			Duration:   time.Since(start),
		}, nil
	}

	errMsg := "request failed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return &Result{
		ExitCode: 1,
		Error:    errMsg,
		Duration: time.Since(start),
	}, nil
}

func (e *remoteExecutor) post(ctx context.Context, payload []byte) (int, http.Header, []byte, error) {
	url := e.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, resp.Header, body, nil
}

// retryAfter parses the Retry-After header in seconds. Returns 0 when the
// header is absent or unusable.
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// apiErrorMessage pulls error.message out of a non-2xx body, falling back to
// the HTTP status text.
func apiErrorMessage(body []byte, status int) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	return http.StatusText(status)
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
