package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/marcus/daybreak/internal/logging"
	"github.com/marcus/daybreak/internal/metrics"
)

// executor is the backend-specific execution strategy behind a Provider.
type executor interface {
	run(ctx context.Context, prompt string, opts RunOptions) (*Result, error)
}

// settings collects the tunables shared by all backend kinds. Zero values
// fall back to the package defaults in New.
type settings struct {
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration
	pollInterval time.Duration
	maxPollTime  time.Duration
	client       *http.Client
	runner       CommandRunner
	logger       *logging.Logger
	now          func() time.Time
}

// Option configures a Provider created by New.
type Option func(*settings)

// WithTimeout sets the default per-run timeout for local providers.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxRetries sets the retry budget for remote API providers.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.maxRetries = n }
}

// WithRetryDelay sets the base backoff delay for remote API providers.
func WithRetryDelay(d time.Duration) Option {
	return func(s *settings) { s.retryDelay = d }
}

// WithPollInterval sets the devserver status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) { s.pollInterval = d }
}

// WithMaxPollTime sets the devserver poll budget before giving up.
func WithMaxPollTime(d time.Duration) Option {
	return func(s *settings) { s.maxPollTime = d }
}

// WithHTTPClient overrides the HTTP client used by remote and devserver
// providers.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithRunner overrides the command runner used by local providers.
func WithRunner(r CommandRunner) Option {
	return func(s *settings) { s.runner = r }
}

// WithLogger overrides the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// withClock overrides the rate window clock. Test hook.
func withClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Provider executes prompts against one configured backend. It owns the
// rate-limit window for its descriptor; concurrent Run calls are safe.
type Provider struct {
	desc   Descriptor
	exec   executor
	window *rateWindow
	logger *logging.Logger
}

// New validates the descriptor and builds the executor for its kind.
// Configuration problems surface here as *ConfigError, before any backend
// work happens.
func New(desc Descriptor, opts ...Option) (*Provider, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	s := settings{
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		pollInterval: DefaultPollInterval,
		maxPollTime:  DefaultMaxPollTime,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 120 * time.Second}
	}
	if s.runner == nil {
		s.runner = &ExecRunner{}
	}
	if s.logger == nil {
		s.logger = logging.Component("provider").WithComponent(desc.Name)
	}

	p := &Provider{
		desc:   desc,
		window: newRateWindow(s.now),
		logger: s.logger,
	}

	switch desc.Kind {
	case KindLocal:
		p.exec = &localExecutor{
			command: desc.Command,
			args:    desc.Args,
			pricing: desc.Pricing,
			timeout: s.timeout,
			runner:  s.runner,
			logger:  s.logger,
		}
	case KindRemoteAPI:
		p.exec = &remoteExecutor{
			name:       desc.Name,
			baseURL:    desc.BaseURL,
			model:      desc.Model,
			apiKey:     desc.ResolveAPIKey(),
			pricing:    desc.Pricing,
			maxRetries: s.maxRetries,
			retryDelay: s.retryDelay,
			client:     s.client,
			logger:     s.logger,
		}
	case KindDevserver:
		p.exec = &devserverExecutor{
			name:         desc.Name,
			baseURL:      desc.DevserverURL,
			pricing:      desc.Pricing,
			pollInterval: s.pollInterval,
			maxPollTime:  s.maxPollTime,
			client:       s.client,
			logger:       s.logger,
		}
	default:
		return nil, &ConfigError{Provider: desc.Name, Field: "kind", Reason: fmt.Sprintf("unknown kind %q", desc.Kind)}
	}

	return p, nil
}

// Descriptor returns the descriptor this provider was built from.
func (p *Provider) Descriptor() Descriptor {
	return p.desc
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.desc.Name
}

// Run executes a single prompt. The rate window is checked before the
// backend is touched; a denied call costs nothing. Token usage reported by
// the backend is charged to the window afterwards.
func (p *Provider) Run(ctx context.Context, prompt string, opts RunOptions) (*Result, error) {
	if err := p.window.reserve(p.desc.RateLimits); err != nil {
		metrics.RecordRateLimited(p.desc.Name)
		p.logger.Warnf("rate limit window full: %v", err)
		return nil, err
	}

	metrics.ActiveRequests.Inc()
	defer metrics.ActiveRequests.Dec()

	start := time.Now()
	p.logger.Debugf("running prompt (%d bytes) via %s", len(prompt), p.desc.Kind)

	result, err := p.exec.run(ctx, prompt, opts)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveRun(p.desc.Name, string(p.desc.Kind), false, elapsed.Seconds())
		p.logger.Errorf("run failed after %s: %v", elapsed.Round(time.Millisecond), err)
		return nil, err
	}

	if result.Duration == 0 {
		result.Duration = elapsed
	}
	if result.TokenUsage != nil {
		p.window.spend(result.TokenUsage.Total())
		metrics.AddTokens(p.desc.Name, result.TokenUsage.Input, result.TokenUsage.Output)
	}
	metrics.ObserveRun(p.desc.Name, string(p.desc.Kind), result.IsSuccess(), elapsed.Seconds())

	p.logger.Infof("run finished in %s (exit %d)", elapsed.Round(time.Millisecond), result.ExitCode)
	return result, nil
}
