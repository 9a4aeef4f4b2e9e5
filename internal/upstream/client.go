package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without contacting the upstream while its circuit is open.
var ErrCircuitOpen = errors.New("upstream circuit is open")

// StatusError is a retryable HTTP status from an upstream.
type StatusError struct {
	Upstream   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d %s", e.Upstream, e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig holds configuration for an upstream client.
type ClientConfig struct {
	// Name identifies the upstream in logs and the registry (required).
	Name string

	// Timeout bounds each attempt (default: 10s).
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt (default: 2).
	MaxRetries uint64

	// InitialInterval is the first backoff delay (default: 100ms).
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay (default: 2s).
	MaxInterval time.Duration

	Breaker BreakerConfig

	// Registry receives the client and its outcomes (optional).
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for name unless overridden.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Client executes HTTP requests against one upstream.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cfg        ClientConfig
	registry   *Registry
	logger     zerolog.Logger
}

// NewClient creates a client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	d := DefaultClientConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = d.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = d.MaxInterval
	}
	cfg.Breaker = cfg.Breaker.withDefaults()

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		registry:   cfg.Registry,
		logger:     cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
	c.breaker = newBreaker(cfg.Name, cfg.Breaker, c.stateChanged)

	if c.registry != nil {
		c.registry.register(c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// State returns the current circuit state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the circuit counters of the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req through the circuit breaker and retries network errors,
// 5xx and 429 responses with exponential backoff. Other responses are
// returned as is. When retries run out on a bad status the last response
// is returned so the caller can read its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var last *http.Response
	attempt := func() error {
		if last != nil {
			drain(last)
			last = nil
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.send(ctx, req)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case errors.Is(err, errRequestBody):
			return backoff.Permanent(err)
		}
		last = resp
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("backoff", wait).Str("url", req.URL.Redacted()).Msg("retrying upstream request")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		c.recordFailure(err)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && last != nil {
			return last, nil
		}
		if last != nil {
			drain(last)
		}
		return nil, err
	}

	c.recordSuccess()
	return last, nil
}

var errRequestBody = errors.New("request body cannot be replayed")

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errRequestBody, err)
		}
		clone.Body = body
	}

	resp, err := c.httpClient.Do(clone)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return resp, &StatusError{Upstream: c.name, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) stateChanged(from, to gobreaker.State) {
	event := c.logger.Info()
	if to == gobreaker.StateOpen {
		event = c.logger.Warn()
	}
	event.Str("from", from.String()).Str("to", to.String()).Msg("upstream circuit changed state")

	if c.registry != nil {
		c.registry.recordTransition(c.name)
	}
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.recordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.recordFailure(c.name, err)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
