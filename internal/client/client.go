package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge"
	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/infrastructure/resilience"
)

// ErrUnavailable is returned while the breaker refuses calls
var ErrUnavailable = errors.New("sandbox api unavailable")

// APIError is a non-2xx answer from the bridge API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sandbox api: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("sandbox api: %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options tune the client
type Options struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// RateLimit caps requests per second; zero means unlimited
	RateLimit    float64
	PollInterval time.Duration
	UserAgent    string
}

// DefaultOptions returns the CLI defaults
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		RetryCount:   2,
		RetryWait:    200 * time.Millisecond,
		RetryMaxWait: 2 * time.Second,
		PollInterval: 100 * time.Millisecond,
		UserAgent:    "sandboxctl/1.0",
	}
}

// Client talks to a running bridge server over HTTP
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	poll    time.Duration
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	// Only the pooled transport is borrowed; resty owns the retry policy
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")
	r.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		resty:   r,
		limiter: limiter,
		breaker: resilience.New("sandbox-api", resilience.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		poll: opts.PollInterval,
	}
}

// BreakerState exposes the breaker for status output
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

type errorBody struct {
	Error string `json:"error"`
}

// call performs one request. Transport failures and 5xx answers count
// against the breaker; 4xx answers do not.
func (c *Client) call(ctx context.Context, method, path string, body, out any, query map[string]string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var apiErr errorBody
	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		req := c.resty.R().SetContext(ctx).SetError(&apiErr)
		if body != nil {
			req.SetBody(body)
		}
		if out != nil {
			req.SetResult(out)
		}
		if len(query) > 0 {
			req.SetQueryParams(query)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		return err
	case resp.IsError():
		return &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return nil
}

// RunCode starts a run and returns its id
func (c *Client) RunCode(ctx context.Context, code string) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/runs", map[string]string{"code": code}, &out, nil); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// GetRun fetches one run
func (c *Client) GetRun(ctx context.Context, runID string) (execution.Run, error) {
	var run execution.Run
	err := c.call(ctx, http.MethodGet, "/runs/"+runID, nil, &run, nil)
	return run, err
}

// Run starts code and polls until the run leaves the running state or
// ctx ends. A run that is still running when ctx ends is returned with
// ctx's error.
func (c *Client) Run(ctx context.Context, code string) (execution.Run, error) {
	runID, err := c.RunCode(ctx, code)
	if err != nil {
		return execution.Run{}, err
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return run, err
		}
		if run.Status != execution.StatusRunning {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Console returns the message view; an empty mode uses the server default
func (c *Client) Console(ctx context.Context, mode execution.DisplayMode) (execution.DisplayMode, []execution.Entry, error) {
	var out struct {
		Mode    execution.DisplayMode `json:"mode"`
		Entries []execution.Entry     `json:"entries"`
	}
	var query map[string]string
	if mode != "" {
		query = map[string]string{"mode": string(mode)}
	}
	if err := c.call(ctx, http.MethodGet, "/console", nil, &out, query); err != nil {
		return "", nil, err
	}
	return out.Mode, out.Entries, nil
}

// SetMode changes the server's default display mode
func (c *Client) SetMode(ctx context.Context, mode execution.DisplayMode) error {
	return c.call(ctx, http.MethodPut, "/console/mode", map[string]string{"mode": string(mode)}, nil, nil)
}

// Clear removes every run
func (c *Client) Clear(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/console", nil, nil, nil)
}

// CurrentDialog returns the presented dialog, if any
func (c *Client) CurrentDialog(ctx context.Context) (*dialog.Pending, error) {
	var out struct {
		Dialog *dialog.Pending `json:"dialog"`
	}
	if err := c.call(ctx, http.MethodGet, "/dialogs/current", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Dialog, nil
}

// Resolve answers a dialog. A nil value with confirmed false cancels it.
func (c *Client) Resolve(ctx context.Context, dialogID string, ans dialog.Answer) error {
	return c.call(ctx, http.MethodPost, "/dialogs/"+dialogID+"/resolve", ans, nil, nil)
}

// Recycle replaces the server's realm and returns the new status
func (c *Client) Recycle(ctx context.Context) (bridge.Status, error) {
	var st bridge.Status
	err := c.call(ctx, http.MethodPost, "/sandbox/recycle", nil, &st, nil)
	return st, err
}

// Status returns the supervisor status
func (c *Client) Status(ctx context.Context) (bridge.Status, error) {
	var st bridge.Status
	err := c.call(ctx, http.MethodGet, "/sandbox/status", nil, &st, nil)
	return st, err
}
