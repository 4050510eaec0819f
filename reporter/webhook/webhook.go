// Package webhook implements a reporter that POSTs the run's finish
// event as JSON, with retry/backoff, using the same
// Config/New/Publish/StatusError shape as the other reporter adapters.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/types"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the webhook reporter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// payload is the JSON body POSTed to Config.URL.
type payload struct {
	RunID    string `json:"run_id"`
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Total    int    `json:"total"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Bailout  string `json:"bailout,omitempty"`
}

// Reporter publishes the run's FinishEvent via HTTP POST.
type Reporter struct {
	runID  string
	config Config
	client *http.Client
	logger *log.Logger
}

// New creates a webhook Reporter from cfg. runID tags every payload so
// a downstream consumer can correlate with log lines carrying the same
// run_id field. Returns an error if cfg.URL is empty.
func New(runID string, cfg Config, logger *log.Logger) (*Reporter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook reporter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Reporter{
		runID:  runID,
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Handle implements bus.Subscriber. Only FinishEvent triggers a
// publish; every other event is ignored.
func (r *Reporter) Handle(e types.Event) {
	ev, ok := e.(types.FinishEvent)
	if !ok {
		return
	}

	p := payload{
		RunID:    r.runID,
		OK:       ev.OK,
		ExitCode: ev.ExitCode,
		Total:    ev.Total,
		Passed:   ev.Passed,
		Failed:   ev.Failed,
		Bailout:  ev.Bailout,
	}

	if err := r.publish(context.Background(), p); err != nil {
		r.logger.Error("webhook reporter failed", map[string]any{"error": err.Error()})
	}
}

// publish sends the payload as a JSON POST request, retrying with
// exponential backoff on transient failures. 4xx responses are
// non-retriable and fail immediately.
func (r *Reporter) publish(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + r.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = r.doRequest(ctx, body)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("webhook: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

func (r *Reporter) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases the underlying HTTP client's idle connections.
func (r *Reporter) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
