package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"

	"github.com/desertthunder/plsync/internal/shared"
)

// Client is the single choke point for remote API calls.
//
// Each call gets a bearer token, is paced by a token bucket, retried with jittered backoff on transport
// errors and non-2xx statuses other than 429, and guarded by a circuit breaker that opens after repeated
// network failures. A 429 is returned at once as a rate-limit error.
type Client struct {
	baseURL string
	tokens  TokenProvider
	retry   *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
}

type clientOptions struct {
	httpClient *http.Client
	logger     *log.Logger
	backoffMin time.Duration
	backoffMax time.Duration
}

// ClientOption configures a [Client].
type ClientOption func(*clientOptions)

// WithHTTPClient sets the underlying client. Its transport is wrapped with request pacing.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

func WithClientLogger(l *log.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithBackoff overrides the wait window between attempts.
func WithBackoff(min, max time.Duration) ClientOption {
	return func(o *clientOptions) { o.backoffMin, o.backoffMax = min, max }
}

// NewClient creates a Client from the [client] config section.
func NewClient(cfg shared.ClientConfig, tokens TokenProvider, opts ...ClientOption) *Client {
	o := clientOptions{
		logger:     shared.DiscardLogger(),
		backoffMin: cfg.BackoffMin(),
		backoffMax: cfg.BackoffMax(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.httpClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout()}
	}
	logger := shared.WithLogger(o.logger, "component", "client")

	retry := retryablehttp.NewClient()
	retry.HTTPClient = &http.Client{
		Timeout:   base.Timeout,
		Jar:       base.Jar,
		Transport: newPacedTransport(base.Transport, cfg.RequestsPerSecond, cfg.Burst),
	}
	retry.RetryMax = max(cfg.MaxAttempts-1, 0)
	retry.RetryWaitMin = o.backoffMin
	retry.RetryWaitMax = o.backoffMax
	retry.Backoff = flatJitterBackoff
	retry.CheckRetry = checkRetry
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retry.Logger = shared.NewLeveledLogger(logger)

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "spotify-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, shared.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		retry:   retry,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// flatJitterBackoff waits min plus a random share of max-min, independent of the attempt number.
func flatJitterBackoff(min, max time.Duration, _ int, _ *http.Response) time.Duration {
	return retryablehttp.LinearJitterBackoff(min, max, 0, nil)
}

// checkRetry retries transport errors and non-2xx statuses except 429.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return resp.StatusCode < 200 || resp.StatusCode > 299, nil
}

// Get is shorthand for a GET [Client.Request].
func (c *Client) Get(ctx context.Context, url string) (*APIResponse, error) {
	return c.Request(ctx, http.MethodGet, url, nil)
}

// Request performs an authenticated call. url is either absolute or relative to the configured base URL.
// A non-nil body is sent as JSON.
func (c *Client) Request(ctx context.Context, method, url string, body any) (*APIResponse, error) {
	token, err := c.tokens.AcquireValidToken(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrAuth) {
			return nil, err
		}
		return nil, shared.AuthError(err)
	}

	var payload any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request body: %w", shared.ErrInvalidInput, err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.resolve(url), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", shared.ErrInvalidInput, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.do(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &shared.APIError{Kind: shared.ErrNetwork, Message: "circuit open", Cause: err}
	}
	if err != nil {
		return nil, err
	}
	return res.(*APIResponse), nil
}

func (c *Client) do(req *retryablehttp.Request) (*APIResponse, error) {
	resp, err := c.retry.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &shared.APIError{Kind: shared.ErrNetwork, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &shared.APIError{Kind: shared.ErrNetwork, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("rate limited", "url", req.URL.String(), "retry_after", retryAfter)
		return nil, shared.RateLimitError(errorMessage(resp, body), retryAfter)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &shared.APIError{Kind: shared.ErrAuth, StatusCode: resp.StatusCode, Message: errorMessage(resp, body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, shared.NetworkError(resp.StatusCode, errorMessage(resp, body))
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header}, nil
	}
	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body, IsJSON: true}, nil
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "http://") {
		return url
	}
	return c.baseURL + "/" + strings.TrimLeft(url, "/")
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// errorMessage describes a failed response by its content type: compact JSON text, the status line for
// HTML pages, or the raw text otherwise. An empty result falls back to the status line.
func errorMessage(resp *http.Response, body []byte) string {
	status := fmt.Sprintf("%d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	ct := resp.Header.Get("Content-Type")

	switch {
	case isJSON(ct):
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err == nil && buf.Len() > 0 {
			return buf.String()
		}
	case strings.HasPrefix(ct, "text/html"):
		return status
	default:
		if text := strings.TrimSpace(string(body)); text != "" {
			return text
		}
	}
	return status
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
