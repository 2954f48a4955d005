// Package client provides the resilient request executor used against the
// travel-log API: bearer authentication, transient-network retries,
// Retry-After driven rate-limit waits, and fatal classification of every
// other non-2xx response.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/travel-map/pkg/logging"
	"github.com/Sternrassler/travel-map/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "travelmap_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport failures (dial, timeout, reset).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassFatalStatus represents every other non-2xx response.
	ErrorClassFatalStatus ErrorClass = "fatal_status"
)

// Client executes requests against the travel-log API.
// It is built once per run and never mutated afterwards.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger

	// sleep is replaced in tests to observe backoff durations.
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// Token is the bearer credential sent as "Authorization: Bearer <token>".
	Token string

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Transient network retries
	MaxNetworkAttempts int
	NetworkRetryDelay  time.Duration

	// RequestsPerSecond paces requests proactively; 0 disables pacing.
	RequestsPerSecond float64

	// Transport is the base round tripper (default: http.DefaultTransport).
	Transport http.RoundTripper
}

// DefaultConfig returns the default configuration for the given token.
func DefaultConfig(token string) Config {
	return Config{
		Token:              token,
		UserAgent:          "travel-map/0.1.0",
		Timeout:            30 * time.Second,
		MaxNetworkAttempts: 3,
		NetworkRetryDelay:  1 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingCredential
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxNetworkAttempts < 1 {
		return nil, fmt.Errorf("max_network_attempts must be >= 1 (got %d)", cfg.MaxNetworkAttempts)
	}

	if cfg.NetworkRetryDelay < 0 {
		return nil, fmt.Errorf("network_retry_delay must not be negative (got %s)", cfg.NetworkRetryDelay)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must not be negative (got %g)", cfg.RequestsPerSecond)
	}

	logger := logging.NewLogger("api-client")

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
				Base:   base,
			},
		},
		rateLimiter: ratelimit.NewTracker(cfg.RequestsPerSecond, logger),
		config:      cfg,
		logger:      logger,
		sleep:       sleepContext,
	}, nil
}

// Request describes one logical HTTP request. It is re-sent verbatim on every
// retry attempt; a fresh *http.Request is built from it each time.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Endpoint is a low-cardinality label for logs and metrics.
	Endpoint string
}

// NewGetRequest builds a GET descriptor.
func NewGetRequest(endpoint, rawURL string) Request {
	return Request{
		Method:   http.MethodGet,
		URL:      rawURL,
		Endpoint: endpoint,
	}
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range r.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

func (r Request) label() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	if u, err := url.Parse(r.URL); err == nil && u.Path != "" {
		return u.Path
	}
	return "unknown"
}

// networkError marks a failure that never produced a readable response.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// Execute performs one logical request and returns the body of the first 2xx
// response. Transport failures are retried up to MaxNetworkAttempts, 429
// responses are waited out for as long as the server asks, and every other
// failure is returned immediately.
func (c *Client) Execute(ctx context.Context, req Request) ([]byte, error) {
	if req.Endpoint == "" {
		req.Endpoint = req.label()
	}

	c.logger.Debug().
		Str("endpoint", req.Endpoint).
		Str("method", req.Method).
		Str("url", req.URL).
		Msg("Executing API request")

	return c.run(ctx, req)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	return c.Execute(ctx, NewGetRequest(endpoint, rawURL))
}

// attempt sends the request once. Transport failures come back as
// *networkError; any other error is fatal.
func (c *Client) attempt(ctx context.Context, req Request) (Outcome, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	httpReq, err := req.build(ctx)
	if err != nil {
		return Outcome{}, err
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(req.Endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(req.Endpoint, "network_error").Inc()
		return Outcome{}, &networkError{err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(req.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	var body []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return Outcome{}, &networkError{err: fmt.Errorf("read response body: %w", err)}
		}
	} else {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}

	outcome, err := Classify(resp.StatusCode, resp.Header, body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return outcome, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassRateLimit,
			Message:    "rate limited without usable retry-after",
			Err:        err,
		}
	}

	if outcome.Kind == OutcomeFatalStatus {
		errorsTotal.WithLabelValues(string(ErrorClassFatalStatus)).Inc()
		c.logger.Error().
			Str("endpoint", req.Endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(ErrorClassFatalStatus)).
			Msg("API request failed")
	}

	return outcome, nil
}

// isNetworkError reports whether err is a transport failure from attempt.
func isNetworkError(err error) bool {
	var netErr *networkError
	return errors.As(err, &netErr)
}

// RateLimitState returns the rate-limit history observed by this client.
func (c *Client) RateLimitState() ratelimit.State {
	return c.rateLimiter.GetState()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
