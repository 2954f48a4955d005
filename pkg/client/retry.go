package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "travelmap_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travelmap_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// attemptState is a state of the per-request retry machine.
//
//	Attempting ──2xx──────────────► Success
//	     │ ──transport error──────► TransientRetry ──(< max)──► Attempting
//	     │                                 └──────(= max)──► Fatal
//	     │ ──429 + Retry-After────► RateLimitWait ──────────► Attempting
//	     └ ──429 w/o header, other► Fatal
type attemptState int

const (
	stateAttempting attemptState = iota
	stateSuccess
	stateTransientRetry
	stateRateLimitWait
	stateFatal
)

func (s attemptState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateSuccess:
		return "success"
	case stateTransientRetry:
		return "transient_retry"
	case stateRateLimitWait:
		return "rate_limit_wait"
	case stateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// run drives one logical request through the retry state machine.
// Transient network failures and rate-limit waits use separate counters: a
// 429 episode never consumes the network attempt budget.
func (c *Client) run(ctx context.Context, req Request) ([]byte, error) {
	var (
		state           = stateAttempting
		networkFailures int
		rateLimitWaits  int
		wait            time.Duration
		body            []byte
		lastErr         error
	)

	maxAttempts := c.config.MaxNetworkAttempts

	for {
		c.logger.Trace().Stringer("state", state).Str("endpoint", req.Endpoint).Msg("Retry state")

		switch state {
		case stateAttempting:
			outcome, err := c.attempt(ctx, req)
			switch {
			case err != nil && isNetworkError(err) && ctx.Err() != nil:
				lastErr = fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
				state = stateFatal
			case err != nil && isNetworkError(err):
				networkFailures++
				lastErr = err
				state = stateTransientRetry
			case err != nil:
				lastErr = err
				state = stateFatal
			case outcome.Kind == OutcomeSuccess:
				body = outcome.Body
				state = stateSuccess
			case outcome.Kind == OutcomeRateLimited:
				wait = c.rateLimiter.RecordRateLimited(outcome.RetryAfter)
				state = stateRateLimitWait
			default:
				lastErr = &APIError{
					StatusCode: outcome.StatusCode,
					ErrorClass: ErrorClassFatalStatus,
					Message:    fmt.Sprintf("Unexpected status: %d", outcome.StatusCode),
				}
				state = stateFatal
			}

		case stateTransientRetry:
			c.logger.Warn().
				Err(lastErr).
				Str("endpoint", req.Endpoint).
				Int("attempt", networkFailures).
				Int("max_attempts", maxAttempts).
				Msgf("Error during request after attempt %d/%d", networkFailures, maxAttempts)

			if networkFailures >= maxAttempts {
				retryExhaustedTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
				c.logger.Error().
					Str("endpoint", req.Endpoint).
					Int("max_attempts", maxAttempts).
					Msg("Retry attempts exhausted")
				lastErr = fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
				state = stateFatal
				continue
			}

			retriesTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			retryBackoffSeconds.WithLabelValues(string(ErrorClassNetwork)).Observe(c.config.NetworkRetryDelay.Seconds())

			if err := c.sleep(ctx, c.config.NetworkRetryDelay); err != nil {
				lastErr = err
				state = stateFatal
				continue
			}
			state = stateAttempting

		case stateRateLimitWait:
			rateLimitWaits++
			retriesTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			retryBackoffSeconds.WithLabelValues(string(ErrorClassRateLimit)).Observe(wait.Seconds())

			c.logger.Debug().
				Str("endpoint", req.Endpoint).
				Int("wait", rateLimitWaits).
				Dur("backoff", wait).
				Msg("Waiting out rate limit")

			if err := c.sleep(ctx, wait); err != nil {
				lastErr = err
				state = stateFatal
				continue
			}
			state = stateAttempting

		case stateSuccess:
			if networkFailures > 0 || rateLimitWaits > 0 {
				c.logger.Info().
					Str("endpoint", req.Endpoint).
					Int("network_failures", networkFailures).
					Int("rate_limit_waits", rateLimitWaits).
					Msg("Request succeeded after retry")
			}
			return body, nil

		case stateFatal:
			return nil, lastErr
		}
	}
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
