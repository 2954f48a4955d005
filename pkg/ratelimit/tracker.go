package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travelmap_rate_limited_total",
		Help: "Total number of 429 responses received from the upstream API",
	})

	rateLimitWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travelmap_rate_limit_wait_seconds_total",
		Help: "Total seconds spent waiting on Retry-After",
	})

	lastRetryAfterSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "travelmap_rate_limit_last_retry_after_seconds",
		Help: "Most recent Retry-After value received",
	})

	pacingWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "travelmap_pacing_waits_total",
		Help: "Total number of requests delayed by proactive pacing",
	})
)

// Tracker records 429 episodes and optionally paces outgoing requests.
// The zero pacing rate disables pacing; requests then go out as fast as the
// caller issues them.
type Tracker struct {
	mu     sync.Mutex
	state  State
	pacer  *rate.Limiter
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. requestsPerSecond <= 0 disables pacing.
func NewTracker(requestsPerSecond float64, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		logger: logger,
		now:    time.Now,
	}
	if requestsPerSecond > 0 {
		t.pacer = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return t
}

// Wait blocks until the next request may be sent under the pacing rate.
// Returns immediately when pacing is disabled.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.pacer == nil {
		return nil
	}

	reservation := t.pacer.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}

	pacingWaitsTotal.Inc()
	t.logger.Debug().Dur("delay", delay).Msg("Pacing request")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return fmt.Errorf("pacing wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RecordRateLimited records a 429 episode whose Retry-After has already been
// parsed, and returns the wait for convenience.
func (t *Tracker) RecordRateLimited(wait time.Duration) time.Duration {
	rateLimitedTotal.Inc()

	t.mu.Lock()
	t.state.Waits++
	t.state.TotalWait += wait
	t.state.LastRetryAfter = wait
	t.state.Last429At = t.now()
	waits := t.state.Waits
	t.mu.Unlock()

	rateLimitWaitSeconds.Add(wait.Seconds())
	lastRetryAfterSeconds.Set(wait.Seconds())

	t.logger.Warn().
		Dur("retry_after", wait).
		Int("waits", waits).
		Msgf("Ratelimited, waiting %d seconds", int(wait.Seconds()))

	return wait
}

// GetState returns a snapshot of the run's rate-limit history.
func (t *Tracker) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
