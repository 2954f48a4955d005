// Package ratelimit implements handling of upstream HTTP 429 responses.
// It parses the mandatory Retry-After header, keeps an in-process record of
// rate-limit episodes for the current run, and optionally paces requests
// before they are sent.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderRetryAfter is the header a 429 response must carry (whole seconds).
const HeaderRetryAfter = "Retry-After"

var (
	// ErrMissingRetryAfter is returned when a 429 response has no Retry-After header.
	// A malformed rate-limit response is unrecoverable; it is never retried blindly.
	ErrMissingRetryAfter = errors.New("got 429 without retry-after header")

	// ErrInvalidRetryAfter is returned when Retry-After is not a non-negative integer.
	ErrInvalidRetryAfter = errors.New("invalid retry-after header")
)

// maxRetryAfterSeconds is the largest wait a time.Duration can hold.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter extracts the wait duration from a 429 response's headers.
// Only the delta-seconds form is accepted.
func ParseRetryAfter(headers http.Header) (time.Duration, error) {
	raw := strings.TrimSpace(headers.Get(HeaderRetryAfter))
	if raw == "" {
		return 0, ErrMissingRetryAfter
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidRetryAfter, raw, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidRetryAfter, raw)
	}
	if int64(seconds) > maxRetryAfterSeconds {
		return 0, fmt.Errorf("%w: %q overflows a duration", ErrInvalidRetryAfter, raw)
	}

	return time.Duration(seconds) * time.Second, nil
}

// State is the rate-limit history of the current run.
type State struct {
	// Waits is the number of 429 responses that were waited out.
	Waits int `json:"waits"`

	// TotalWait is the sum of all Retry-After durations honoured so far.
	TotalWait time.Duration `json:"total_wait"`

	// LastRetryAfter is the most recent Retry-After value.
	LastRetryAfter time.Duration `json:"last_retry_after"`

	// Last429At is when the most recent 429 was observed.
	Last429At time.Time `json:"last_429_at"`
}

// IsThrottled reports whether a 429 has been seen at all during the run.
func (s State) IsThrottled() bool {
	return s.Waits > 0
}

// ResumeAt returns the earliest time the upstream is expected to accept requests again.
// Returns the zero time if no 429 has been seen.
func (s State) ResumeAt() time.Time {
	if s.Last429At.IsZero() {
		return time.Time{}
	}
	return s.Last429At.Add(s.LastRetryAfter)
}
