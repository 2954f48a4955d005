package client

import (
	"net/http"
	"time"

	"github.com/Sternrassler/travel-map/pkg/ratelimit"
)

// OutcomeKind tags the classification of a single HTTP response.
type OutcomeKind int

const (
	// OutcomeSuccess is any 2xx response.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeRateLimited is a 429 response with a usable Retry-After header.
	OutcomeRateLimited

	// OutcomeFatalStatus is any other non-2xx response.
	OutcomeFatalStatus
)

// String returns the metric/log label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFatalStatus:
		return "fatal_status"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one attempt that reached the server.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

// Classify derives an Outcome from status code and headers only; body is
// carried through untouched for successful responses.
// A 429 without a usable Retry-After header is returned as an error.
func Classify(statusCode int, headers http.Header, body []byte) (Outcome, error) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return Outcome{Kind: OutcomeSuccess, StatusCode: statusCode, Body: body}, nil

	case statusCode == http.StatusTooManyRequests:
		wait, err := ratelimit.ParseRetryAfter(headers)
		if err != nil {
			return Outcome{Kind: OutcomeRateLimited, StatusCode: statusCode}, err
		}
		return Outcome{Kind: OutcomeRateLimited, StatusCode: statusCode, RetryAfter: wait}, nil

	default:
		return Outcome{Kind: OutcomeFatalStatus, StatusCode: statusCode}, nil
	}
}
