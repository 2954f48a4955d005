package ratelimit

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		expected time.Duration
		wantErr  error
	}{
		{
			name:     "whole seconds",
			value:    "2",
			set:      true,
			expected: 2 * time.Second,
		},
		{
			name:     "zero seconds",
			value:    "0",
			set:      true,
			expected: 0,
		},
		{
			name:     "surrounding whitespace",
			value:    " 30 ",
			set:      true,
			expected: 30 * time.Second,
		},
		{
			name:    "header missing",
			set:     false,
			wantErr: ErrMissingRetryAfter,
		},
		{
			name:    "header empty",
			value:   "",
			set:     true,
			wantErr: ErrMissingRetryAfter,
		},
		{
			name:    "http date is not accepted",
			value:   "Wed, 21 Oct 2015 07:28:00 GMT",
			set:     true,
			wantErr: ErrInvalidRetryAfter,
		},
		{
			name:    "fractional seconds",
			value:   "1.5",
			set:     true,
			wantErr: ErrInvalidRetryAfter,
		},
		{
			name:    "negative seconds",
			value:   "-3",
			set:     true,
			wantErr: ErrInvalidRetryAfter,
		},
		{
			name:     "largest representable wait",
			value:    "9223372036",
			set:      true,
			expected: 9223372036 * time.Second,
		},
		{
			name:    "wait overflows duration",
			value:   "10000000000",
			set:     true,
			wantErr: ErrInvalidRetryAfter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.set {
				headers.Set(HeaderRetryAfter, tt.value)
			}

			got, err := ParseRetryAfter(headers)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRetryAfter() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRetryAfter() unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParseRetryAfter() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsThrottled(t *testing.T) {
	if (State{}).IsThrottled() {
		t.Error("empty state should not be throttled")
	}
	if !(State{Waits: 1}).IsThrottled() {
		t.Error("state with one wait should be throttled")
	}
}

func TestState_ResumeAt(t *testing.T) {
	if !(State{}).ResumeAt().IsZero() {
		t.Error("ResumeAt() of empty state should be zero")
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := State{Last429At: at, LastRetryAfter: 5 * time.Second}
	want := at.Add(5 * time.Second)
	if got := s.ResumeAt(); !got.Equal(want) {
		t.Errorf("ResumeAt() = %v, want %v", got, want)
	}
}
