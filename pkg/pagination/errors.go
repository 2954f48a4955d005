package pagination

import (
	"errors"
	"fmt"
)

// ErrMissingData is wrapped by DecodeError when a page has no data array.
var ErrMissingData = errors.New("response has no data field")

// DecodeError reports a response body that could not be decoded.
type DecodeError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
