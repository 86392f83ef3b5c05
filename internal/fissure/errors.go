// Package fissure provides an HTTP client for the fissure long-poll API,
// the wire types it returns, and the query construction for filter criteria.
package fissure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, fissure.ErrServerError) to check.
var (
	ErrBadRequest        = errors.New("fissure: bad request")
	ErrNotFound          = errors.New("fissure: not found")
	ErrThrottled         = errors.New("fissure: throttled")
	ErrServerError       = errors.New("fissure: server error")
	ErrUnexpectedStatus  = errors.New("fissure: unexpected status")
	ErrMalformedResponse = errors.New("fissure: malformed response")
	ErrTransport         = errors.New("fissure: transport failure")
)

// APIError wraps a sentinel error with the HTTP status code and the
// response body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fissure: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}

// IsCanceled reports whether err stems from a canceled request context.
// A canceled request is never an error condition for the caller: it means
// the session that issued it has been superseded or torn down.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
