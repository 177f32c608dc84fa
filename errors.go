package main

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrClickRejected   = errors.New("click rejected")
	ErrFieldMismatch   = errors.New("field value mismatch")
	ErrAPI             = errors.New("commerce api error")
	ErrOrderNotFound   = errors.New("order not found")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrAuthTimeout     = errors.New("authentication timed out")
	ErrAborted         = errors.New("aborted")
	ErrNoTrackingValue = errors.New("no tracking value")
)

// APIError describes a non-2xx response from the commerce API.
type APIError struct {
	Status int
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, body)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Kind returns a short label used in logs and outcome messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrElementNotFound):
		return "element_not_found"
	case errors.Is(err, ErrClickRejected):
		return "click_rejected"
	case errors.Is(err, ErrFieldMismatch):
		return "field_mismatch"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrAPI):
		return "api_error"
	case errors.Is(err, ErrAuthTimeout):
		return "auth_timeout"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrNoTrackingValue):
		return "no_tracking_value"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
