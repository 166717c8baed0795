package polling

import (
	"context"
	"errors"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.New("invalid polling configuration")

// ErrorClassifier determines whether a source failure should be retried.
// A failure that is not retryable ends the session immediately, the same way
// exhausting the attempts does.
type ErrorClassifier interface {
	// IsRetryable returns true if the failure is transient.
	IsRetryable(err error) bool
}

// ClassifierFunc adapts an ordinary function to the ErrorClassifier interface.
type ClassifierFunc func(err error) bool

// IsRetryable calls f(err).
func (f ClassifierFunc) IsRetryable(err error) bool {
	return f(err)
}

// RetryAll treats every failure as transient. It is the default classifier:
// only running out of attempts ends a session.
func RetryAll() ErrorClassifier {
	return ClassifierFunc(func(err error) bool {
		return err != nil
	})
}

// HTTPStatusClassifier classifies source failures by HTTP status code.
// It suits sources that refresh status from an HTTP endpoint, where a 404 or
// 401 will not heal by itself but a 503 will.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should be retried.
	// Defaults to 408, 429, 500, 502, 503, 504 if nil.
	RetryableStatuses []int
}

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// NewHTTPStatusClassifier creates an HTTPStatusClassifier with the default retryable codes.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		RetryableStatuses: defaultRetryableStatuses(),
	}
}

// IsRetryable implements ErrorClassifier for HTTP status codes.
// Errors without a status code (network failures and the like) are retryable.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A source-level timeout is transient; the session context is checked
	// separately before classification.
	if errors.Is(err, context.DeadlineExceeded) || pkgerrors.IsTimeout(err) {
		return true
	}
	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	statuses := c.RetryableStatuses
	if statuses == nil {
		statuses = defaultRetryableStatuses()
	}
	for _, s := range statuses {
		if s == statusCode {
			return true
		}
	}
	return false
}

func defaultRetryableStatuses() []int {
	return []int{408, 429, 500, 502, 503, 504}
}

// extractStatusCode returns the status code carried by err, or 0.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

// StatusCodeError wraps an error with an HTTP status code.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
//
// Example:
//
//	if resp.StatusCode != http.StatusOK {
//	    return nil, polling.NewStatusCodeError(resp.StatusCode, errors.New(resp.Status))
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}
