// Package polling runs a source operation on a fixed interval, pauses while the
// host is not visible, and recovers from failures with a configurable backoff
// before giving up. It uses go-retry for the retry driver, gobreaker for the
// optional circuit breaker and jp-go-errors for standardized error handling.
package polling

import (
	"context"
)

// Source is the operation polled on every tick.
// Each call to Fetch produces one value or one failure. Fetch should honor
// ctx cancellation; when it does not, its late result is discarded.
//
// Example:
//
//	type StatusSource struct {
//	    client *http.Client
//	    url    string
//	}
//
//	func (s *StatusSource) Fetch(ctx context.Context) (*Status, error) {
//	    req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
//	    if err != nil {
//	        return nil, err
//	    }
//	    ...
//	}
type Source[T any] interface {
	Fetch(ctx context.Context) (T, error)
}

// SourceFunc adapts an ordinary function to the Source interface.
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Fetch calls f(ctx).
func (f SourceFunc[T]) Fetch(ctx context.Context) (T, error) {
	return f(ctx)
}
