package polling

import (
	"context"
	"errors"
	"log/slog"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// breakerSource routes source invocations through a circuit breaker.
// While the circuit is open the source is not called and the invocation
// fails with a jp-go-errors circuit breaker error, which the poller backs
// off from like any other failure.
type breakerSource[T any] struct {
	src    Source[T]
	cb     *gobreaker.CircuitBreaker[T]
	logger *slog.Logger
}

func newBreakerSource[T any](src Source[T], config *CircuitBreakerConfig, logger *slog.Logger) *breakerSource[T] {
	readyToTrip := config.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}

	b := &breakerSource[T]{src: src, logger: logger}
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return readyToTrip(convertGobreakerCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// An invocation abandoned by a stopping or restarting session is
			// not held against a closed circuit, but an abandoned half-open
			// trial is no proof of recovery and reopens it.
			if errors.Is(err, context.Canceled) {
				return b.cb.State() != gobreaker.StateHalfOpen
			}
			return false
		},
	}

	b.cb = gobreaker.NewCircuitBreaker[T](settings)
	return b
}

// Fetch implements Source.
func (b *breakerSource[T]) Fetch(ctx context.Context) (T, error) {
	var zero T

	value, err := b.cb.Execute(func() (T, error) {
		return b.src.Fetch(ctx)
	})
	if err == nil {
		return value, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		b.logger.Debug("circuit breaker is open, invocation rejected",
			"name", b.cb.Name())
		return zero, pkgerrors.NewCircuitBreakerError(
			"source invocation rejected",
			"fetch",
			"open",
			pkgerrors.WithCause(err),
			pkgerrors.WithCounts(b.errorCounts()),
		)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		b.logger.Debug("circuit breaker half-open, too many invocations",
			"name", b.cb.Name())
		return zero, pkgerrors.NewCircuitBreakerError(
			"too many invocations in half-open state",
			"fetch",
			"half-open",
			pkgerrors.WithCause(err),
			pkgerrors.WithCounts(b.errorCounts()),
		)
	}
	return zero, err
}

// State returns the current state of the circuit breaker.
func (b *breakerSource[T]) State() CircuitBreakerState {
	return convertGobreakerState(b.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (b *breakerSource[T]) Counts() CircuitBreakerCounts {
	return convertGobreakerCounts(b.cb.Counts())
}

func (b *breakerSource[T]) errorCounts() pkgerrors.CircuitCounts {
	counts := b.cb.Counts()
	return pkgerrors.CircuitCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func convertGobreakerCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// convertGobreakerState converts gobreaker.State to CircuitBreakerState.
func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
