package polling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Session is one running poll of a source.
// Values are delivered on Values until the session fails, is stopped, or its
// context is cancelled. A session never ends on its own while the source
// keeps succeeding.
type Session[T any] struct {
	src     Source[T]
	cfg     Config
	logger  *slog.Logger
	stats   *sessionStats
	breaker *breakerSource[T]
	values  chan T
	done    chan struct{}
	cancel  context.CancelFunc
	err     error
}

// Poll starts polling src every interval and returns the running session.
// The first invocation happens immediately when the host is active (or
// background polling is enabled). Poll returns an error wrapping
// ErrInvalidConfig if the configuration is invalid.
//
// Example:
//
//	session, err := polling.Poll(ctx, statusSource, 5*time.Second,
//	    polling.WithAttempts(5),
//	    polling.WithExponentialBackoff(time.Second),
//	    polling.WithVisibility(focus),
//	)
//	if err != nil {
//	    return err
//	}
//	defer session.Stop()
//
//	for status := range session.Values() {
//	    render(status)
//	}
//	return session.Err()
func Poll[T any](ctx context.Context, src Source[T], interval time.Duration, opts ...Option) (*Session[T], error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source must not be nil", ErrInvalidConfig)
	}

	config := DefaultConfig()
	config.Interval = interval
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Visibility == nil {
		config.Visibility = AlwaysActive()
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = RetryAll()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Session[T]{
		src:    src,
		cfg:    *config,
		logger: config.Logger,
		stats:  newSessionStats(),
		values: make(chan T),
		done:   make(chan struct{}),
	}
	if config.CircuitBreaker != nil {
		s.breaker = newBreakerSource(src, config.CircuitBreaker, config.Logger)
		s.src = s.breaker
	}

	ctx, s.cancel = context.WithCancel(ctx)

	// Subscribe before returning so no change after Poll is missed.
	changes, unsubscribe := s.cfg.Visibility.Subscribe()
	go s.run(ctx, changes, unsubscribe)

	return s, nil
}

// Values returns the channel of polled values. It is closed when the session ends.
func (s *Session[T]) Values() <-chan T {
	return s.values
}

// Done returns a channel that is closed when the session has ended.
func (s *Session[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the session. It returns nil while the
// session runs and after it was stopped or its context cancelled.
// The failure is returned exactly as the source produced it.
func (s *Session[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session ends and returns Err.
func (s *Session[T]) Wait() error {
	<-s.done
	return s.err
}

// Stop ends the session. When Stop returns the visibility subscription is
// released, pending timers are cancelled and no further values are delivered.
// Stop is safe to call more than once and from any goroutine.
func (s *Session[T]) Stop() {
	s.cancel()
	<-s.done
}

// Stats returns a snapshot of the session statistics.
func (s *Session[T]) Stats() SessionStats {
	return s.stats.snapshot()
}

// Health returns the health status of the session.
func (s *Session[T]) Health() HealthStatus {
	var breaker string
	if s.breaker != nil {
		breaker = s.breaker.State().String()
	}
	return healthFrom(s.stats.snapshot(), breaker)
}

// shouldRun reports whether the poll pipeline may run right now.
func (s *Session[T]) shouldRun() bool {
	return s.cfg.BackgroundPolling || s.cfg.Visibility.Active()
}

// run is the visibility gate. Every visibility change tears the pipeline
// down and, if polling is allowed, starts a fresh one.
func (s *Session[T]) run(ctx context.Context, changes <-chan struct{}, unsubscribe func()) {
	defer close(s.done)
	defer close(s.values)
	defer unsubscribe()

	for {
		if ctx.Err() != nil {
			s.stats.setPhase(PhaseStopped)
			return
		}

		inner, stopInner := context.WithCancel(ctx)
		var result chan error
		if s.shouldRun() {
			result = make(chan error, 1)
			p := &pipeline[T]{
				src:    s.src,
				cfg:    &s.cfg,
				logger: s.logger,
				stats:  s.stats,
				emit:   s.emit,
			}
			s.stats.recordActivation()
			go func() {
				result <- p.run(inner)
			}()
		} else {
			s.stats.setPhase(PhasePaused)
			s.logger.Debug("host inactive, polling paused")
		}

		select {
		case <-ctx.Done():
			stopInner()
			if result != nil {
				<-result
			}

		case <-changes:
			stopInner()
			if result != nil {
				// The pipeline may have failed just before the change arrived.
				if err := <-result; err != nil {
					s.err = err
					s.stats.setPhase(PhaseFailed)
					return
				}
			}
			s.logger.Debug("visibility changed, restarting polling",
				"active", s.cfg.Visibility.Active())

		case err := <-result:
			stopInner()
			if err != nil {
				s.err = err
				s.stats.setPhase(PhaseFailed)
				return
			}
		}
	}
}

// emit delivers value to the subscriber unless ctx is done first.
func (s *Session[T]) emit(ctx context.Context, value T) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.values <- value:
		return true
	case <-ctx.Done():
		return false
	}
}
