package polling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// pipeline is one activation of the poll loop and its backoff controller.
// The gate starts a new pipeline on every visibility change, so failure
// counters never leak from one activation into the next.
type pipeline[T any] struct {
	src     Source[T]
	cfg     *Config
	logger  *slog.Logger
	stats   *sessionStats
	emit    func(ctx context.Context, value T) bool
	episode failureEpisode
	lastErr error
}

// run polls until ctx is done or a failure ends the session.
// It returns the terminal failure, or nil when ctx was cancelled first. A
// failure that was already terminal is returned even if ctx is cancelled
// while it is being reported.
func (p *pipeline[T]) run(ctx context.Context) error {
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := p.loop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.lastErr = err
		consecutive := p.episode.consecutive() + 1
		p.stats.recordFailure(err, consecutive)

		if !p.cfg.ErrorClassifier.IsRetryable(err) {
			p.logger.Warn("non-retryable source failure, giving up",
				"error", err,
				"consecutive_failures", consecutive)
			return err
		}
		return retry.RetryableError(err)
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// backoff counts the failure that triggered it and decides whether and how
// long to wait before the loop resumes.
func (p *pipeline[T]) backoff() retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		n := p.episode.fail()
		if n > p.cfg.Attempts {
			p.logger.Warn("polling failed after retries",
				"attempts", p.cfg.Attempts,
				"consecutive_failures", n,
				"error", p.lastErr)
			return 0, true
		}

		delay := strategyDelay(n, p.cfg, p.logger)
		p.stats.recordRetry()

		p.logger.Debug("source failed, backing off",
			"attempt", n,
			"delay", delay,
			"strategy", p.cfg.Strategy.String(),
			"error", p.lastErr)

		if p.cfg.OnRetry != nil {
			p.cfg.OnRetry(RetryEvent{Attempt: n, Delay: delay, Err: p.lastErr})
		}
		return delay, false
	})
}

// loop invokes the source immediately and then once per interval, measured
// from the start of the previous invocation. It returns the first failure,
// or ctx.Err() once ctx is done.
func (p *pipeline[T]) loop(ctx context.Context) error {
	for {
		started := time.Now()

		value, err := p.invoke(ctx)
		if err != nil {
			return err
		}
		if !p.emit(ctx, value) {
			return ctx.Err()
		}

		if n := p.episode.consecutive(); n > 0 {
			p.logger.Info("source recovered after failures",
				"consecutive_failures", n)
		}
		p.episode.recover()
		p.stats.recordSuccess()

		// A source slower than the interval is invoked again right away.
		wait := p.cfg.Interval - time.Since(started)
		if wait <= 0 {
			continue
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

type fetchResult[T any] struct {
	value T
	err   error
}

// invoke calls the source on its own goroutine so that a source ignoring
// ctx cannot hold up a restart or Stop. A late result is dropped.
func (p *pipeline[T]) invoke(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	p.stats.recordInvocation()

	done := make(chan fetchResult[T], 1)
	go func() {
		value, err := p.src.Fetch(ctx)
		done <- fetchResult[T]{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
