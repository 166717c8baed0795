package polling

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// failureEpisode counts failures for one run of the poll pipeline.
//
// A retry counter that only ever grows keeps escalating delays after the
// source has recovered. Instead the episode remembers the total at the last
// success and subtracts it, so the consecutive count restarts at 1 after
// every success.
type failureEpisode struct {
	total       int
	lastRecover int
}

// fail records a failure and returns the consecutive failure count.
func (e *failureEpisode) fail() int {
	e.total++
	return e.consecutive()
}

// recover marks a success delivered to the subscriber.
func (e *failureEpisode) recover() {
	e.lastRecover = e.total
}

func (e *failureEpisode) consecutive() int {
	return e.total - e.lastRecover
}

// strategyDelay returns the wait after the n-th consecutive failure (n >= 1).
func strategyDelay(n int, cfg *Config, logger *slog.Logger) time.Duration {
	switch cfg.Strategy {
	case BackoffExponential:
		return exponentialDelay(n, cfg.ExponentialUnit)
	case BackoffRandom:
		return randomDelay(cfg.RandomRange[0], cfg.RandomRange[1])
	case BackoffConsecutive:
		return constantDelay(cfg)
	default:
		logger.Warn("unsupported backoff strategy, falling back to consecutive",
			"strategy", cfg.Strategy.String())
		return constantDelay(cfg)
	}
}

// exponentialDelay returns unit * 2^(n-1), saturating at the largest duration.
func exponentialDelay(n int, unit time.Duration) time.Duration {
	shift := n - 1
	if shift < 0 {
		shift = 0
	}
	if shift >= 63 || unit > time.Duration(math.MaxInt64>>uint(shift)) {
		return time.Duration(math.MaxInt64)
	}
	return unit << uint(shift)
}

// randomDelay returns a uniformly distributed duration in [lo, hi).
// The upper bound is exclusive; lo is returned when the range is empty.
func randomDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}

func constantDelay(cfg *Config) time.Duration {
	if cfg.ConstantTime > 0 {
		return cfg.ConstantTime
	}
	return cfg.Interval
}
