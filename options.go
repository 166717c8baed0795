package polling

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BackoffStrategy selects how long the poller waits after a failure before
// invoking the source again.
type BackoffStrategy int

const (
	// BackoffExponential waits 2^(n-1) * ExponentialUnit after the n-th consecutive failure.
	BackoffExponential BackoffStrategy = iota

	// BackoffRandom waits a uniformly random duration in [RandomRange[0], RandomRange[1]).
	BackoffRandom

	// BackoffConsecutive waits ConstantTime, or the polling interval when ConstantTime is unset.
	BackoffConsecutive
)

// String returns the configuration name of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffRandom:
		return "random"
	case BackoffConsecutive:
		return "consecutive"
	default:
		return fmt.Sprintf("BackoffStrategy(%d)", int(s))
	}
}

// ParseBackoffStrategy returns the strategy with the given name.
// Names are matched case-insensitively.
func ParseBackoffStrategy(name string) (BackoffStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exponential":
		return BackoffExponential, nil
	case "random":
		return BackoffRandom, nil
	case "consecutive":
		return BackoffConsecutive, nil
	default:
		return 0, fmt.Errorf("%w: unknown backoff strategy %q", ErrInvalidConfig, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s BackoffStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so the strategy can be
// loaded from JSON, YAML or environment based configuration.
func (s *BackoffStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseBackoffStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RetryEvent describes a failure the poller is about to back off from.
type RetryEvent struct {
	// Attempt is the number of consecutive failures, starting at 1.
	Attempt int

	// Delay is the wait before the source is invoked again.
	Delay time.Duration

	// Err is the failure returned by the source.
	Err error
}

// Config holds polling configuration.
type Config struct {
	// Logger for polling operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Visibility reports whether the host is active.
	// Default: AlwaysActive()
	Visibility Visibility

	// ErrorClassifier decides which failures are retried.
	// Default: RetryAll()
	ErrorClassifier ErrorClassifier

	// OnRetry is called before every backoff wait. Optional.
	OnRetry func(RetryEvent)

	// CircuitBreaker routes every invocation through a circuit breaker when set.
	// Default: nil (disabled)
	CircuitBreaker *CircuitBreakerConfig

	// Interval between the starts of two consecutive invocations. Required.
	Interval time.Duration

	// Attempts is how many consecutive failures are retried before the
	// session fails. A value of 0 fails on the first error.
	// Default: 9
	Attempts int

	// Strategy defines the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// ExponentialUnit is multiplied by 2^(n-1) for exponential backoff.
	// Default: 1 second
	ExponentialUnit time.Duration

	// RandomRange is the [min, max) range of random backoff delays.
	// Default: [1s, 10s]
	RandomRange [2]time.Duration

	// ConstantTime is the delay used by consecutive backoff. Zero means Interval.
	ConstantTime time.Duration

	// BackgroundPolling keeps polling while the host is inactive.
	// Default: false
	BackgroundPolling bool
}

// Option is a functional option for configuring a polling session.
type Option func(*Config)

// DefaultConfig returns polling configuration with the library defaults.
// Interval is left unset; Poll fills it in from its argument.
func DefaultConfig() *Config {
	return &Config{
		Attempts:        9,
		Strategy:        BackoffExponential,
		ExponentialUnit: time.Second,
		RandomRange:     [2]time.Duration{time.Second, 10 * time.Second},
		Logger:          slog.Default(),
		Visibility:      AlwaysActive(),
		ErrorClassifier: RetryAll(),
	}
}

// Validate reports whether the configuration can drive a session.
// Returned errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.Attempts < 0 {
		return fmt.Errorf("%w: attempts must not be negative, got %d", ErrInvalidConfig, c.Attempts)
	}
	if c.ExponentialUnit <= 0 {
		return fmt.Errorf("%w: exponential unit must be positive, got %s", ErrInvalidConfig, c.ExponentialUnit)
	}
	lo, hi := c.RandomRange[0], c.RandomRange[1]
	if lo < 0 || hi < lo {
		return fmt.Errorf("%w: random range [%s, %s] must satisfy 0 <= min <= max", ErrInvalidConfig, lo, hi)
	}
	if c.ConstantTime < 0 {
		return fmt.Errorf("%w: constant time must not be negative, got %s", ErrInvalidConfig, c.ConstantTime)
	}
	return nil
}

// WithAttempts sets how many consecutive failures are retried before the session fails.
//
// Example:
//
//	polling.WithAttempts(3) // the 4th failure in a row ends the session
func WithAttempts(attempts int) Option {
	return func(c *Config) {
		c.Attempts = attempts
	}
}

// WithExponentialBackoff selects exponential backoff with the given unit.
//
// Example:
//
//	polling.WithExponentialBackoff(500 * time.Millisecond)
//	// Delays: 500ms, 1s, 2s, 4s, ...
func WithExponentialBackoff(unit time.Duration) Option {
	return func(c *Config) {
		c.Strategy = BackoffExponential
		c.ExponentialUnit = unit
	}
}

// WithRandomBackoff selects random backoff in [min, max).
//
// Example:
//
//	polling.WithRandomBackoff(time.Second, 5*time.Second)
func WithRandomBackoff(min, max time.Duration) Option {
	return func(c *Config) {
		c.Strategy = BackoffRandom
		c.RandomRange = [2]time.Duration{min, max}
	}
}

// WithConsecutiveBackoff selects a constant delay between retries.
// Passing 0 reuses the polling interval.
//
// Example:
//
//	polling.WithConsecutiveBackoff(2 * time.Second)
//	// Delays: 2s, 2s, 2s, ...
func WithConsecutiveBackoff(constant time.Duration) Option {
	return func(c *Config) {
		c.Strategy = BackoffConsecutive
		c.ConstantTime = constant
	}
}

// WithStrategy sets the strategy without touching its parameters.
func WithStrategy(strategy BackoffStrategy) Option {
	return func(c *Config) {
		c.Strategy = strategy
	}
}

// WithBackgroundPolling keeps polling while the host is inactive.
func WithBackgroundPolling(enabled bool) Option {
	return func(c *Config) {
		c.BackgroundPolling = enabled
	}
}

// WithVisibility sets the visibility source that gates polling.
//
// Example:
//
//	focus := polling.NewToggle(true)
//	session, err := polling.Poll(ctx, src, time.Minute, polling.WithVisibility(focus))
//	...
//	focus.SetActive(false) // pauses polling
func WithVisibility(v Visibility) Option {
	return func(c *Config) {
		c.Visibility = v
	}
}

// WithLogger sets a custom logger for polling operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	polling.WithLogger(logger)
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithErrorClassifier sets the classifier that decides which failures are retried.
//
// Example:
//
//	polling.WithErrorClassifier(polling.NewHTTPStatusClassifier())
func WithErrorClassifier(classifier ErrorClassifier) Option {
	return func(c *Config) {
		c.ErrorClassifier = classifier
	}
}

// WithOnRetry registers a callback invoked before every backoff wait.
func WithOnRetry(fn func(RetryEvent)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// WithCircuitBreaker routes invocations through a circuit breaker.
// Rejected invocations count as ordinary failures.
//
// Example:
//
//	polling.WithCircuitBreaker(
//	    polling.WithBreakerTimeout(time.Minute),
//	    polling.WithBreakerMaxRequests(1),
//	)
func WithCircuitBreaker(opts ...CircuitBreakerOption) Option {
	return func(c *Config) {
		cb := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(cb)
		}
		c.CircuitBreaker = cb
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever an invocation fails in the closed state.
	// Default: trips after 5 consecutive failures
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Name identifies the breaker in logs and callbacks.
	// Default: "polling-source"
	Name string

	// Interval is the cyclic period of the closed state after which counts are cleared.
	// If 0, never clears.
	Interval time.Duration

	// Timeout is the period of the open state, after which the state becomes half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the number of invocations allowed through in the half-open state.
	// Default: 1
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring the circuit breaker.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means invocations flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the breaker is probing whether the source recovered.
	StateHalfOpen

	// StateOpen means invocations are rejected without calling the source.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithBreakerName sets the breaker name reported in logs and callbacks.
func WithBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithBreakerMaxRequests sets the number of probe invocations in half-open state.
func WithBreakerMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithBreakerInterval sets the interval for clearing counts in closed state.
func WithBreakerInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithBreakerTimeout sets how long the breaker stays open.
func WithBreakerTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	polling.WithReadyToTrip(func(counts polling.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 3
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "polling-source",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}
