package polling

import (
	"sync"
	"time"
)

// Phase describes what a session is doing.
type Phase string

const (
	// PhasePolling means the source is invoked on every interval, or is being
	// invoked again after a backoff wait.
	PhasePolling Phase = "polling"

	// PhaseBackingOff means the session is waiting out a backoff delay.
	PhaseBackingOff Phase = "backing-off"

	// PhasePaused means the host is inactive and polling is suspended.
	PhasePaused Phase = "paused"

	// PhaseStopped means the session was stopped by its owner.
	PhaseStopped Phase = "stopped"

	// PhaseFailed means the session ended with a terminal failure.
	PhaseFailed Phase = "failed"
)

// sessionStats tracks session statistics.
type sessionStats struct {
	mu                  sync.RWMutex
	phase               Phase
	activations         int64
	invocations         int64
	successes           int64
	failures            int64
	retries             int64
	consecutiveFailures int
	lastInvocationTime  time.Time
	lastSuccessTime     time.Time
	lastError           error
}

func newSessionStats() *sessionStats {
	return &sessionStats{phase: PhasePaused}
}

func (s *sessionStats) setPhase(phase Phase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *sessionStats) recordActivation() {
	s.mu.Lock()
	s.activations++
	s.consecutiveFailures = 0
	s.phase = PhasePolling
	s.mu.Unlock()
}

func (s *sessionStats) recordInvocation() {
	s.mu.Lock()
	s.invocations++
	s.lastInvocationTime = time.Now()
	s.phase = PhasePolling
	s.mu.Unlock()
}

func (s *sessionStats) recordSuccess() {
	s.mu.Lock()
	s.successes++
	s.consecutiveFailures = 0
	s.lastSuccessTime = time.Now()
	s.phase = PhasePolling
	s.mu.Unlock()
}

func (s *sessionStats) recordFailure(err error, consecutive int) {
	s.mu.Lock()
	s.failures++
	s.consecutiveFailures = consecutive
	s.lastError = err
	s.mu.Unlock()
}

func (s *sessionStats) recordRetry() {
	s.mu.Lock()
	s.retries++
	s.phase = PhaseBackingOff
	s.mu.Unlock()
}

// SessionStats holds statistics about a polling session.
type SessionStats struct {
	// LastInvocationTime is when the source was last invoked.
	LastInvocationTime time.Time

	// LastSuccessTime is when a value was last delivered.
	LastSuccessTime time.Time

	// LastError is the most recent failure, if any.
	LastError error

	// Phase is what the session is doing now.
	Phase Phase

	// Activations counts how often the poll pipeline was started, including
	// the first start and every restart after a visibility change.
	Activations int64

	// Invocations is the number of calls to the source.
	Invocations int64

	// Successes is the number of values delivered.
	Successes int64

	// Failures is the number of failed invocations.
	Failures int64

	// Retries is the number of backoff waits scheduled.
	Retries int64

	// ConsecutiveFailures is the number of failures since the last success.
	ConsecutiveFailures int
}

func (s *sessionStats) snapshot() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionStats{
		LastInvocationTime:  s.lastInvocationTime,
		LastSuccessTime:     s.lastSuccessTime,
		LastError:           s.lastError,
		Phase:               s.phase,
		Activations:         s.activations,
		Invocations:         s.invocations,
		Successes:           s.successes,
		Failures:            s.failures,
		Retries:             s.retries,
		ConsecutiveFailures: s.consecutiveFailures,
	}
}
