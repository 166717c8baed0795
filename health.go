package polling

// HealthStatus summarizes a polling session for health endpoints.
type HealthStatus struct {
	// Healthy is false once the session failed or while the source keeps failing.
	Healthy bool `json:"healthy"`

	// Status is the session phase ("polling", "backing-off", "paused", "stopped", "failed").
	Status string `json:"status"`

	// Breaker is the circuit breaker state, empty when no breaker is configured.
	Breaker string `json:"breaker,omitempty"`

	// Invocations is the number of calls to the source.
	Invocations int64 `json:"invocations"`

	// Successes is the number of values delivered.
	Successes int64 `json:"successes"`

	// Failures is the number of failed invocations.
	Failures int64 `json:"failures"`

	// ConsecutiveFailures is the number of failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// healthFrom derives a HealthStatus from a stats snapshot and breaker state.
func healthFrom(stats SessionStats, breaker string) HealthStatus {
	healthy := true
	switch stats.Phase {
	case PhaseFailed:
		healthy = false
	case PhasePolling, PhaseBackingOff:
		// Degraded but recovering.
		healthy = stats.ConsecutiveFailures <= 1
	}
	if breaker == StateOpen.String() {
		healthy = false
	}

	return HealthStatus{
		Healthy:             healthy,
		Status:              string(stats.Phase),
		Breaker:             breaker,
		Invocations:         stats.Invocations,
		Successes:           stats.Successes,
		Failures:            stats.Failures,
		ConsecutiveFailures: stats.ConsecutiveFailures,
	}
}
