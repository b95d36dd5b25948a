// Package lifecycle runs the insight-auth process through a validated
// start/stop state machine and reports its health.
//
// The lifecycle flow for a healthy service is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may transition to Failed. Both terminal states
// may transition back to Starting for restart.
//
// Lifecycle operations create OpenTelemetry spans under the scope
// "github.com/StricklySoft/insight-auth/pkg/lifecycle".
package lifecycle

// State is the lifecycle state of a [Service]. The zero value is not a
// valid state; services start in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is set while the OnStart hook runs.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] can
	// succeed.
	StateRunning State = "running"

	// StateStopping is set while the OnStop hook runs.
	StateStopping State = "stopping"

	// StateStopped is terminal after a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed is terminal after a hook error.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is [StateStopped] or [StateFailed].
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Failed, Stopping
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateFailed, StateStopping},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether moving from one state to another is
// allowed. Same-state transitions are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
