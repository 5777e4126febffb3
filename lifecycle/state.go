// Package lifecycle implements the Lifecycle Supervisor (spec §4.3): an
// orderly, timeout-bounded transition from INITIALIZING to READY for each
// component, deadlock detection/mitigation on the dependency graph, and a
// sweep that force-fails operations stuck past their deadline.
package lifecycle

// State enumerates a component's position in the lifecycle state machine.
type State string

const (
	StateUnknown      State = "UNKNOWN"
	StateInitializing State = "INITIALIZING"
	StateReady        State = "READY"
	StateDegraded     State = "DEGRADED"
	StateFailed       State = "FAILED"
	StateStopping     State = "STOPPING"
	StateRestarting   State = "RESTARTING"
)

// validTransitions enumerates the state machine's edges (spec §4.3
// diagram). A transition not listed here is rejected by Supervisor, except
// the operation-timeout failure that Supervisor.Sweep forces.
var validTransitions = map[State]map[State]bool{
	StateUnknown:      {StateInitializing: true},
	StateInitializing: {StateReady: true, StateFailed: true, StateDegraded: true},
	StateReady:        {StateDegraded: true, StateStopping: true},
	StateDegraded:     {StateReady: true, StateStopping: true, StateFailed: true},
	StateStopping:     {StateRestarting: true, StateUnknown: true},
	StateRestarting:   {StateReady: true, StateFailed: true},
	StateFailed:       {StateInitializing: true},
}

func canTransition(from, to State) bool {
	edges, ok := validTransitions[from]
	return ok && edges[to]
}
