package controller

// State is the lifecycle phase of a ScaleController.
type State int32

const (
	// StateReconciling is the initial state: the active replica count is being applied.
	StateReconciling State = iota
	// StateIdle means the workload was scaled up and the controller waits for termination.
	StateIdle
	// StateTerminating means the scale-down was requested and is being confirmed.
	StateTerminating
	// StateTerminated means the shutdown sequence has finished, successfully or not.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReconciling:
		return "Reconciling"
	case StateIdle:
		return "Idle"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
