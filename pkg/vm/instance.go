package vm

// InstanceState is the lifecycle state of one microVM instance.
type InstanceState int

const (
	StateUninitialized InstanceState = iota
	StateStarting
	StateRunning
	StateExited
	StateFailed
)

func (s InstanceState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InstanceInfo identifies one microVM instance and tracks its state.
type InstanceInfo struct {
	ID    string        `json:"id"`
	State InstanceState `json:"state"`
}
