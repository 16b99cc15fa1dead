package server

// State is the lifecycle state of a supervised server process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

// live reports whether a state has an OS process (and therefore a stdin
// channel) attached.
func (s State) live() bool {
	switch s {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}
