package session

// State represents the lifecycle state of an execution session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateFinished   State = "finished"
	StateFailed     State = "failed"
)

// Active reports whether a session in this state blocks a new run.
func (s State) Active() bool {
	return s == StateConnecting || s == StateRunning
}

func (s State) String() string { return string(s) }
