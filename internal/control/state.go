package control

// State is the control loop's lifecycle state.
type State int

const (
	StateInit State = iota
	StateRunning
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateIdle:
		return "IDLE"
	}
	return "UNKNOWN"
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Next returns the state that follows s once presence has been read.
// INIT only leaves through a successful Loop.Init.
func Next(s State, present bool) State {
	switch s {
	case StateRunning:
		if !present {
			return StateIdle
		}
	case StateIdle:
		if present {
			return StateRunning
		}
	}
	return s
}
