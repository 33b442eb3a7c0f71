package quarantine

// State is the position of one remediation run in the
// block → hold → unblock sequence.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateBlocking
	StateHolding
	StateUnblocking
	StateDone
	StateErrored
)

var stateNames = map[State]string{
	StateIdle:       "Idle",
	StateConnecting: "Connecting",
	StateBlocking:   "Blocking",
	StateHolding:    "Holding",
	StateUnblocking: "Unblocking",
	StateDone:       "Done",
	StateErrored:    "Errored",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether the state machine has finished.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored
}
