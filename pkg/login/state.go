package login

// State is the position of a login attempt in its state machine:
//
//	Idle → Classifying → AwaitingKey → Verifying → Completed
//
// AwaitingKey is only entered by the federated flow. Any non-terminal state
// may move straight to Completed when the attempt is refused, fails or
// times out.
type State string

const (
	StateIdle        State = "idle"
	StateClassifying State = "classifying"
	StateAwaitingKey State = "awaiting_key"
	StateVerifying   State = "verifying"
	StateCompleted   State = "completed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateClassifying, StateAwaitingKey, StateVerifying, StateCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Completed.
func (s State) IsTerminal() bool {
	return s == StateCompleted
}

// Transition matrix:
//
//	Idle        → Classifying
//	Classifying → AwaitingKey, Verifying, Completed
//	AwaitingKey → Verifying, Completed
//	Verifying   → Completed
//	Completed   → (none)
var validTransitions = map[State][]State{
	StateIdle:        {StateClassifying},
	StateClassifying: {StateAwaitingKey, StateVerifying, StateCompleted},
	StateAwaitingKey: {StateVerifying, StateCompleted},
	StateVerifying:   {StateCompleted},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
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
