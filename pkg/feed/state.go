package feed

// State is the connection lifecycle of the feed. It is owned by the
// feed's run loop; readers observe it through Feed.State.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackingOff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transition is an input to the state machine.
type Transition int

const (
	// TransitionDial starts a connection attempt.
	TransitionDial Transition = iota
	// TransitionConnectOK means the transport opened and the
	// subscription was sent.
	TransitionConnectOK
	// TransitionError is any transport error or unexpected close.
	TransitionError
	// TransitionBackoffDone fires when the reconnect wait elapses.
	TransitionBackoffDone
	// TransitionShutdown is caller-initiated and terminal.
	TransitionShutdown
)

// Next is the single transition function driving the feed. It is
// pure so the machine is testable without a socket. Closed is
// terminal: every input maps it to itself.
func Next(s State, t Transition) State {
	if s == StateClosed || t == TransitionShutdown {
		return StateClosed
	}
	switch t {
	case TransitionDial:
		return StateConnecting
	case TransitionConnectOK:
		if s == StateConnecting {
			return StateConnected
		}
	case TransitionError:
		if s == StateConnecting || s == StateConnected {
			return StateBackingOff
		}
	case TransitionBackoffDone:
		if s == StateBackingOff {
			return StateConnecting
		}
	}
	return s
}
