package connection

import "time"

// State is a connection lifecycle state.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnectWait
	StateClosed
)

var stateNames = [...]string{
	StateInit:          "INIT",
	StateConnecting:    "CONNECTING",
	StateOpen:          "OPEN",
	StateClosing:       "CLOSING",
	StateReconnectWait: "RECONNECT_WAIT",
	StateClosed:        "CLOSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed
}

// Role distinguishes the dialing side from the accepting side.
type Role string

const (
	RoleClient   Role = "client"
	RoleAcceptor Role = "acceptor"
)

// Transition records one state change.
type Transition struct {
	From   State
	To     State
	Reason string
	Epoch  uint64
	At     time.Time
}
