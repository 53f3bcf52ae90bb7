package ddhpsi

import "fmt"

// State is a session's position in the protocol.
type State uint8

const (
	StateInit State = iota
	StateR1Sent
	StateR2Sent
	StateR3Sent
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateR1Sent:
		return "R1_SENT"
	case StateR2Sent:
		return "R2_SENT"
	case StateR3Sent:
		return "R3_SENT"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }
