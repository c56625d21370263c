package job

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// State is the lifecycle position of a job.
//
//	Pending -> Firing -> Delivered | Failed
//	Pending -> Rejected
//	Pending -> Cancelled
type State uint8

const (
	StateUnknown State = iota
	StatePending
	StateFiring
	StateDelivered
	StateFailed
	StateRejected
	StateCancelled
)

var stateNames = [...]string{
	StateUnknown:   "unknown",
	StatePending:   "pending",
	StateFiring:    "firing",
	StateDelivered: "delivered",
	StateFailed:    "failed",
	StateRejected:  "rejected",
	StateCancelled: "cancelled",
}

// States lists every real state in lifecycle order.
var States = []State{StatePending, StateFiring, StateDelivered, StateFailed, StateRejected, StateCancelled}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return stateNames[StateUnknown]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDelivered, StateFailed, StateRejected, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether s -> to is a legal edge.
func (s State) CanTransition(to State) bool {
	switch s {
	case StatePending:
		return to == StateFiring || to == StateRejected || to == StateCancelled
	case StateFiring:
		return to == StateDelivered || to == StateFailed
	default:
		return false
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState is the inverse of State.String (case-insensitive).
func ParseState(s string) (State, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range States {
		if st.String() == s {
			return st, nil
		}
	}
	return StateUnknown, errors.Newf("job: unknown state %q", s)
}
