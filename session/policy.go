package session

import (
	"fmt"
	"slices"
	"time"
)

// Close codes with a reserved meaning on the session socket
const (
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
)

// DefaultMaxAutoReconnects bounds back-to-back desync reconnects
const DefaultMaxAutoReconnects = 3

// Action is what the session does after its transport closed
type Action int

const (
	// ActionWait leaves the session disconnected until the user reconnects
	ActionWait Action = iota
	// ActionReconnect replaces the transport automatically
	ActionReconnect
	// ActionStop leaves the session disconnected because credentials were rejected
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionReconnect:
		return "reconnect"
	case ActionStop:
		return "stop"
	default:
		return "wait"
	}
}

// Decision is the outcome of Policy.Decide
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Policy maps close codes onto reconnect decisions
type Policy struct {
	AuthCodes   []int
	DesyncCodes []int
	// MaxAutoReconnects caps consecutive automatic reconnects that never
	// reached a status frame
	MaxAutoReconnects int
	Delay             time.Duration
}

// DefaultPolicy returns the policy used by the build service
func DefaultPolicy() Policy {
	return Policy{
		AuthCodes:         []int{CloseUnauthorized, CloseForbidden},
		DesyncCodes:       []int{CloseProtocolError, CloseUnsupportedData},
		MaxAutoReconnects: DefaultMaxAutoReconnects,
	}
}

// Decide returns the decision for a close with code after attempts
// consecutive automatic reconnects
func (p Policy) Decide(code, attempts int) Decision {
	switch {
	case slices.Contains(p.AuthCodes, code):
		return Decision{Action: ActionStop, Reason: "authentication rejected"}
	case slices.Contains(p.DesyncCodes, code):
		if p.MaxAutoReconnects > 0 && attempts >= p.MaxAutoReconnects {
			return Decision{Action: ActionWait, Reason: fmt.Sprintf("connection lost (code %d), reconnect attempts exhausted", code)}
		}
		return Decision{Action: ActionReconnect, Delay: p.Delay}
	default:
		return Decision{Action: ActionWait, Reason: fmt.Sprintf("connection lost (code %d)", code)}
	}
}
