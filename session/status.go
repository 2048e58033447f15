package session

import (
	"fmt"
	"strings"
)

// Status is the lifecycle status of a project session
type Status string

const (
	StatusNew             Status = "NEW"
	StatusDisconnected    Status = "DISCONNECTED"
	StatusConnecting      Status = "CONNECTING"
	StatusBuilding        Status = "BUILDING"
	StatusReady           Status = "READY"
	StatusWorking         Status = "WORKING"
	StatusWorkingApplying Status = "WORKING_APPLYING"
	StatusOffline         Status = "OFFLINE"
)

// statusAliases maps wire vocabulary that predates the current enumeration
var statusAliases = map[string]Status{
	"NEW_CHAT":         StatusNew,
	"BUILDING_WAITING": StatusBuilding,
}

// ParseStatus parses a status as sent by the build service
func ParseStatus(s string) (Status, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch st := Status(v); st {
	case StatusNew, StatusDisconnected, StatusConnecting, StatusBuilding,
		StatusReady, StatusWorking, StatusWorkingApplying, StatusOffline:
		return st, nil
	}
	if st, ok := statusAliases[v]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// CanSend reports whether user messages may be submitted in this status.
// NEW only buffers; READY transmits.
func (s Status) CanSend() bool {
	return s == StatusNew || s == StatusReady
}

// Reason explains why sending is disabled, or returns "" when it is not
func (s Status) Reason() string {
	switch s {
	case StatusNew, StatusReady:
		return ""
	case StatusWorking:
		return "Please wait for the AI to finish..."
	case StatusWorkingApplying:
		return "Please wait for the changes to be applied..."
	case StatusBuilding:
		return "Please wait while the development environment is being set up..."
	case StatusConnecting:
		return "Connecting to the development environment..."
	default:
		return "Chat is temporarily unavailable"
	}
}

// Label is the short badge text for the status
func (s Status) Label() string {
	switch s {
	case StatusNew, StatusReady:
		return "Ready"
	case StatusDisconnected:
		return "Disconnected"
	case StatusOffline:
		return "Offline"
	case StatusBuilding:
		return "Setting up (~1m)"
	case StatusWorking:
		return "Coding..."
	case StatusWorkingApplying:
		return "Applying..."
	case StatusConnecting:
		return "Connecting..."
	default:
		return string(s)
	}
}

// Tone groups statuses for display: "idle", "busy" or "active"
func (s Status) Tone() string {
	switch s {
	case StatusReady, StatusWorking, StatusWorkingApplying:
		return "active"
	case StatusBuilding, StatusConnecting:
		return "busy"
	default:
		return "idle"
	}
}

// Connected reports whether the status implies a live transport
func (s Status) Connected() bool {
	switch s {
	case StatusBuilding, StatusReady, StatusWorking, StatusWorkingApplying, StatusOffline:
		return true
	}
	return false
}
