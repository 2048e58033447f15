package session

import "slices"

// NewSessionID is the placeholder id of a provisional session that has not
// been created on the build service yet
const NewSessionID = "new"

// PreviewPort is the container port whose tunnel serves the live preview
const PreviewPort = 3000

// State is an immutable snapshot of a project session. Reduce never mutates
// a State it is given, so snapshots may be shared freely between goroutines.
type State struct {
	SessionID string
	Title     string
	Status    Status

	Transcript    []Message
	FileTreePaths []string

	PreviewEndpoint    string
	PreviewFingerprint int

	SuggestedFollowUps    []string
	PendingNavigationPath string

	LastError string
}

// InitialState returns the state of a session before anything is known about it
func InitialState(sessionID string) State {
	return State{
		SessionID:          sessionID,
		Status:             StatusNew,
		PreviewFingerprint: 1,
	}
}

// Provisional reports whether the session only collects the first message
func (s State) Provisional() bool {
	return s.SessionID == "" || s.SessionID == NewSessionID
}

// LastMessage returns the final transcript entry, if any
func (s State) LastMessage() (Message, bool) {
	if len(s.Transcript) == 0 {
		return Message{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// Clone returns a deep copy
func (s State) Clone() State {
	s.Transcript = cloneTranscript(s.Transcript)
	s.FileTreePaths = slices.Clone(s.FileTreePaths)
	s.SuggestedFollowUps = slices.Clone(s.SuggestedFollowUps)
	return s
}

func cloneTranscript(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}

func (s State) indexOf(id MessageID) int {
	if id == "" {
		return -1
	}
	for i, m := range s.Transcript {
		if m.ID == id {
			return i
		}
	}
	return -1
}
