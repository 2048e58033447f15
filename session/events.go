package session

// Event is an input to Reduce: either a decoded frame or a local occurrence
type Event interface {
	event()
}

// StatusChanged is a status frame. Nil Tunnels or FilePaths mean the frame
// did not carry them.
type StatusChanged struct {
	Status    Status
	Tunnels   map[int]string
	FilePaths []string
}

// ChatUpdated is a finalized message from the build service
type ChatUpdated struct {
	Message    Message
	FollowUps  []string
	NavigateTo string
}

// ChatChunk is a streamed fragment of the assistant turn in progress
type ChatChunk struct {
	Content         string
	ThinkingContent string
}

// Connecting marks the start of a connection attempt
type Connecting struct{}

// Disconnected marks the loss of the transport; Reason is surfaced to the user
type Disconnected struct {
	Reason string
}

// UserMessageAdded appends the optimistic copy of a submitted message
type UserMessageAdded struct {
	Message Message
}

// UserMessageRetracted removes an optimistic message that could not be delivered
type UserMessageRetracted struct {
	LocalID string
}

// Seeded merges the persisted session fetched from the API
type Seeded struct {
	Seed Seed
}

// NavigationConsumed clears the pending preview navigation
type NavigationConsumed struct{}

// Failed records a surfaced failure without changing the status
type Failed struct {
	Reason string
}

func (StatusChanged) event()        {}
func (ChatUpdated) event()          {}
func (ChatChunk) event()            {}
func (Connecting) event()           {}
func (Disconnected) event()         {}
func (UserMessageAdded) event()     {}
func (UserMessageRetracted) event() {}
func (Seeded) event()               {}
func (NavigationConsumed) event()   {}
func (Failed) event()               {}

// Seed is a persisted session as returned by the session fetch API
type Seed struct {
	Title      string
	Transcript []Message
	FilePaths  []string
	// Status is informational; the live status always comes from the socket
	Status Status
}
