package session

// pending is a submitted message waiting for transmission
type pending struct {
	localID string
	msg     OutboundMessage
}

// Queue buffers outbound user messages and releases them one at a time.
// After a message is sent the queue stays closed until the build service
// acknowledges it with a status frame, so a second message never races the
// WORKING status of the first. Queue is owned by the session loop and is
// not safe for concurrent use.
type Queue struct {
	items    []pending
	inFlight bool
}

// Push appends a message to the tail
func (q *Queue) Push(localID string, msg OutboundMessage) {
	q.items = append(q.items, pending{localID: localID, msg: msg})
}

// Len returns the number of buffered messages
func (q *Queue) Len() int {
	return len(q.items)
}

// Next returns the head when it may be transmitted now
func (q *Queue) Next(status Status, connected bool) (pending, bool) {
	if len(q.items) == 0 || q.inFlight || !connected || status != StatusReady {
		return pending{}, false
	}
	return q.items[0], true
}

// MarkSent removes the head after a successful transmission
func (q *Queue) MarkSent() {
	if len(q.items) == 0 {
		return
	}
	q.items[0] = pending{}
	q.items = q.items[1:]
	q.inFlight = true
}

// Acknowledge reopens the queue after the build service reported a status
func (q *Queue) Acknowledge() {
	q.inFlight = false
}

// Remove drops a buffered message by local id
func (q *Queue) Remove(localID string) bool {
	for i, p := range q.items {
		if p.localID == localID {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
