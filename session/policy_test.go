package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Decide(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		code     int
		attempts int
		want     Action
	}{
		{CloseUnauthorized, 0, ActionStop},
		{CloseForbidden, 0, ActionStop},
		{CloseProtocolError, 0, ActionReconnect},
		{CloseUnsupportedData, 2, ActionReconnect},
		{CloseUnsupportedData, 3, ActionWait},
		{1000, 0, ActionWait},
		{1006, 0, ActionWait},
		{1012, 0, ActionWait},
	}
	for _, tt := range tests {
		d := p.Decide(tt.code, tt.attempts)
		assert.Equal(t, tt.want, d.Action, "code %d after %d attempts", tt.code, tt.attempts)
		assert.Zero(t, d.Delay)
	}

	assert.Equal(t, "authentication rejected", p.Decide(CloseUnauthorized, 0).Reason)
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()
	p.Delay = 50 * time.Millisecond
	p.MaxAutoReconnects = 0

	d := p.Decide(CloseProtocolError, 100)
	assert.Equal(t, ActionReconnect, d.Action, "zero cap disables the limit")
	assert.Equal(t, 50*time.Millisecond, d.Delay)
}

func TestQueue_GatesOnStatusAndAck(t *testing.T) {
	var q Queue
	q.Push("a", UserMessage("one"))
	q.Push("b", UserMessage("two"))

	_, ok := q.Next(StatusWorking, true)
	assert.False(t, ok)
	_, ok = q.Next(StatusReady, false)
	assert.False(t, ok)

	p, ok := q.Next(StatusReady, true)
	assert.True(t, ok)
	assert.Equal(t, "a", p.localID)
	q.MarkSent()

	_, ok = q.Next(StatusReady, true)
	assert.False(t, ok, "waits for acknowledgement")

	q.Acknowledge()
	p, ok = q.Next(StatusReady, true)
	assert.True(t, ok)
	assert.Equal(t, "b", p.localID)

	assert.True(t, q.Remove("b"))
	assert.False(t, q.Remove("b"))
	assert.Zero(t, q.Len())
}
