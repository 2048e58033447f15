package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversToAllSubscribers(t *testing.T) {
	h := NewHub[int]()
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubA()
	defer unsubB()

	h.Notify(7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
	assert.Equal(t, 2, h.SubscriberCount())
}

func TestHub_LatestValueWins(t *testing.T) {
	h := NewHub[int]()
	ch, unsub := h.Subscribe()
	defer unsub()

	for i := 1; i <= 5; i++ {
		h.Notify(i)
	}

	assert.Equal(t, 5, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	h := NewHub[string]()
	ch, unsub := h.Subscribe()

	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.SubscriberCount())
}

func TestHub_Shutdown(t *testing.T) {
	h := NewHub[string]()
	ch, unsub := h.Subscribe()

	h.Shutdown()
	unsub()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscriptions after shutdown are closed")

	h.Notify("ignored")
}
