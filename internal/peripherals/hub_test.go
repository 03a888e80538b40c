package peripherals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(4, nil)
	first, unsubFirst := hub.Subscribe()
	second, unsubSecond := hub.Subscribe()
	defer unsubSecond()
	require.Equal(t, 2, hub.Subscribers())

	hub.Publish(Event{ID: "nav-1", Type: TypeTouchPanel, Status: StatusConnected})

	require.Equal(t, "nav-1", receive(t, first).ID)
	ev := receive(t, second)
	require.Equal(t, StatusConnected, ev.Status)
	require.False(t, ev.ReceivedAt.IsZero())

	unsubFirst()
	unsubFirst()
	require.Equal(t, 1, hub.Subscribers())
	_, open := <-first
	require.False(t, open)
}

func TestHub_FullSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(1, nil)
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.Publish(Event{ID: "a"})
	hub.Publish(Event{ID: "b"})

	require.Equal(t, "a", receive(t, ch).ID)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.ID)
	default:
	}
}
