package hub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskly/trackd/internal/hub"
	"github.com/taskly/trackd/internal/model"
)

func TestHubBroadcast(t *testing.T) {
	h, err := hub.NewHub(hub.HubConfig{})
	require.NoError(t, err)

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	assert.Equal(t, 2, h.ClientCount())

	e := model.Event{Type: model.MessageTypeTrackingUpdate}
	h.Broadcast(e)

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, e.Type, got1.Type)
	assert.Equal(t, e.Type, got2.Type)
}

func TestHubUnsubscribe(t *testing.T) {
	h, err := hub.NewHub(hub.HubConfig{})
	require.NoError(t, err)

	ch, cancel := h.Subscribe()
	cancel()
	assert.Equal(t, 0, h.ClientCount())

	// Unsubscribing closes the channel and is idempotent.
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestHubSlowClientDropsEvents(t *testing.T) {
	h, err := hub.NewHub(hub.HubConfig{ClientBuffer: 1})
	require.NoError(t, err)

	ch, cancel := h.Subscribe()
	defer cancel()

	// A client that never reads only buffers one event; the rest are
	// dropped without blocking the broadcaster.
	h.Broadcast(model.Event{Type: model.MessageTypeTrackingUpdate})
	h.Broadcast(model.Event{Type: model.MessageTypeTrackingStopped})
	h.Broadcast(model.Event{Type: model.MessageTypeShowNotification})

	got := <-ch
	assert.Equal(t, model.MessageTypeTrackingUpdate, got.Type)
	select {
	case e := <-ch:
		t.Fatalf("expected no more events, got %s", e.Type)
	default:
	}
}

func TestHubShowNotification(t *testing.T) {
	ctx := context.Background()

	h, err := hub.NewHub(hub.HubConfig{})
	require.NoError(t, err)

	ch, cancel := h.Subscribe()
	defer cancel()

	opts := model.NotificationOptions{Title: "Timer finished", Tag: "timer-complete"}
	require.NoError(t, h.ShowNotification(ctx, opts))

	got := <-ch
	assert.Equal(t, model.MessageTypeShowNotification, got.Type)
	require.NotNil(t, got.Options)
	assert.Equal(t, "Timer finished", got.Options.Title)

	// Options without a title are rejected.
	err = h.ShowNotification(ctx, model.NotificationOptions{Body: "no title"})
	assert.Error(t, err)
}
