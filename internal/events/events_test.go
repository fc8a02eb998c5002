package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

func receive(t *testing.T, ch <-chan domain.OrderEvent) domain.OrderEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.OrderEvent{}
	}
}

func TestHubRoutesByPod(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	podA, err := hub.Subscribe(ctx, "pod-a")
	require.NoError(t, err)
	all, err := hub.Subscribe(ctx, "")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, domain.OrderEvent{Type: domain.OrderEventCreated, OrderID: "ord-b", PodID: "pod-b"}))
	require.NoError(t, hub.Publish(ctx, domain.OrderEvent{Type: domain.OrderEventCreated, OrderID: "ord-a", PodID: "pod-a"}))

	assert.Equal(t, "ord-a", receive(t, podA).OrderID)
	assert.Equal(t, "ord-b", receive(t, all).OrderID)
	assert.Equal(t, "ord-a", receive(t, all).OrderID)
}

func TestHubReleasesSubscriptionOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, "pod-a")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := hub.Subscribe(ctx, "pod-a")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, hub.Publish(ctx, domain.OrderEvent{PodID: "pod-a"}))
	}
	assert.Len(t, ch, subscriberBuffer)
}
