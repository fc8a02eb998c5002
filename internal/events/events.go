// Package events fans order changes out to listeners such as pod order
// boards, replacing fixed-interval polling.
package events

import (
	"context"
	"sync"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

const subscriberBuffer = 16

// Broker delivers order events per pod. Subscribe with an empty pod id
// receives every pod. The returned channel closes once ctx is done.
type Broker interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
	Subscribe(ctx context.Context, podID string) (<-chan domain.OrderEvent, error)
}

type subscriber struct {
	podID string
	ch    chan domain.OrderEvent
}

// Hub is the in-process Broker. Slow subscribers miss events instead of
// blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

func (h *Hub) Publish(_ context.Context, event domain.OrderEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.podID != "" && sub.podID != event.PodID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, podID string) (<-chan domain.OrderEvent, error) {
	sub := &subscriber{podID: podID, ch: make(chan domain.OrderEvent, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, sub)
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch, nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
