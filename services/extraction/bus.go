package extraction

import (
	"context"
	"sync"

	"github.com/sahilchouksey/icm-reconcile/model"
)

// Bus carries job events from the manager to subscribers (SSE clients, the poller)
type Bus interface {
	Publish(ctx context.Context, ev model.JobEvent) error
	// Subscribe returns a channel of events and a func that ends the subscription.
	// The channel is closed when the subscription ends or ctx is done.
	Subscribe(ctx context.Context) (<-chan model.JobEvent, func(), error)
	Close() error
}

// subscriberBuffer is how many events a slow subscriber may lag before events are dropped
const subscriberBuffer = 64

// MemoryBus fans events out to in-process subscribers
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]chan model.JobEvent
	nextID int
	closed bool
}

// NewMemoryBus creates a new in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]chan model.JobEvent{}}
}

// Publish delivers ev to every subscriber without blocking
func (b *MemoryBus) Publish(_ context.Context, ev model.JobEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger().Warnw("dropping job event for slow subscriber", "document_id", ev.DocumentID, "status", ev.Status)
		}
	}
	return nil
}

// Subscribe registers a new subscriber
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan model.JobEvent, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan model.JobEvent)
		close(ch)
		return ch, func() {}, nil
	}
	id := b.nextID
	b.nextID++
	ch := make(chan model.JobEvent, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// Close ends every subscription
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}
