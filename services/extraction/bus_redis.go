package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/utils/cache"
)

// RedisBus publishes job events on a Redis pub/sub channel so every API replica sees them
type RedisBus struct {
	cache   *cache.RedisCache
	channel string
}

// NewRedisBus creates a bus on model.RedisChannelJobEvents
func NewRedisBus(c *cache.RedisCache) *RedisBus {
	return &RedisBus{cache: c, channel: model.RedisChannelJobEvents}
}

// Publish sends ev as JSON
func (b *RedisBus) Publish(ctx context.Context, ev model.JobEvent) error {
	if err := b.cache.PublishJSON(ctx, b.channel, ev); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription and decodes its messages
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan model.JobEvent, func(), error) {
	ps := b.cache.Subscribe(ctx, b.channel)
	// wait for the subscription confirmation so no event published after Subscribe returns is lost
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan model.JobEvent, subscriberBuffer)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger().Warnw("discarding malformed job event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close is a no-op; the Redis connection belongs to the cache
func (b *RedisBus) Close() error {
	return nil
}
