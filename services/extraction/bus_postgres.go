package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sahilchouksey/icm-reconcile/model"
	"gorm.io/gorm"
)

// PostgresBus uses LISTEN/NOTIFY: events are sent with pg_notify through GORM and
// received on a dedicated lib/pq listener connection, then fanned out in-process.
type PostgresBus struct {
	db       *gorm.DB
	listener *pq.Listener
	channel  string
	local    *MemoryBus
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewPostgresBus starts forwarding notifications from listener to local subscribers
func NewPostgresBus(db *gorm.DB, listener *pq.Listener) *PostgresBus {
	b := &PostgresBus{
		db:       db,
		listener: listener,
		channel:  model.PostgresChannelJobEvents,
		local:    NewMemoryBus(),
		stop:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.forward()
	return b
}

// Publish sends ev through pg_notify
func (b *PostgresBus) Publish(ctx context.Context, ev model.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", b.channel, string(payload)).Error; err != nil {
		return fmt.Errorf("failed to notify job event: %w", err)
	}
	return nil
}

// Subscribe attaches to the local fan-out
func (b *PostgresBus) Subscribe(ctx context.Context) (<-chan model.JobEvent, func(), error) {
	return b.local.Subscribe(ctx)
}

func (b *PostgresBus) forward() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stop:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; events sent while disconnected are lost and the poller covers them
			if n == nil {
				continue
			}
			var ev model.JobEvent
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				logger().Warnw("discarding malformed notification", "channel", n.Channel, "error", err)
				continue
			}
			_ = b.local.Publish(context.Background(), ev)
		case <-time.After(90 * time.Second):
			go func() { _ = b.listener.Ping() }()
		}
	}
}

// Close stops forwarding and closes the listener
func (b *PostgresBus) Close() error {
	close(b.stop)
	b.wg.Wait()
	_ = b.local.Close()
	return b.listener.Close()
}
