package extraction

import (
	"context"
	"sync"
	"time"
)

// refresher is the part of Manager the poller drives
type refresher interface {
	HasOutstanding(ctx context.Context) (bool, error)
	RefreshOutstanding(ctx context.Context) (int, error)
}

// Poller is the fallback for services that never call back. It runs only while
// some job is outstanding, exits when none is left and is re-armed by Kick.
type Poller struct {
	source   refresher
	interval time.Duration

	mu      sync.Mutex
	running bool
	kicked  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a poller; call Start before Kick has any effect
func NewPoller(source refresher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{source: source, interval: interval}
}

// Start binds the poller to ctx and runs a first check
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	p.Kick()
}

// Kick starts the loop unless it is already running
func (p *Poller) Kick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.ctx.Err() != nil {
		return
	}
	if p.running {
		p.kicked = true
		return
	}
	p.running = true
	p.wg.Add(1)
	go p.loop(p.ctx)
}

// Running reports whether the loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop ends the loop and waits for it
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !p.tick(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			p.setStopped()
			return
		case <-ticker.C:
		}
	}
}

// tick refreshes once and reports whether the loop should continue
func (p *Poller) tick(ctx context.Context) bool {
	p.mu.Lock()
	p.kicked = false
	p.mu.Unlock()

	outstanding, err := p.source.HasOutstanding(ctx)
	if err != nil {
		logger().Warnw("poller could not read outstanding jobs", "error", err)
		return ctx.Err() == nil || p.setStopped()
	}

	if outstanding {
		n, err := p.source.RefreshOutstanding(ctx)
		if err != nil {
			logger().Warnw("poller refresh round failed", "error", err)
		} else {
			logger().Debugw("poller refreshed jobs", "refreshed", n)
		}
		return ctx.Err() == nil || p.setStopped()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// a Kick since the check above may have queued new work
	if p.kicked {
		return true
	}
	p.running = false
	logger().Debugw("poller idle: no outstanding jobs")
	return false
}

// setStopped clears the running flag and returns false
func (p *Poller) setStopped() bool {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return false
}
