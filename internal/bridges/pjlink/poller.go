package pjlink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the time between status query cycles.
const DefaultPollInterval = 5 * time.Second

// Poller fires a callback at a fixed, adjustable interval.
//
// Ticks do not wait for earlier work to finish. A projector poll queues a
// full query cycle on every tick, so against an unreachable projector, where
// each exchange runs to its deadline, the command queue keeps growing and
// user commands wait behind stale queries. Projector logs a warning once the
// backlog passes four cycles.
//
// Thread Safety: SetInterval and Interval may be called while running.
type Poller struct {
	interval atomic.Int64 // nanoseconds
	onTick   func()
	reset    chan struct{}

	startOnce sync.Once
	done      *closeOnce
	wg        sync.WaitGroup
}

// NewPoller creates a poller that calls onTick every interval. A
// non-positive interval falls back to DefaultPollInterval.
func NewPoller(interval time.Duration, onTick func()) *Poller {
	p := &Poller{
		onTick: onTick,
		reset:  make(chan struct{}, 1),
		done:   newCloseOnce(),
	}
	p.SetInterval(interval)
	return p
}

// Interval returns the current tick interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// SetInterval changes the tick interval. A running poller restarts its
// timer with the new value.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	p.interval.Store(int64(d))
	select {
	case p.reset <- struct{}{}:
	default:
	}
}

// Start begins ticking. Later calls are no-ops.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.loop(ctx)
	})
}

// Stop halts ticking and waits for the loop to exit. Safe to call multiple
// times.
func (p *Poller) Stop() {
	p.done.Close()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done.Done():
			return
		case <-p.reset:
			ticker.Reset(p.Interval())
		case <-ticker.C:
			p.onTick()
		}
	}
}
