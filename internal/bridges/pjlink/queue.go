package pjlink

import (
	"context"
	"sync"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// CommandQueue is a FIFO of protocol lines drained by a single worker.
//
// The worker hands one command at a time to the Sender and does not take the
// next until SendCommand returns. User and poll commands share the queue and
// run strictly in arrival order.
//
// Thread Safety: Push, Len and Snapshot are safe for concurrent use.
type CommandQueue struct {
	mu     sync.Mutex
	items  []string
	wake   chan struct{}
	sender Sender

	startOnce sync.Once
	done      *closeOnce
	wg        sync.WaitGroup
}

// NewCommandQueue creates a queue that executes commands through sender.
// Commands pushed before Start are held until the worker runs.
func NewCommandQueue(sender Sender) *CommandQueue {
	return &CommandQueue{
		wake:   make(chan struct{}, 1),
		sender: sender,
		done:   newCloseOnce(),
	}
}

// Push appends command to the tail.
//
// Returns:
//   - error: ErrQueueStopped after Stop
func (q *CommandQueue) Push(command string) error {
	select {
	case <-q.done.Done():
		return ErrQueueStopped
	default:
	}

	q.mu.Lock()
	q.items = append(q.items, command)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of commands waiting.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the waiting commands, head first.
func (q *CommandQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out
}

// Start launches the worker. Later calls are no-ops.
func (q *CommandQueue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.run(ctx)
	})
}

// Stop ends the worker once the in-flight exchange completes or hits its
// deadline, then discards anything still queued. Safe to call multiple times.
func (q *CommandQueue) Stop() {
	q.done.Close()
	q.wg.Wait()

	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *CommandQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	cmd := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return cmd, true
}

func (q *CommandQueue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done.Done():
			return
		default:
		}

		cmd, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			case <-q.done.Done():
				return
			}
		}

		// Failures surface as events raised by the sender; nothing is retried.
		_ = q.sender.SendCommand(ctx, cmd) //nolint:errcheck // reported via events
	}
}
