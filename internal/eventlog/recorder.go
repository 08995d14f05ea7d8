package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-pjlink/internal/bridges/pjlink"
)

const (
	defaultBufferSize  = 256
	recordWriteTimeout = 5 * time.Second
)

// Logger is the structured logger used by the recorder and pruner.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is a pjlink.Listener that writes events to a Repository.
//
// OnEvent only enqueues; a worker started by Start performs the writes so
// engine goroutines never wait on the database. When the buffer is full
// the event is dropped and counted.
type Recorder struct {
	repo   Repository
	events chan pjlink.Event
	logger Logger

	mu      sync.Mutex
	dropped int
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewRecorder creates a recorder with the given buffer size
// (default 256 when <= 0). logger may be nil.
func NewRecorder(repo Repository, bufferSize int, logger Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		events: make(chan pjlink.Event, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// OnEvent implements pjlink.Listener.
func (r *Recorder) OnEvent(e pjlink.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	select {
	case r.events <- e:
	default:
		r.dropped++
		r.logger.Warn("event history buffer full, dropping event",
			"projector_id", e.Source, "type", e.Type.String(), "dropped", r.dropped)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Start runs the write worker until ctx is cancelled or Stop is called.
// Events still buffered when ctx is cancelled are written by Stop.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

// Stop waits for the worker to exit, then writes any events still buffered.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		close(r.events)
		r.mu.Unlock()
		if r.cancel != nil {
			<-r.done
			r.cancel()
		}
		// The worker has exited; write whatever it left behind.
		for e := range r.events {
			r.write(e)
		}
	})
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.write(e)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recorder) write(e pjlink.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordWriteTimeout)
	defer cancel()

	entry := EntryFromEvent(e)
	if err := r.repo.Record(ctx, &entry); err != nil {
		r.logger.Error("failed to record projector event",
			"projector_id", e.Source, "type", e.Type.String(), "error", err)
	}
}

// EntryFromEvent converts an engine event into a history entry.
func EntryFromEvent(e pjlink.Event) Entry {
	msg := pjlink.NewEventMessage(e)
	return Entry{
		EventID:     msg.EventID,
		ProjectorID: msg.DeviceID,
		Type:        msg.Type,
		Data:        msg.Data,
		Connected:   msg.Connected,
		Flags:       msg.Flags,
		CreatedAt:   msg.Timestamp,
	}
}
