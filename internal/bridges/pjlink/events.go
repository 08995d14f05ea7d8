package pjlink

import (
	"sync"
	"time"
)

// Event is a typed notification raised while parsing responses or when the
// transport fails.
//
// Data holds the type-specific payload:
//   - EventError: error bitmask (see the Error* constants)
//   - EventPower: PowerState value
//   - EventInput: input code, or InputErrorNonexistentSource
//   - EventAVMute: mute code, or MuteErrorCannotMute
//   - EventLamp: lamp hours
type Event struct {
	Source string    // projector ID that raised the event
	Type   EventType // event tag
	Data   int
	Time   time.Time

	// Connected mirrors the connection flag at dispatch time. It tells a
	// connection failure from a recovery for ErrorConnection events.
	// Response events from the first good exchange after a failure still
	// carry false: the flag is cleared once the exchange has completed,
	// and the recovery event follows them.
	Connected bool
}

// Listener receives events from a projector.
//
// Listeners are compared by identity, so implementations must be comparable
// (pointer receivers are the usual choice). OnEvent runs synchronously on the
// goroutine that parsed the response and must not block for long.
type Listener interface {
	OnEvent(e Event)
}

// funcListener wraps a function so it can be registered and later removed.
type funcListener struct {
	fn func(Event)
}

func (f *funcListener) OnEvent(e Event) { f.fn(e) }

// ListenerFunc adapts fn into a Listener. Keep the returned value to remove it.
func ListenerFunc(fn func(Event)) Listener {
	return &funcListener{fn: fn}
}

// Notifier is an ordered listener registry with synchronous dispatch.
//
// Thread Safety: Add, Remove and Notify may be called from any goroutine.
// Notify dispatches to a copy of the registry, so a listener may add or
// remove listeners from inside OnEvent.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener

	logger   Logger
	loggerMu sync.RWMutex
}

// NewNotifier creates an empty registry.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// SetLogger sets the logger used to report listener panics.
func (n *Notifier) SetLogger(logger Logger) {
	n.loggerMu.Lock()
	n.logger = logger
	n.loggerMu.Unlock()
}

// Add registers l. It returns false if l is already registered.
func (n *Notifier) Add(l Listener) bool {
	if l == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.listeners {
		if existing == l {
			return false
		}
	}
	n.listeners = append(n.listeners, l)
	return true
}

// Remove unregisters l. It returns false if l was not registered.
func (n *Notifier) Remove(l Listener) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.listeners {
		if existing == l {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Notify delivers e to every listener in registration order.
func (n *Notifier) Notify(e Event) {
	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		n.dispatch(l, e)
	}
}

// dispatch calls one listener, containing any panic so later listeners
// still run.
func (n *Notifier) dispatch(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.loggerMu.RLock()
			logger := n.logger
			n.loggerMu.RUnlock()
			if logger != nil {
				logger.Error("listener panicked", "panic", r, "event", e.Type.String(), "source", e.Source)
			}
		}
	}()
	l.OnEvent(e)
}
