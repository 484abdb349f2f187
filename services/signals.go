package services

import "sync"

// SignalKind names a cross-cutting signal.
type SignalKind string

const (
	// SignalForbidden is non-fatal: the server refused one action.
	SignalForbidden SignalKind = "api:forbidden"
	// SignalUnauthorized means the session is no longer accepted.
	SignalUnauthorized SignalKind = "api:unauthorized"
	// SignalFatal is raised by the fault barrier around the authenticated view.
	SignalFatal SignalKind = "app:fatal"
)

// Signal is one published event.
type Signal struct {
	Kind    SignalKind
	Message string
	Err     error
}

// Bus is an application-lifetime publish/subscribe channel for cross-cutting
// signals. Handlers run synchronously on the publishing goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[SignalKind]map[int]func(Signal)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[SignalKind]map[int]func(Signal))}
}

// Subscribe registers fn for kind. The returned func removes it and may be
// called more than once.
func (b *Bus) Subscribe(kind SignalKind, fn func(Signal)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]func(Signal))
	}
	b.subs[kind][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[kind], id)
		})
	}
}

// Publish runs every handler subscribed to s.Kind. A nil bus drops s.
func (b *Bus) Publish(s Signal) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(Signal), 0, len(b.subs[s.Kind]))
	for _, fn := range b.subs[s.Kind] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
}
