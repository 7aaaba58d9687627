package api

import "sync"

// SignalHub fans engine update signals out to every open connection.
// Signals are wake-ups, not data: a woken subscriber re-reads the full
// engine state, so any number of pending signals coalesce into one and
// nothing is lost by dropping duplicates.
type SignalHub struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func NewSignalHub() *SignalHub {
	return &SignalHub{subs: make(map[int]chan struct{})}
}

// Publish wakes every subscriber. Never blocks.
func (h *SignalHub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a wake-up pending; coalesce.
		}
	}
}

// Subscribe registers a listener. The returned cancel func must be
// called when the connection goes away.
func (h *SignalHub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return ch, cancel
}
