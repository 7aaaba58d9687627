package api

import (
	"sync"

	"go.uber.org/zap"
)

// NoticeFeed carries user-visible notifications (the toasts a browser
// client would show) from the chat engine to whatever WebSocket
// connections the user has open. It implements chat.Notifier.
//
// Each subscriber gets its own buffered channel; a subscriber that
// falls behind loses the oldest notices rather than blocking the
// engine.
type NoticeFeed struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[int]chan string
	next int
}

func NewNoticeFeed(logger *zap.Logger) *NoticeFeed {
	return &NoticeFeed{
		logger: logger,
		subs:   make(map[int]chan string),
	}
}

// Notify fans the message out to every live subscriber.
func (f *NoticeFeed) Notify(message string) {
	f.logger.Warn("user notice", zap.String("message", message))

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- message:
		default:
			// Drop the oldest queued notice to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- message:
			default:
			}
		}
	}
}

// Subscribe registers a listener. The returned cancel func must be
// called when the connection goes away.
func (f *NoticeFeed) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 8)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
	return ch, cancel
}
