package store

import "sync"

// Subscription is a live-query handle. The producer side (a concrete
// store, or a fake in tests) pushes full result-set snapshots with
// Deliver and a terminal failure with Fail; the consumer ranges over
// Snapshots and Err and calls Cancel when done.
//
// Delivery keeps only the latest snapshot: if the consumer is slow,
// an undelivered stale snapshot is replaced rather than queued. Every
// snapshot is the complete current result set, so skipping an
// intermediate one loses nothing.
//
// Cancel is idempotent. After Cancel, Deliver and Fail become no-ops,
// so a late-arriving refresh from a torn-down live query can never
// reach the consumer.
type Subscription[T any] struct {
	snapshots chan T
	errs      chan error
	done      chan struct{}
	once      sync.Once
	onCancel  func()
}

// NewSubscription creates a subscription handle. onCancel, if non-nil,
// runs exactly once when the consumer cancels — producers use it to
// stop their feed listener and release the underlying query.
func NewSubscription[T any](onCancel func()) *Subscription[T] {
	return &Subscription[T]{
		snapshots: make(chan T, 1),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
		onCancel:  onCancel,
	}
}

// Snapshots returns the channel of full result-set deliveries.
func (s *Subscription[T]) Snapshots() <-chan T { return s.snapshots }

// Err returns the channel carrying at most one terminal error.
func (s *Subscription[T]) Err() <-chan error { return s.errs }

// Done is closed when the subscription is cancelled.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Cancel tears the subscription down. Safe to call more than once and
// from any goroutine, including concurrently with Deliver.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

// Deliver hands a snapshot to the consumer, replacing any undelivered
// stale one. No-op after Cancel.
func (s *Subscription[T]) Deliver(snapshot T) {
	select {
	case <-s.done:
		return
	default:
	}

	// Drop an undelivered stale snapshot so the newest always wins.
	select {
	case <-s.snapshots:
	default:
	}

	select {
	case s.snapshots <- snapshot:
	case <-s.done:
	}
}

// Fail reports a terminal subscription error. No-op after Cancel;
// only the first failure is kept.
func (s *Subscription[T]) Fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.errs <- err:
	default:
	}
}
