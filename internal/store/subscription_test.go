package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionDeliverKeepsLatest(t *testing.T) {
	sub := NewSubscription[int](nil)

	sub.Deliver(1)
	sub.Deliver(2) // replaces the undelivered 1

	select {
	case got := <-sub.Snapshots():
		assert.Equal(t, 2, got)
	default:
		t.Fatal("expected a snapshot to be pending")
	}
}

func TestSubscriptionDeliverAfterCancelIsDropped(t *testing.T) {
	sub := NewSubscription[int](nil)
	sub.Cancel()

	sub.Deliver(42)

	select {
	case got := <-sub.Snapshots():
		t.Fatalf("snapshot %d delivered after cancel", got)
	default:
	}
}

func TestSubscriptionCancelRunsOnCancelOnce(t *testing.T) {
	calls := 0
	sub := NewSubscription[int](func() { calls++ })

	sub.Cancel()
	sub.Cancel()

	assert.Equal(t, 1, calls)

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed after Cancel")
	}
}

func TestSubscriptionFail(t *testing.T) {
	sub := NewSubscription[int](nil)

	first := errors.New("stream broke")
	sub.Fail(first)
	sub.Fail(errors.New("later failure is dropped"))

	select {
	case err := <-sub.Err():
		require.ErrorIs(t, err, first)
	default:
		t.Fatal("expected an error to be pending")
	}

	sub.Cancel()
	sub.Fail(errors.New("after cancel"))
	select {
	case err := <-sub.Err():
		t.Fatalf("error %v delivered after cancel", err)
	default:
	}
}
