package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed is the change-notification channel behind live queries, carried
// over Redis pub/sub. Writers publish a bare "changed" signal on the
// collection-scoped key after a commit; watchers re-run their query on
// every signal and deliver the fresh result set.
//
// The payload is deliberately empty — the notification only says
// "something under this key changed". The query itself is always the
// source of truth, so a duplicated or reordered signal at worst
// re-delivers an identical snapshot.
type Feed struct {
	client *redis.Client
	logger *zap.Logger
}

func NewFeed(client *redis.Client, logger *zap.Logger) *Feed {
	return &Feed{client: client, logger: logger}
}

// Publish signals a change on key. A publish failure is logged, not
// returned: the write it follows has already committed, and failing
// the caller now would report a persisted operation as failed. The
// cost is one stale view until the next change.
func (f *Feed) Publish(ctx context.Context, key string) {
	if err := f.client.Publish(ctx, key, "").Err(); err != nil {
		f.logger.Warn("change feed publish failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Listen subscribes to change signals on key. The caller owns the
// returned PubSub and must Close it when the watch ends.
func (f *Feed) Listen(ctx context.Context, key string) *redis.PubSub {
	return f.client.Subscribe(ctx, key)
}

// ContactsKey is the feed key for one owner's contact relations.
func ContactsKey(ownerID uuid.UUID) string {
	return "echodm:contacts:" + ownerID.String()
}

// ThreadKey is the feed key for the conversation between a and b.
// The pair is unordered, so the key is normalized: both directions of
// the same conversation map to one key.
func ThreadKey(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return "echodm:thread:" + lo + ":" + hi
}
