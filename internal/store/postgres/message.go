package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/store"
	"go.uber.org/zap"
)

type MessageStore struct {
	pool   *pgxpool.Pool
	feed   *store.Feed
	logger *zap.Logger
}

func NewMessageStore(pool *pgxpool.Pool, feed *store.Feed, logger *zap.Logger) *MessageStore {
	return &MessageStore{pool: pool, feed: feed, logger: logger}
}

// Append persists one message. CreatedAt is now() from the database
// clock — never the client's — so every subscriber sorts the thread
// into the same order. After the commit, both participants' watchers
// get a change signal; the sender sees their own message via that
// push, like everyone else.
func (s *MessageStore) Append(ctx context.Context, senderID, receiverID uuid.UUID, text, imageURL string) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, text, image, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, sender_id, receiver_id, text, image, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, senderID, receiverID, text, imageURL).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Text,
		&msg.Image,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.feed.Publish(ctx, store.ThreadKey(senderID, receiverID))
	return &msg, nil
}

// threadWindow reads the newest `limit` messages of the conversation
// and returns them ascending by CreatedAt.
//
// The inner query takes the newest N (that's the live window), the
// outer one flips them back into display order. The id tiebreak keeps
// the order stable when two messages land on the same timestamp.
func (s *MessageStore) threadWindow(ctx context.Context, a, b uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, text, image, created_at
		FROM (
			SELECT id, sender_id, receiver_id, text, image, created_at
			FROM messages
			WHERE (sender_id = $1 AND receiver_id = $2)
			   OR (sender_id = $2 AND receiver_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) newest
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, a, b, limit)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Text,
			&msg.Image,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// WatchThread opens the live query for the conversation between a and
// b. Same shape as ContactStore.Watch: initial snapshot, then a fresh
// full window per change signal.
func (s *MessageStore) WatchThread(ctx context.Context, a, b uuid.UUID, limit int) (*store.Subscription[[]models.Message], error) {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := s.feed.Listen(watchCtx, store.ThreadKey(a, b))

	sub := store.NewSubscription[[]models.Message](func() {
		cancel()
		if err := pubsub.Close(); err != nil {
			s.logger.Debug("close thread pubsub", zap.Error(err))
		}
	})

	go func() {
		messages, err := s.threadWindow(watchCtx, a, b, limit)
		if err != nil {
			sub.Fail(chaterr.Wrap(chaterr.KindSubscription, "Error loading messages", err))
			return
		}
		sub.Deliver(messages)

		signals := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					sub.Fail(chaterr.New(chaterr.KindSubscription, "Error loading messages"))
					return
				}
				messages, err := s.threadWindow(watchCtx, a, b, limit)
				if err != nil {
					sub.Fail(chaterr.Wrap(chaterr.KindSubscription, "Error loading messages", err))
					return
				}
				sub.Deliver(messages)
			}
		}
	}()

	return sub, nil
}
