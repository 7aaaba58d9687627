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

type ContactStore struct {
	pool   *pgxpool.Pool
	feed   *store.Feed
	logger *zap.Logger
}

func NewContactStore(pool *pgxpool.Pool, feed *store.Feed, logger *zap.Logger) *ContactStore {
	return &ContactStore{pool: pool, feed: feed, logger: logger}
}

// Add creates the one-directional (owner, contact) relation. AddedAt
// comes from the database clock. Watchers of the owner's contact list
// are notified after the commit; nothing is created for the contact's
// side.
func (s *ContactStore) Add(ctx context.Context, ownerID, contactID uuid.UUID) error {
	query := `
		INSERT INTO contacts (owner_id, contact_id, added_at)
		VALUES ($1, $2, now())`

	if _, err := s.pool.Exec(ctx, query, ownerID, contactID); err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	s.feed.Publish(ctx, store.ContactsKey(ownerID))
	return nil
}

func (s *ContactStore) Exists(ctx context.Context, ownerID, contactID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM contacts WHERE owner_id = $1 AND contact_id = $2
		)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, ownerID, contactID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check contact: %w", err)
	}
	return exists, nil
}

func (s *ContactStore) list(ctx context.Context, ownerID uuid.UUID) ([]models.Contact, error) {
	query := `
		SELECT owner_id, contact_id, added_at
		FROM contacts
		WHERE owner_id = $1
		ORDER BY added_at ASC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.OwnerID, &c.ContactID, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}

	return contacts, nil
}

// Watch opens a live query over the owner's contact relations: one
// initial snapshot, then a fresh one after every change signal on the
// owner's feed key. The query re-runs from Postgres each time — the
// signal only says "go look again".
func (s *ContactStore) Watch(ctx context.Context, ownerID uuid.UUID) (*store.Subscription[[]models.Contact], error) {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := s.feed.Listen(watchCtx, store.ContactsKey(ownerID))

	sub := store.NewSubscription[[]models.Contact](func() {
		cancel()
		if err := pubsub.Close(); err != nil {
			s.logger.Debug("close contacts pubsub", zap.Error(err))
		}
	})

	go func() {
		contacts, err := s.list(watchCtx, ownerID)
		if err != nil {
			sub.Fail(chaterr.Wrap(chaterr.KindSubscription, "Error loading contacts", err))
			return
		}
		sub.Deliver(contacts)

		signals := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					sub.Fail(chaterr.New(chaterr.KindSubscription, "Error loading contacts updates"))
					return
				}
				contacts, err := s.list(watchCtx, ownerID)
				if err != nil {
					sub.Fail(chaterr.Wrap(chaterr.KindSubscription, "Error loading contacts updates", err))
					return
				}
				sub.Deliver(contacts)
			}
		}
	}()

	return sub, nil
}
