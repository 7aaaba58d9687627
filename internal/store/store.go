// Package store defines the document-store contracts the chat engine
// runs on: plain reads/writes plus live queries. A live query (Watch*)
// delivers the full current result set as one snapshot, then delivers
// it again after every underlying change — consumers replace their
// view wholesale on each delivery instead of append-merging, which is
// what makes out-of-order notification delivery harmless.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/echodm/internal/models"
)

// Why context.Context as the first parameter on every method?
//   - Idiomatic Go for anything that does I/O (DB, Redis, HTTP).
//   - It carries deadlines: if the caller goes away, the query gets
//     cancelled too. No wasted work.

// IdentityStore handles the identity (user profile) collection.
type IdentityStore interface {
	// Create inserts a new identity. The store assigns ID and CreatedAt.
	Create(ctx context.Context, username, email, passwordHash, pictureURL string) (*models.Identity, error)

	// GetByID returns one identity. Returns nil, nil if not found.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)

	// GetByEmail looks an identity up by normalized email.
	// Returns nil, nil if not found.
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)

	// CredentialsByEmail returns the identity together with its stored
	// password hash, for sign-in. Returns nil, "", nil on a miss so the
	// caller can produce one generic failure for both unknown email and
	// wrong password.
	CredentialsByEmail(ctx context.Context, email string) (*models.Identity, string, error)

	// List returns every identity, oldest first. Used by the user
	// directory view.
	List(ctx context.Context) ([]models.Identity, error)

	// UpdateProfile overwrites username and/or picture URL. Empty
	// string means "leave unchanged". Returns the updated identity.
	UpdateProfile(ctx context.Context, id uuid.UUID, username, pictureURL string) (*models.Identity, error)
}

// ContactStore handles the one-directional contact relation collection.
type ContactStore interface {
	// Add creates the (owner, contact) relation with a store-assigned
	// AddedAt, and notifies the owner's live watchers.
	Add(ctx context.Context, ownerID, contactID uuid.UUID) error

	// Exists reports whether the relation is already present.
	Exists(ctx context.Context, ownerID, contactID uuid.UUID) (bool, error)

	// Watch opens a live query over the owner's contact relations,
	// ordered by AddedAt ascending.
	Watch(ctx context.Context, ownerID uuid.UUID) (*Subscription[[]models.Contact], error)
}

// MessageStore handles the message collection.
type MessageStore interface {
	// Append persists one message with a store-assigned ID and
	// CreatedAt, and notifies the thread's live watchers. It never
	// echoes the message back to the caller's view directly — senders
	// see their own message through the live query like everyone else.
	Append(ctx context.Context, senderID, receiverID uuid.UUID, text, imageURL string) (*models.Message, error)

	// WatchThread opens a live query over the conversation between a
	// and b (both directions), windowed to the newest `limit` messages
	// and delivered ascending by CreatedAt.
	WatchThread(ctx context.Context, a, b uuid.UUID, limit int) (*Subscription[[]models.Message], error)
}
