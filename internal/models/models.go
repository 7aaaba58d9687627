package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated user's durable profile record.
//
// ID is the stable key used in every message and contact relation —
// it never changes once the account exists. Username and ProfilePicture
// can be edited later; Email is fixed at signup.
//
// Why time.Time and not int64 (unix)?
//   - time.Time is what pgx naturally scans into from timestamptz.
//   - JSON marshals to RFC3339 ("2026-02-08T10:30:00Z") which frontends
//     universally understand.
type Identity struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Contact is a one-directional relation: the owner added the contact,
// nothing is created in the other direction. Only the owner ever sees
// the row. AddedAt is assigned by the database at insert time.
type Contact struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	ContactID uuid.UUID `json:"contact_id"`
	AddedAt   time.Time `json:"added_at"`
}

// Message is one direct message between two identities.
//
// Exactly one of Text (non-empty after trim) or Image must be present;
// the engine rejects anything else before it reaches the store. An
// image-only message is stored with Text == "".
//
// CreatedAt is assigned by the database at write time, never by the
// client clock. That is the ordering key for the whole thread: every
// client sorts on it and gets the same total order.
//
// Messages are immutable once written. There is no edit or delete.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Text       string    `json:"text"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Belongs reports whether the message is part of the conversation
// between a and b, in either direction.
func (m Message) Belongs(a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}
