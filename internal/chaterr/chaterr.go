// Package chaterr defines the closed set of error kinds the engine
// produces. Every failure a user can recover from is one of these;
// callers switch on KindOf instead of matching message strings or
// guessing at wrapped types.
package chaterr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown is the zero value — an error that did not come
	// from this package, or came with no kind attached.
	KindUnknown Kind = iota

	// KindValidation: bad user input. Recoverable, shown inline.
	KindValidation

	// KindNotFound: a lookup missed, e.g. add-contact by unknown email.
	KindNotFound

	// KindDuplicate: the contact relation already exists.
	KindDuplicate

	// KindSelfReference: the user tried to add themselves as a contact.
	KindSelfReference

	// KindUpload: the asset host rejected or failed the image upload.
	KindUpload

	// KindSubscription: a live query failed to establish or errored
	// mid-stream.
	KindSubscription

	// KindAuth: the identity service rejected credentials or session.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindSelfReference:
		return "self_reference"
	case KindUpload:
		return "upload"
	case KindSubscription:
		return "subscription"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error carries a kind, a user-presentable message, and an optional
// underlying cause. The message is what a toast or inline field error
// shows; the cause is for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind with a user-presentable message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(msg string) *Error    { return New(KindValidation, msg) }
func NotFound(msg string) *Error      { return New(KindNotFound, msg) }
func Duplicate(msg string) *Error     { return New(KindDuplicate, msg) }
func SelfReference(msg string) *Error { return New(KindSelfReference, msg) }

// KindOf extracts the kind from anywhere in err's chain.
// Returns KindUnknown for nil or foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-presentable message for err, or a generic
// fallback when the error carries no kind. Keeps internal detail
// (SQL text, connection addresses) out of anything user-visible.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
