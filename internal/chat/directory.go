package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/store"
	"github.com/lalith-99/echodm/internal/validate"
	"go.uber.org/zap"
)

// Directory maintains the live, resolved contact list for the
// signed-in identity. It owns at most one contact subscription at a
// time: Start while running and Stop while stopped are both no-ops.
//
// Every snapshot delivery carries the token that was current when the
// subscription was opened; a token that no longer matches means the
// delivery belongs to a subscription that has since been torn down,
// and it is dropped without touching state.
type Directory struct {
	contacts   store.ContactStore
	identities store.IdentityStore
	notifier   Notifier
	logger     *zap.Logger

	mu      sync.Mutex
	owner   *models.Identity
	token   uint64
	sub     *store.Subscription[[]models.Contact]
	cancel  context.CancelFunc
	entries []models.Identity
	loading bool
	updates chan struct{}
}

func NewDirectory(contacts store.ContactStore, identities store.IdentityStore, notifier Notifier, logger *zap.Logger) *Directory {
	return &Directory{
		contacts:   contacts,
		identities: identities,
		notifier:   notifier,
		logger:     logger,
		updates:    make(chan struct{}, 1),
	}
}

// Updates signals that Contacts or Loading changed. Deliveries are
// coalesced: a reader that falls behind sees one pending signal, then
// reads the latest snapshot.
func (d *Directory) Updates() <-chan struct{} { return d.updates }

func (d *Directory) signalUpdate() {
	select {
	case d.updates <- struct{}{}:
	default:
	}
}

// Start opens the live contact subscription for owner. Idempotent: a
// second Start while one is active does nothing, regardless of owner.
func (d *Directory) Start(ctx context.Context, owner *models.Identity) error {
	d.mu.Lock()
	if d.sub != nil {
		d.mu.Unlock()
		return nil
	}
	d.token++
	tok := d.token
	d.owner = owner
	d.loading = true
	d.mu.Unlock()

	sub, err := d.contacts.Watch(ctx, owner.ID)
	if err != nil {
		d.mu.Lock()
		if d.token == tok {
			d.loading = false
		}
		d.mu.Unlock()
		d.notifier.Notify("Error loading contacts")
		return chaterr.Wrap(chaterr.KindSubscription, "Error loading contacts", err)
	}

	resolveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	d.mu.Lock()
	if d.token != tok {
		// Stop raced us between Watch and here; give the handle back.
		d.mu.Unlock()
		cancel()
		sub.Cancel()
		return nil
	}
	d.sub = sub
	d.cancel = cancel
	d.mu.Unlock()

	go d.consume(resolveCtx, tok, owner, sub)
	return nil
}

// Stop cancels the subscription and clears the directory. Idempotent.
func (d *Directory) Stop() {
	d.mu.Lock()
	sub := d.sub
	cancel := d.cancel
	d.token++
	d.sub = nil
	d.cancel = nil
	d.owner = nil
	d.entries = nil
	d.loading = false
	d.mu.Unlock()
	d.signalUpdate()

	// Cancel after the token bump: even a delivery already in flight
	// can no longer be applied.
	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Cancel()
	}
}

func (d *Directory) consume(ctx context.Context, tok uint64, owner *models.Identity, sub *store.Subscription[[]models.Contact]) {
	for {
		select {
		case <-sub.Done():
			return
		case err := <-sub.Err():
			d.logger.Error("contacts subscription failed", zap.Error(err))
			d.mu.Lock()
			if d.token == tok {
				d.loading = false
			}
			d.mu.Unlock()
			d.signalUpdate()
			d.notifier.Notify(chaterr.Message(err, "Error loading contacts updates"))
			return
		case contacts := <-sub.Snapshots():
			d.apply(ctx, tok, owner, contacts)
		}
	}
}

// apply resolves each contact relation to its current identity
// snapshot and republishes the merged list. Resolution does one read
// per id; a failure there is logged and that entry skipped — one bad
// id never takes out the whole list.
func (d *Directory) apply(ctx context.Context, tok uint64, owner *models.Identity, contacts []models.Contact) {
	resolved := make([]models.Identity, 0, len(contacts))
	for _, c := range contacts {
		if c.ContactID == owner.ID {
			// The owner never appears in their own directory.
			continue
		}
		ident, err := d.identities.GetByID(ctx, c.ContactID)
		if err != nil {
			d.logger.Warn("skipping unresolvable contact",
				zap.String("contact_id", c.ContactID.String()),
				zap.Error(err),
			)
			continue
		}
		if ident == nil {
			d.logger.Warn("contact identity no longer exists",
				zap.String("contact_id", c.ContactID.String()),
			)
			continue
		}
		resolved = append(resolved, *ident)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.token != tok {
		return
	}
	d.entries = resolved
	d.loading = false
	d.signalUpdate()
}

// Contacts returns a copy of the current resolved contact list.
func (d *Directory) Contacts() []models.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Identity, len(d.entries))
	copy(out, d.entries)
	return out
}

// Loading reports whether the first snapshot is still pending.
func (d *Directory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// AddContact adds a contact by email for the current owner.
//
// The checks run in a fixed order, each with its own error kind:
// malformed email (validation, before any store read), own email
// (self reference), unknown email (not found), existing relation
// (duplicate). Only then is the relation written; the owner's live
// subscription republishes on its own.
func (d *Directory) AddContact(ctx context.Context, email string) error {
	d.mu.Lock()
	owner := d.owner
	d.mu.Unlock()
	if owner == nil {
		return chaterr.New(chaterr.KindAuth, "You must be logged in to add contacts")
	}

	normalized := validate.NormalizeEmail(email)
	if reason := validate.Email(normalized); reason != "" {
		return chaterr.Validation(reason)
	}
	if normalized == validate.NormalizeEmail(owner.Email) {
		return chaterr.SelfReference("You cannot add yourself as a contact")
	}

	ident, err := d.identities.GetByEmail(ctx, normalized)
	if err != nil {
		return fmt.Errorf("look up contact email: %w", err)
	}
	if ident == nil {
		return chaterr.NotFound("User with this email not found")
	}

	exists, err := d.contacts.Exists(ctx, owner.ID, ident.ID)
	if err != nil {
		return fmt.Errorf("check existing contact: %w", err)
	}
	if exists {
		return chaterr.Duplicate("Contact already added")
	}

	if err := d.contacts.Add(ctx, owner.ID, ident.ID); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}

	d.logger.Info("contact added",
		zap.String("owner_id", owner.ID.String()),
		zap.String("contact_id", ident.ID.String()),
	)
	return nil
}

// Owner returns the identity the directory is running for, or nil.
func (d *Directory) Owner() *models.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner
}
