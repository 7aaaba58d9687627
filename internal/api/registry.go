package api

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/echodm/internal/chat"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/session"
	"github.com/lalith-99/echodm/internal/store"
	"go.uber.org/zap"
)

// Uploader is what the engine needs from the upload gateway; the
// concrete *upload.Gateway satisfies it.
type Uploader interface {
	Upload(ctx context.Context, input string) (string, error)
}

// Engine is one user's full client-side stack: session, contact
// directory, message channel and the coordinator binding them, plus
// the fan-out hubs that carry state changes and notices to that user's
// WebSocket connections.
type Engine struct {
	Session   *session.Session
	Directory *chat.Directory
	Channel   *chat.Channel
	Notices   *NoticeFeed
	Events    *SignalHub

	done      chan struct{}
	closeOnce sync.Once
}

// pump forwards the directory's and channel's coalesced update signals
// into the fan-out hub, so any number of connections can watch one
// engine. Runs until the engine is closed.
func (e *Engine) pump() {
	for {
		select {
		case <-e.done:
			return
		case <-e.Directory.Updates():
			e.Events.Publish()
		case <-e.Channel.Updates():
			e.Events.Publish()
		}
	}
}

// close signs the session out (cascading subscription teardown through
// the coordinator) and stops the pump. Idempotent.
func (e *Engine) close() {
	e.closeOnce.Do(func() {
		e.Session.SignOut()
		close(e.done)
	})
}

// Registry holds one Engine per signed-in user. HTTP requests find
// their engine through the JWT's user id; sign-out drops it, which
// tears every subscription down via the coordinator.
type Registry struct {
	identities store.IdentityStore
	contacts   store.ContactStore
	messages   store.MessageStore
	uploader   Uploader
	logger     *zap.Logger

	mu      sync.Mutex
	engines map[uuid.UUID]*Engine
}

func NewRegistry(identities store.IdentityStore, contacts store.ContactStore, messages store.MessageStore, uploader Uploader, logger *zap.Logger) *Registry {
	return &Registry{
		identities: identities,
		contacts:   contacts,
		messages:   messages,
		uploader:   uploader,
		logger:     logger,
		engines:    make(map[uuid.UUID]*Engine),
	}
}

func (r *Registry) newEngine() *Engine {
	notices := NewNoticeFeed(r.logger)
	sess := session.New(r.identities, r.uploader, r.logger)
	directory := chat.NewDirectory(r.contacts, r.identities, notices, r.logger)
	channel := chat.NewChannel(sess, r.messages, r.uploader, notices, r.logger)
	chat.NewCoordinator(sess, directory, channel, r.logger)

	eng := &Engine{
		Session:   sess,
		Directory: directory,
		Channel:   channel,
		Notices:   notices,
		Events:    NewSignalHub(),
		done:      make(chan struct{}),
	}
	go eng.pump()
	return eng
}

// SignUp creates an account and registers its engine.
func (r *Registry) SignUp(ctx context.Context, email, password, username string) (*Engine, *models.Identity, error) {
	eng := r.newEngine()
	ident, err := eng.Session.SignUp(ctx, email, password, username)
	if err != nil {
		eng.close()
		return nil, nil, err
	}
	r.put(ident.ID, eng)
	return eng, ident, nil
}

// SignIn verifies credentials. A user who already has a live engine
// (say, a second browser tab) gets the existing one back — the
// coordinator's idempotence keeps it at one contact subscription.
func (r *Registry) SignIn(ctx context.Context, email, password string) (*Engine, *models.Identity, error) {
	eng := r.newEngine()
	ident, err := eng.Session.SignIn(ctx, email, password)
	if err != nil {
		eng.close()
		return nil, nil, err
	}

	r.mu.Lock()
	if existing, ok := r.engines[ident.ID]; ok {
		r.mu.Unlock()
		// Throw the probe engine away; the existing one already holds
		// this user's subscriptions.
		eng.close()
		return existing, ident, nil
	}
	r.engines[ident.ID] = eng
	r.mu.Unlock()
	return eng, ident, nil
}

// Get returns the engine for a signed-in user, or nil.
func (r *Registry) Get(userID uuid.UUID) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[userID]
}

// Drop closes the user's engine and removes it.
func (r *Registry) Drop(userID uuid.UUID) {
	r.mu.Lock()
	eng := r.engines[userID]
	delete(r.engines, userID)
	r.mu.Unlock()

	if eng != nil {
		eng.close()
	}
}

func (r *Registry) put(userID uuid.UUID, eng *Engine) {
	r.mu.Lock()
	existing := r.engines[userID]
	r.engines[userID] = eng
	r.mu.Unlock()

	if existing != nil && existing != eng {
		existing.close()
	}
}
