package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/session"
	"go.uber.org/zap"
)

// Coordinator binds the directory and the message channel to session
// transitions: sign-in starts the contact subscription, sign-out stops
// it and forces the conversation closed. It is the only writer that
// starts or stops the directory.
//
// The coordinator takes its collaborators by reference and wires the
// session callback itself — no package-level singletons — so several
// independent instances can run side by side (one per connected
// session, and freely in tests).
type Coordinator struct {
	directory *Directory
	channel   *Channel
	logger    *zap.Logger

	mu     sync.Mutex
	lastID uuid.UUID
}

// NewCoordinator wires the coordinator into sess. From then on every
// identity transition drives the directory and channel lifecycles.
func NewCoordinator(sess *session.Session, directory *Directory, channel *Channel, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		directory: directory,
		channel:   channel,
		logger:    logger,
	}
	sess.OnChange(c.handleIdentity)

	// If someone is already signed in by the time the coordinator is
	// wired, treat that as the first transition.
	if current := sess.Current(); current != nil {
		c.handleIdentity(current)
	}
	return c
}

// handleIdentity reacts to one identity transition. Repeated identical
// events are dropped by id, so two consecutive "signed in as X"
// notifications cannot double-subscribe.
func (c *Coordinator) handleIdentity(ident *models.Identity) {
	var id uuid.UUID
	if ident != nil {
		id = ident.ID
	}

	c.mu.Lock()
	prev := c.lastID
	if id == prev {
		c.mu.Unlock()
		return
	}
	c.lastID = id
	c.mu.Unlock()

	ctx := context.Background()

	if ident == nil {
		c.logger.Info("identity cleared, stopping subscriptions")
		c.directory.Stop()
		if err := c.channel.SelectPeer(ctx, nil); err != nil {
			c.logger.Error("deselect on logout failed", zap.Error(err))
		}
		return
	}

	// Direct user-to-user switch: tear the old user's state down
	// before starting the new one.
	if prev != uuid.Nil {
		c.directory.Stop()
		if err := c.channel.SelectPeer(ctx, nil); err != nil {
			c.logger.Error("deselect on identity switch failed", zap.Error(err))
		}
	}

	c.logger.Info("identity established, starting contact directory",
		zap.String("user_id", id.String()),
	)
	if err := c.directory.Start(ctx, ident); err != nil {
		c.logger.Error("contact directory start failed", zap.Error(err))
	}
}
