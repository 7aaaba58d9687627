package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/session"
	"github.com/lalith-99/echodm/internal/store"
	"github.com/lalith-99/echodm/internal/validate"
	"go.uber.org/zap"
)

// ThreadWindow caps the live thread view at the newest 50 messages.
// This is both the performance bound and a deliberate simplification:
// there is no older-message pagination.
const ThreadWindow = 50

// Uploader is the slice of the upload gateway the channel needs for
// message images.
type Uploader interface {
	Upload(ctx context.Context, input string) (string, error)
}

// Channel maintains the one live message subscription for the
// currently selected peer and handles sending.
//
// States: idle (no peer, no subscription), loading (peer selected,
// first snapshot pending), live (snapshots flowing). Sending is an
// orthogonal flag — the thread keeps receiving pushes while a send is
// in flight.
//
// The critical invariant is at most one live subscription at a time.
// SelectPeer bumps the owning token and cancels the previous
// subscription before opening the next; every snapshot delivery is
// checked against the current token, so a late push from a stale
// subscription can never repopulate a thread for a peer that is no
// longer selected.
type Channel struct {
	session  *session.Session
	messages store.MessageStore
	uploader Uploader
	notifier Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	selected *models.Identity
	thread   []models.Message
	loading  bool
	sending  bool
	token    uint64
	sub      *store.Subscription[[]models.Message]
	updates  chan struct{}
}

func NewChannel(sess *session.Session, messages store.MessageStore, uploader Uploader, notifier Notifier, logger *zap.Logger) *Channel {
	return &Channel{
		session:  sess,
		messages: messages,
		uploader: uploader,
		notifier: notifier,
		logger:   logger,
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals that the thread, selection or a flag changed.
// Coalesced like Directory.Updates.
func (c *Channel) Updates() <-chan struct{} { return c.updates }

func (c *Channel) signalUpdate() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// SelectPeer switches the active conversation. The previous
// subscription is always cancelled first, then — for a non-nil peer —
// a fresh one is opened filtered to (self, peer). SelectPeer(nil)
// just tears down and goes idle; logout forces exactly that.
func (c *Channel) SelectPeer(ctx context.Context, peer *models.Identity) error {
	self := c.session.Current()

	c.mu.Lock()
	c.token++
	tok := c.token
	prev := c.sub
	c.sub = nil
	c.selected = peer
	c.thread = nil
	c.loading = false
	c.mu.Unlock()
	c.signalUpdate()

	if prev != nil {
		prev.Cancel()
	}

	if peer == nil {
		return nil
	}
	if self == nil {
		c.logger.Warn("peer selected with no signed-in identity")
		return chaterr.New(chaterr.KindAuth, "You must be logged in to chat")
	}

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
	c.signalUpdate()

	sub, err := c.messages.WatchThread(ctx, self.ID, peer.ID, ThreadWindow)
	if err != nil {
		c.mu.Lock()
		if c.token == tok {
			c.loading = false
		}
		c.mu.Unlock()
		c.notifier.Notify("Error loading messages")
		return chaterr.Wrap(chaterr.KindSubscription, "Error loading messages", err)
	}

	c.mu.Lock()
	if c.token != tok {
		// Another SelectPeer raced the establishment; this handle
		// lost and must not go live.
		c.mu.Unlock()
		sub.Cancel()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	c.logger.Debug("thread subscription opened",
		zap.String("peer_id", peer.ID.String()),
	)
	go c.consume(tok, sub)
	return nil
}

func (c *Channel) consume(tok uint64, sub *store.Subscription[[]models.Message]) {
	for {
		select {
		case <-sub.Done():
			return
		case err := <-sub.Err():
			c.logger.Error("thread subscription failed", zap.Error(err))
			c.mu.Lock()
			if c.token == tok {
				c.loading = false
			}
			c.mu.Unlock()
			c.signalUpdate()
			c.notifier.Notify(chaterr.Message(err, "Error loading messages"))
			return
		case snapshot := <-sub.Snapshots():
			c.apply(tok, snapshot)
		}
	}
}

// apply replaces the thread wholesale with a fresh snapshot. The
// snapshot is re-sorted here rather than trusted: ordering comes from
// CreatedAt, not arrival order, and the store's at-least-once feed
// may deliver refreshes out of order.
func (c *Channel) apply(tok uint64, snapshot []models.Message) {
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})
	if len(snapshot) > ThreadWindow {
		snapshot = snapshot[len(snapshot)-ThreadWindow:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != tok {
		return
	}
	c.thread = snapshot
	c.loading = false
	c.signalUpdate()
}

// Send validates, optionally uploads the image, and persists the
// message. It never appends locally: the sender's own view updates
// when the live subscription pushes the stored document back, so the
// UI can never show a message the store disagrees about.
func (c *Channel) Send(ctx context.Context, text, imageData string) error {
	self := c.session.Current()
	c.mu.Lock()
	peer := c.selected
	c.mu.Unlock()

	if self == nil {
		return chaterr.New(chaterr.KindAuth, "You must be logged in to chat")
	}
	if peer == nil {
		return chaterr.Validation("No conversation selected")
	}

	trimmed := strings.TrimSpace(text)
	hasText := trimmed != ""
	hasImage := imageData != ""

	if !hasText && !hasImage {
		return chaterr.Validation("Message must contain either text or image")
	}
	if hasText {
		if reason := validate.MessageText(trimmed); reason != "" {
			return chaterr.Validation(reason)
		}
	}

	c.setSending(true)
	defer c.setSending(false)

	imageURL := ""
	if hasImage {
		url, err := c.uploader.Upload(ctx, imageData)
		if err != nil {
			// No message record is written on upload failure — an
			// orphan message with a broken image is worse than none.
			return err
		}
		imageURL = url
	}

	if _, err := c.messages.Append(ctx, self.ID, peer.ID, trimmed, imageURL); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

func (c *Channel) setSending(v bool) {
	c.mu.Lock()
	c.sending = v
	c.mu.Unlock()
	c.signalUpdate()
}

// Thread returns a copy of the current ordered thread.
func (c *Channel) Thread() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.thread))
	copy(out, c.thread)
	return out
}

// SelectedPeer returns the active peer, or nil when idle.
func (c *Channel) SelectedPeer() *models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Loading reports whether the first snapshot for the selected peer is
// still pending.
func (c *Channel) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Sending reports whether a send is in flight.
func (c *Channel) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}
