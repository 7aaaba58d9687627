package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echodm/internal/middleware"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/store"
	"go.uber.org/zap"
)

// ChatHandler exposes one user's engine over HTTP: contact list,
// conversation selection, message send, profile edits. Every endpoint
// here sits behind AuthMiddleware; the JWT's user id picks the engine
// out of the registry.
type ChatHandler struct {
	registry   *Registry
	identities store.IdentityStore
	logger     *zap.Logger
}

func NewChatHandler(registry *Registry, identities store.IdentityStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		registry:   registry,
		identities: identities,
		logger:     logger,
	}
}

// engine resolves the caller's engine, or writes a 401 and returns nil.
// A valid JWT with no engine means the server restarted or the user
// logged out elsewhere; either way the client has to log in again.
func (h *ChatHandler) engine(c *gin.Context) *Engine {
	eng := h.registry.Get(middleware.GetUserID(c))
	if eng == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, log in again"})
		return nil
	}
	return eng
}

type addContactRequest struct {
	Email string `json:"email" binding:"required"`
}

// AddContact handles POST /v1/contacts
//
// The response is just an ack: the new contact arrives through the
// live contact list (WebSocket or the next GET), same as it would for
// any other change.
func (h *ChatHandler) AddContact(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := eng.Directory.AddContact(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "contact added"})
}

type contactsResponse struct {
	Contacts []models.Identity `json:"contacts"`
	Loading  bool              `json:"loading"`
}

// ListContacts handles GET /v1/contacts — the current snapshot of the
// live contact list, resolved to full profiles.
func (h *ChatHandler) ListContacts(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	c.JSON(http.StatusOK, contactsResponse{
		Contacts: eng.Directory.Contacts(),
		Loading:  eng.Directory.Loading(),
	})
}

type selectPeerRequest struct {
	// PeerID empty or absent means deselect.
	PeerID string `json:"peer_id"`
}

// SelectPeer handles PUT /v1/peer — switches (or closes) the open
// conversation. Selecting the already-selected peer is a no-op that
// keeps the existing thread subscription alive.
func (h *ChatHandler) SelectPeer(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	var req selectPeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var peer *models.Identity
	if req.PeerID != "" {
		id, err := uuid.Parse(req.PeerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
			return
		}
		peer, err = h.identities.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if peer == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
			return
		}
	}

	if err := eng.Channel.SelectPeer(c.Request.Context(), peer); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "peer selected"})
}

type threadResponse struct {
	Peer     *models.Identity `json:"peer"`
	Messages []models.Message `json:"messages"`
	Loading  bool             `json:"loading"`
	Sending  bool             `json:"sending"`
}

// GetThread handles GET /v1/messages — the current window of the open
// conversation, oldest first.
func (h *ChatHandler) GetThread(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	c.JSON(http.StatusOK, threadResponse{
		Peer:     eng.Channel.SelectedPeer(),
		Messages: eng.Channel.Thread(),
		Loading:  eng.Channel.Loading(),
		Sending:  eng.Channel.Sending(),
	})
}

type sendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// SendMessage handles POST /v1/messages
//
// 202, not 201: the write is durable when this returns, but the
// message reaches the thread through the subscription push — the
// client renders it when the snapshot lands, not from this response.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := eng.Channel.Send(c.Request.Context(), req.Text, req.Image); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// ListUsers handles GET /v1/users — every registered profile except the
// caller's own, for the "find people" screen.
func (h *ChatHandler) ListUsers(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	users, err := h.identities.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	self := middleware.GetUserID(c)
	filtered := make([]models.Identity, 0, len(users))
	for _, u := range users {
		if u.ID != self {
			filtered = append(filtered, u)
		}
	}

	c.JSON(http.StatusOK, gin.H{"users": filtered})
}

type updateProfileRequest struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

// UpdateProfile handles PUT /v1/profile — partial update of username
// and/or picture. Inline image data goes through the upload gateway;
// an empty field leaves the stored value alone.
func (h *ChatHandler) UpdateProfile(c *gin.Context) {
	eng := h.engine(c)
	if eng == nil {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := eng.Session.UpdateProfile(c.Request.Context(), req.Username, req.ProfilePicture)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": ident})
}
