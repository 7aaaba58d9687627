package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodm/internal/auth"
	"github.com/lalith-99/echodm/internal/middleware"
	"github.com/lalith-99/echodm/internal/models"
	"go.uber.org/zap"
)

// AuthHandler handles signup and login — the only PUBLIC endpoints.
// These don't go through AuthMiddleware because the user doesn't have
// a JWT yet (that's what these endpoints produce).
//
// Signup and login go through the registry rather than straight to the
// store so that the per-user engine (contact subscription, conversation
// state) comes up as a side effect of authenticating.
type AuthHandler struct {
	registry  *Registry
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthHandler(registry *Registry, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		registry:  registry,
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
		logger:    logger,
	}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return.
// The client stores the token and sends it as "Authorization: Bearer
// <token>" on every subsequent request (or as ?token= on the
// WebSocket, which cannot set headers from a browser).
type authResponse struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

// Signup handles POST /v1/auth/signup
//
// Validation (email shape, password policy, username charset) and the
// duplicate-email check live in the session, not here — the binding
// tags only guard against absent fields so the engine stays the single
// source of truth for the rules.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, ident, err := h.registry.SignUp(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := auth.GenerateToken(ident.ID, ident.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: token, User: ident})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, ident, err := h.registry.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := auth.GenerateToken(ident.ID, ident.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token, User: ident})
}

// Logout handles POST /v1/auth/logout (authenticated).
//
// Dropping the engine signs the session out, which cascades through the
// coordinator: contact subscription stopped, conversation deselected,
// thread subscription cancelled. The JWT itself stays valid until it
// expires; a later request with it simply finds no engine and gets 401.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.GetUserID(c)
	h.registry.Drop(userID)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}
