// Package session owns the current authenticated identity. It is the
// single writer of "who is signed in"; every other component reads it
// or reacts to its change events, never mutates it.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/store"
	"github.com/lalith-99/echodm/internal/validate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Uploader is the slice of the upload gateway the session needs for
// profile pictures.
type Uploader interface {
	Upload(ctx context.Context, input string) (string, error)
}

// Session holds the signed-in identity and publishes identity-changed
// events. Listeners fire on every transition — sign-in, sign-out,
// profile update — in registration order, outside the lock so they
// can safely call back into the session.
type Session struct {
	identities store.IdentityStore
	uploader   Uploader
	logger     *zap.Logger

	mu        sync.Mutex
	current   *models.Identity
	listeners []func(*models.Identity)
}

func New(identities store.IdentityStore, uploader Uploader, logger *zap.Logger) *Session {
	return &Session{
		identities: identities,
		uploader:   uploader,
		logger:     logger,
	}
}

// Current returns the signed-in identity, or nil.
func (s *Session) Current() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnChange registers a listener for identity transitions. Listeners
// registered after sign-in do not receive a synthetic initial event.
func (s *Session) OnChange(fn func(*models.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) setCurrent(ident *models.Identity) {
	s.mu.Lock()
	s.current = ident
	listeners := make([]func(*models.Identity), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ident)
	}
}

// SignUp validates the input, creates the identity and signs it in.
func (s *Session) SignUp(ctx context.Context, email, password, username string) (*models.Identity, error) {
	email = validate.NormalizeEmail(email)
	if reason := validate.Email(email); reason != "" {
		return nil, chaterr.Validation(reason)
	}
	if reason := validate.Password(password); reason != "" {
		return nil, chaterr.Validation(reason)
	}
	if reason := validate.Username(username); reason != "" {
		return nil, chaterr.Validation(reason)
	}

	existing, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check existing identity: %w", err)
	}
	if existing != nil {
		return nil, chaterr.Duplicate("Email already registered")
	}

	// bcrypt generates a unique salt per password; DefaultCost keeps a
	// single hash around 100ms — fast enough for login, slow enough to
	// make brute force expensive.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ident, err := s.identities.Create(ctx, username, email, string(hash), "")
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s.logger.Info("identity created", zap.String("user_id", ident.ID.String()))
	s.setCurrent(ident)
	return ident, nil
}

// SignIn verifies credentials and signs the identity in. Unknown email
// and wrong password produce the same generic failure — a split answer
// would tell an attacker which emails are registered.
func (s *Session) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	email = validate.NormalizeEmail(email)
	if reason := validate.Email(email); reason != "" {
		return nil, chaterr.Validation(reason)
	}

	ident, hash, err := s.identities.CredentialsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up credentials: %w", err)
	}
	if ident == nil {
		return nil, chaterr.New(chaterr.KindAuth, "Invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, chaterr.New(chaterr.KindAuth, "Invalid email or password")
	}

	s.logger.Info("signed in", zap.String("user_id", ident.ID.String()))
	s.setCurrent(ident)
	return ident, nil
}

// SignOut clears the identity and notifies listeners. Safe to call
// when nobody is signed in.
func (s *Session) SignOut() {
	s.mu.Lock()
	wasSignedIn := s.current != nil
	s.mu.Unlock()

	if wasSignedIn {
		s.logger.Info("signed out")
	}
	s.setCurrent(nil)
}

// UpdateProfile edits the signed-in identity's username and/or
// picture. Inline image data is routed through the upload gateway
// first; an already-hosted URL passes through unchanged.
func (s *Session) UpdateProfile(ctx context.Context, username, picture string) (*models.Identity, error) {
	current := s.Current()
	if current == nil {
		return nil, chaterr.New(chaterr.KindAuth, "Not signed in")
	}

	if username != "" {
		if reason := validate.Username(username); reason != "" {
			return nil, chaterr.Validation(reason)
		}
	}

	pictureURL := picture
	if strings.HasPrefix(picture, "data:image/") {
		url, err := s.uploader.Upload(ctx, picture)
		if err != nil {
			return nil, err
		}
		pictureURL = url
	}

	ident, err := s.identities.UpdateProfile(ctx, current.ID, username, pictureURL)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if ident == nil {
		return nil, chaterr.NotFound("Profile no longer exists")
	}

	s.setCurrent(ident)
	return ident, nil
}
