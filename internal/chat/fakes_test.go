package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/lalith-99/echodm/internal/session"
	"github.com/lalith-99/echodm/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory store fakes. They implement the store contracts directly
// and expose the subscription handles, so tests can push snapshots by
// hand and simulate delayed or failing deliveries.

type fakeIdentityStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]models.Identity
	hashes  map[string]string
	failIDs map[uuid.UUID]bool

	getByIDCalls   int
	getByEmailCall int
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		byID:    make(map[uuid.UUID]models.Identity),
		hashes:  make(map[string]string),
		failIDs: make(map[uuid.UUID]bool),
	}
}

func (f *fakeIdentityStore) Create(ctx context.Context, username, email, passwordHash, pictureURL string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident := models.Identity{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		ProfilePicture: pictureURL,
		CreatedAt:      time.Now(),
	}
	f.byID[ident.ID] = ident
	f.hashes[email] = passwordHash
	return &ident, nil
}

func (f *fakeIdentityStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByIDCalls++
	if f.failIDs[id] {
		return nil, chaterr.New(chaterr.KindSubscription, "resolution failed")
	}
	ident, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

func (f *fakeIdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getByEmailCall++
	for _, ident := range f.byID {
		if ident.Email == email {
			out := ident
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeIdentityStore) CredentialsByEmail(ctx context.Context, email string) (*models.Identity, string, error) {
	ident, err := f.GetByEmail(ctx, email)
	if err != nil || ident == nil {
		return nil, "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return ident, f.hashes[email], nil
}

func (f *fakeIdentityStore) List(ctx context.Context) ([]models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Identity, 0, len(f.byID))
	for _, ident := range f.byID {
		out = append(out, ident)
	}
	return out, nil
}

func (f *fakeIdentityStore) UpdateProfile(ctx context.Context, id uuid.UUID, username, pictureURL string) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	if username != "" {
		ident.Username = username
	}
	if pictureURL != "" {
		ident.ProfilePicture = pictureURL
	}
	f.byID[id] = ident
	return &ident, nil
}

type fakeContactStore struct {
	mu        sync.Mutex
	relations map[uuid.UUID][]models.Contact
	subs      []*store.Subscription[[]models.Contact]

	addCalls   int
	watchCalls int
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{relations: make(map[uuid.UUID][]models.Contact)}
}

func (f *fakeContactStore) Add(ctx context.Context, ownerID, contactID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	f.relations[ownerID] = append(f.relations[ownerID], models.Contact{
		OwnerID:   ownerID,
		ContactID: contactID,
		AddedAt:   time.Now(),
	})
	return nil
}

func (f *fakeContactStore) Exists(ctx context.Context, ownerID, contactID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.relations[ownerID] {
		if c.ContactID == contactID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeContactStore) Watch(ctx context.Context, ownerID uuid.UUID) (*store.Subscription[[]models.Contact], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	sub := store.NewSubscription[[]models.Contact](nil)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeContactStore) lastSub() *store.Subscription[[]models.Contact] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeMessageStore struct {
	mu       sync.Mutex
	appended []models.Message
	subs     []*store.Subscription[[]models.Message]

	appendCalls int
	watchCalls  int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Append(ctx context.Context, senderID, receiverID uuid.UUID, text, imageURL string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	msg := models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		CreatedAt:  time.Now(),
	}
	f.appended = append(f.appended, msg)
	return &msg, nil
}

func (f *fakeMessageStore) WatchThread(ctx context.Context, a, b uuid.UUID, limit int) (*store.Subscription[[]models.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	sub := store.NewSubscription[[]models.Message](nil)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeMessageStore) sub(i int) *store.Subscription[[]models.Message] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeMessageStore) appendedMessages() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Message, len(f.appended))
	copy(out, f.appended)
	return out
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(ctx context.Context, input string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.url != "" {
		return f.url, nil
	}
	return "https://cdn.example.com/uploaded.png", nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	copy(out, n.notices)
	return out
}

// signedInSession creates a session over ids and signs a fresh user in.
func signedInSession(t *testing.T, ids *fakeIdentityStore, email, username string) (*session.Session, *models.Identity) {
	t.Helper()
	sess := session.New(ids, &fakeUploader{}, zap.NewNop())
	ident, err := sess.SignUp(context.Background(), email, "Secret1", username)
	require.NoError(t, err)
	return sess, ident
}

// addIdentity registers a peer identity directly in the fake store.
func addIdentity(ids *fakeIdentityStore, email, username string) *models.Identity {
	ident, _ := ids.Create(context.Background(), username, email, "x", "")
	return ident
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
