package chat

import (
	"context"
	"testing"
	"time"

	"github.com/lalith-99/echodm/internal/chaterr"
	"github.com/lalith-99/echodm/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChannel(t *testing.T) (*Channel, *fakeMessageStore, *fakeIdentityStore, *models.Identity, *recordingNotifier) {
	t.Helper()
	ids := newFakeIdentityStore()
	sess, self := signedInSession(t, ids, "alice@example.com", "alice")
	ms := newFakeMessageStore()
	notifier := &recordingNotifier{}
	ch := NewChannel(sess, ms, &fakeUploader{}, notifier, zap.NewNop())
	return ch, ms, ids, self, notifier
}

func TestSelectPeerKeepsAtMostOneSubscription(t *testing.T) {
	ch, ms, ids, _, _ := newTestChannel(t)
	ctx := context.Background()

	p1 := addIdentity(ids, "bob@example.com", "bob")
	p2 := addIdentity(ids, "carol@example.com", "carol")

	require.NoError(t, ch.SelectPeer(ctx, p1))
	require.NoError(t, ch.SelectPeer(ctx, p2))
	require.NoError(t, ch.SelectPeer(ctx, p1))

	assert.Equal(t, 3, ms.watchCalls)

	// Every subscription but the newest must be cancelled.
	for i := 0; i < 2; i++ {
		select {
		case <-ms.sub(i).Done():
		default:
			t.Fatalf("subscription %d still live after peer switch", i)
		}
	}
	select {
	case <-ms.sub(2).Done():
		t.Fatal("active subscription was cancelled")
	default:
	}

	// Deselecting leaves zero live subscriptions.
	require.NoError(t, ch.SelectPeer(ctx, nil))
	select {
	case <-ms.sub(2).Done():
	default:
		t.Fatal("subscription still live after deselect")
	}
	assert.Nil(t, ch.SelectedPeer())
}

func TestStalePushAfterSwitchDoesNotRepopulateThread(t *testing.T) {
	ch, ms, ids, self, _ := newTestChannel(t)
	ctx := context.Background()

	p1 := addIdentity(ids, "bob@example.com", "bob")
	p2 := addIdentity(ids, "carol@example.com", "carol")

	require.NoError(t, ch.SelectPeer(ctx, p1))
	sub1 := ms.sub(0)

	old := []models.Message{{SenderID: p1.ID, ReceiverID: self.ID, Text: "from bob", CreatedAt: time.Now()}}
	sub1.Deliver(old)
	waitFor(t, func() bool { return len(ch.Thread()) == 1 }, "first snapshot applied")

	require.NoError(t, ch.SelectPeer(ctx, p2))
	assert.Empty(t, ch.Thread(), "switching peers must clear the thread")

	// A delayed push from the old subscription arrives after the
	// switch. It must not repopulate the thread.
	sub1.Deliver(old)

	fresh := []models.Message{{SenderID: p2.ID, ReceiverID: self.ID, Text: "from carol", CreatedAt: time.Now()}}
	ms.sub(1).Deliver(fresh)
	waitFor(t, func() bool { return len(ch.Thread()) == 1 }, "second snapshot applied")
	assert.Equal(t, "from carol", ch.Thread()[0].Text)

	// And after a full deselect, a late push changes nothing.
	require.NoError(t, ch.SelectPeer(ctx, nil))
	sub1.Deliver(old)
	ms.sub(1).Deliver(fresh)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ch.Thread())
}

func TestThreadOrderedByCreatedAt(t *testing.T) {
	ch, ms, ids, self, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	base := time.Now()
	scrambled := []models.Message{
		{SenderID: self.ID, ReceiverID: peer.ID, Text: "third", CreatedAt: base.Add(3 * time.Second)},
		{SenderID: peer.ID, ReceiverID: self.ID, Text: "first", CreatedAt: base.Add(1 * time.Second)},
		{SenderID: self.ID, ReceiverID: peer.ID, Text: "second", CreatedAt: base.Add(2 * time.Second)},
	}
	ms.sub(0).Deliver(scrambled)

	waitFor(t, func() bool { return len(ch.Thread()) == 3 }, "snapshot applied")
	thread := ch.Thread()
	assert.Equal(t, "first", thread[0].Text)
	assert.Equal(t, "second", thread[1].Text)
	assert.Equal(t, "third", thread[2].Text)
}

func TestThreadTruncatedToWindow(t *testing.T) {
	ch, ms, ids, self, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	base := time.Now()
	snapshot := make([]models.Message, 0, ThreadWindow+10)
	for i := 0; i < ThreadWindow+10; i++ {
		snapshot = append(snapshot, models.Message{
			SenderID:   self.ID,
			ReceiverID: peer.ID,
			Text:       "msg",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	ms.sub(0).Deliver(snapshot)

	waitFor(t, func() bool { return len(ch.Thread()) == ThreadWindow }, "window applied")
	thread := ch.Thread()
	// The newest messages survive truncation, not the oldest.
	assert.Equal(t, base.Add(10*time.Second).Unix(), thread[0].CreatedAt.Unix())
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	ch, ms, ids, _, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	err := ch.Send(ctx, "   ", "")
	assert.Equal(t, chaterr.KindValidation, chaterr.KindOf(err))
	assert.Zero(t, ms.appendCalls, "validation failure must not reach the store")
}

func TestSendRejectsWithoutSelectedPeer(t *testing.T) {
	ch, ms, _, _, _ := newTestChannel(t)

	err := ch.Send(context.Background(), "hi", "")
	assert.Equal(t, chaterr.KindValidation, chaterr.KindOf(err))
	assert.Zero(t, ms.appendCalls)
}

func TestSendRejectsOverlongText(t *testing.T) {
	ch, ms, ids, _, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	err := ch.Send(ctx, string(long), "")
	assert.Equal(t, chaterr.KindValidation, chaterr.KindOf(err))
	assert.Zero(t, ms.appendCalls)
}

func TestSendImageOnlyPersistsEmptyText(t *testing.T) {
	ch, ms, ids, self, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	err := ch.Send(ctx, "", "data:image/png;base64,AAAA")
	require.NoError(t, err)

	appended := ms.appendedMessages()
	require.Len(t, appended, 1)
	assert.Equal(t, self.ID, appended[0].SenderID)
	assert.Equal(t, peer.ID, appended[0].ReceiverID)
	assert.Equal(t, "", appended[0].Text)
	assert.Equal(t, "https://cdn.example.com/uploaded.png", appended[0].Image)
}

func TestSendUploadFailureWritesNoMessage(t *testing.T) {
	ids := newFakeIdentityStore()
	sess, _ := signedInSession(t, ids, "alice@example.com", "alice")
	ms := newFakeMessageStore()
	uploader := &fakeUploader{err: chaterr.New(chaterr.KindUpload, "Image upload failed")}
	ch := NewChannel(sess, ms, uploader, &recordingNotifier{}, zap.NewNop())

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(context.Background(), peer))

	err := ch.Send(context.Background(), "", "data:image/png;base64,AAAA")
	assert.Equal(t, chaterr.KindUpload, chaterr.KindOf(err))
	assert.Zero(t, ms.appendCalls, "no orphan message after a failed upload")
}

func TestSendThenPushScenario(t *testing.T) {
	ch, ms, ids, self, _ := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))

	earlier := models.Message{
		SenderID: peer.ID, ReceiverID: self.ID,
		Text: "hello alice", CreatedAt: time.Now().Add(-time.Minute),
	}
	ms.sub(0).Deliver([]models.Message{earlier})
	waitFor(t, func() bool { return len(ch.Thread()) == 1 }, "prior history applied")

	require.NoError(t, ch.Send(ctx, "hi", ""))

	appended := ms.appendedMessages()
	require.Len(t, appended, 1)
	assert.Equal(t, self.ID, appended[0].SenderID)
	assert.Equal(t, peer.ID, appended[0].ReceiverID)
	assert.Equal(t, "hi", appended[0].Text)
	assert.Equal(t, "", appended[0].Image)

	// wait-for-push: the sent message is not in the thread until the
	// subscription delivers it.
	assert.Len(t, ch.Thread(), 1)

	ms.sub(0).Deliver([]models.Message{earlier, appended[0]})
	waitFor(t, func() bool { return len(ch.Thread()) == 2 }, "push applied")
	thread := ch.Thread()
	assert.Equal(t, "hello alice", thread[0].Text)
	assert.Equal(t, "hi", thread[1].Text)
}

func TestSubscriptionErrorClearsLoadingAndNotifies(t *testing.T) {
	ch, ms, ids, _, notifier := newTestChannel(t)
	ctx := context.Background()

	peer := addIdentity(ids, "bob@example.com", "bob")
	require.NoError(t, ch.SelectPeer(ctx, peer))
	assert.True(t, ch.Loading())

	ms.sub(0).Fail(chaterr.New(chaterr.KindSubscription, "Error loading messages"))

	waitFor(t, func() bool { return !ch.Loading() }, "loading cleared on stream failure")
	waitFor(t, func() bool { return len(notifier.all()) == 1 }, "failure surfaced as a notice")
	assert.Equal(t, "Error loading messages", notifier.all()[0])

	// The peer stays selected; retry is the user's call.
	require.NotNil(t, ch.SelectedPeer())
	assert.Equal(t, peer.ID, ch.SelectedPeer().ID)
}
