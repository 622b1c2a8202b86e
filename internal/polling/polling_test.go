package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Simoroui/autotech-file-service-sub001/internal/client"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func comment(id, author, text string, at time.Time) models.CommentView {
	return models.CommentView{Comment: models.Comment{ID: id, AuthorID: author, Text: text, CreatedAt: at}}
}

type fakeFiles struct {
	mu    sync.Mutex
	file  client.FileView
	err   error
	calls int
}

func (f *fakeFiles) GetFile(ctx context.Context, fileID string) (*client.FileView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := f.file
	out.Comments = append([]models.CommentView(nil), f.file.Comments...)
	return &out, nil
}

func (f *fakeFiles) set(status models.FileStatus, comments ...models.CommentView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file.Status = status
	f.file.Comments = comments
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFeed struct {
	mu   sync.Mutex
	feed notifications.Feed
}

func (f *fakeFeed) Notifications(ctx context.Context) (*notifications.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.feed
	out.Notifications = append([]models.Notification(nil), f.feed.Notifications...)
	return &out, nil
}

func unread(ids ...string) []models.Notification {
	out := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Notification{ID: id, UserID: "u1", Type: models.NotificationMessage})
	}
	return out
}

func TestCooldownAllowsOncePerWindow(t *testing.T) {
	c := NewCooldown(30 * time.Second)
	assert.True(t, c.Allow(t0))
	assert.False(t, c.Allow(t0.Add(10*time.Second)))
	assert.False(t, c.Allow(t0.Add(29*time.Second)))
	assert.True(t, c.Allow(t0.Add(31*time.Second)))
}

func TestCooldownZeroWindowNeverBlocks(t *testing.T) {
	c := NewCooldown(0)
	for i := 0; i < 5; i++ {
		assert.True(t, c.Allow(t0))
	}
}

func TestThreadReconcileReplacesTemporary(t *testing.T) {
	th := NewThread(0)
	th.Seed([]models.CommentView{comment("c1", "expert", "hello", t0)})
	th.AddTemporary("u1", "thanks", false, t0.Add(time.Second))
	require.Equal(t, 1, th.Pending())

	fresh := th.Reconcile([]models.CommentView{
		comment("c1", "expert", "hello", t0),
		comment("c2", "u1", "thanks", t0.Add(2*time.Second)),
	})
	assert.Empty(t, fresh)
	assert.Equal(t, 0, th.Pending())

	entries := th.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		_, ok := e.(Confirmed)
		assert.True(t, ok)
	}
}

func TestThreadReconcileRemovesOneTemporaryPerArrival(t *testing.T) {
	th := NewThread(0)
	th.AddTemporary("u1", "ok", false, t0)
	th.AddTemporary("u1", "ok", false, t0.Add(time.Second))

	th.Reconcile([]models.CommentView{comment("c1", "u1", "ok", t0.Add(time.Second))})
	assert.Equal(t, 1, th.Pending())

	entries := th.Entries()
	require.Len(t, entries, 2)
	_, isConfirmed := entries[0].(Confirmed)
	_, isTemp := entries[1].(Temporary)
	assert.True(t, isConfirmed)
	assert.True(t, isTemp)
}

func TestThreadReconcileRequiresFullMatch(t *testing.T) {
	tests := []struct {
		name    string
		fetched models.CommentView
	}{
		{"other author", comment("c1", "u2", "hi", t0)},
		{"other text", comment("c1", "u1", "hi!", t0)},
		{"outside window", comment("c1", "u1", "hi", t0.Add(3*time.Minute))},
		{"image mismatch", models.CommentView{Comment: models.Comment{ID: "c1", AuthorID: "u1", Text: "hi", ImagePath: "comments/f/c1.png", CreatedAt: t0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThread(0)
			th.AddTemporary("u1", "hi", false, t0)
			fresh := th.Reconcile([]models.CommentView{tt.fetched})
			assert.Len(t, fresh, 1)
			assert.Equal(t, 1, th.Pending())
		})
	}
}

func TestThreadPollerSeedsThenAlerts(t *testing.T) {
	files := &fakeFiles{}
	files.set(models.StatusPending, comment("c1", "u1", "first", t0))

	var alerts, updates []ThreadUpdate
	p := NewThreadPoller(files, "f1", ThreadConfig{
		Cooldown: 30 * time.Second,
		OnUpdate: func(u ThreadUpdate) { updates = append(updates, u) },
		OnAlert:  func(u ThreadUpdate) { alerts = append(alerts, u) },
	}, zaptest.NewLogger(t))
	now := t0
	p.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, p.Poll(ctx))
	assert.Empty(t, alerts)
	require.Len(t, updates, 1)

	files.set(models.StatusPending, comment("c1", "u1", "first", t0), comment("c2", "expert", "reply", t0.Add(time.Minute)))
	now = now.Add(4 * time.Second)
	require.NoError(t, p.Poll(ctx))
	require.Len(t, alerts, 1)
	require.Len(t, alerts[0].New, 1)
	assert.Equal(t, "c2", alerts[0].New[0].ID)

	files.set(models.StatusProcessing, comment("c1", "u1", "first", t0), comment("c2", "expert", "reply", t0.Add(time.Minute)))
	now = now.Add(4 * time.Second)
	require.NoError(t, p.Poll(ctx))
	assert.Len(t, alerts, 1, "second alert inside the cooldown")
	require.Len(t, updates, 3)
	assert.True(t, updates[2].StatusChanged)
	assert.Equal(t, models.StatusPending, updates[2].PreviousStatus)

	now = now.Add(31 * time.Second)
	files.set(models.StatusProcessing, comment("c1", "u1", "first", t0), comment("c2", "expert", "reply", t0.Add(time.Minute)), comment("c3", "admin", "done soon", t0.Add(2*time.Minute)))
	require.NoError(t, p.Poll(ctx))
	assert.Len(t, alerts, 2)
}

func TestThreadPollerKeepsStateOnError(t *testing.T) {
	files := &fakeFiles{}
	files.set(models.StatusPending, comment("c1", "u1", "first", t0))
	p := NewThreadPoller(files, "f1", ThreadConfig{}, zaptest.NewLogger(t))

	require.NoError(t, p.Poll(context.Background()))
	files.err = errors.New("timeout")
	assert.Error(t, p.Poll(context.Background()))
	assert.Len(t, p.Thread().Entries(), 1)
}

func TestNotificationPollerAlertsOncePerCooldown(t *testing.T) {
	feed := &fakeFeed{}
	feed.feed.Notifications = unread("n1")

	var alerts, updates []NotificationUpdate
	p := NewNotificationPoller(feed, NotificationConfig{
		OnUpdate: func(u NotificationUpdate) { updates = append(updates, u) },
		OnAlert:  func(u NotificationUpdate) { alerts = append(alerts, u) },
	}, zaptest.NewLogger(t))
	now := t0
	p.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, p.Poll(ctx))
	assert.Empty(t, alerts)

	feed.feed.Notifications = unread("n1", "n2")
	now = now.Add(5 * time.Second)
	require.NoError(t, p.Poll(ctx))
	require.Len(t, alerts, 1)

	feed.feed.Notifications = append(unread("n1", "n2", "n3", "n4"), models.Notification{ID: "n0", Read: true})
	now = now.Add(5 * time.Second)
	require.NoError(t, p.Poll(ctx))
	assert.Len(t, alerts, 1)
	last := updates[len(updates)-1]
	assert.Equal(t, 4, last.Unread)
	assert.Equal(t, "4", last.Badge)
	assert.Len(t, last.New, 2)
}

func TestRunAllStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	files := &fakeFiles{}
	files.set(models.StatusPending)
	feed := &fakeFeed{}
	logger := zaptest.NewLogger(t)

	tp := NewThreadPoller(files, "f1", ThreadConfig{Interval: 5 * time.Millisecond}, logger)
	np := NewNotificationPoller(feed, NotificationConfig{Interval: 5 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAll(ctx, tp, np) }()

	require.Eventually(t, func() bool { return files.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pollers did not stop")
	}
}

func TestThreadDiscard(t *testing.T) {
	th := NewThread(0)
	tmp := th.AddTemporary("u1", "hi", false, t0)
	assert.True(t, th.Discard(tmp.LocalID))
	assert.False(t, th.Discard(tmp.LocalID))
	assert.Equal(t, 0, th.Pending())
}

func TestThreadConfirmIgnoresClockSkew(t *testing.T) {
	th := NewThread(0)
	tmp := th.AddTemporary("u1", "hi", false, t0)
	th.Confirm(tmp.LocalID, "c1")

	fresh := th.Reconcile([]models.CommentView{comment("c1", "u1", "hi", t0.Add(time.Hour))})
	assert.Empty(t, fresh)
	assert.Equal(t, 0, th.Pending())
}

func TestThreadConfirmAfterFetchDropsTemporary(t *testing.T) {
	th := NewThread(0)
	tmp := th.AddTemporary("u1", "hi", false, t0)
	fresh := th.Reconcile([]models.CommentView{comment("c1", "u1", "hi", t0.Add(time.Hour))})
	require.Len(t, fresh, 1)

	th.Confirm(tmp.LocalID, "c1")
	assert.Equal(t, 0, th.Pending())
	assert.Len(t, th.Entries(), 1)
}

func TestThreadConfirmedTemporaryIgnoresLookalikes(t *testing.T) {
	th := NewThread(0)
	tmp := th.AddTemporary("u1", "ok", false, t0)
	th.Confirm(tmp.LocalID, "c2")

	fresh := th.Reconcile([]models.CommentView{comment("c1", "u1", "ok", t0)})
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, th.Pending())
}

func TestThreadUnknownAuthorMatchesOnContent(t *testing.T) {
	th := NewThread(0)
	th.AddTemporary("", "hi", false, t0)
	fresh := th.Reconcile([]models.CommentView{comment("c1", "u1", "hi", t0)})
	assert.Empty(t, fresh)
	assert.Equal(t, 0, th.Pending())
}

func TestThreadSeedConfirmsEarlyTemporaries(t *testing.T) {
	th := NewThread(0)
	th.AddTemporary("u1", "sent before first fetch", false, t0)
	th.Seed([]models.CommentView{comment("c1", "u1", "sent before first fetch", t0)})
	assert.Equal(t, 0, th.Pending())
	assert.Len(t, th.Entries(), 1)
}
