package discussion_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/image/bmp"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/discussion"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
	"github.com/Simoroui/autotech-file-service-sub001/internal/testsupport"
)

var (
	owner    = models.Actor{UserID: "owner-1", Role: models.RoleClient}
	stranger = models.Actor{UserID: "owner-2", Role: models.RoleClient}
	admin    = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	expert   = models.Actor{UserID: "expert-1", Role: models.RoleExpert}
)

type stubDirectory map[string]string

func (d stubDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", errors.New("directory unavailable")
	}
	return name, nil
}

type fixture struct {
	store  *storage.LocalStorage
	blobs  *testsupport.MemoryBlobStore
	feed   *notifications.Service
	events *testsupport.RecordingPublisher
	svc    *discussion.Service
	file   *models.FileRecord
}

func setup(t *testing.T, dir discussion.UserDirectory) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := testsupport.NewStore(t)
	blobs := testsupport.NewMemoryBlobStore()
	feed := notifications.NewService(store, nil, logger)
	events := &testsupport.RecordingPublisher{}
	return &fixture{
		store:  store,
		blobs:  blobs,
		feed:   feed,
		events: events,
		svc:    discussion.NewService(store, blobs, feed, events, dir, discussion.Options{}, logger),
		file:   testsupport.SeedFile(t, store, owner.UserID),
	}
}

func TestPostCommentRequiresTextOrImage(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.PostComment(context.Background(), owner, f.file.ID, "   ", nil)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	rec, err := f.store.GetFile(context.Background(), f.file.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.DiscussionComments)
}

func TestPostCommentTrimsAndAppends(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	c, err := f.svc.PostComment(ctx, owner, f.file.ID, "  please add DPF off  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "please add DPF off", c.Text)
	assert.Equal(t, models.RoleClient, c.AuthorRole)

	rec, err := f.store.GetFile(ctx, f.file.ID)
	require.NoError(t, err)
	require.Len(t, rec.DiscussionComments, 1)
	assert.Equal(t, c.ID, rec.DiscussionComments[0].ID)
	assert.Equal(t, []string{services.SubjectFileCommented}, f.events.Subjects())
}

func TestImageOnlyCommentStoresImageAndThumbnail(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	c, err := f.svc.PostComment(ctx, owner, f.file.ID, "", &discussion.ImageUpload{
		Filename: "dash.txt",
		Data:     testsupport.PNG(t, 640, 480),
	})
	require.NoError(t, err)
	assert.Empty(t, c.Text)
	assert.True(t, strings.HasPrefix(c.ImagePath, "comments/"+f.file.ID+"/"))
	assert.True(t, strings.HasSuffix(c.ImagePath, ".png"))

	img, ok := f.blobs.Object(c.ImagePath)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.ContentType)

	require.NotEmpty(t, c.ThumbnailPath)
	thumb, ok := f.blobs.Object(c.ThumbnailPath)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", thumb.ContentType)
}

func TestImageTypeIsSniffedFromContent(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	_, err := f.svc.PostComment(ctx, owner, f.file.ID, "look", &discussion.ImageUpload{
		Filename: "photo.png",
		Data:     []byte("%PDF-1.4 definitely not an image"),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	c, err := f.svc.PostComment(ctx, owner, f.file.ID, "gif", &discussion.ImageUpload{Filename: "x.bin", Data: gifBuf.Bytes()})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(c.ImagePath, ".gif"))

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	c, err = f.svc.PostComment(ctx, owner, f.file.ID, "bmp", &discussion.ImageUpload{Filename: "x", Data: bmpBuf.Bytes()})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(c.ImagePath, ".bmp"))
}

func TestImageSizeLimit(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := testsupport.NewStore(t)
	rec := testsupport.SeedFile(t, store, owner.UserID)
	svc := discussion.NewService(store, testsupport.NewMemoryBlobStore(), nil, nil, nil, discussion.Options{MaxImageBytes: 1024}, logger)

	data := append(testsupport.PNG(t, 2, 2), make([]byte, 2048)...)
	_, err := svc.PostComment(context.Background(), owner, rec.ID, "big", &discussion.ImageUpload{Data: data})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestReadImageStopsPastLimit(t *testing.T) {
	img, err := discussion.ReadImage("big.png", bytes.NewReader(make([]byte, 10_000)), 100)
	require.NoError(t, err)
	assert.Len(t, img.Data, 101)
}

func TestPostCommentAccess(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	_, err := f.svc.PostComment(ctx, stranger, f.file.ID, "hi", nil)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = f.svc.PostComment(ctx, owner, "missing", "hi", nil)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = f.svc.PostComment(ctx, expert, f.file.ID, "on it", nil)
	assert.NoError(t, err)
}

func TestStaffCommentNotifiesOwner(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	_, err := f.svc.PostComment(ctx, admin, f.file.ID, "file is ready", nil)
	require.NoError(t, err)
	_, err = f.svc.PostComment(ctx, owner, f.file.ID, "thanks", nil)
	require.NoError(t, err)

	feed, err := f.feed.Feed(ctx, owner.UserID)
	require.NoError(t, err)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, models.NotificationMessage, feed.Notifications[0].Type)
	assert.Equal(t, f.file.ID, feed.Notifications[0].FileID)
}

func TestListCommentsLabels(t *testing.T) {
	f := setup(t, stubDirectory{"owner-1": "Jane Doe"})
	ctx := context.Background()

	for _, post := range []struct {
		actor models.Actor
		text  string
	}{
		{owner, "first"},
		{admin, "second"},
		{expert, "third"},
	} {
		_, err := f.svc.PostComment(ctx, post.actor, f.file.ID, post.text, nil)
		require.NoError(t, err)
	}

	asOwner, err := f.svc.ListComments(ctx, owner, f.file.ID)
	require.NoError(t, err)
	require.Len(t, asOwner, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{asOwner[0].Text, asOwner[1].Text, asOwner[2].Text})
	assert.Equal(t, "You", asOwner[0].AuthorLabel)
	assert.True(t, asOwner[0].IsOwn)
	assert.Equal(t, "Admin", asOwner[1].AuthorLabel)
	assert.Equal(t, "Expert", asOwner[2].AuthorLabel)

	asAdmin, err := f.svc.ListComments(ctx, admin, f.file.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", asAdmin[0].AuthorLabel)
	assert.Equal(t, "You", asAdmin[1].AuthorLabel)
}

func TestListCommentsDegradesToClient(t *testing.T) {
	f := setup(t, stubDirectory{})
	ctx := context.Background()

	_, err := f.svc.PostComment(ctx, owner, f.file.ID, "hello", nil)
	require.NoError(t, err)

	views, err := f.svc.ListComments(ctx, admin, f.file.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Client", views[0].AuthorLabel)
}

func TestOpenImage(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	png := testsupport.PNG(t, 10, 10)
	c, err := f.svc.PostComment(ctx, owner, f.file.ID, "pic", &discussion.ImageUpload{Data: png})
	require.NoError(t, err)

	body, size, ctype, err := f.svc.OpenImage(ctx, admin, f.file.ID, c.ID, false)
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, png, got)
	assert.Equal(t, int64(len(png)), size)
	assert.Equal(t, "image/png", ctype)

	_, _, _, err = f.svc.OpenImage(ctx, stranger, f.file.ID, c.ID, false)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	_, _, _, err = f.svc.OpenImage(ctx, owner, f.file.ID, "nope", false)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestConcurrentClientAndAdminComments(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	const perAuthor = 10

	posted := map[string][]string{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, actor := range []models.Actor{owner, admin} {
		wg.Add(1)
		go func(actor models.Actor) {
			defer wg.Done()
			for i := 0; i < perAuthor; i++ {
				c, err := f.svc.PostComment(ctx, actor, f.file.ID, fmt.Sprintf("%s #%d", actor.Role, i), nil)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				posted[actor.UserID] = append(posted[actor.UserID], c.ID)
				mu.Unlock()
			}
		}(actor)
	}
	wg.Wait()

	views, err := f.svc.ListComments(ctx, owner, f.file.ID)
	require.NoError(t, err)
	require.Len(t, views, 2*perAuthor)

	rec, err := f.store.GetFile(ctx, f.file.ID)
	require.NoError(t, err)

	got := map[string][]string{}
	for i, v := range views {
		assert.Equal(t, rec.DiscussionComments[i].ID, v.ID, "thread keeps store order")
		got[v.AuthorID] = append(got[v.AuthorID], v.ID)
		switch v.AuthorID {
		case owner.UserID:
			assert.Equal(t, discussion.LabelYou, v.AuthorLabel)
		case admin.UserID:
			assert.Equal(t, discussion.LabelAdmin, v.AuthorLabel)
		}
	}
	// Each author's comments arrive in the order they were sent.
	assert.Equal(t, posted[owner.UserID], got[owner.UserID])
	assert.Equal(t, posted[admin.UserID], got[admin.UserID])
}
