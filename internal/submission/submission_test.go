package submission_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
	"github.com/Simoroui/autotech-file-service-sub001/internal/pricing"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
	"github.com/Simoroui/autotech-file-service-sub001/internal/submission"
	"github.com/Simoroui/autotech-file-service-sub001/internal/testsupport"
)

var (
	owner    = models.Actor{UserID: "owner-1", Role: models.RoleClient}
	stranger = models.Actor{UserID: "owner-2", Role: models.RoleClient}
	admin    = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	store  *storage.LocalStorage
	blobs  *testsupport.MemoryBlobStore
	feed   *notifications.Service
	events *testsupport.RecordingPublisher
	svc    *submission.Service
}

func setup(t *testing.T) *fixture {
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
		svc:    submission.NewService(store, blobs, pricing.Default(), feed, events, submission.Options{}, logger),
	}
}

func upload(name string, data []byte) submission.Upload {
	return submission.Upload{Filename: name, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func TestSubmitCreatesPendingRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, owner, submission.Request{
		Upload:  upload("golf.BIN", []byte("ecu-bytes")),
		Options: []string{"stage1", "DPF Off", "stage1"},
		Vehicle: models.Vehicle{Make: " Volkswagen ", Model: "Golf", ECUType: "EDC17"},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.UserID, rec.OwnerID)
	assert.Equal(t, models.StatusPending, rec.Status)
	require.Len(t, rec.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, rec.StatusHistory[0].Status)
	assert.Equal(t, map[string]int{"stage1": 50, "dpf_off": 30}, rec.Options)
	assert.Equal(t, 80, rec.TotalCredits)
	assert.Equal(t, "Volkswagen", rec.Vehicle.Make)
	assert.Equal(t, "ecu/owner-1/"+rec.ID+"/original.bin", rec.FileInfo.OriginalFilePath)

	obj, ok := f.blobs.Object(rec.FileInfo.OriginalFilePath)
	require.True(t, ok)
	assert.Equal(t, []byte("ecu-bytes"), obj.Data)

	require.Len(t, f.events.Events(), 1)
	evt := f.events.Events()[0]
	assert.Equal(t, services.SubjectFileUploaded, evt.Subject)
	assert.Equal(t, rec.ID, evt.Payload.(services.FileUploadedEvent).FileID)

	stored, err := f.store.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Status, stored.LastStatus())
}

func TestSubmitValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := map[string]submission.Request{
		"no options":     {Upload: upload("a.bin", []byte("x"))},
		"unknown option": {Upload: upload("a.bin", []byte("x")), Options: []string{"warp_drive"}},
		"empty file":     {Upload: upload("a.bin", nil), Options: []string{"stage1"}},
		"no name":        {Upload: upload("", []byte("x")), Options: []string{"stage1"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, owner, req)
			assert.True(t, apperrors.Is(err, apperrors.KindValidation), "got %v", err)
		})
	}
	assert.Empty(t, f.blobs.Names())
}

func TestSubmitBlobFailure(t *testing.T) {
	f := setup(t)
	f.blobs.PutErr = errors.New("minio down")

	_, err := f.svc.Submit(context.Background(), owner, submission.Request{
		Upload:  upload("a.bin", []byte("x")),
		Options: []string{"stage1"},
	})
	assert.True(t, apperrors.Is(err, apperrors.KindUpstream))

	files, err := f.store.ListFiles(context.Background(), models.FileFilter{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGetFlagsCreditsMismatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec := testsupport.SeedFile(t, f.store, owner.UserID)
	got, err := f.svc.Get(ctx, owner, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.CreditsMismatch)

	now := time.Now().UTC()
	bad := &models.FileRecord{
		ID:            uuid.NewString(),
		OwnerID:       owner.UserID,
		Status:        models.StatusPending,
		StatusHistory: []models.StatusEntry{{Status: models.StatusPending, Timestamp: now}},
		Options:       map[string]int{"stage1": 50, "egr_off": 20},
		TotalCredits:  60,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.CreateFile(ctx, bad))

	got, err = f.svc.Get(ctx, owner, bad.ID)
	require.NoError(t, err)
	assert.True(t, got.CreditsMismatch)
	assert.Equal(t, 60, got.TotalCredits)

	// Priced under an older table: consistent with itself, so not flagged.
	old := &models.FileRecord{
		ID:            uuid.NewString(),
		OwnerID:       owner.UserID,
		Status:        models.StatusPending,
		StatusHistory: []models.StatusEntry{{Status: models.StatusPending, Timestamp: now}},
		Options:       map[string]int{"stage1": 45, "retired_option": 10},
		TotalCredits:  55,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.CreateFile(ctx, old))
	got, err = f.svc.Get(ctx, owner, old.ID)
	require.NoError(t, err)
	assert.False(t, got.CreditsMismatch)
}

func TestGetAndListAccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mine := testsupport.SeedFile(t, f.store, owner.UserID)
	testsupport.SeedFile(t, f.store, stranger.UserID)

	_, err := f.svc.Get(ctx, stranger, mine.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	list, err := f.svc.List(ctx, owner, models.FileFilter{OwnerID: stranger.UserID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	all, err := f.svc.List(ctx, admin, models.FileFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(ctx, admin, models.FileFilter{Status: "archived"})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestModifiedFileRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, owner, submission.Request{
		Upload:  upload("golf.bin", []byte("original")),
		Options: []string{"stage1"},
	})
	require.NoError(t, err)

	_, err = f.svc.OpenModified(ctx, owner, rec.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = f.svc.UploadModified(ctx, owner, rec.ID, upload("golf_stage1.bin", []byte("tuned")))
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	updated, err := f.svc.UploadModified(ctx, admin, rec.ID, upload("golf_stage1.bin", []byte("tuned")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.FileInfo.ModifiedFilePath, "ecu/owner-1/"+rec.ID+"/modified-"))
	assert.True(t, strings.HasSuffix(updated.FileInfo.ModifiedFilePath, ".bin"))
	require.NotNil(t, updated.FileInfo.ModifiedUploadedAt)

	dl, err := f.svc.OpenModified(ctx, owner, rec.ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("tuned"), data)
	assert.Equal(t, "golf_stage1.bin", dl.Filename)

	unread, err := f.feed.UnreadCount(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestOpenOriginalRefusesInfected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, owner, submission.Request{
		Upload:  upload("golf.bin", []byte("original")),
		Options: []string{"stage1"},
	})
	require.NoError(t, err)

	dl, err := f.svc.OpenOriginal(ctx, admin, rec.ID)
	require.NoError(t, err)
	require.NoError(t, dl.Body.Close())
	assert.Equal(t, "golf.bin", dl.Filename)

	require.NoError(t, f.store.UpdateScanStatus(ctx, rec.ID, models.ScanInfected))
	_, err = f.svc.OpenOriginal(ctx, owner, rec.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

type failingModifiedStore struct {
	*storage.LocalStorage
}

func (failingModifiedStore) SetModifiedFile(context.Context, string, string, string, time.Time) (*models.FileRecord, error) {
	return nil, errors.New("db down")
}

func TestUploadModifiedStoreFailureKeepsObjects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	rec, err := f.svc.Submit(ctx, owner, submission.Request{
		Upload:  upload("golf.bin", []byte("original")),
		Options: []string{"stage1"},
	})
	require.NoError(t, err)
	first, err := f.svc.UploadModified(ctx, admin, rec.ID, upload("golf_stage1.bin", []byte("tuned v1")))
	require.NoError(t, err)

	broken := submission.NewService(failingModifiedStore{f.store}, f.blobs, pricing.Default(), f.feed, f.events, submission.Options{}, logger)
	_, err = broken.UploadModified(ctx, admin, rec.ID, upload("golf_stage1.bin", []byte("tuned v2")))
	require.Error(t, err)

	names := f.blobs.Names()
	assert.Len(t, names, 2, "original plus the first modified file, no orphan")
	kept, ok := f.blobs.Object(first.FileInfo.ModifiedFilePath)
	require.True(t, ok)
	assert.Equal(t, []byte("tuned v1"), kept.Data)

	dl, err := f.svc.OpenModified(ctx, owner, rec.ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("tuned v1"), data)
}

func TestUploadModifiedReplacesPreviousObject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rec, err := f.svc.Submit(ctx, owner, submission.Request{
		Upload:  upload("golf.bin", []byte("original")),
		Options: []string{"stage1"},
	})
	require.NoError(t, err)
	first, err := f.svc.UploadModified(ctx, admin, rec.ID, upload("golf_stage1.bin", []byte("v1")))
	require.NoError(t, err)
	second, err := f.svc.UploadModified(ctx, admin, rec.ID, upload("golf_stage1.hex", []byte("v2")))
	require.NoError(t, err)

	assert.NotEqual(t, first.FileInfo.ModifiedFilePath, second.FileInfo.ModifiedFilePath)
	_, ok := f.blobs.Object(first.FileInfo.ModifiedFilePath)
	assert.False(t, ok)
	current, ok := f.blobs.Object(second.FileInfo.ModifiedFilePath)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), current.Data)
	assert.Len(t, f.blobs.Names(), 2)
}
