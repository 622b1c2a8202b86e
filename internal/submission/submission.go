// Package submission turns uploaded ECU reads into file records and serves
// the original and modified binaries back.
package submission

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/metrics"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/pricing"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
)

const DefaultMaxFileBytes = 200 << 20

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type Request struct {
	Upload
	Options []string
	Vehicle models.Vehicle
}

type Notifier interface {
	Notify(ctx context.Context, userID string, typ models.NotificationType, message, fileID string) (*models.Notification, error)
}

type Options struct {
	MaxFileBytes int64
}

type Service struct {
	store    storage.FileStore
	blobs    services.BlobStore
	prices   pricing.Table
	notifier Notifier
	events   services.Publisher
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(
	store storage.FileStore,
	blobs services.BlobStore,
	prices pricing.Table,
	notifier Notifier,
	events services.Publisher,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if events == nil {
		events = services.NoopPublisher{}
	}
	if prices == nil {
		prices = pricing.Default()
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		prices:   prices,
		notifier: notifier,
		events:   events,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("submission"),
	}
}

func (s *Service) checkUpload(u Upload) (string, error) {
	name := filepath.Base(strings.TrimSpace(u.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", apperrors.New(apperrors.KindValidation, "a file is required")
	}
	if u.Body == nil || u.Size <= 0 {
		return "", apperrors.New(apperrors.KindValidation, "the uploaded file is empty")
	}
	if u.Size > s.opts.MaxFileBytes {
		return "", apperrors.Newf(apperrors.KindValidation, "file too large: %s", name)
	}
	return name, nil
}

// OwnerPrefix is the object prefix holding every ECU file of ownerID.
func OwnerPrefix(ownerID string) string {
	return "ecu/" + ownerID + "/"
}

func objectName(ownerID, fileID, kind, filename string) string {
	return fmt.Sprintf("%s%s/%s%s", OwnerPrefix(ownerID), fileID, kind, strings.ToLower(filepath.Ext(filename)))
}

// Submit stores the upload and creates a pending record priced from the
// price table.
func (s *Service) Submit(ctx context.Context, actor models.Actor, req Request) (*models.FileRecord, error) {
	if actor.UserID == "" {
		return nil, apperrors.New(apperrors.KindAuth, "unauthenticated")
	}
	name, err := s.checkUpload(req.Upload)
	if err != nil {
		return nil, err
	}
	costs, total, err := s.prices.Price(req.Options)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &models.FileRecord{
		ID:      uuid.NewString(),
		OwnerID: actor.UserID,
		Vehicle: models.Vehicle{
			Make:    strings.TrimSpace(req.Vehicle.Make),
			Model:   strings.TrimSpace(req.Vehicle.Model),
			ECUType: strings.TrimSpace(req.Vehicle.ECUType),
		},
		Status:        models.StatusPending,
		StatusHistory: []models.StatusEntry{{Status: models.StatusPending, Timestamp: now}},
		Options:       costs,
		TotalCredits:  total,
		FileInfo: models.FileInfo{
			OriginalName: name,
			Size:         req.Size,
		},
		ScanStatus:         models.ScanPending,
		DiscussionComments: []models.Comment{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	rec.FileInfo.OriginalFilePath = objectName(rec.OwnerID, rec.ID, "original", name)

	log := s.logger.With(zap.String("file_id", rec.ID), zap.String("owner", rec.OwnerID))

	if err := s.blobs.Put(ctx, rec.FileInfo.OriginalFilePath, req.Body, req.Size, services.ContentTypeFor(name)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, err, "failed to upload file")
	}
	if err := s.store.CreateFile(ctx, rec); err != nil {
		if derr := s.blobs.Delete(ctx, rec.FileInfo.OriginalFilePath); derr != nil {
			log.Warn("failed to remove orphaned upload", zap.Error(derr))
		}
		return nil, err
	}

	metrics.FilesSubmitted.Inc()
	log.Info("file submitted", zap.String("name", name), zap.Int("credits", total))

	if err := s.events.PublishEvent(services.SubjectFileUploaded, services.FileUploadedEvent{
		FileID:     rec.ID,
		OwnerID:    rec.OwnerID,
		ObjectName: rec.FileInfo.OriginalFilePath,
		Size:       rec.FileInfo.Size,
		UploadedAt: now,
	}); err != nil {
		log.Warn("failed to publish upload event", zap.Error(err))
	}
	return rec, nil
}

// audit flags records whose stored total is not the sum of the option costs
// stored with them. Later price changes don't affect older records.
func (s *Service) audit(rec *models.FileRecord) {
	if pricing.Sum(rec.Options) == rec.TotalCredits {
		rec.CreditsMismatch = false
		return
	}
	if !rec.CreditsMismatch {
		metrics.CreditsMismatches.Inc()
		s.logger.Warn("stored credits disagree with option costs",
			zap.String("file_id", rec.ID),
			zap.Int("stored", rec.TotalCredits),
			zap.Int("options_sum", pricing.Sum(rec.Options)),
		)
	}
	rec.CreditsMismatch = true
}

// Get returns the record if actor may see it.
func (s *Service) Get(ctx context.Context, actor models.Actor, fileID string) (*models.FileRecord, error) {
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !rec.AccessibleBy(actor) {
		return nil, apperrors.New(apperrors.KindForbidden, "you don't have access to this file")
	}
	s.audit(rec)
	return rec, nil
}

// List returns the caller's files. Staff see every file.
func (s *Service) List(ctx context.Context, actor models.Actor, filter models.FileFilter) ([]models.FileRecord, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown status %q", filter.Status)
	}
	if !actor.IsStaff() {
		filter.OwnerID = actor.UserID
	}
	files, err := s.store.ListFiles(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range files {
		s.audit(&files[i])
	}
	return files, nil
}

// UploadModified attaches the tuned binary to a file. Staff only.
func (s *Service) UploadModified(ctx context.Context, actor models.Actor, fileID string, u Upload) (*models.FileRecord, error) {
	if !actor.IsStaff() {
		return nil, apperrors.New(apperrors.KindForbidden, "only staff can upload modified files")
	}
	name, err := s.checkUpload(u)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// Each upload gets its own object so a failed update never touches the
	// bytes the record still points to.
	object := objectName(rec.OwnerID, rec.ID, "modified-"+uuid.NewString(), name)
	log := s.logger.With(zap.String("file_id", fileID))

	if err := s.blobs.Put(ctx, object, u.Body, u.Size, services.ContentTypeFor(name)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, err, "failed to upload file")
	}
	updated, err := s.store.SetModifiedFile(ctx, fileID, object, name, s.now())
	if err != nil {
		if derr := s.blobs.Delete(ctx, object); derr != nil {
			log.Warn("failed to remove orphaned modified file", zap.String("object", object), zap.Error(derr))
		}
		return nil, err
	}
	log.Info("modified file uploaded", zap.String("by", actor.UserID), zap.String("object", object))

	if prev := rec.FileInfo.ModifiedFilePath; prev != "" && prev != object {
		if err := s.blobs.Delete(ctx, prev); err != nil {
			log.Warn("failed to remove replaced modified file", zap.String("object", prev), zap.Error(err))
		}
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("The modified version of %s is ready to download", rec.FileInfo.OriginalName)
		if _, err := s.notifier.Notify(ctx, rec.OwnerID, models.NotificationStatusUpdate, msg, fileID); err != nil {
			log.Warn("failed to notify owner", zap.Error(err))
		}
	}
	return updated, nil
}

// Download is an open object plus the name it should be saved under.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	Filename    string
	ContentType string
}

// OpenOriginal streams the customer's upload.
func (s *Service) OpenOriginal(ctx context.Context, actor models.Actor, fileID string) (*Download, error) {
	rec, err := s.Get(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if rec.ScanStatus == models.ScanInfected {
		return nil, apperrors.New(apperrors.KindForbidden, "file failed the virus scan")
	}
	return s.open(ctx, rec.FileInfo.OriginalFilePath, rec.FileInfo.OriginalName)
}

// OpenModified streams the returned file; NotFound until staff upload one.
func (s *Service) OpenModified(ctx context.Context, actor models.Actor, fileID string) (*Download, error) {
	rec, err := s.Get(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if rec.FileInfo.ModifiedFilePath == "" {
		return nil, apperrors.New(apperrors.KindNotFound, "no modified file has been uploaded yet")
	}
	name := rec.FileInfo.ModifiedName
	if name == "" {
		name = filepath.Base(rec.FileInfo.ModifiedFilePath)
	}
	return s.open(ctx, rec.FileInfo.ModifiedFilePath, name)
}

func (s *Service) open(ctx context.Context, object, filename string) (*Download, error) {
	body, size, err := s.blobs.Get(ctx, object)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, err, "failed to read file from storage")
	}
	return &Download{
		Body:        body,
		Size:        size,
		Filename:    filename,
		ContentType: services.ContentTypeFor(filename),
	}, nil
}

// Prices exposes the option table for clients building a submission form.
func (s *Service) Prices() []pricing.Option {
	return s.prices.List()
}
