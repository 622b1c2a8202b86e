// Package discussion is the per-file comment thread between a customer and
// the staff working the file.
package discussion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/metrics"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
)

const DefaultMaxImageBytes = 5 << 20

// Labels shown instead of a display name.
const (
	LabelYou    = "You"
	LabelAdmin  = "Admin"
	LabelExpert = "Expert"
	LabelClient = "Client"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ImageUpload is an attachment as received from the client. Filename is only
// informational; the type is sniffed from Data.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// ReadImage reads at most max+1 bytes from r so oversized uploads are
// detected without buffering them whole.
func ReadImage(filename string, r io.Reader, max int64) (*ImageUpload, error) {
	if max <= 0 {
		max = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, err, "failed to read image")
	}
	return &ImageUpload{Filename: filename, Data: data}, nil
}

// UserDirectory resolves display names for comment authors.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID string, typ models.NotificationType, message, fileID string) (*models.Notification, error)
}

type Options struct {
	MaxImageBytes int64
}

type Service struct {
	store     storage.FileStore
	blobs     services.BlobStore
	thumbs    services.Thumbnailer
	notifier  Notifier
	events    services.Publisher
	directory UserDirectory
	opts      Options
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(
	store storage.FileStore,
	blobs services.BlobStore,
	notifier Notifier,
	events services.Publisher,
	directory UserDirectory,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if events == nil {
		events = services.NoopPublisher{}
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		thumbs:    services.Thumbnailer{Width: services.DefaultThumbnailWidth},
		notifier:  notifier,
		events:    events,
		directory: directory,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Named("discussion"),
	}
}

func (s *Service) accessibleFile(ctx context.Context, actor models.Actor, fileID string) (*models.FileRecord, error) {
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !rec.AccessibleBy(actor) {
		return nil, apperrors.New(apperrors.KindForbidden, "you don't have access to this file")
	}
	return rec, nil
}

// PostComment appends a comment to the file's thread. text may be empty only
// when an image is attached.
func (s *Service) PostComment(ctx context.Context, actor models.Actor, fileID, text string, image *ImageUpload) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if image != nil && len(image.Data) == 0 {
		image = nil
	}
	if text == "" && image == nil {
		return nil, apperrors.New(apperrors.KindValidation, "a comment needs text or an image")
	}

	var mtype *mimetype.MIME
	if image != nil {
		if int64(len(image.Data)) > s.opts.MaxImageBytes {
			return nil, apperrors.Newf(apperrors.KindValidation, "image is larger than %d MB", s.opts.MaxImageBytes>>20)
		}
		mtype = mimetype.Detect(image.Data)
		if !allowedImageTypes[mtype.String()] {
			return nil, apperrors.Newf(apperrors.KindValidation, "unsupported image type %s", mtype.String())
		}
	}

	rec, err := s.accessibleFile(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:         uuid.NewString(),
		AuthorID:   actor.UserID,
		AuthorRole: actor.Role,
		Text:       text,
		CreatedAt:  s.now(),
	}
	log := s.logger.With(zap.String("file_id", fileID), zap.String("comment_id", comment.ID))

	var stored []string
	if image != nil {
		comment.ImagePath = fmt.Sprintf("comments/%s/%s%s", fileID, comment.ID, mtype.Extension())
		if err := s.blobs.Put(ctx, comment.ImagePath, bytes.NewReader(image.Data), int64(len(image.Data)), mtype.String()); err != nil {
			return nil, apperrors.Wrap(apperrors.KindUpstream, err, "failed to store image")
		}
		stored = append(stored, comment.ImagePath)

		if thumb, err := s.thumbs.Thumbnail(image.Data); err != nil {
			log.Warn("thumbnail failed", zap.Error(err))
		} else {
			thumbPath := fmt.Sprintf("comments/%s/%s_thumb.jpg", fileID, comment.ID)
			if err := s.blobs.Put(ctx, thumbPath, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
				log.Warn("failed to store thumbnail", zap.Error(err))
			} else {
				comment.ThumbnailPath = thumbPath
				stored = append(stored, thumbPath)
			}
		}
	}

	if _, err := s.store.AppendComment(ctx, fileID, comment); err != nil {
		for _, name := range stored {
			if derr := s.blobs.Delete(ctx, name); derr != nil {
				log.Warn("failed to remove orphaned object", zap.String("object", name), zap.Error(derr))
			}
		}
		return nil, err
	}

	metrics.CommentsPosted.WithLabelValues(string(actor.Role), fmt.Sprint(image != nil)).Inc()
	log.Info("comment posted", zap.String("author", actor.UserID), zap.Bool("image", image != nil))

	if actor.IsStaff() && s.notifier != nil && rec.OwnerID != actor.UserID {
		if _, err := s.notifier.Notify(ctx, rec.OwnerID, models.NotificationMessage, commentMessage(rec, actor), fileID); err != nil {
			log.Warn("failed to notify owner", zap.Error(err))
		}
	}
	if err := s.events.PublishEvent(services.SubjectFileCommented, services.FileCommentedEvent{
		FileID:    fileID,
		OwnerID:   rec.OwnerID,
		CommentID: comment.ID,
		AuthorID:  actor.UserID,
		HasImage:  image != nil,
		CreatedAt: comment.CreatedAt,
	}); err != nil {
		log.Warn("failed to publish comment event", zap.Error(err))
	}

	return &comment, nil
}

func commentMessage(rec *models.FileRecord, actor models.Actor) string {
	who := LabelAdmin
	if actor.Role == models.RoleExpert {
		who = LabelExpert
	}
	name := rec.FileInfo.OriginalName
	if name == "" {
		name = rec.ID
	}
	return fmt.Sprintf("New message from %s on %s", who, name)
}

// ListComments returns the thread in insertion order with author labels
// resolved for requester. Directory failures degrade to "Client".
func (s *Service) ListComments(ctx context.Context, requester models.Actor, fileID string) ([]models.CommentView, error) {
	rec, err := s.accessibleFile(ctx, requester, fileID)
	if err != nil {
		return nil, err
	}
	return s.Views(ctx, requester, rec.DiscussionComments), nil
}

// Views labels comments for requester. Names are looked up once per author.
func (s *Service) Views(ctx context.Context, requester models.Actor, comments []models.Comment) []models.CommentView {
	names := make(map[string]string)
	views := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, models.CommentView{
			Comment:     c,
			AuthorLabel: s.label(ctx, requester, c, names),
			IsOwn:       c.AuthorID == requester.UserID,
		})
	}
	return views
}

func (s *Service) label(ctx context.Context, requester models.Actor, c models.Comment, names map[string]string) string {
	switch {
	case c.AuthorID == requester.UserID:
		return LabelYou
	case c.AuthorRole == models.RoleAdmin:
		return LabelAdmin
	case c.AuthorRole == models.RoleExpert:
		return LabelExpert
	}
	if name, ok := names[c.AuthorID]; ok {
		return name
	}
	name := LabelClient
	if s.directory != nil {
		if n, err := s.directory.DisplayName(ctx, c.AuthorID); err != nil {
			s.logger.Debug("display name lookup failed", zap.String("user_id", c.AuthorID), zap.Error(err))
		} else if strings.TrimSpace(n) != "" {
			name = strings.TrimSpace(n)
		}
	}
	names[c.AuthorID] = name
	return name
}

// OpenImage streams a comment's image, or its thumbnail when thumb is set
// and one exists.
func (s *Service) OpenImage(ctx context.Context, actor models.Actor, fileID, commentID string, thumb bool) (io.ReadCloser, int64, string, error) {
	rec, err := s.accessibleFile(ctx, actor, fileID)
	if err != nil {
		return nil, 0, "", err
	}
	for _, c := range rec.DiscussionComments {
		if c.ID != commentID {
			continue
		}
		name := c.ImagePath
		if thumb && c.ThumbnailPath != "" {
			name = c.ThumbnailPath
		}
		if name == "" {
			return nil, 0, "", apperrors.New(apperrors.KindNotFound, "comment has no image")
		}
		body, size, err := s.blobs.Get(ctx, name)
		if err != nil {
			return nil, 0, "", apperrors.Wrap(apperrors.KindUpstream, err, "failed to read image")
		}
		return body, size, services.ContentTypeFor(name), nil
	}
	return nil, 0, "", apperrors.New(apperrors.KindNotFound, "comment not found")
}
