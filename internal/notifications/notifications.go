// Package notifications is the per-user feed of workflow events.
package notifications

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
)

// UnreadCache memoizes per-user unread counts. Every mutation of a user's
// feed invalidates their entry.
type UnreadCache interface {
	Get(ctx context.Context, userID string) (count int, ok bool, err error)
	Set(ctx context.Context, userID string, count int) error
	Invalidate(ctx context.Context, userID string) error
}

// Feed is what GET /notifications returns.
type Feed struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	Badge         string                `json:"badge"`
}

type Service struct {
	store  storage.NotificationStore
	cache  UnreadCache
	now    func() time.Time
	logger *zap.Logger
}

// NewService builds the feed service. cache may be nil.
func NewService(store storage.NotificationStore, cache UnreadCache, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("notifications"),
	}
}

// Badge renders an unread count for display: nothing for zero, "99+" past 99.
func Badge(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > 99:
		return "99+"
	default:
		return strconv.Itoa(count)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate unread cache", zap.String("user_id", userID), zap.Error(err))
	}
}

// Notify appends a new unread entry to userID's feed.
func (s *Service) Notify(ctx context.Context, userID string, typ models.NotificationType, message, fileID string) (*models.Notification, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "notification needs a recipient")
	}
	if !typ.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown notification type %q", typ)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.New(apperrors.KindValidation, "notification message is required")
	}

	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Message:   message,
		FileID:    fileID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, userID)
}

// Feed returns the list together with the unread count and badge.
func (s *Service) Feed(ctx context.Context, userID string) (*Feed, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	return &Feed{Notifications: list, Unread: unread, Badge: Badge(unread)}, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.store.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks every unread entry read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	if err := s.store.DeleteNotification(ctx, userID, notificationID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// UnreadCount answers from the cache when possible.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if s.cache != nil {
		count, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("unread cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return count, nil
		}
	}

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, count); err != nil {
			s.logger.Warn("unread cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return count, nil
}

// PurgeUser removes the whole feed of a deleted user.
func (s *Service) PurgeUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteNotificationsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}
