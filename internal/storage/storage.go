package storage

import (
	"context"
	"time"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// FileStore persists FileRecord documents. Appends are atomic per record.
type FileStore interface {
	CreateFile(ctx context.Context, rec *models.FileRecord) error
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
	ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error)
	// AppendStatus records entry. A non-empty expected makes the write
	// conditional on the record still being in that status.
	AppendStatus(ctx context.Context, fileID string, expected models.FileStatus, entry models.StatusEntry) (*models.FileRecord, error)
	AppendComment(ctx context.Context, fileID string, comment models.Comment) (*models.FileRecord, error)
	SetModifiedFile(ctx context.Context, fileID, objectName, name string, at time.Time) (*models.FileRecord, error)
	UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus) error
}

// NotificationStore persists the per-user notification feed. Every method is
// scoped by userID so one user can never touch another user's entries.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteNotificationsForUser(ctx context.Context, userID string) (int64, error)
}

// ProfileStore remembers display names seen in access tokens.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, userID, displayName string) error
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Storage is everything the service persists.
type Storage interface {
	FileStore
	NotificationStore
	ProfileStore
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Storage = (*LocalStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)

func errStatusChanged(expected models.FileStatus) error {
	return apperrors.Newf(apperrors.KindValidation, "file is no longer %s", expected)
}
