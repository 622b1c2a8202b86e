package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// LocalStorage keeps everything in memory behind one lock. When a snapshot
// path is set, every mutation is written to it atomically (temp file + rename)
// and the snapshot is loaded on startup.
type LocalStorage struct {
	mu            sync.RWMutex
	files         map[string]*models.FileRecord
	notifications map[string]*models.Notification
	profiles      map[string]string
	snapshotPath  string
	logger        *zap.Logger
}

type snapshot struct {
	Files         map[string]*models.FileRecord   `json:"files"`
	Notifications map[string]*models.Notification `json:"notifications"`
	Profiles      map[string]string               `json:"profiles"`
}

// NewLocalStorage returns an empty store. An empty snapshotPath keeps data in
// memory only.
func NewLocalStorage(snapshotPath string, logger *zap.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &LocalStorage{
		files:         make(map[string]*models.FileRecord),
		notifications: make(map[string]*models.Notification),
		profiles:      make(map[string]string),
		snapshotPath:  snapshotPath,
		logger:        logger.Named("local-store"),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LocalStorage) load() error {
	if l.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(l.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Files != nil {
		l.files = snap.Files
	}
	if snap.Notifications != nil {
		l.notifications = snap.Notifications
	}
	if snap.Profiles != nil {
		l.profiles = snap.Profiles
	}
	l.logger.Info("loaded snapshot",
		zap.String("path", l.snapshotPath),
		zap.Int("files", len(l.files)),
		zap.Int("notifications", len(l.notifications)),
	)
	return nil
}

// saveLocked must be called with mu held.
func (l *LocalStorage) saveLocked() error {
	if l.snapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(snapshot{
		Files:         l.files,
		Notifications: l.notifications,
		Profiles:      l.profiles,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	tempFile := l.snapshotPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempFile, l.snapshotPath); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

func (l *LocalStorage) Ping(context.Context) error { return nil }

func (l *LocalStorage) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *LocalStorage) CreateFile(_ context.Context, rec *models.FileRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.files[rec.ID]; exists {
		return apperrors.Newf(apperrors.KindValidation, "file %s already exists", rec.ID)
	}
	l.files[rec.ID] = rec.Clone()
	return l.persist(func() { delete(l.files, rec.ID) }, "failed to persist file record")
}

func (l *LocalStorage) GetFile(_ context.Context, fileID string) (*models.FileRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.files[fileID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "file not found")
	}
	return rec.Clone(), nil
}

func (l *LocalStorage) ListFiles(_ context.Context, filter models.FileFilter) ([]models.FileRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := make([]models.FileRecord, 0, len(l.files))
	for _, rec := range l.files {
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		files = append(files, *rec.Clone())
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return page(files, filter.Limit, filter.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// mutate applies fn to the stored record under the write lock and rolls the
// change back if the snapshot can't be written.
func (l *LocalStorage) mutate(fileID string, fn func(rec *models.FileRecord)) (*models.FileRecord, error) {
	return l.mutateIf(fileID, nil, fn)
}

// mutateIf applies fn only when check accepts the current record.
func (l *LocalStorage) mutateIf(fileID string, check func(rec *models.FileRecord) error, fn func(rec *models.FileRecord)) (*models.FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.files[fileID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "file not found")
	}
	if check != nil {
		if err := check(rec); err != nil {
			return nil, err
		}
	}
	before := rec.Clone()
	fn(rec)
	if err := l.persist(func() { l.files[fileID] = before }, "failed to persist file record"); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// persist writes the snapshot and runs undo when that fails, so memory never
// runs ahead of disk.
func (l *LocalStorage) persist(undo func(), msg string) error {
	if err := l.saveLocked(); err != nil {
		undo()
		return apperrors.Wrap(apperrors.KindUpstream, err, msg)
	}
	return nil
}

func (l *LocalStorage) AppendStatus(_ context.Context, fileID string, expected models.FileStatus, entry models.StatusEntry) (*models.FileRecord, error) {
	var check func(rec *models.FileRecord) error
	if expected != "" {
		check = func(rec *models.FileRecord) error {
			if rec.Status != expected {
				return errStatusChanged(expected)
			}
			return nil
		}
	}
	return l.mutateIf(fileID, check, func(rec *models.FileRecord) {
		rec.StatusHistory = append(rec.StatusHistory, entry)
		rec.Status = entry.Status
		rec.UpdatedAt = entry.Timestamp
	})
}

func (l *LocalStorage) AppendComment(_ context.Context, fileID string, comment models.Comment) (*models.FileRecord, error) {
	return l.mutate(fileID, func(rec *models.FileRecord) {
		rec.DiscussionComments = append(rec.DiscussionComments, comment)
		rec.UpdatedAt = comment.CreatedAt
	})
}

func (l *LocalStorage) SetModifiedFile(_ context.Context, fileID, objectName, name string, at time.Time) (*models.FileRecord, error) {
	return l.mutate(fileID, func(rec *models.FileRecord) {
		rec.FileInfo.ModifiedFilePath = objectName
		rec.FileInfo.ModifiedName = name
		uploaded := at
		rec.FileInfo.ModifiedUploadedAt = &uploaded
		rec.UpdatedAt = at
	})
}

func (l *LocalStorage) UpdateScanStatus(_ context.Context, fileID string, status models.ScanStatus) error {
	_, err := l.mutate(fileID, func(rec *models.FileRecord) {
		rec.ScanStatus = status
	})
	return err
}

func (l *LocalStorage) CreateNotification(_ context.Context, n *models.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := *n
	l.notifications[n.ID] = &stored
	return l.persist(func() { delete(l.notifications, n.ID) }, "failed to persist notification")
}

func (l *LocalStorage) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Notification, 0)
	for _, n := range l.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (l *LocalStorage) ownedNotification(userID, id string) (*models.Notification, error) {
	n, ok := l.notifications[id]
	if !ok || n.UserID != userID {
		return nil, apperrors.New(apperrors.KindNotFound, "notification not found")
	}
	return n, nil
}

func (l *LocalStorage) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.ownedNotification(userID, notificationID)
	if err != nil {
		return err
	}
	n.Read = true
	return l.persist(func() { n.Read = false }, "failed to persist notification")
}

func (l *LocalStorage) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var flipped []*models.Notification
	for _, n := range l.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			flipped = append(flipped, n)
		}
	}
	if len(flipped) == 0 {
		return 0, nil
	}
	err := l.persist(func() {
		for _, n := range flipped {
			n.Read = false
		}
	}, "failed to persist notifications")
	if err != nil {
		return 0, err
	}
	return int64(len(flipped)), nil
}

func (l *LocalStorage) DeleteNotification(_ context.Context, userID, notificationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.ownedNotification(userID, notificationID)
	if err != nil {
		return err
	}
	delete(l.notifications, notificationID)
	return l.persist(func() { l.notifications[notificationID] = n }, "failed to persist notification")
}

func (l *LocalStorage) CountUnread(_ context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, n := range l.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (l *LocalStorage) DeleteNotificationsForUser(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := make(map[string]*models.Notification)
	for id, n := range l.notifications {
		if n.UserID == userID {
			delete(l.notifications, id)
			removed[id] = n
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	err := l.persist(func() {
		for id, n := range removed {
			l.notifications[id] = n
		}
	}, "failed to persist notifications")
	if err != nil {
		return 0, err
	}
	return int64(len(removed)), nil
}

func (l *LocalStorage) UpsertProfile(_ context.Context, userID, displayName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, existed := l.profiles[userID]
	if existed && prev == displayName {
		return nil
	}
	l.profiles[userID] = displayName
	return l.persist(func() {
		if existed {
			l.profiles[userID] = prev
		} else {
			delete(l.profiles, userID)
		}
	}, "failed to persist profile")
}

func (l *LocalStorage) DisplayName(_ context.Context, userID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.profiles[userID]
	if !ok {
		return "", apperrors.New(apperrors.KindNotFound, "user not found")
	}
	return name, nil
}
