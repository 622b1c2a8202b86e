// Package workflow applies status changes to ECU files. The store performs
// the append atomically; everything after it (owner notification, event,
// metric) is best effort and only logged on failure.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/metrics"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/storage"
)

// Notifier delivers a feed entry to one user.
type Notifier interface {
	Notify(ctx context.Context, userID string, typ models.NotificationType, message, fileID string) (*models.Notification, error)
}

type Options struct {
	Policy       Policy
	AllowExperts bool
}

type Handler struct {
	store    storage.FileStore
	notifier Notifier
	events   services.Publisher
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

func NewHandler(store storage.FileStore, notifier Notifier, events services.Publisher, opts Options, logger *zap.Logger) *Handler {
	if events == nil {
		events = services.NoopPublisher{}
	}
	return &Handler{
		store:    store,
		notifier: notifier,
		events:   events,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("workflow"),
	}
}

func (h *Handler) canUpdate(actor models.Actor) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleExpert:
		return h.opts.AllowExperts
	}
	return false
}

// UpdateStatus moves fileID to newStatus and records who did it.
func (h *Handler) UpdateStatus(ctx context.Context, actor models.Actor, fileID string, newStatus models.FileStatus, comment string) (*models.FileRecord, error) {
	if !h.canUpdate(actor) {
		return nil, apperrors.New(apperrors.KindForbidden, "only administrators can change a file's status")
	}
	if !newStatus.Valid() {
		return nil, apperrors.Newf(apperrors.KindValidation, "unknown status %q", newStatus)
	}

	current, err := h.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	previous := current.Status
	if !h.opts.Policy.Allows(previous, newStatus) {
		return nil, apperrors.Newf(apperrors.KindValidation, "cannot move a %s file to %s", previous, newStatus)
	}

	entry := models.StatusEntry{
		Status:    newStatus,
		Timestamp: h.now(),
		Comment:   strings.TrimSpace(comment),
		ChangedBy: actor.UserID,
	}
	// Under the strict policy the check above only holds if nobody moved the
	// file in the meantime, so the write is conditional on previous.
	var expected models.FileStatus
	if h.opts.Policy == PolicyStrict {
		expected = previous
	}
	updated, err := h.store.AppendStatus(ctx, fileID, expected, entry)
	if err != nil {
		return nil, err
	}

	log := h.logger.With(
		zap.String("file_id", fileID),
		zap.String("from", string(previous)),
		zap.String("to", string(newStatus)),
		zap.String("changed_by", actor.UserID),
	)
	log.Info("status updated")
	metrics.StatusTransitions.WithLabelValues(string(previous), string(newStatus)).Inc()

	if h.notifier != nil && updated.OwnerID != "" {
		if _, err := h.notifier.Notify(ctx, updated.OwnerID, models.NotificationStatusUpdate, statusMessage(updated, entry), fileID); err != nil {
			log.Warn("failed to notify owner", zap.Error(err))
		}
	}

	if err := h.events.PublishEvent(services.SubjectFileStatusUpdated, services.StatusUpdatedEvent{
		FileID:    fileID,
		OwnerID:   updated.OwnerID,
		Status:    string(newStatus),
		Previous:  string(previous),
		ChangedBy: actor.UserID,
		ChangedAt: entry.Timestamp,
	}); err != nil {
		log.Warn("failed to publish status event", zap.Error(err))
	}

	return updated, nil
}

func statusMessage(rec *models.FileRecord, entry models.StatusEntry) string {
	name := rec.FileInfo.OriginalName
	if name == "" {
		name = rec.ID
	}
	msg := fmt.Sprintf("Your file %s is now %s", name, entry.Status)
	if entry.Comment != "" {
		msg += ": " + entry.Comment
	}
	return msg
}
