package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/metrics"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/submission"
)

// ObjectScanner scans an uploaded original.
type ObjectScanner interface {
	ScanObject(ctx context.Context, fileID, objectName string) (models.ScanStatus, error)
}

// FeedPurger drops a user's notifications.
type FeedPurger interface {
	PurgeUser(ctx context.Context, userID string) (int64, error)
}

// ObjectPurger removes every object under a prefix.
type ObjectPurger interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

type Handlers struct {
	Scanner       ObjectScanner
	Notifications FeedPurger
	// Blobs, when set, also drops a deleted user's ECU files.
	Blobs   ObjectPurger
	Timeout time.Duration
	Logger  *zap.Logger
}

func (h *Handlers) context() (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (h *Handlers) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		h.Logger.Debug("ack failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (h *Handlers) nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		h.Logger.Debug("nak failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// HandleFileUploaded scans the new original. Malformed messages are acked
// and dropped; scanner errors are recorded on the file and acked too, since
// a redelivery would hit the same failure.
func (h *Handlers) HandleFileUploaded(msg *nats.Msg) {
	var evt services.FileUploadedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.FileID == "" || evt.ObjectName == "" {
		h.Logger.Warn("dropping malformed upload event", zap.ByteString("data", msg.Data), zap.Error(err))
		h.ack(msg)
		return
	}

	ctx, cancel := h.context()
	defer cancel()

	status, err := h.Scanner.ScanObject(ctx, evt.FileID, evt.ObjectName)
	metrics.ScanResults.WithLabelValues(string(status)).Inc()
	if err != nil {
		h.Logger.Warn("scan failed", zap.String("file_id", evt.FileID), zap.Error(err))
	}
	h.ack(msg)
}

// HandleUserDeleted removes the deleted user's stored ECU files and feed.
// Failures are retried through Nak; both steps are idempotent.
func (h *Handlers) HandleUserDeleted(msg *nats.Msg) {
	var evt services.UserDeletedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.UserID == "" {
		h.Logger.Warn("dropping malformed user event", zap.ByteString("data", msg.Data), zap.Error(err))
		h.ack(msg)
		return
	}

	ctx, cancel := h.context()
	defer cancel()

	if h.Blobs != nil {
		if err := h.Blobs.DeletePrefix(ctx, submission.OwnerPrefix(evt.UserID)); err != nil {
			h.Logger.Error("failed to delete user objects", zap.String("user_id", evt.UserID), zap.Error(err))
			h.nak(msg)
			return
		}
	}

	removed, err := h.Notifications.PurgeUser(ctx, evt.UserID)
	if err != nil {
		h.Logger.Error("failed to purge notifications", zap.String("user_id", evt.UserID), zap.Error(err))
		h.nak(msg)
		return
	}
	h.Logger.Info("purged notifications for deleted user", zap.String("user_id", evt.UserID), zap.Int64("removed", removed))
	h.ack(msg)
}
