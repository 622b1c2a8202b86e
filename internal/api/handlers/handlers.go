package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/cmd/middleware"
	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/discussion"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
	"github.com/Simoroui/autotech-file-service-sub001/internal/submission"
	"github.com/Simoroui/autotech-file-service-sub001/internal/workflow"
)

// HealthCheck is one dependency probed by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	Files         *submission.Service
	Workflow      *workflow.Handler
	Discussion    *discussion.Service
	Notifications *notifications.Service
	HealthChecks  []HealthCheck
	MaxImageBytes int64
	Logger        *zap.Logger
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(kind apperrors.Kind) (int, string) {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case apperrors.KindAuth:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case apperrors.KindForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case apperrors.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperrors.KindUpstream:
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status, code := statusFor(kind)
	msg := apperrors.Message(err)
	if kind == apperrors.KindInternal || kind == apperrors.KindUpstream {
		h.Logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		if kind == apperrors.KindInternal {
			msg = "internal server error"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: msg}})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	h.writeError(c, apperrors.New(apperrors.KindValidation, msg))
}

// actor reads the caller set by the auth middleware.
func (h *Handlers) actor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		h.writeError(c, apperrors.New(apperrors.KindAuth, "unauthenticated"))
	}
	return actor, ok
}

// HealthCheck reports every dependency; any failure turns the response 503.
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for _, hc := range h.HealthChecks {
		if err := hc.Check(c.Request.Context()); err != nil {
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}
	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
