package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Simoroui/autotech-file-service-sub001/cmd/middleware"
	"github.com/Simoroui/autotech-file-service-sub001/internal/configuration"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
	"github.com/Simoroui/autotech-file-service-sub001/internal/services"
	"github.com/Simoroui/autotech-file-service-sub001/internal/testsupport"
)

type stubVerifier map[string]*middleware.Claims

func (s stubVerifier) Verify(_ context.Context, raw string) (*middleware.Claims, error) {
	c, ok := s[raw]
	if !ok {
		return nil, errors.New("token expired")
	}
	return c, nil
}

type testEnv struct {
	router *gin.Engine
	blobs  *testsupport.MemoryBlobStore
	events *testsupport.RecordingPublisher
}

func newTestEnv(t *testing.T, transitions string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &configuration.Config{
		Server:   configuration.ServerConfig{MaxUploadBytes: 1 << 20},
		Workflow: configuration.WorkflowConfig{Transitions: transitions, CommentImageMaxBytes: 5 << 20},
		ClientID: "frontend",
	}
	blobs := testsupport.NewMemoryBlobStore()
	events := &testsupport.RecordingPublisher{}
	verifier := stubVerifier{
		"client-token": {Subject: "client-1", AuthorizedParty: "frontend", Name: "Jane Client", Roles: []string{"client"}},
		"other-token":  {Subject: "client-2", AuthorizedParty: "frontend", Roles: []string{"client"}},
		"expert-token": {Subject: "expert-1", AuthorizedParty: "frontend", Name: "Max Expert", Roles: []string{"expert"}},
		"admin-token":  {Subject: "admin-1", AuthorizedParty: "frontend", Roles: []string{"admin"}},
		"mobile-token": {Subject: "client-1", AuthorizedParty: "mobile", Roles: []string{"client"}},
	}

	logger := zaptest.NewLogger(t)
	router, _, err := newRouter(cfg, deps{
		Store:    testsupport.NewStore(t),
		Blobs:    blobs,
		Events:   events,
		Verifier: verifier,
	}, logger)
	require.NoError(t, err)
	return &testEnv{router: router, blobs: blobs, events: events}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, token, bytes.NewBuffer(data), "application/json")
}

func (e *testEnv) upload(t *testing.T, token string) models.FileRecord {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "golf7.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0xEC}, 4096))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("options", `["stage1","EGR Off"]`))
	require.NoError(t, w.WriteField("make", "VW"))
	require.NoError(t, w.WriteField("model", "Golf 7"))
	require.NoError(t, w.Close())

	rec := e.do(t, http.MethodPost, "/api/files", token, body, w.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out models.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

func TestAuthErrors(t *testing.T) {
	env := newTestEnv(t, "permissive")

	tests := []struct {
		name, token string
	}{
		{"missing", ""},
		{"unknown", "garbage"},
		{"wrong client", "mobile-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/files", tt.token, nil, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
		})
	}

	rec := env.do(t, http.MethodGet, "/api/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitReviewAndDiscuss(t *testing.T) {
	env := newTestEnv(t, "permissive")

	file := env.upload(t, "client-token")
	assert.Equal(t, models.StatusPending, file.Status)
	assert.Equal(t, 70, file.TotalCredits)
	require.Len(t, file.StatusHistory, 1)
	assert.Contains(t, env.events.Subjects(), services.SubjectFileUploaded)

	// Another client cannot see it.
	rec := env.do(t, http.MethodGet, "/api/files/"+file.ID, "other-token", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	// Clients cannot change status.
	rec = env.doJSON(t, http.MethodPut, "/api/files/"+file.ID+"/status", "client-token", map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doJSON(t, http.MethodPut, "/api/files/"+file.ID+"/status", "admin-token", map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = env.doJSON(t, http.MethodPut, "/api/files/"+file.ID+"/status", "admin-token", map[string]string{"status": "processing", "comment": "on it"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusProcessing, updated.Status)
	assert.Len(t, updated.StatusHistory, 2)

	// Staff comment notifies the owner.
	rec = env.doJSON(t, http.MethodPost, "/api/files/"+file.ID+"/comments", "expert-token", map[string]string{"text": "Which gearbox?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.doJSON(t, http.MethodPost, "/api/files/"+file.ID+"/comments", "client-token", map[string]string{"text": "DSG"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/files/"+file.ID+"/comments", "client-token", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/"+file.ID, "client-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Status   models.FileStatus    `json:"status"`
		Comments []models.CommentView `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Comments, 2)
	assert.Equal(t, "Expert", view.Comments[0].AuthorLabel)
	assert.Equal(t, "You", view.Comments[1].AuthorLabel)
	assert.True(t, view.Comments[1].IsOwn)

	rec = env.do(t, http.MethodGet, "/api/notifications", "client-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var feed notifications.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, 2, feed.Unread)
	assert.Equal(t, "2", feed.Badge)

	rec = env.do(t, http.MethodPut, "/api/notifications/"+feed.Notifications[0].ID+"/read", "other-token", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/notifications/read-all", "client-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/notifications/"+feed.Notifications[0].ID, "client-token", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/notifications", "client-token", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, 0, feed.Unread)
	assert.Equal(t, "", feed.Badge)
	assert.Len(t, feed.Notifications, 1)
}

func TestDownloadOriginal(t *testing.T) {
	env := newTestEnv(t, "permissive")
	file := env.upload(t, "client-token")

	rec := env.do(t, http.MethodGet, "/api/files/"+file.ID+"/original", "expert-token", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4096, rec.Body.Len())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "golf7.bin")

	rec = env.do(t, http.MethodGet, "/api/files/"+file.ID+"/modified", "client-token", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrictTransitions(t *testing.T) {
	env := newTestEnv(t, "strict")
	file := env.upload(t, "client-token")

	rec := env.doJSON(t, http.MethodPut, "/api/files/"+file.ID+"/status", "admin-token", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(t, http.MethodPut, "/api/files/"+file.ID+"/status", "admin-token", map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownFile(t *testing.T) {
	env := newTestEnv(t, "permissive")
	rec := env.do(t, http.MethodGet, "/api/files/does-not-exist", "admin-token", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}
