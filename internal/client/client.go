// Package client is a small REST client for the file service API, used by
// the pollers and the ecuwatch CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
)

const DefaultTimeout = 20 * time.Second

// FileView is GET /files/:id as seen by the caller.
type FileView struct {
	models.FileRecord
	Comments []models.CommentView `json:"comments"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for baseURL (e.g. http://localhost:8080/api). Each
// request is bounded by timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = timeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func kindForCode(code string, status int) apperrors.Kind {
	switch code {
	case "VALIDATION_ERROR":
		return apperrors.KindValidation
	case "UNAUTHORIZED":
		return apperrors.KindAuth
	case "FORBIDDEN":
		return apperrors.KindForbidden
	case "NOT_FOUND":
		return apperrors.KindNotFound
	case "UPSTREAM_ERROR":
		return apperrors.KindUpstream
	}
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.KindAuth
	case status == http.StatusForbidden:
		return apperrors.KindForbidden
	case status == http.StatusNotFound:
		return apperrors.KindNotFound
	case status >= 400 && status < 500:
		return apperrors.KindValidation
	case status >= 500:
		return apperrors.KindUpstream
	}
	return apperrors.KindInternal
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUpstream, err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return apperrors.New(kindForCode(env.Error.Code, resp.StatusCode), msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindUpstream, err, "failed to decode response")
	}
	return nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*FileView, error) {
	var out FileView
	if err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListFiles(ctx context.Context, status models.FileStatus) ([]models.FileRecord, error) {
	path := "/files"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Files []models.FileRecord `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// PostComment sends text and, when imagePath is set, the image as multipart.
func (c *Client) PostComment(ctx context.Context, fileID, text, imagePath string) (*models.Comment, error) {
	var (
		body        io.Reader
		contentType string
	)
	if imagePath == "" {
		data, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(data), "application/json"
	} else {
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		if err := w.WriteField("text", text); err != nil {
			return nil, err
		}
		f, err := os.Open(imagePath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, err, "failed to open image")
		}
		defer f.Close()
		part, err := w.CreateFormFile("image", filepath.Base(imagePath))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body, contentType = buf, w.FormDataContentType()
	}

	var out struct {
		Comment models.Comment `json:"comment"`
	}
	if err := c.do(ctx, http.MethodPost, "/files/"+url.PathEscape(fileID)+"/comments", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out.Comment, nil
}

func (c *Client) UpdateStatus(ctx context.Context, fileID string, status models.FileStatus, comment string) (*models.FileRecord, error) {
	data, err := json.Marshal(map[string]string{"status": string(status), "comment": comment})
	if err != nil {
		return nil, err
	}
	var out models.FileRecord
	if err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(fileID)+"/status", bytes.NewReader(data), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Notifications(ctx context.Context) (*notifications.Feed, error) {
	var out notifications.Feed
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, "", nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/notifications/read-all", nil, "", nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, "", nil)
}
