package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
	"github.com/Simoroui/autotech-file-service-sub001/internal/submission"
)

// FileResponse is a record plus its thread labelled for the caller.
type FileResponse struct {
	*models.FileRecord
	Comments []models.CommentView `json:"comments"`
}

// parseOptions accepts a JSON array in "options" or repeated "option" fields.
func parseOptions(c *gin.Context) ([]string, bool) {
	var opts []string
	if raw := strings.TrimSpace(c.PostForm("options")); raw != "" {
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &opts); err != nil {
				return nil, false
			}
		} else {
			for _, o := range strings.Split(raw, ",") {
				if o = strings.TrimSpace(o); o != "" {
					opts = append(opts, o)
				}
			}
		}
	}
	opts = append(opts, c.PostFormArray("option")...)
	return opts, true
}

func openUpload(fh *multipart.FileHeader) (submission.Upload, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return submission.Upload{}, nil, err
	}
	return submission.Upload{Filename: fh.Filename, Size: fh.Size, Body: f}, f, nil
}

// UploadFile handles POST /files.
func (h *Handlers) UploadFile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "no file provided")
		return
	}
	options, ok := parseOptions(c)
	if !ok {
		h.badRequest(c, "options must be a JSON array of option keys")
		return
	}
	upload, closer, err := openUpload(fh)
	if err != nil {
		h.badRequest(c, "failed to read uploaded file")
		return
	}
	defer closer.Close()

	rec, err := h.Files.Submit(c.Request.Context(), actor, submission.Request{
		Upload:  upload,
		Options: options,
		Vehicle: models.Vehicle{
			Make:    c.PostForm("make"),
			Model:   c.PostForm("model"),
			ECUType: c.PostForm("ecu_type"),
		},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListFiles handles GET /files.
func (h *Handlers) ListFiles(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	filter := models.FileFilter{Status: models.FileStatus(c.Query("status"))}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.badRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.badRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	files, err := h.Files.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

// GetFile handles GET /files/:id.
func (h *Handlers) GetFile(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	rec, err := h.Files.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, FileResponse{
		FileRecord: rec,
		Comments:   h.Discussion.Views(c.Request.Context(), actor, rec.DiscussionComments),
	})
}

type statusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// UpdateStatus handles PUT /files/:id/status.
func (h *Handlers) UpdateStatus(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		h.badRequest(c, "status is required")
		return
	}

	rec, err := h.Workflow.UpdateStatus(c.Request.Context(), actor, c.Param("id"), models.FileStatus(strings.TrimSpace(req.Status)), req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func (h *Handlers) stream(c *gin.Context, dl *submission.Download) {
	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, dl.Size, dl.ContentType, dl.Body, map[string]string{
		"Content-Disposition": attachment(dl.Filename),
	})
}

// DownloadOriginal handles GET /files/:id/original.
func (h *Handlers) DownloadOriginal(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	dl, err := h.Files.OpenOriginal(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.stream(c, dl)
}

// DownloadModified handles GET /files/:id/modified.
func (h *Handlers) DownloadModified(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	dl, err := h.Files.OpenModified(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.stream(c, dl)
}

// UploadModified handles POST /files/:id/modified.
func (h *Handlers) UploadModified(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "no file provided")
		return
	}
	upload, closer, err := openUpload(fh)
	if err != nil {
		h.badRequest(c, "failed to read uploaded file")
		return
	}
	defer closer.Close()

	rec, err := h.Files.UploadModified(c.Request.Context(), actor, c.Param("id"), upload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": rec.FileInfo.ModifiedFilePath, "file": rec})
}

// ListOptions handles GET /options.
func (h *Handlers) ListOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"options": h.Files.Prices()})
}
