package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Simoroui/autotech-file-service-sub001/internal/discussion"
)

type commentRequest struct {
	Text string `json:"text"`
}

// ListComments handles GET /files/:id/comments.
func (h *Handlers) ListComments(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	views, err := h.Discussion.ListComments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": views})
}

// PostComment handles POST /files/:id/comments. JSON bodies carry text only;
// multipart bodies may add an "image" part.
func (h *Handlers) PostComment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var (
		text  string
		image *discussion.ImageUpload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")
		if fh, err := c.FormFile("image"); err == nil {
			f, err := fh.Open()
			if err != nil {
				h.badRequest(c, "failed to read image")
				return
			}
			image, err = discussion.ReadImage(fh.Filename, f, h.MaxImageBytes)
			f.Close()
			if err != nil {
				h.writeError(c, err)
				return
			}
		}
	} else {
		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body")
			return
		}
		text = req.Text
	}

	ctx := c.Request.Context()
	comment, err := h.Discussion.PostComment(ctx, actor, c.Param("id"), text, image)
	if err != nil {
		h.writeError(c, err)
		return
	}
	views, err := h.Discussion.ListComments(ctx, actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment, "comments": views})
}

// CommentImage handles GET /files/:id/comments/:commentId/image. ?thumb=1
// serves the thumbnail.
func (h *Handlers) CommentImage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	thumb := c.Query("thumb") == "1" || c.Query("thumb") == "true"
	body, size, ctype, err := h.Discussion.OpenImage(c.Request.Context(), actor, c.Param("id"), c.Param("commentId"), thumb)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, size, ctype, body, nil)
}
