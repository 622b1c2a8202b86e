package models

import "time"

// Comment is one immutable entry of a file's discussion thread.
type Comment struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	AuthorRole    Role      `json:"author_role"`
	Text          string    `json:"text"`
	ImagePath     string    `json:"image_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CommentView is a comment with the author label resolved for one reader.
type CommentView struct {
	Comment
	AuthorLabel string `json:"author_label"`
	IsOwn       bool   `json:"is_own"`
}
