package services

import "time"

// Subjects on the file-events stream.
const (
	SubjectFileUploaded      = "files.uploaded"
	SubjectFileStatusUpdated = "files.status_updated"
	SubjectFileCommented     = "files.commented"
	SubjectUserDeleted       = "users.deleted"
)

type FileUploadedEvent struct {
	FileID     string    `json:"file_id"`
	OwnerID    string    `json:"owner_id"`
	ObjectName string    `json:"object_name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type StatusUpdatedEvent struct {
	FileID    string    `json:"file_id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type FileCommentedEvent struct {
	FileID    string    `json:"file_id"`
	OwnerID   string    `json:"owner_id"`
	CommentID string    `json:"comment_id"`
	AuthorID  string    `json:"author_id"`
	HasImage  bool      `json:"has_image"`
	CreatedAt time.Time `json:"created_at"`
}

type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}
