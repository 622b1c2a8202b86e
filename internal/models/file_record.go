package models

import (
	"time"
)

// FileStatus is the workflow state of a submitted ECU file.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusRejected   FileStatus = "rejected"
	StatusApproved   FileStatus = "approved"
)

var allStatuses = []FileStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusRejected,
	StatusApproved,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []FileStatus {
	out := make([]FileStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ScanStatus is the result of the antivirus scan of the original upload.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanClean    ScanStatus = "clean"
	ScanInfected ScanStatus = "infected"
	ScanError    ScanStatus = "error"
)

// StatusEntry is one element of the append-only status history.
type StatusEntry struct {
	Status    FileStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Comment   string     `json:"comment,omitempty"`
	ChangedBy string     `json:"changed_by,omitempty"`
}

// FileInfo holds the object names of the original and the returned file.
type FileInfo struct {
	OriginalName       string     `json:"original_name"`
	OriginalFilePath   string     `json:"original_file_path"`
	Size               int64      `json:"size"`
	ModifiedFilePath   string     `json:"modified_file_path,omitempty"`
	ModifiedName       string     `json:"modified_name,omitempty"`
	ModifiedUploadedAt *time.Time `json:"modified_uploaded_at,omitempty"`
}

// Vehicle describes what the ECU file was read from.
type Vehicle struct {
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	ECUType string `json:"ecu_type,omitempty"`
}

// FileRecord is the persisted document for one submitted ECU file.
type FileRecord struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	Vehicle            Vehicle        `json:"vehicle"`
	Status             FileStatus     `json:"status"`
	StatusHistory      []StatusEntry  `json:"status_history"`
	Options            map[string]int `json:"options"`
	TotalCredits       int            `json:"total_credits"`
	CreditsMismatch    bool           `json:"credits_mismatch,omitempty"`
	FileInfo           FileInfo       `json:"file_info"`
	ScanStatus         ScanStatus     `json:"scan_status"`
	DiscussionComments []Comment      `json:"discussion_comments"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// LastStatus returns the status of the newest history entry, or "" when the
// history is empty.
func (r *FileRecord) LastStatus() FileStatus {
	if len(r.StatusHistory) == 0 {
		return ""
	}
	return r.StatusHistory[len(r.StatusHistory)-1].Status
}

// AccessibleBy reports whether the actor may read and comment on the record.
func (r *FileRecord) AccessibleBy(a Actor) bool {
	return a.IsStaff() || (a.UserID != "" && a.UserID == r.OwnerID)
}

// Clone returns a deep copy so callers can't mutate shared store state.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.StatusHistory = append([]StatusEntry(nil), r.StatusHistory...)
	out.DiscussionComments = append([]Comment(nil), r.DiscussionComments...)
	if r.Options != nil {
		out.Options = make(map[string]int, len(r.Options))
		for k, v := range r.Options {
			out.Options[k] = v
		}
	}
	if r.FileInfo.ModifiedUploadedAt != nil {
		t := *r.FileInfo.ModifiedUploadedAt
		out.FileInfo.ModifiedUploadedAt = &t
	}
	return &out
}

// FileFilter narrows ListFiles results. An empty OwnerID lists every owner.
type FileFilter struct {
	OwnerID string
	Status  FileStatus
	Limit   int
	Offset  int
}
