package store

import "time"

// Document is the metadata row for an ingested document. Content is
// immutable once ingested; Status tracks the annotation workflow.
type Document struct {
	ID         string
	Title      string
	Filename   string
	Status     string
	ContentSHA string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentStatuses are the allowed workflow states, in order.
var DocumentStatuses = []string{"pending", "in_progress", "completed", "reviewed"}

// ValidDocumentStatus reports whether status is a known workflow state.
func ValidDocumentStatus(status string) bool {
	for _, s := range DocumentStatuses {
		if s == status {
			return true
		}
	}
	return false
}
