package content

import (
	"time"

	"github.com/mmont5/megarray/id"
)

// ApprovalStatus represents the state of an approval request.
type ApprovalStatus string

const (
	// ApprovalPending means the request awaits a reviewer decision.
	ApprovalPending ApprovalStatus = "PENDING"
	// ApprovalApproved means the reviewer approved the content.
	ApprovalApproved ApprovalStatus = "APPROVED"
	// ApprovalRejected means the reviewer rejected the content.
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ApprovalRequest records one submission of a content item for review.
// At most one PENDING request exists per content item at a time.
type ApprovalRequest struct {
	ID          id.ApprovalID  `json:"id"`
	ContentID   id.ContentID   `json:"content_id"`
	RequesterID string         `json:"requester_id"`
	Status      ApprovalStatus `json:"status"`
	ReviewerID  string         `json:"reviewer_id,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	ReviewNotes string         `json:"review_notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty"`
}
