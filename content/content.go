// Package content defines the content data model and the lifecycle state
// machine that governs how a piece of content moves from draft through
// approval and scheduling to publication.
package content

import (
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/id"
)

// Status represents the lifecycle state of a content item.
type Status string

const (
	// StatusDraft means the content is editable and not yet submitted.
	StatusDraft Status = "DRAFT"
	// StatusPendingApproval means an approval request is open for the content.
	StatusPendingApproval Status = "PENDING_APPROVAL"
	// StatusApproved means a reviewer approved the content for publishing.
	StatusApproved Status = "APPROVED"
	// StatusRejected means a reviewer rejected the content.
	StatusRejected Status = "REJECTED"
	// StatusScheduled means a publish timer is armed for the content.
	StatusScheduled Status = "SCHEDULED"
	// StatusPublished means the content has been delivered to its platform.
	StatusPublished Status = "PUBLISHED"
)

// Content is a piece of publishable content owned by a user within an
// organization. MediaRefs order is significant and preserved verbatim.
type Content struct {
	megarray.Entity

	ID           id.ContentID   `json:"id"`
	Title        string         `json:"title"`
	Text         string         `json:"text"`
	MediaRefs    []string       `json:"media_refs,omitempty"`
	Type         string         `json:"type"`
	Platform     string         `json:"platform"`
	Status       Status         `json:"status"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	PublishedURL string         `json:"published_url,omitempty"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OwnerID      string         `json:"owner_id"`
	OrgID        string         `json:"org_id"`
}

// CreateParams holds the caller-supplied fields for creating content.
type CreateParams struct {
	Title      string
	Text       string
	MediaRefs  []string
	Type       string
	Platform   string
	CampaignID string
	Tags       []string
	Metadata   map[string]any
	OwnerID    string
	OrgID      string
}

// UpdateParams holds the mutable fields for updating content. Nil pointer
// fields are left unchanged.
type UpdateParams struct {
	Title     *string
	Text      *string
	MediaRefs []string
	Tags      []string
	Metadata  map[string]any
}

// New constructs a DRAFT content item from the given params with a fresh ID.
func New(p CreateParams) *Content {
	return &Content{
		Entity:     megarray.NewEntity(),
		ID:         id.NewContentID(),
		Title:      p.Title,
		Text:       p.Text,
		MediaRefs:  append([]string(nil), p.MediaRefs...),
		Type:       p.Type,
		Platform:   p.Platform,
		Status:     StatusDraft,
		CampaignID: p.CampaignID,
		Tags:       append([]string(nil), p.Tags...),
		Metadata:   p.Metadata,
		OwnerID:    p.OwnerID,
		OrgID:      p.OrgID,
	}
}

// Publishable reports whether the content is in a state from which a publish
// may start.
func (c *Content) Publishable() bool {
	return c.Status == StatusApproved || c.Status == StatusScheduled
}
