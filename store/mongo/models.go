package mongo

import (
	"fmt"
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/id"
	"github.com/mmont5/megarray/recurring"
)

// ── Content model ─────────────────────────────────────────────────

type contentModel struct {
	ID           string         `bson:"_id"`
	Title        string         `bson:"title"`
	Text         string         `bson:"text"`
	MediaRefs    []string       `bson:"media_refs,omitempty"`
	Type         string         `bson:"type"`
	Platform     string         `bson:"platform"`
	Status       string         `bson:"status"`
	ScheduledFor *time.Time     `bson:"scheduled_for,omitempty"`
	PublishedAt  *time.Time     `bson:"published_at,omitempty"`
	PublishedURL string         `bson:"published_url,omitempty"`
	CampaignID   string         `bson:"campaign_id,omitempty"`
	Tags         []string       `bson:"tags,omitempty"`
	Metadata     map[string]any `bson:"metadata,omitempty"`
	OwnerID      string         `bson:"owner_id"`
	OrgID        string         `bson:"org_id"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

func toContentModel(c *content.Content) *contentModel {
	return &contentModel{
		ID:           c.ID.String(),
		Title:        c.Title,
		Text:         c.Text,
		MediaRefs:    c.MediaRefs,
		Type:         c.Type,
		Platform:     c.Platform,
		Status:       string(c.Status),
		ScheduledFor: c.ScheduledFor,
		PublishedAt:  c.PublishedAt,
		PublishedURL: c.PublishedURL,
		CampaignID:   c.CampaignID,
		Tags:         c.Tags,
		Metadata:     c.Metadata,
		OwnerID:      c.OwnerID,
		OrgID:        c.OrgID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func fromContentModel(m *contentModel) (*content.Content, error) {
	parsedID, err := id.ParseContentID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse content id %q: %w", m.ID, err)
	}

	return &content.Content{
		Entity: megarray.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Title:        m.Title,
		Text:         m.Text,
		MediaRefs:    m.MediaRefs,
		Type:         m.Type,
		Platform:     m.Platform,
		Status:       content.Status(m.Status),
		ScheduledFor: m.ScheduledFor,
		PublishedAt:  m.PublishedAt,
		PublishedURL: m.PublishedURL,
		CampaignID:   m.CampaignID,
		Tags:         m.Tags,
		Metadata:     m.Metadata,
		OwnerID:      m.OwnerID,
		OrgID:        m.OrgID,
	}, nil
}

// ── Version model ─────────────────────────────────────────────────

type versionModel struct {
	ID        string    `bson:"_id"`
	ContentID string    `bson:"content_id"`
	Number    int       `bson:"number"`
	Title     string    `bson:"title"`
	Text      string    `bson:"text"`
	MediaRefs []string  `bson:"media_refs,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func toVersionModel(v *content.Version) *versionModel {
	return &versionModel{
		ID:        v.ID.String(),
		ContentID: v.ContentID.String(),
		Number:    v.Number,
		Title:     v.Title,
		Text:      v.Text,
		MediaRefs: v.MediaRefs,
		CreatedAt: v.CreatedAt,
	}
}

func fromVersionModel(m *versionModel) (*content.Version, error) {
	versionID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse version id %q: %w", m.ID, err)
	}
	contentID, err := id.ParseContentID(m.ContentID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse content id %q: %w", m.ContentID, err)
	}

	return &content.Version{
		ID:        versionID,
		ContentID: contentID,
		Number:    m.Number,
		Title:     m.Title,
		Text:      m.Text,
		MediaRefs: m.MediaRefs,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Approval model ────────────────────────────────────────────────

type approvalModel struct {
	ID          string     `bson:"_id"`
	ContentID   string     `bson:"content_id"`
	RequesterID string     `bson:"requester_id"`
	Status      string     `bson:"status"`
	ReviewerID  string     `bson:"reviewer_id,omitempty"`
	Notes       string     `bson:"notes,omitempty"`
	ReviewNotes string     `bson:"review_notes,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	ReviewedAt  *time.Time `bson:"reviewed_at,omitempty"`
}

func toApprovalModel(a *content.ApprovalRequest) *approvalModel {
	return &approvalModel{
		ID:          a.ID.String(),
		ContentID:   a.ContentID.String(),
		RequesterID: a.RequesterID,
		Status:      string(a.Status),
		ReviewerID:  a.ReviewerID,
		Notes:       a.Notes,
		ReviewNotes: a.ReviewNotes,
		CreatedAt:   a.CreatedAt,
		ReviewedAt:  a.ReviewedAt,
	}
}

func fromApprovalModel(m *approvalModel) (*content.ApprovalRequest, error) {
	approvalID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse approval id %q: %w", m.ID, err)
	}
	contentID, err := id.ParseContentID(m.ContentID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse content id %q: %w", m.ContentID, err)
	}

	return &content.ApprovalRequest{
		ID:          approvalID,
		ContentID:   contentID,
		RequesterID: m.RequesterID,
		Status:      content.ApprovalStatus(m.Status),
		ReviewerID:  m.ReviewerID,
		Notes:       m.Notes,
		ReviewNotes: m.ReviewNotes,
		CreatedAt:   m.CreatedAt,
		ReviewedAt:  m.ReviewedAt,
	}, nil
}

// ── Recurring job model ───────────────────────────────────────────

type recurringModel struct {
	ID         string     `bson:"_id"`
	Name       string     `bson:"name"`
	Schedule   string     `bson:"schedule"`
	ParamsType string     `bson:"params_type"`
	Platform   string     `bson:"platform"`
	Topic      string     `bson:"topic"`
	Tone       string     `bson:"tone,omitempty"`
	Status     string     `bson:"status"`
	OwnerID    string     `bson:"owner_id"`
	OrgID      string     `bson:"org_id"`
	LastRunAt  *time.Time `bson:"last_run_at,omitempty"`
	ErrorCount int        `bson:"error_count"`
	LastError  string     `bson:"last_error,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func toRecurringModel(j *recurring.Job) *recurringModel {
	return &recurringModel{
		ID:         j.ID.String(),
		Name:       j.Name,
		Schedule:   j.Schedule,
		ParamsType: j.Params.Type,
		Platform:   j.Params.Platform,
		Topic:      j.Params.Topic,
		Tone:       j.Params.Tone,
		Status:     string(j.Status),
		OwnerID:    j.OwnerID,
		OrgID:      j.OrgID,
		LastRunAt:  j.LastRunAt,
		ErrorCount: j.ErrorCount,
		LastError:  j.LastError,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

func fromRecurringModel(m *recurringModel) (*recurring.Job, error) {
	parsedID, err := id.ParseRecurringID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: parse recurring id %q: %w", m.ID, err)
	}

	return &recurring.Job{
		Entity: megarray.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       parsedID,
		Name:     m.Name,
		Schedule: m.Schedule,
		Params: recurring.Params{
			Type:     m.ParamsType,
			Platform: m.Platform,
			Topic:    m.Topic,
			Tone:     m.Tone,
		},
		Status:     recurring.Status(m.Status),
		OwnerID:    m.OwnerID,
		OrgID:      m.OrgID,
		LastRunAt:  m.LastRunAt,
		ErrorCount: m.ErrorCount,
		LastError:  m.LastError,
	}, nil
}
