package content

import (
	"context"
	"time"

	"github.com/mmont5/megarray/id"
)

// ListOpts controls filtering for content list queries.
type ListOpts struct {
	// OrgID filters by organization. Empty means all organizations.
	OrgID string
	// OwnerID filters by owner. Empty means all owners.
	OwnerID string
	// Status filters by lifecycle status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
}

// Store defines the persistence contract for content, versions, and
// approval requests.
type Store interface {
	// SaveContent inserts or fully replaces a content item.
	SaveContent(ctx context.Context, c *Content) error

	// GetContent retrieves a content item by ID. Returns
	// megarray.ErrContentNotFound if absent.
	GetContent(ctx context.Context, contentID id.ContentID) (*Content, error)

	// DeleteContent removes a content item and its versions.
	DeleteContent(ctx context.Context, contentID id.ContentID) error

	// ListContent returns content matching the given options, ordered by
	// creation time descending.
	ListContent(ctx context.Context, opts ListOpts) ([]*Content, error)

	// ListScheduledDue returns SCHEDULED content whose ScheduledFor is at
	// or before now, ordered by ScheduledFor ascending.
	ListScheduledDue(ctx context.Context, now time.Time) ([]*Content, error)

	// ListScheduledAfter returns SCHEDULED content whose ScheduledFor is
	// strictly after now. Used by startup reconciliation.
	ListScheduledAfter(ctx context.Context, now time.Time) ([]*Content, error)

	// CreateVersion persists a new content version.
	CreateVersion(ctx context.Context, v *Version) error

	// LatestVersion returns the highest-numbered version for a content
	// item, or nil when none exists.
	LatestVersion(ctx context.Context, contentID id.ContentID) (*Version, error)

	// ListVersions returns all versions for a content item ordered by
	// number ascending.
	ListVersions(ctx context.Context, contentID id.ContentID) ([]*Version, error)

	// CreateApproval persists a new approval request.
	CreateApproval(ctx context.Context, a *ApprovalRequest) error

	// GetPendingApproval returns the PENDING approval request for a
	// content item. Returns megarray.ErrNoPendingApproval if none exists.
	GetPendingApproval(ctx context.Context, contentID id.ContentID) (*ApprovalRequest, error)

	// SaveApproval persists changes to an existing approval request.
	SaveApproval(ctx context.Context, a *ApprovalRequest) error
}

// Publisher delivers a content item to its target platform. Implementations
// live outside this module (HTTP clients for the platform APIs).
type Publisher interface {
	// Publish delivers the content and returns the platform URL of the
	// published item.
	Publish(ctx context.Context, c *Content) (string, error)
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(ctx context.Context, c *Content) (string, error)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, c *Content) (string, error) {
	return f(ctx, c)
}
