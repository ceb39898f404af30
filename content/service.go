package content

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/id"
)

// Armer arms and disarms publish timers for scheduled content. The
// scheduler implements it; the service calls it after persisting state so
// a timer never exists for unpersisted content.
type Armer interface {
	// ArmPublish registers a one-off publish timer for the content.
	ArmPublish(contentID id.ContentID, at time.Time)
	// DisarmPublish cancels the publish timer for the content, if any.
	DisarmPublish(contentID id.ContentID)
}

// Service implements the content lifecycle state machine. All operations
// persist through the Store; timer bookkeeping is delegated to the Armer.
type Service struct {
	store  Store
	pub    Publisher
	clock  megarray.Clock
	logger *slog.Logger

	armer Armer

	// mu guards locks. Per-content mutexes serialize every mutating
	// read-modify-write so an update cannot save over a concurrent
	// publish, and a sweep fire and a direct publish cannot both deliver.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a content lifecycle service.
func NewService(store Store, pub Publisher, clock megarray.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		pub:    pub,
		clock:  clock,
		logger: logger.With(slog.String("component", "content")),
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetArmer wires the scheduler in after construction. The engine calls this
// once during wiring; it is not safe concurrently with operations.
func (s *Service) SetArmer(a Armer) {
	s.armer = a
}

// Create persists a new DRAFT content item and its initial version.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Content, error) {
	c := New(p)

	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	if err := s.store.CreateVersion(ctx, snapshotVersion(c, 1, s.clock.Now())); err != nil {
		return nil, fmt.Errorf("create initial version: %w", err)
	}

	s.logger.Info("content created",
		slog.String("content_id", c.ID.String()),
		slog.String("platform", c.Platform),
		slog.String("org_id", c.OrgID))
	return c, nil
}

// Update applies the given changes to a content item owned by ownerID. A
// new version is recorded only when the text or media changed. Status is
// never altered by an update.
func (s *Service) Update(ctx context.Context, contentID id.ContentID, ownerID string, p UpdateParams) (*Content, error) {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.getOwned(ctx, contentID, ownerID)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.LatestVersion(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load latest version: %w", err)
	}

	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Text != nil {
		c.Text = *p.Text
	}
	if p.MediaRefs != nil {
		c.MediaRefs = append([]string(nil), p.MediaRefs...)
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.Metadata != nil {
		c.Metadata = p.Metadata
	}
	c.Touch()

	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}

	if latest != nil && bodyChanged(c, latest) {
		v := snapshotVersion(c, latest.Number+1, s.clock.Now())
		if err := s.store.CreateVersion(ctx, v); err != nil {
			return nil, fmt.Errorf("create version: %w", err)
		}
		s.logger.Info("content version created",
			slog.String("content_id", c.ID.String()),
			slog.Int("version", v.Number))
	}

	return c, nil
}

// SubmitForApproval moves a DRAFT into PENDING_APPROVAL and opens an
// approval request. Submitting from any other state returns
// megarray.ErrInvalidState.
func (s *Service) SubmitForApproval(ctx context.Context, contentID id.ContentID, ownerID, notes string) (*ApprovalRequest, error) {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.getOwned(ctx, contentID, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, fmt.Errorf("submit %s content: %w", c.Status, megarray.ErrInvalidState)
	}

	req := &ApprovalRequest{
		ID:          id.NewApprovalID(),
		ContentID:   contentID,
		RequesterID: ownerID,
		Status:      ApprovalPending,
		Notes:       notes,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	c.Status = StatusPendingApproval
	c.Touch()
	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("submit for approval: %w", err)
	}

	s.logger.Info("content submitted for approval",
		slog.String("content_id", contentID.String()),
		slog.String("approval_id", req.ID.String()))
	return req, nil
}

// Review resolves the pending approval request for a content item. Approval
// moves the content to SCHEDULED when a future schedule was recorded before
// submission (arming the publish timer), otherwise to APPROVED. Rejection
// moves it to REJECTED. Without a pending request the call fails with
// megarray.ErrNoPendingApproval.
func (s *Service) Review(ctx context.Context, contentID id.ContentID, reviewerID string, approve bool, notes string) (*Content, error) {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	req, err := s.store.GetPendingApproval(ctx, contentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req.ReviewerID = reviewerID
	req.ReviewNotes = notes
	req.ReviewedAt = &now
	if approve {
		req.Status = ApprovalApproved
	} else {
		req.Status = ApprovalRejected
	}
	if err := s.store.SaveApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("save approval: %w", err)
	}

	if !approve {
		c.Status = StatusRejected
		c.Touch()
		if err := s.store.SaveContent(ctx, c); err != nil {
			return nil, fmt.Errorf("reject content: %w", err)
		}
		s.logger.Info("content rejected",
			slog.String("content_id", contentID.String()),
			slog.String("reviewer_id", reviewerID))
		return c, nil
	}

	if c.ScheduledFor != nil && c.ScheduledFor.After(now) {
		c.Status = StatusScheduled
		c.Touch()
		if err := s.store.SaveContent(ctx, c); err != nil {
			return nil, fmt.Errorf("approve content: %w", err)
		}
		if s.armer != nil {
			s.armer.ArmPublish(contentID, *c.ScheduledFor)
		}
	} else {
		c.ScheduledFor = nil
		c.Status = StatusApproved
		c.Touch()
		if err := s.store.SaveContent(ctx, c); err != nil {
			return nil, fmt.Errorf("approve content: %w", err)
		}
	}

	s.logger.Info("content approved",
		slog.String("content_id", contentID.String()),
		slog.String("reviewer_id", reviewerID),
		slog.String("status", string(c.Status)))
	return c, nil
}

// Schedule records a future publish time. APPROVED content moves to
// SCHEDULED and a publish timer is armed; SCHEDULED content is rescheduled,
// replacing the armed timer. DRAFT content keeps the schedule for after
// approval but stays DRAFT with no timer. A non-future time fails with
// megarray.ErrInvalidSchedule.
func (s *Service) Schedule(ctx context.Context, contentID id.ContentID, ownerID string, at time.Time) (*Content, error) {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.getOwned(ctx, contentID, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft && c.Status != StatusApproved && c.Status != StatusScheduled {
		return nil, fmt.Errorf("schedule %s content: %w", c.Status, megarray.ErrInvalidState)
	}
	if !at.After(s.clock.Now()) {
		return nil, fmt.Errorf("schedule time %s is not in the future: %w", at.Format(time.RFC3339), megarray.ErrInvalidSchedule)
	}

	at = at.UTC()
	c.ScheduledFor = &at
	if c.Status == StatusApproved {
		c.Status = StatusScheduled
	}
	c.Touch()
	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("schedule content: %w", err)
	}

	if c.Status == StatusScheduled && s.armer != nil {
		s.armer.ArmPublish(contentID, at)
	}

	s.logger.Info("content scheduled",
		slog.String("content_id", contentID.String()),
		slog.Time("scheduled_for", at),
		slog.String("status", string(c.Status)))
	return c, nil
}

// CancelSchedule clears the schedule of SCHEDULED content and disarms its
// timer. The content reverts to APPROVED when it was ever published before,
// otherwise to DRAFT.
func (s *Service) CancelSchedule(ctx context.Context, contentID id.ContentID, ownerID string) (*Content, error) {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.getOwned(ctx, contentID, ownerID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusScheduled {
		return nil, fmt.Errorf("cancel schedule of %s content: %w", c.Status, megarray.ErrInvalidState)
	}

	c.ScheduledFor = nil
	if c.PublishedAt != nil {
		c.Status = StatusApproved
	} else {
		c.Status = StatusDraft
	}
	c.Touch()
	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("cancel schedule: %w", err)
	}

	if s.armer != nil {
		s.armer.DisarmPublish(contentID)
	}

	s.logger.Info("content schedule cancelled",
		slog.String("content_id", contentID.String()),
		slog.String("status", string(c.Status)))
	return c, nil
}

// Publish delivers the content to its platform. Only APPROVED or SCHEDULED
// content can publish. Concurrent attempts for the same content serialize
// on a per-content mutex; the loser observes PUBLISHED on re-read and
// returns success without a second delivery. Publisher failure leaves the
// content state untouched.
func (s *Service) Publish(ctx context.Context, contentID id.ContentID) (*Content, error) {
	if s.pub == nil {
		return nil, megarray.ErrNoPublisher
	}

	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if c.Status == StatusPublished {
		return c, nil
	}
	if !c.Publishable() {
		return nil, fmt.Errorf("publish %s content: %w", c.Status, megarray.ErrInvalidState)
	}

	url, err := s.pub.Publish(ctx, c)
	if err != nil {
		s.logger.Error("publish failed",
			slog.String("content_id", contentID.String()),
			slog.String("platform", c.Platform),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", megarray.ErrPublishFailed, err)
	}

	now := s.clock.Now()
	c.Status = StatusPublished
	c.PublishedAt = &now
	c.PublishedURL = url
	c.ScheduledFor = nil
	c.Touch()
	if err := s.store.SaveContent(ctx, c); err != nil {
		return nil, fmt.Errorf("persist publish: %w", err)
	}

	if s.armer != nil {
		s.armer.DisarmPublish(contentID)
	}

	s.logger.Info("content published",
		slog.String("content_id", contentID.String()),
		slog.String("platform", c.Platform),
		slog.String("url", url))
	return c, nil
}

// Delete removes a content item. Published content that belongs to a
// campaign and carries an external URL is refused; the platform copy would
// become untraceable.
func (s *Service) Delete(ctx context.Context, contentID id.ContentID, ownerID string) error {
	lock := s.contentLock(contentID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.getOwned(ctx, contentID, ownerID)
	if err != nil {
		return err
	}
	if c.Status == StatusPublished && c.CampaignID != "" && c.PublishedURL != "" {
		return fmt.Errorf("delete published campaign content: %w", megarray.ErrInvalidState)
	}

	if err := s.store.DeleteContent(ctx, contentID); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if s.armer != nil {
		s.armer.DisarmPublish(contentID)
	}

	s.logger.Info("content deleted", slog.String("content_id", contentID.String()))
	return nil
}

// Get retrieves a content item by ID.
func (s *Service) Get(ctx context.Context, contentID id.ContentID) (*Content, error) {
	return s.store.GetContent(ctx, contentID)
}

// List returns content matching the given options.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Content, error) {
	return s.store.ListContent(ctx, opts)
}

// ListVersions returns the version history of a content item, oldest first.
func (s *Service) ListVersions(ctx context.Context, contentID id.ContentID) ([]*Version, error) {
	return s.store.ListVersions(ctx, contentID)
}

// getOwned loads content and enforces ownership. A mismatched owner is
// reported as not found to avoid leaking existence across owners.
func (s *Service) getOwned(ctx context.Context, contentID id.ContentID, ownerID string) (*Content, error) {
	c, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && c.OwnerID != ownerID {
		return nil, megarray.ErrContentNotFound
	}
	return c, nil
}

func (s *Service) contentLock(contentID id.ContentID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contentID.String()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}
