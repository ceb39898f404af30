// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/id"
	"github.com/mmont5/megarray/recurring"
	"github.com/mmont5/megarray/schedule"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ content.Store         = (*Store)(nil)
	_ recurring.Store       = (*Store)(nil)
	_ schedule.SessionStore = (*Store)(nil)
)

// Session is a minimal auth session row. The core only ever deletes
// expired sessions; the model exists so the memory backend can be seeded
// in tests.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	contents  map[string]*content.Content
	versions  map[string][]*content.Version // key: content ID
	approvals map[string][]*content.ApprovalRequest
	recurring map[string]*recurring.Job
	sessions  map[string]*Session
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		contents:  make(map[string]*content.Content),
		versions:  make(map[string][]*content.Version),
		approvals: make(map[string][]*content.ApprovalRequest),
		recurring: make(map[string]*recurring.Job),
		sessions:  make(map[string]*Session),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Content Store
// ──────────────────────────────────────────────────

// SaveContent inserts or fully replaces a content item.
func (m *Store) SaveContent(_ context.Context, c *content.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyContent(c)
	m.contents[c.ID.String()] = cp
	return nil
}

// GetContent retrieves a content item by ID.
func (m *Store) GetContent(_ context.Context, contentID id.ContentID) (*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contents[contentID.String()]
	if !ok {
		return nil, megarray.ErrContentNotFound
	}
	return copyContent(c), nil
}

// DeleteContent removes a content item and its versions.
func (m *Store) DeleteContent(_ context.Context, contentID id.ContentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := contentID.String()
	if _, ok := m.contents[key]; !ok {
		return megarray.ErrContentNotFound
	}
	delete(m.contents, key)
	delete(m.versions, key)
	delete(m.approvals, key)
	return nil
}

// ListContent returns content matching the given options, newest first.
func (m *Store) ListContent(_ context.Context, opts content.ListOpts) ([]*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*content.Content, 0, len(m.contents))
	for _, c := range m.contents {
		if opts.OrgID != "" && c.OrgID != opts.OrgID {
			continue
		}
		if opts.OwnerID != "" && c.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		matches = append(matches, copyContent(c))
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return paginate(matches, opts.Offset, opts.Limit), nil
}

// ListScheduledDue returns SCHEDULED content due at or before now, oldest
// schedule first.
func (m *Store) ListScheduledDue(_ context.Context, now time.Time) ([]*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*content.Content
	for _, c := range m.contents {
		if c.Status != content.StatusScheduled || c.ScheduledFor == nil {
			continue
		}
		if c.ScheduledFor.After(now) {
			continue
		}
		out = append(out, copyContent(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(*out[j].ScheduledFor)
	})
	return out, nil
}

// ListScheduledAfter returns SCHEDULED content with a strictly future
// schedule.
func (m *Store) ListScheduledAfter(_ context.Context, now time.Time) ([]*content.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*content.Content
	for _, c := range m.contents {
		if c.Status != content.StatusScheduled || c.ScheduledFor == nil {
			continue
		}
		if !c.ScheduledFor.After(now) {
			continue
		}
		out = append(out, copyContent(c))
	}
	return out, nil
}

// CreateVersion persists a new content version.
func (m *Store) CreateVersion(_ context.Context, v *content.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *v
	cp.MediaRefs = append([]string(nil), v.MediaRefs...)
	key := v.ContentID.String()
	m.versions[key] = append(m.versions[key], &cp)
	return nil
}

// LatestVersion returns the highest-numbered version, or nil when none
// exists.
func (m *Store) LatestVersion(_ context.Context, contentID id.ContentID) (*content.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.versions[contentID.String()]
	if len(vs) == 0 {
		return nil, nil
	}
	latest := vs[0]
	for _, v := range vs[1:] {
		if v.Number > latest.Number {
			latest = v
		}
	}
	cp := *latest
	cp.MediaRefs = append([]string(nil), latest.MediaRefs...)
	return &cp, nil
}

// ListVersions returns all versions ordered by number ascending.
func (m *Store) ListVersions(_ context.Context, contentID id.ContentID) ([]*content.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.versions[contentID.String()]
	out := make([]*content.Version, len(vs))
	for i, v := range vs {
		cp := *v
		cp.MediaRefs = append([]string(nil), v.MediaRefs...)
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// CreateApproval persists a new approval request.
func (m *Store) CreateApproval(_ context.Context, a *content.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	key := a.ContentID.String()
	m.approvals[key] = append(m.approvals[key], &cp)
	return nil
}

// GetPendingApproval returns the PENDING approval request for a content
// item.
func (m *Store) GetPendingApproval(_ context.Context, contentID id.ContentID) (*content.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.approvals[contentID.String()] {
		if a.Status == content.ApprovalPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, megarray.ErrNoPendingApproval
}

// SaveApproval persists changes to an existing approval request.
func (m *Store) SaveApproval(_ context.Context, a *content.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.approvals[a.ContentID.String()]
	for i, existing := range list {
		if existing.ID.String() == a.ID.String() {
			cp := *a
			list[i] = &cp
			return nil
		}
	}
	return megarray.ErrNoPendingApproval
}

// ──────────────────────────────────────────────────
// Recurring Store
// ──────────────────────────────────────────────────

// SaveRecurringJob inserts or fully replaces a recurring job.
func (m *Store) SaveRecurringJob(_ context.Context, j *recurring.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *j
	m.recurring[j.ID.String()] = &cp
	return nil
}

// GetRecurringJob retrieves a recurring job by ID.
func (m *Store) GetRecurringJob(_ context.Context, jobID id.RecurringID) (*recurring.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.recurring[jobID.String()]
	if !ok {
		return nil, megarray.ErrRecurringNotFound
	}
	cp := *j
	return &cp, nil
}

// ListRecurringJobs returns recurring jobs for an organization, newest
// first. An empty orgID means all organizations.
func (m *Store) ListRecurringJobs(_ context.Context, orgID string) ([]*recurring.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*recurring.Job
	for _, j := range m.recurring {
		if orgID != "" && j.OrgID != orgID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListActiveRecurringJobs returns every ACTIVE recurring job.
func (m *Store) ListActiveRecurringJobs(_ context.Context) ([]*recurring.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*recurring.Job
	for _, j := range m.recurring {
		if j.Status != recurring.StatusActive {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

// AddSession seeds a session row. Test helper.
func (m *Store) AddSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
}

// SessionCount returns the number of stored sessions. Test helper.
func (m *Store) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// DeleteExpiredSessions removes sessions whose expiry is at or before now
// and returns the number removed.
func (m *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyContent(c *content.Content) *content.Content {
	cp := *c
	cp.MediaRefs = append([]string(nil), c.MediaRefs...)
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Metadata != nil {
		md := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		cp.Metadata = md
	}
	if c.ScheduledFor != nil {
		t := *c.ScheduledFor
		cp.ScheduledFor = &t
	}
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
