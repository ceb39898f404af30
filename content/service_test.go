package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/id"
)

// fakeStore is a minimal in-memory Store for lifecycle tests. getHook, when
// set, runs after each GetContent read with no store lock held, so tests can
// pause an operation inside its read-modify-write window.
type fakeStore struct {
	mu        sync.Mutex
	contents  map[string]*Content
	versions  map[string][]*Version
	approvals map[string][]*ApprovalRequest
	getHook   func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contents:  make(map[string]*Content),
		versions:  make(map[string][]*Version),
		approvals: make(map[string][]*ApprovalRequest),
	}
}

func (f *fakeStore) SaveContent(_ context.Context, c *Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.contents[c.ID.String()] = &cp
	return nil
}

func (f *fakeStore) GetContent(_ context.Context, contentID id.ContentID) (*Content, error) {
	f.mu.Lock()
	c, ok := f.contents[contentID.String()]
	var cp Content
	if ok {
		cp = *c
	}
	hook := f.getHook
	f.mu.Unlock()
	if !ok {
		return nil, megarray.ErrContentNotFound
	}
	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (f *fakeStore) DeleteContent(_ context.Context, contentID id.ContentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.contents, contentID.String())
	delete(f.versions, contentID.String())
	return nil
}

func (f *fakeStore) ListContent(_ context.Context, _ ListOpts) ([]*Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Content, 0, len(f.contents))
	for _, c := range f.contents {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) ListScheduledDue(_ context.Context, now time.Time) ([]*Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Content
	for _, c := range f.contents {
		if c.Status == StatusScheduled && c.ScheduledFor != nil && !c.ScheduledFor.After(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListScheduledAfter(_ context.Context, now time.Time) ([]*Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Content
	for _, c := range f.contents {
		if c.Status == StatusScheduled && c.ScheduledFor != nil && c.ScheduledFor.After(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateVersion(_ context.Context, v *Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *v
	key := v.ContentID.String()
	f.versions[key] = append(f.versions[key], &cp)
	return nil
}

func (f *fakeStore) LatestVersion(_ context.Context, contentID id.ContentID) (*Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs := f.versions[contentID.String()]
	if len(vs) == 0 {
		return nil, nil
	}
	cp := *vs[len(vs)-1]
	return &cp, nil
}

func (f *fakeStore) ListVersions(_ context.Context, contentID id.ContentID) ([]*Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs := f.versions[contentID.String()]
	out := make([]*Version, len(vs))
	for i, v := range vs {
		cp := *v
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeStore) CreateApproval(_ context.Context, a *ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	key := a.ContentID.String()
	f.approvals[key] = append(f.approvals[key], &cp)
	return nil
}

func (f *fakeStore) GetPendingApproval(_ context.Context, contentID id.ContentID) (*ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.approvals[contentID.String()] {
		if a.Status == ApprovalPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, megarray.ErrNoPendingApproval
}

func (f *fakeStore) SaveApproval(_ context.Context, a *ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.approvals[a.ContentID.String()] {
		if existing.ID.String() == a.ID.String() {
			cp := *a
			f.approvals[a.ContentID.String()][i] = &cp
			return nil
		}
	}
	return errors.New("approval not found")
}

// fakeClock returns a fixed, advanceable time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyPublisher counts deliveries and can be made to fail.
type spyPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
	url   string
	delay time.Duration
}

func (p *spyPublisher) Publish(_ context.Context, _ *Content) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return "", p.err
	}
	if p.url == "" {
		return "https://platform.example/post/1", nil
	}
	return p.url, nil
}

func (p *spyPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// spyArmer records arm/disarm calls.
type spyArmer struct {
	mu       sync.Mutex
	armed    map[string]time.Time
	disarmed []string
}

func newSpyArmer() *spyArmer { return &spyArmer{armed: make(map[string]time.Time)} }

func (a *spyArmer) ArmPublish(contentID id.ContentID, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed[contentID.String()] = at
}

func (a *spyArmer) DisarmPublish(contentID id.ContentID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.armed, contentID.String())
	a.disarmed = append(a.disarmed, contentID.String())
}

func (a *spyArmer) isArmed(contentID id.ContentID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.armed[contentID.String()]
	return ok
}

func setupService(t *testing.T) (*Service, *fakeStore, *spyPublisher, *spyArmer, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	pub := &spyPublisher{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(store, pub, clock, nil)
	armer := newSpyArmer()
	svc.SetArmer(armer)
	return svc, store, pub, armer, clock
}

func createDraft(t *testing.T, svc *Service) *Content {
	t.Helper()
	c, err := svc.Create(context.Background(), CreateParams{
		Title:    "launch post",
		Text:     "hello world",
		Type:     "post",
		Platform: "twitter",
		OwnerID:  "user-1",
		OrgID:    "org-1",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return c
}

func approve(t *testing.T, svc *Service, contentID id.ContentID) *Content {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SubmitForApproval(ctx, contentID, "user-1", ""); err != nil {
		t.Fatalf("SubmitForApproval failed: %v", err)
	}
	c, err := svc.Review(ctx, contentID, "reviewer-1", true, "lgtm")
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	return c
}

func TestCreateStartsAsDraftWithVersionOne(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)

	if c.Status != StatusDraft {
		t.Errorf("Status = %q, want %q", c.Status, StatusDraft)
	}
	vs, err := svc.ListVersions(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(vs) != 1 || vs[0].Number != 1 {
		t.Fatalf("versions = %d, want single version #1", len(vs))
	}
}

func TestUpdateVersionsOnlyOnBodyChange(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)
	ctx := context.Background()

	title := "new title"
	if _, err := svc.Update(ctx, c.ID, "user-1", UpdateParams{Title: &title}); err != nil {
		t.Fatalf("title update failed: %v", err)
	}
	vs, _ := svc.ListVersions(ctx, c.ID)
	if len(vs) != 1 {
		t.Fatalf("title-only edit created a version: got %d versions", len(vs))
	}

	text := "updated body"
	if _, err := svc.Update(ctx, c.ID, "user-1", UpdateParams{Text: &text}); err != nil {
		t.Fatalf("text update failed: %v", err)
	}
	vs, _ = svc.ListVersions(ctx, c.ID)
	if len(vs) != 2 {
		t.Fatalf("text edit did not version: got %d versions", len(vs))
	}

	media := []string{"img-1", "img-2"}
	if _, err := svc.Update(ctx, c.ID, "user-1", UpdateParams{MediaRefs: media}); err != nil {
		t.Fatalf("media update failed: %v", err)
	}
	vs, _ = svc.ListVersions(ctx, c.ID)
	if len(vs) != 3 {
		t.Fatalf("media edit did not version: got %d versions", len(vs))
	}

	for i, v := range vs {
		if v.Number != i+1 {
			t.Errorf("version %d has number %d, want %d", i, v.Number, i+1)
		}
	}
}

func TestUpdateRejectsWrongOwner(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)

	text := "hijacked"
	_, err := svc.Update(context.Background(), c.ID, "user-2", UpdateParams{Text: &text})
	if !errors.Is(err, megarray.ErrContentNotFound) {
		t.Errorf("err = %v, want ErrContentNotFound", err)
	}
}

func TestSubmitForApprovalRequiresDraft(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)
	ctx := context.Background()

	if _, err := svc.SubmitForApproval(ctx, c.ID, "user-1", "please review"); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	_, err := svc.SubmitForApproval(ctx, c.ID, "user-1", "again")
	if !errors.Is(err, megarray.ErrInvalidState) {
		t.Errorf("double submit err = %v, want ErrInvalidState", err)
	}
}

func TestReviewWithoutPendingRequest(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)

	_, err := svc.Review(context.Background(), c.ID, "reviewer-1", true, "")
	if !errors.Is(err, megarray.ErrNoPendingApproval) {
		t.Errorf("err = %v, want ErrNoPendingApproval", err)
	}
}

func TestReviewReject(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	c := createDraft(t, svc)
	ctx := context.Background()

	if _, err := svc.SubmitForApproval(ctx, c.ID, "user-1", ""); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	got, err := svc.Review(ctx, c.ID, "reviewer-1", false, "needs work")
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("Status = %q, want %q", got.Status, StatusRejected)
	}
}

func TestApprovePreScheduledDraftArmsTimer(t *testing.T) {
	svc, _, _, armer, clock := setupService(t)
	c := createDraft(t, svc)
	ctx := context.Background()

	at := clock.Now().Add(time.Hour)
	got, err := svc.Schedule(ctx, c.ID, "user-1", at)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if got.Status != StatusDraft {
		t.Fatalf("pre-approval schedule changed status to %q", got.Status)
	}
	if armer.isArmed(c.ID) {
		t.Fatal("timer armed for unapproved content")
	}

	got = approve(t, svc, c.ID)
	if got.Status != StatusScheduled {
		t.Errorf("Status = %q, want %q", got.Status, StatusScheduled)
	}
	if !armer.isArmed(c.ID) {
		t.Error("approval of pre-scheduled draft did not arm timer")
	}
}

func TestScheduleRejectsPastTime(t *testing.T) {
	svc, _, _, _, clock := setupService(t)
	c := createDraft(t, svc)

	_, err := svc.Schedule(context.Background(), c.ID, "user-1", clock.Now().Add(-time.Minute))
	if !errors.Is(err, megarray.ErrInvalidSchedule) {
		t.Errorf("past schedule err = %v, want ErrInvalidSchedule", err)
	}
	_, err = svc.Schedule(context.Background(), c.ID, "user-1", clock.Now())
	if !errors.Is(err, megarray.ErrInvalidSchedule) {
		t.Errorf("now schedule err = %v, want ErrInvalidSchedule", err)
	}
}

func TestScheduleApprovedContent(t *testing.T) {
	svc, _, _, armer, clock := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)

	at := clock.Now().Add(2 * time.Hour)
	got, err := svc.Schedule(context.Background(), c.ID, "user-1", at)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if got.Status != StatusScheduled {
		t.Errorf("Status = %q, want %q", got.Status, StatusScheduled)
	}
	if got.ScheduledFor == nil || !got.ScheduledFor.Equal(at) {
		t.Errorf("ScheduledFor = %v, want %v", got.ScheduledFor, at)
	}
	if !armer.isArmed(c.ID) {
		t.Error("timer not armed")
	}
}

func TestCancelScheduleRevertsAndDisarms(t *testing.T) {
	svc, _, _, armer, clock := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)
	ctx := context.Background()

	if _, err := svc.Schedule(ctx, c.ID, "user-1", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	got, err := svc.CancelSchedule(ctx, c.ID, "user-1")
	if err != nil {
		t.Fatalf("CancelSchedule failed: %v", err)
	}
	if got.Status != StatusDraft {
		t.Errorf("Status = %q, want %q (never published)", got.Status, StatusDraft)
	}
	if got.ScheduledFor != nil {
		t.Error("ScheduledFor not cleared")
	}
	if armer.isArmed(c.ID) {
		t.Error("timer still armed after cancel")
	}
}

func TestCancelScheduleAfterPublishRevertsToApproved(t *testing.T) {
	svc, store, _, _, clock := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)
	ctx := context.Background()

	if _, err := svc.Publish(ctx, c.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Simulate a later re-schedule cycle on previously published content.
	cur, _ := store.GetContent(ctx, c.ID)
	cur.Status = StatusScheduled
	at := clock.Now().Add(time.Hour)
	cur.ScheduledFor = &at
	if err := store.SaveContent(ctx, cur); err != nil {
		t.Fatalf("SaveContent failed: %v", err)
	}

	got, err := svc.CancelSchedule(ctx, c.ID, "user-1")
	if err != nil {
		t.Fatalf("CancelSchedule failed: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %q, want %q (was published before)", got.Status, StatusApproved)
	}
}

func TestPublishRequiresApprovedOrScheduled(t *testing.T) {
	svc, _, pub, _, _ := setupService(t)
	c := createDraft(t, svc)

	_, err := svc.Publish(context.Background(), c.ID)
	if !errors.Is(err, megarray.ErrInvalidState) {
		t.Errorf("draft publish err = %v, want ErrInvalidState", err)
	}
	if pub.Calls() != 0 {
		t.Errorf("publisher called %d times for draft content", pub.Calls())
	}
}

func TestPublishSuccess(t *testing.T) {
	svc, _, pub, _, clock := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)

	got, err := svc.Publish(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got.Status != StatusPublished {
		t.Errorf("Status = %q, want %q", got.Status, StatusPublished)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(clock.Now()) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, clock.Now())
	}
	if got.PublishedURL == "" {
		t.Error("PublishedURL empty")
	}
	if got.ScheduledFor != nil {
		t.Error("ScheduledFor not cleared on publish")
	}
	if pub.Calls() != 1 {
		t.Errorf("publisher called %d times, want 1", pub.Calls())
	}
}

func TestPublishFailureLeavesStateUntouched(t *testing.T) {
	svc, _, pub, _, _ := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)
	pub.err = errors.New("platform down")

	_, err := svc.Publish(context.Background(), c.ID)
	if !errors.Is(err, megarray.ErrPublishFailed) {
		t.Fatalf("err = %v, want ErrPublishFailed", err)
	}

	got, _ := svc.Get(context.Background(), c.ID)
	if got.Status != StatusApproved {
		t.Errorf("Status = %q after failure, want %q", got.Status, StatusApproved)
	}
	if got.PublishedAt != nil {
		t.Error("PublishedAt set after failed publish")
	}
}

func TestConcurrentPublishDeliversOnce(t *testing.T) {
	svc, _, pub, _, _ := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)
	pub.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Publish(context.Background(), c.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("publish %d failed: %v", i, err)
		}
	}
	if pub.Calls() != 1 {
		t.Errorf("publisher called %d times, want 1", pub.Calls())
	}
}

func TestUpdateDoesNotClobberConcurrentPublish(t *testing.T) {
	svc, store, pub, _, _ := setupService(t)
	c := createDraft(t, svc)
	approve(t, svc, c.ID)
	ctx := context.Background()

	// Freeze Update right after it reads the row, then let a publish
	// attempt in. The publish must not land inside the update's window.
	updateReading := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.mu.Lock()
	store.getHook = func() {
		once.Do(func() {
			close(updateReading)
			<-release
		})
	}
	store.mu.Unlock()

	updateDone := make(chan error, 1)
	go func() {
		text := "edited during publish"
		_, err := svc.Update(ctx, c.ID, "user-1", UpdateParams{Text: &text})
		updateDone <- err
	}()
	<-updateReading

	publishDone := make(chan error, 1)
	go func() {
		_, err := svc.Publish(ctx, c.ID)
		publishDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-updateDone; err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := <-publishDone; err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusPublished {
		t.Errorf("Status = %q, want %q (update wrote back stale state)", got.Status, StatusPublished)
	}
	if got.PublishedAt == nil {
		t.Error("PublishedAt lost")
	}
	if got.Text != "edited during publish" {
		t.Errorf("Text = %q, update lost", got.Text)
	}
	if pub.Calls() != 1 {
		t.Errorf("publisher called %d times, want 1", pub.Calls())
	}
}

func TestDeleteRefusesPublishedCampaignContent(t *testing.T) {
	svc, _, _, _, _ := setupService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateParams{
		Title:      "campaign post",
		Text:       "body",
		Type:       "post",
		Platform:   "linkedin",
		CampaignID: "camp-1",
		OwnerID:    "user-1",
		OrgID:      "org-1",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	approve(t, svc, c.ID)
	if _, err := svc.Publish(ctx, c.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	err = svc.Delete(ctx, c.ID, "user-1")
	if !errors.Is(err, megarray.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}

	// Non-campaign content deletes fine even when published.
	c2 := createDraft(t, svc)
	approve(t, svc, c2.ID)
	if _, err := svc.Publish(ctx, c2.ID); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := svc.Delete(ctx, c2.ID, "user-1"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, c2.ID); !errors.Is(err, megarray.ErrContentNotFound) {
		t.Errorf("Get after delete err = %v, want ErrContentNotFound", err)
	}
}
