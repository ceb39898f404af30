package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
)

func TestUnconfiguredPlatformHasNoLimits(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 100; i++ {
		if !l.Acquire("twitter", "org-1") {
			t.Fatalf("acquire %d denied on unconfigured platform", i)
		}
	}
}

func TestConcurrencyCap(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter", MaxConcurrency: 2})

	if !l.Acquire("twitter", "") || !l.Acquire("twitter", "") {
		t.Fatal("acquires under the cap denied")
	}
	if l.Acquire("twitter", "") {
		t.Fatal("acquire over the cap allowed")
	}

	l.Release("twitter", "")
	if !l.Acquire("twitter", "") {
		t.Fatal("acquire denied after release")
	}
	if l.ActiveCount("twitter") != 2 {
		t.Errorf("ActiveCount = %d, want 2", l.ActiveCount("twitter"))
	}
}

func TestRateLimitDeniesBurst(t *testing.T) {
	l := NewLimiter(Config{Platform: "linkedin", RateLimit: 1, RateBurst: 2})

	if !l.Acquire("linkedin", "") || !l.Acquire("linkedin", "") {
		t.Fatal("burst acquires denied")
	}
	if l.Acquire("linkedin", "") {
		t.Fatal("acquire beyond burst allowed")
	}
}

func TestOrgConcurrencyCap(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter"})
	l.SetOrgConfig(OrgConfig{Platform: "twitter", OrgID: "org-1", MaxConcurrency: 1})

	if !l.Acquire("twitter", "org-1") {
		t.Fatal("first org acquire denied")
	}
	if l.Acquire("twitter", "org-1") {
		t.Fatal("second org acquire allowed over cap")
	}
	// A different org is unaffected.
	if !l.Acquire("twitter", "org-2") {
		t.Fatal("other org denied")
	}

	l.Release("twitter", "org-1")
	if l.OrgActiveCount("twitter", "org-1") != 0 {
		t.Errorf("OrgActiveCount = %d, want 0", l.OrgActiveCount("twitter", "org-1"))
	}
}

func TestDeniedAcquireKeepsRateToken(t *testing.T) {
	// Rate so low the bucket never refills within the test; two tokens
	// total. A concurrency denial must not spend one.
	l := NewLimiter(Config{Platform: "twitter", MaxConcurrency: 1, RateLimit: 0.001, RateBurst: 2})

	if !l.Acquire("twitter", "") {
		t.Fatal("first acquire denied")
	}
	if l.Acquire("twitter", "") {
		t.Fatal("acquire over the concurrency cap allowed")
	}

	l.Release("twitter", "")
	if !l.Acquire("twitter", "") {
		t.Error("second token gone, the denied acquire burned it")
	}
}

func TestOrgDenialReturnsPlatformToken(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter", RateLimit: 0.001, RateBurst: 2})
	l.SetOrgConfig(OrgConfig{Platform: "twitter", OrgID: "org-1", RateLimit: 0.001, RateBurst: 1})

	if !l.Acquire("twitter", "org-1") {
		t.Fatal("first acquire denied")
	}
	if l.Acquire("twitter", "org-1") {
		t.Fatal("acquire beyond the org burst allowed")
	}
	// The org denial handed the platform token back; another org can use it.
	if !l.Acquire("twitter", "org-2") {
		t.Error("platform token gone, the org-denied acquire burned it")
	}
}

func TestSetPlatformConfigPreservesActive(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter", MaxConcurrency: 5})
	l.Acquire("twitter", "")
	l.Acquire("twitter", "")

	l.SetPlatformConfig(Config{Platform: "twitter", MaxConcurrency: 2})
	if l.ActiveCount("twitter") != 2 {
		t.Errorf("ActiveCount = %d after reconfigure, want 2", l.ActiveCount("twitter"))
	}
	if l.Acquire("twitter", "") {
		t.Error("acquire allowed over the lowered cap")
	}
}

func TestWrapPublisher(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter", MaxConcurrency: 1})

	calls := 0
	inner := content.PublisherFunc(func(_ context.Context, _ *content.Content) (string, error) {
		calls++
		return "https://twitter.example/1", nil
	})
	wrapped := l.WrapPublisher(inner)

	c := &content.Content{Platform: "twitter", OrgID: "org-1"}
	url, err := wrapped.Publish(context.Background(), c)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if url == "" || calls != 1 {
		t.Errorf("url = %q, calls = %d", url, calls)
	}
	// The slot was released after the publish returned.
	if l.ActiveCount("twitter") != 0 {
		t.Errorf("ActiveCount = %d after publish, want 0", l.ActiveCount("twitter"))
	}
}

func TestWrapPublisherDeniedMapsToPublishFailed(t *testing.T) {
	l := NewLimiter(Config{Platform: "twitter", MaxConcurrency: 1})
	l.Acquire("twitter", "")

	wrapped := l.WrapPublisher(content.PublisherFunc(func(_ context.Context, _ *content.Content) (string, error) {
		t.Fatal("inner publisher called while at capacity")
		return "", nil
	}))

	_, err := wrapped.Publish(context.Background(), &content.Content{Platform: "twitter"})
	if !errors.Is(err, megarray.ErrPublishFailed) {
		t.Errorf("err = %v, want ErrPublishFailed", err)
	}
}
