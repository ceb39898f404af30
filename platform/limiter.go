// Package platform controls outbound publish traffic per target platform
// and per organization: token-bucket rate limits plus concurrency caps.
// The engine wraps the Publisher with a Limiter so scheduled fires, sweep
// retries, and direct publishes all share the same limits.
package platform

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
)

// Config defines per-platform behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Platform is the platform identifier (must match content.Platform).
	Platform string

	// MaxConcurrency limits how many publishes to this platform may run
	// simultaneously. Zero means no platform-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained publishes per second to this
	// platform. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// platformState tracks runtime state for a single platform.
type platformState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// OrgConfig defines rate limits and concurrency for a specific
// organization on a specific platform.
type OrgConfig struct {
	// Platform is the platform this config applies to.
	Platform string

	// OrgID is the organization identifier.
	OrgID string

	// RateLimit is the sustained publishes per second for this org.
	RateLimit float64

	// RateBurst is the burst size for the org's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous publishes for this org on this
	// platform. Zero means no org-specific concurrency limit.
	MaxConcurrency int
}

// orgState tracks runtime state for a single platform+org pair.
type orgState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// orgKey builds the map key for a platform+org pair.
func orgKey(platform, orgID string) string {
	return fmt.Sprintf("%s:%s", platform, orgID)
}

// Limiter controls per-platform and per-org rate limiting and concurrency.
// It is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	platforms map[string]*platformState
	orgs      map[string]*orgState
}

// NewLimiter creates a Limiter with the given platform configurations.
// Platforms not listed here have no limits.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{
		platforms: make(map[string]*platformState, len(configs)),
		orgs:      make(map[string]*orgState),
	}
	for _, cfg := range configs {
		l.platforms[cfg.Platform] = newPlatformState(cfg)
	}
	return l
}

func newPlatformState(cfg Config) *platformState {
	ps := &platformState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ps.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ps
}

// Acquire checks rate limits and concurrency for the given platform and
// org. If the publish is allowed to proceed it increments the active
// counters and returns true. The caller MUST call Release when the publish
// completes.
func (l *Limiter) Acquire(platform, orgID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ps := l.platforms[platform]
	var os *orgState
	if orgID != "" {
		os = l.orgs[orgKey(platform, orgID)]
	}

	// Concurrency caps are checked before any token is consumed; a denied
	// acquire must not burn rate budget.
	if ps != nil && ps.config.MaxConcurrency > 0 && ps.active >= ps.config.MaxConcurrency {
		return false
	}
	if os != nil && os.maxConcurrency > 0 && os.active >= os.maxConcurrency {
		return false
	}

	// The platform token is reserved, not consumed, so an org-level denial
	// can hand it back.
	var res *rate.Reservation
	if ps != nil && ps.limiter != nil {
		res = ps.limiter.Reserve()
		if !res.OK() || res.Delay() > 0 {
			res.Cancel()
			return false
		}
	}
	if os != nil && os.limiter != nil && !os.limiter.Allow() {
		if res != nil {
			res.Cancel()
		}
		return false
	}

	if ps != nil {
		ps.active++
	}
	if os != nil {
		os.active++
	}
	return true
}

// Release decrements the active publish count for the platform and org.
func (l *Limiter) Release(platform, orgID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ps := l.platforms[platform]; ps != nil && ps.active > 0 {
		ps.active--
	}

	if orgID != "" {
		if os := l.orgs[orgKey(platform, orgID)]; os != nil && os.active > 0 {
			os.active--
		}
	}
}

// SetPlatformConfig dynamically updates (or creates) a platform
// configuration.
func (l *Limiter) SetPlatformConfig(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.platforms[cfg.Platform]
	ps := newPlatformState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ps.active = existing.active
	}
	l.platforms[cfg.Platform] = ps
}

// SetOrgConfig configures rate limits and concurrency for a specific org
// on a specific platform. Calling this multiple times for the same
// platform+org replaces the previous configuration.
func (l *Limiter) SetOrgConfig(cfg OrgConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := orgKey(cfg.Platform, cfg.OrgID)
	existing := l.orgs[key]

	os := &orgState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		os.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if existing != nil {
		os.active = existing.active
	}
	l.orgs[key] = os
}

// ActiveCount returns the current number of active publishes for a
// platform.
func (l *Limiter) ActiveCount(platform string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ps := l.platforms[platform]; ps != nil {
		return ps.active
	}
	return 0
}

// OrgActiveCount returns the current number of active publishes for a
// platform+org pair.
func (l *Limiter) OrgActiveCount(platform, orgID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if os := l.orgs[orgKey(platform, orgID)]; os != nil {
		return os.active
	}
	return 0
}

// WrapPublisher returns a Publisher that acquires a slot before delegating
// to next. A denied acquire is reported as megarray.ErrPublishFailed so
// the content stays publishable and the sweep retries it.
func (l *Limiter) WrapPublisher(next content.Publisher) content.Publisher {
	return content.PublisherFunc(func(ctx context.Context, c *content.Content) (string, error) {
		if !l.Acquire(c.Platform, c.OrgID) {
			return "", fmt.Errorf("%w: platform %s at capacity", megarray.ErrPublishFailed, c.Platform)
		}
		defer l.Release(c.Platform, c.OrgID)
		return next.Publish(ctx, c)
	})
}
