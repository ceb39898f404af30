// Package schedule owns the in-memory job registry and the scheduler that
// drives one-off publish timers, recurring generation jobs, and system
// maintenance jobs. Timers are runtime-only; the store is the durable
// source of truth and Reconcile rebuilds the registry after a restart.
package schedule

import (
	"sync"
	"time"
)

// Handle is an armed timer that can be stopped. Stopping prevents future
// fires; it does not interrupt an execution already in flight.
type Handle interface {
	Stop()
}

// Registry maps job IDs to armed handles. All methods are safe for
// concurrent use. The registry mutex is never held while a task body runs.
type Registry struct {
	mu      sync.Mutex
	handles map[string]Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Put registers a handle under the given job ID. Any previously registered
// handle for the same ID is stopped first, so re-registration is idempotent
// and the last writer wins.
func (r *Registry) Put(jobID string, h Handle) {
	r.mu.Lock()
	prev := r.handles[jobID]
	r.handles[jobID] = h
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}

// Cancel stops and removes the handle for the given job ID. It reports
// whether a handle was present; cancelling an absent job is a no-op.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	h, ok := r.handles[jobID]
	delete(r.handles, jobID)
	r.mu.Unlock()

	if ok {
		h.Stop()
	}
	return ok
}

// Remove deletes the entry for jobID only if it still holds h. One-off
// tasks call this after firing; the handle comparison keeps a concurrent
// re-registration from being wiped out.
func (r *Registry) Remove(jobID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[jobID] == h {
		delete(r.handles, jobID)
	}
}

// Contains reports whether a handle is registered for the given job ID.
func (r *Registry) Contains(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[jobID]
	return ok
}

// IDs returns the registered job IDs in unspecified order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handles))
	for jobID := range r.handles {
		out = append(out, jobID)
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Clear stops and removes every handle. Used during shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// oneOffHandle wraps a single time.AfterFunc timer. The handle is put in
// the registry before the timer is armed; a Stop in that window marks the
// handle stopped so arm becomes a no-op.
type oneOffHandle struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (h *oneOffHandle) arm(d time.Duration, fire func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.timer = time.AfterFunc(d, fire)
}

func (h *oneOffHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

// recurringHandle signals a timer-chain goroutine to exit.
type recurringHandle struct {
	stop chan struct{}
	once sync.Once
}

func newRecurringHandle() *recurringHandle {
	return &recurringHandle{stop: make(chan struct{})}
}

func (h *recurringHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}
