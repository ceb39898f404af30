// Package recurring manages recurring AI content-generation jobs: cron-like
// definitions that periodically generate a new draft through a Generator
// collaborator. Jobs are never deleted, only cancelled, so their run history
// and error counters stay visible.
package recurring

import (
	"time"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/id"
)

// Status represents the lifecycle state of a recurring job.
type Status string

const (
	// StatusActive means the job fires on its schedule.
	StatusActive Status = "ACTIVE"
	// StatusPaused means the job is disarmed but can be resumed.
	StatusPaused Status = "PAUSED"
	// StatusCancelled means the job is terminally stopped.
	StatusCancelled Status = "CANCELLED"
)

// Params describes what the generator should produce on each fire.
type Params struct {
	Type     string `json:"type"`
	Platform string `json:"platform"`
	Topic    string `json:"topic"`
	Tone     string `json:"tone,omitempty"`
}

// Job is a recurring content-generation definition. A failing run
// increments ErrorCount and records LastError but never disables the job;
// operators pause or cancel explicitly.
type Job struct {
	megarray.Entity

	ID         id.RecurringID `json:"id"`
	Name       string         `json:"name"`
	Schedule   string         `json:"schedule"`
	Params     Params         `json:"params"`
	Status     Status         `json:"status"`
	OwnerID    string         `json:"owner_id"`
	OrgID      string         `json:"org_id"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
	ErrorCount int            `json:"error_count"`
	LastError  string         `json:"last_error,omitempty"`
}
