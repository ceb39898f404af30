package schedule

import "github.com/mmont5/megarray/id"

// System job names.
const (
	SystemSweep          = "sweep"
	SystemTokenRefresh   = "token-refresh"
	SystemSessionCleanup = "session-cleanup"
)

// ContentJobID returns the registry key for a one-off content publish job.
func ContentJobID(contentID id.ContentID) string {
	return "content:" + contentID.String()
}

// RecurringJobID returns the registry key for a recurring generation job.
func RecurringJobID(recurringID id.RecurringID) string {
	return "recurring:" + recurringID.String()
}

// SystemJobID returns the registry key for a named system maintenance job.
func SystemJobID(name string) string {
	return "system:" + name
}
