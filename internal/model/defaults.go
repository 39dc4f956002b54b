package model

import "time"

// Shared defaults used by both the service and the TUI binaries.
const (
	DefaultPerPage             = 50
	DefaultAmbientInterval     = 30 * time.Second
	DefaultPostTriggerInterval = 2 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
)

// Status messages reported by the update job, as shown to users.
const (
	TriggerAcceptedMessage = "Update started in background"
	JobStartedMessage      = "Update started..."
	JobSucceededMessage    = "Update completed successfully!"
	JobInProgressMessage   = "Update already in progress"
)

// JobFailedMessage formats the status message for a failed run.
func JobFailedMessage(err error) string {
	return "Error: " + err.Error()
}
