package model

// Status is the processing state of a document.
//
// Valid transitions:
//
//	pending -> processing
//	processing -> completed
//	pending/processing -> failed
//	failed -> pending (retry sweep, while retries remain)
//
// Completed is terminal. Failed becomes terminal once the retry count
// reaches the configured maximum.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
