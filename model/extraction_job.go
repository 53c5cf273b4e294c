package model

import "time"

// ExtractionStatus is the state of a document's score extraction job
type ExtractionStatus string

const (
	ExtractionStatusPending    ExtractionStatus = "pending"
	ExtractionStatusQueued     ExtractionStatus = "queued"
	ExtractionStatusProcessing ExtractionStatus = "processing"
	ExtractionStatusSuccess    ExtractionStatus = "success"
	ExtractionStatusError      ExtractionStatus = "error"
)

// IsValid reports whether the status is one of the known values
func (s ExtractionStatus) IsValid() bool {
	switch s {
	case ExtractionStatusPending, ExtractionStatusQueued, ExtractionStatusProcessing,
		ExtractionStatusSuccess, ExtractionStatusError:
		return true
	}
	return false
}

// IsTerminal returns true once the job has finished (success or error)
func (s ExtractionStatus) IsTerminal() bool {
	return s == ExtractionStatusSuccess || s == ExtractionStatusError
}

// IsInFlight returns true while the extraction service still owns the job
func (s ExtractionStatus) IsInFlight() bool {
	return s == ExtractionStatusQueued || s == ExtractionStatusProcessing
}

// JobEvent is published whenever a document's extraction status changes
type JobEvent struct {
	DocumentID uint             `json:"document_id"`
	JobID      string           `json:"job_id"`
	From       ExtractionStatus `json:"from"`
	Status     ExtractionStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Redis key patterns for extraction
const (
	// RedisChannelJobEvents carries JobEvent JSON messages
	RedisChannelJobEvents = "extraction:events"

	// RedisKeyApplyLock serializes score application per document
	// Usage: fmt.Sprintf(RedisKeyApplyLock, documentID)
	RedisKeyApplyLock = "apply:lock:%d"

	// PostgresChannelJobEvents is the LISTEN/NOTIFY channel name
	PostgresChannelJobEvents = "extraction_events"
)
