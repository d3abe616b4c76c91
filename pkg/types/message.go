package types

import (
	"encoding/json"
	"time"
)

// ProcessingRequest is published once per upload and consumed by the worker.
// It is transient: it only lives on the broker.
type ProcessingRequest struct {
	DocumentKey  string `json:"documentKey"`  // generated at upload time
	OriginalName string `json:"originalName"` // client supplied, display only
	Bucket       string `json:"bucket"`
}

// ExtractionRecord is the persisted result of one successful extraction.
// DocumentKey is unique; re-processing overwrites the row keyed by it.
type ExtractionRecord struct {
	ID                   string          `json:"id"`
	DocumentKey          string          `json:"documentKey"`
	OriginalName         string          `json:"originalName"`
	StructuredData       json.RawMessage `json:"structuredData"`
	Timestamp            time.Time       `json:"timestamp"`
	VectorRepresentation *string         `json:"vectorRepresentation,omitempty"`
}

// Status values written to the status tracker.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Decision is what the worker tells the broker after handling a request.
type Decision int

const (
	// Ack removes the message; the record is persisted.
	Ack Decision = iota
	// Requeue asks for redelivery after a backoff.
	Requeue
	// Reject routes the message to the dead-letter queue.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}
