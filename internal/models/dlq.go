package models

import (
	"encoding/json"
	"time"
)

// Failure types for DLQ records.
const (
	FailureTypePermanent  = "permanent"
	FailureTypeExhausted  = "exhausted"
	FailureTypeValidation = "validation"
	FailureTypeUnknown    = "unknown"
)

// DLQRecord describes a deferred job that will not be retried.
type DLQRecord struct {
	JobID         string            `json:"job_id,omitempty"`
	Provider      string            `json:"provider,omitempty"`
	OriginalJob   json.RawMessage   `json:"original_job"`
	Attempts      int               `json:"attempts"`
	FailureType   string            `json:"failure_type"`
	LastError     string            `json:"last_error,omitempty"`
	FirstFailedAt time.Time         `json:"first_failed_at"`
	LastAttemptAt time.Time         `json:"last_attempt_at"`
	TraceID       string            `json:"trace_id,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}
