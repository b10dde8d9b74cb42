// Package importpipeline implements the File / Third-Party Import Pipeline
// (spec §4.3): turning a caller-provided GPX file, FIT file, or already
// normalized third-party activity payload into a RunRecord using the same
// ingest invariants as a live session.
package importpipeline

import (
	"time"

	"github.com/google/uuid"

	"runcore/internal/ingest"
)

// Status is the ExternalImport state machine: pending -> processing ->
// {completed, failed}, all transitions persistent (spec §4.3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// minDistanceM and minDurationS are the validation thresholds a parsed
// point stream must clear before Trace Derivation runs (spec §4.3 step 3).
const (
	minDistanceM = 100.0
	minDurationS = 30
)

// ExternalImport is one claimed upload or third-party fetch (spec §3).
type ExternalImport struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Source     ingest.Source
	ExternalID *string // unique per (user, source, external_id); nil for file uploads
	Payload    []byte  // the raw GPX/FIT blob, or a serialized third-party payload
	Status     Status

	RunRecordID  *uuid.UUID
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
