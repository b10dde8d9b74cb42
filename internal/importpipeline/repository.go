package importpipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an import id does not resolve to a row.
var ErrNotFound = errors.New("external import not found")

// ErrNoPending is returned by ClaimNextPending when the queue is empty.
var ErrNoPending = errors.New("no pending imports")

// ErrDuplicateExternalID is returned by Create on a (user, source,
// external_id) conflict.
var ErrDuplicateExternalID = errors.New("external import already exists for this activity")

// Repository persists ExternalImport rows and backs the claim-based
// worker queue the pipeline polls.
type Repository interface {
	Create(ctx context.Context, imp *ExternalImport) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExternalImport, error)

	// ClaimNextPending atomically selects one pending row and flips it to
	// processing (SELECT ... FOR UPDATE SKIP LOCKED), returning
	// ErrNoPending when none are available.
	ClaimNextPending(ctx context.Context) (*ExternalImport, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, runRecordID uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}
