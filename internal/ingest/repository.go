package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Errors returned by the repository layer; the service layer translates
// these into apperror codes (NOT_FOUND, DUPLICATE_CHUNK, ...).
var (
	ErrSessionNotFound = errors.New("run session not found")
	ErrChunkDuplicate  = errors.New("chunk sequence already exists for session")
	ErrRecordNotFound  = errors.New("run record not found")
)

// SessionRepository persists RunSession rows.
type SessionRepository interface {
	Create(ctx context.Context, s *RunSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*RunSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error
}

// ChunkRepository persists RunChunk rows.
type ChunkRepository interface {
	// Create inserts one chunk. Returns ErrChunkDuplicate on a
	// (session_id, sequence) conflict.
	Create(ctx context.Context, c *RunChunk) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*RunChunk, error)
	ExistingSequences(ctx context.Context, sessionID uuid.UUID) (map[int]bool, error)
}

// RunRecordRepository persists RunRecord rows.
type RunRecordRepository interface {
	Create(ctx context.Context, r *RunRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*RunRecord, error)
}
