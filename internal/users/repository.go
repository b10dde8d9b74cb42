// Package users is the collaborator store for User identity and cumulative
// run stats. Per spec §3, User.total_distance_m/total_runs are mutated
// only by the post-run stats step, fired unconditionally on every
// finalized run from internal/ingest and internal/importpipeline --
// distinct from the course-completion-gated ranking recompute in
// internal/ranking.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a user id does not resolve to a row.
var ErrNotFound = errors.New("user not found")

// User is a platform identity.
type User struct {
	ID              uuid.UUID
	Nickname        string
	TotalDistanceM  float64
	TotalRuns       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository persists User rows.
type Repository interface {
	// Create inserts a new user, generating a nickname-free row; internal/auth
	// calls this the first time a provider identity logs in.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// IncrementCumulativeStats atomically adds distanceM and 1 run to the
	// user's running totals. Called unconditionally on every finalized run
	// commit, independent of course completion or flagged state (spec §4.3
	// step 8).
	IncrementCumulativeStats(ctx context.Context, id uuid.UUID, distanceM float64) error
}
