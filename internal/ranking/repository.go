package ranking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a (course_id, user_id) pair has no Ranking row.
var ErrNotFound = errors.New("ranking not found")

// Repository persists Ranking rows for one course's leaderboard.
type Repository interface {
	GetByUserAndCourse(ctx context.Context, courseID, userID uuid.UUID) (*Ranking, error)
	// Upsert inserts or updates a Ranking row, keyed on (course_id, user_id).
	Upsert(ctx context.Context, r *Ranking) error
	// ListByCourse returns every Ranking row for a course ordered by
	// best_duration_s ascending, insertion order (created_at ascending) as
	// the tie-break (spec §9 Q2).
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*Ranking, error)
	// UpdateRank writes the 1-based leaderboard position for one row.
	UpdateRank(ctx context.Context, id uuid.UUID, rank int) error
}

// Aggregator computes the course-stats rollup directly from run_records,
// rather than loading every row into the service and aggregating in Go.
type Aggregator interface {
	CourseAggregates(ctx context.Context, courseID uuid.UUID) (Aggregates, error)
}
