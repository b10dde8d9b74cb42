// Package ranking keeps per-course leaderboards and aggregate statistics
// eventually consistent with the set of completed, non-flagged RunRecords
// (spec §4.5). It runs as a post-commit task triggered by internal/ingest
// and internal/importpipeline, never inline with the request that produced
// the RunRecord.
package ranking

import (
	"time"

	"github.com/google/uuid"
)

// Ranking is one user's best result on one course (spec §3 Ranking).
type Ranking struct {
	ID             uuid.UUID
	CourseID       uuid.UUID
	UserID         uuid.UUID
	BestDurationS  int
	BestPaceSPerKm *int
	RunCount       int
	Rank           int
	AchievedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Aggregates is the course-wide rollup computed from completed, non-flagged
// RunRecords, grouped the way courses.Stats is shaped for storage.
type Aggregates struct {
	TotalRuns     int // completed, non-flagged RunRecords
	TotalAttempts int // every RunRecord with this course_id, flagged or not
	UniqueRunners int
	AvgDurationS  float64
	BestDurationS *int
	RunsByHour    map[string]int // "00".."23" -> count
}
