// Package courses is the collaborator store backing ingest, route
// matching, and ranking: course geometry, metadata, and the CourseStats
// aggregate recomputed by internal/ranking. It is not a core algorithmic
// component (spec §4.5 note) — a thin repository in the teacher's
// interface-first style.
package courses

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a course id does not resolve to a row.
var ErrNotFound = errors.New("course not found")

// Difficulty is the coarse difficulty bucket computed by internal/difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Point is a WGS84 longitude/latitude pair. Storage encodes it as a
// [lng, lat] array; the HTTP layer encodes it as a {lng, lat} object.
type Point struct {
	Lng float64
	Lat float64
}

// Course is a reference route, exclusively owned by its creator.
type Course struct {
	ID                uuid.UUID
	CreatorID         uuid.UUID
	Name              string
	RouteGeometry     []Point // normalized
	RawRouteGeometry  []Point // pre-normalization
	StartPoint        Point
	DistanceM         float64
	ElevationGainM    float64
	Difficulty        Difficulty
	IsPublic          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Stats is the 1-1 CourseStats aggregate, mutated only by the stats
// recalculation task (internal/ranking).
type Stats struct {
	CourseID         uuid.UUID
	TotalRuns        int
	UniqueRunners    int
	AvgDurationS     float64
	BestDurationS    *int
	AvgPaceSPerKm    float64
	BestPaceSPerKm   *int
	CompletionRate   float64
	RunsByHour       map[string]int // "00".."23" -> count
	UpdatedAt        time.Time
}

// NearCandidate is a lightweight projection used by route-match candidate
// selection (spec §4.4: public courses whose start is within 500m).
type NearCandidate struct {
	CourseID      uuid.UUID
	RouteGeometry []Point
	DistanceM     float64
}

// ListSort orders a List query (spec §6 GET /api/v1/courses "sort").
type ListSort string

const (
	SortByDistanceAsc ListSort = "distance_asc"
	SortByNameAsc     ListSort = "name_asc"
	SortByNewest      ListSort = "newest"
)

// ListFilter narrows the public course catalog (spec §6 GET
// /api/v1/courses): free-text name search, a distance_m range, and an
// optional near(lat,lng,radius) proximity filter, combined with AND.
type ListFilter struct {
	Search      string
	MinDistance *float64
	MaxDistance *float64
	NearLat     *float64
	NearLng     *float64
	NearRadiusM *float64
	Sort        ListSort
	Limit       int
	Offset      int
}

// Repository persists Course and Stats rows.
type Repository interface {
	Create(ctx context.Context, c *Course) error
	GetByID(ctx context.Context, id uuid.UUID) (*Course, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateDifficulty(ctx context.Context, id uuid.UUID, d Difficulty) error
	Delete(ctx context.Context, id uuid.UUID) error

	GetStats(ctx context.Context, courseID uuid.UUID) (*Stats, error)
	UpsertStats(ctx context.Context, s *Stats) error

	// List returns the public course catalog page matching filter.
	List(ctx context.Context, filter ListFilter) ([]*Course, error)

	// NearbyStartCandidates returns public courses whose start_point is
	// within radiusM of (lat,lng), ordered nearest-first, capped at limit.
	// Backs route-match candidate selection (spec §4.4).
	NearbyStartCandidates(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearCandidate, error)
}
