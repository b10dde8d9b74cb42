package spatial

import (
	"context"

	"github.com/google/uuid"

	"runcore/internal/trace"
)

// RunRoute is one completed run's route geometry, as the heatmap source
// data (spec §4.8 step a/b): "finds run records whose route intersects
// the envelope... dumps all vertices from each matching route".
type RunRoute struct {
	RunRecordID uuid.UUID
	Coordinates []trace.Coordinate
}

// Repository runs the read-only geography queries backing the spatial
// query layer. It has no write methods; courses/run_records are owned by
// internal/courses and internal/ingest respectively.
type Repository interface {
	// NearbyCourses returns public courses within radiusM of (lat, lng),
	// nearest first, capped at limit (spec §6 nearby, radius <= 50km).
	NearbyCourses(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearbyCourse, error)

	// CoursesInBounds returns public courses whose start point falls
	// inside the viewport envelope (spec §6 bounds).
	CoursesInBounds(ctx context.Context, b Bounds) ([]BoundsCourse, error)

	// RoutesInBounds returns up to limit completed run routes that
	// intersect the envelope, for heatmap vertex extraction (spec §4.8
	// step a, hard-capped at 500 per the backpressure rule in spec §5).
	RoutesInBounds(ctx context.Context, b Bounds, limit int) ([]RunRoute, error)
}
