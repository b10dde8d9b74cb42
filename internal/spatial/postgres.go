package spatial

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"runcore/internal/courses"
	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
	"runcore/internal/trace"
)

// PostgresRepository runs the spatial query layer's read queries against
// the same PostGIS geography columns internal/courses and internal/ingest
// maintain, following the pack's pggeo query-construction style
// (ST_DWithin/ST_MakeEnvelope raw SQL over a geography column).
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository builds a Postgres-backed spatial query repository.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) NearbyCourses(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearbyCourse, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.PostgresRepository.NearbyCourses")
	defer span.End()

	query := `
		SELECT id, name, distance_m, difficulty, is_public,
		       ST_Distance(start_point_geog, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
		FROM courses
		WHERE is_public = true
		  AND ST_DWithin(start_point_geog, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY start_point_geog <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, lng, lat, radiusM, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearby courses: %w", err)
	}
	defer rows.Close()

	var out []NearbyCourse
	for rows.Next() {
		var c NearbyCourse
		var difficulty string
		if err := rows.Scan(&c.CourseID, &c.Name, &c.DistanceM, &difficulty, &c.IsPublic, &c.FromUserM); err != nil {
			return nil, fmt.Errorf("scan nearby course row: %w", err)
		}
		c.Difficulty = courses.Difficulty(difficulty)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CoursesInBounds(ctx context.Context, b Bounds) ([]BoundsCourse, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.PostgresRepository.CoursesInBounds")
	defer span.End()

	query := `
		SELECT id, name, ST_X(start_point::geometry), ST_Y(start_point::geometry),
		       distance_m, difficulty
		FROM courses
		WHERE is_public = true
		  AND start_point_geog && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
	`

	rows, err := r.db.Query(ctx, query, b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
	if err != nil {
		return nil, fmt.Errorf("query courses in bounds: %w", err)
	}
	defer rows.Close()

	var out []BoundsCourse
	for rows.Next() {
		var c BoundsCourse
		var difficulty string
		if err := rows.Scan(&c.CourseID, &c.Name, &c.StartPoint.Lng, &c.StartPoint.Lat, &c.DistanceM, &difficulty); err != nil {
			return nil, fmt.Errorf("scan course-in-bounds row: %w", err)
		}
		c.Difficulty = courses.Difficulty(difficulty)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RoutesInBounds finds completed run routes intersecting the envelope,
// hard-capped at limit (spec §4.8 step a / §5 backpressure: 500 records).
func (r *PostgresRepository) RoutesInBounds(ctx context.Context, b Bounds, limit int) ([]RunRoute, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.PostgresRepository.RoutesInBounds")
	defer span.End()

	query := `
		SELECT id, route_geometry
		FROM run_records
		WHERE course_completed = true AND is_flagged = false
		  AND route_geometry_geog && ST_MakeEnvelope($1, $2, $3, $4, 4326)::geography
		LIMIT $5
	`

	rows, err := r.db.Query(ctx, query, b.MinLng, b.MinLat, b.MaxLng, b.MaxLat, limit)
	if err != nil {
		return nil, fmt.Errorf("query routes in bounds: %w", err)
	}
	defer rows.Close()

	var out []RunRoute
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan route-in-bounds row: %w", err)
		}
		var coords []trace.Coordinate
		if err := json.Unmarshal(raw, &coords); err != nil {
			return nil, fmt.Errorf("unmarshal route geometry: %w", err)
		}
		out = append(out, RunRoute{RunRecordID: id, Coordinates: coords})
	}
	return out, rows.Err()
}
