package courses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
)

// PostgresRepository is the Postgres-backed Repository implementation.
// route_geometry/raw_route_geometry are stored as jsonb arrays of
// [lng,lat] pairs (no altitude); route_geometry is also mirrored into the
// PostGIS geography column route_geometry_geog for ST_DWithin/ST_Intersects
// spatial filtering, following the pack's pggeo query-construction style.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository builds a Postgres-backed course repository. db may
// be the pool itself or a pgx.Tx, so the same type composes into a larger
// transaction (e.g. internal/ranking's post-commit recompute).
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *Course) error {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.Create")
	defer span.End()

	routeJSON, err := marshalPoints(c.RouteGeometry)
	if err != nil {
		return fmt.Errorf("marshal route geometry: %w", err)
	}
	rawJSON, err := marshalPoints(c.RawRouteGeometry)
	if err != nil {
		return fmt.Errorf("marshal raw route geometry: %w", err)
	}

	query := `
		INSERT INTO courses (
			id, creator_id, name, route_geometry, raw_route_geometry,
			start_point, start_point_geog, route_geometry_geog,
			distance_m, elevation_gain_m, difficulty, is_public
		) VALUES (
			$1, $2, $3, $4, $5,
			ST_MakePoint($6, $7),
			ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography,
			ST_SetSRID(ST_GeomFromGeoJSON($8), 4326)::geography,
			$9, $10, $11, $12
		)
		RETURNING created_at, updated_at
	`

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	err = r.db.QueryRow(ctx, query,
		c.ID, c.CreatorID, c.Name, routeJSON, rawJSON,
		c.StartPoint.Lng, c.StartPoint.Lat, lineStringGeoJSON(c.RouteGeometry),
		c.DistanceM, c.ElevationGainM, string(c.Difficulty), c.IsPublic,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, creator_id, name, route_geometry, raw_route_geometry,
		       ST_X(start_point::geometry), ST_Y(start_point::geometry),
		       distance_m, elevation_gain_m, difficulty, is_public,
		       created_at, updated_at
		FROM courses WHERE id = $1
	`

	var c Course
	var routeJSON, rawJSON []byte
	var difficulty string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CreatorID, &c.Name, &routeJSON, &rawJSON,
		&c.StartPoint.Lng, &c.StartPoint.Lat,
		&c.DistanceM, &c.ElevationGainM, &difficulty, &c.IsPublic,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	c.Difficulty = Difficulty(difficulty)
	if c.RouteGeometry, err = unmarshalPoints(routeJSON); err != nil {
		return nil, fmt.Errorf("unmarshal route geometry: %w", err)
	}
	if c.RawRouteGeometry, err = unmarshalPoints(rawJSON); err != nil {
		return nil, fmt.Errorf("unmarshal raw route geometry: %w", err)
	}

	return &c, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.Exists")
	defer span.End()

	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check course existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateDifficulty(ctx context.Context, id uuid.UUID, d Difficulty) error {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.UpdateDifficulty")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE courses SET difficulty = $1, updated_at = now() WHERE id = $2`, string(d), id)
	if err != nil {
		return fmt.Errorf("update course difficulty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.Delete")
	defer span.End()

	// RunRecords referencing this course have their course_id nulled first
	// so the foreign key doesn't block deletion (spec §9 "cyclic
	// references" deletion order).
	if _, err := r.db.Exec(ctx, `UPDATE run_records SET course_id = NULL WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("clear run_records.course_id: %w", err)
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) GetStats(ctx context.Context, courseID uuid.UUID) (*Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.GetStats")
	defer span.End()

	query := `
		SELECT course_id, total_runs, unique_runners, avg_duration_s, best_duration_s,
		       avg_pace_s_per_km, best_pace_s_per_km, completion_rate, runs_by_hour, updated_at
		FROM course_stats WHERE course_id = $1
	`

	var s Stats
	var runsByHour []byte

	err := r.db.QueryRow(ctx, query, courseID).Scan(
		&s.CourseID, &s.TotalRuns, &s.UniqueRunners, &s.AvgDurationS, &s.BestDurationS,
		&s.AvgPaceSPerKm, &s.BestPaceSPerKm, &s.CompletionRate, &runsByHour, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get course stats: %w", err)
	}

	if len(runsByHour) > 0 {
		if err := json.Unmarshal(runsByHour, &s.RunsByHour); err != nil {
			return nil, fmt.Errorf("unmarshal runs_by_hour: %w", err)
		}
	}

	return &s, nil
}

func (r *PostgresRepository) UpsertStats(ctx context.Context, s *Stats) error {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.UpsertStats")
	defer span.End()

	runsByHour, err := json.Marshal(s.RunsByHour)
	if err != nil {
		return fmt.Errorf("marshal runs_by_hour: %w", err)
	}

	query := `
		INSERT INTO course_stats (
			course_id, total_runs, unique_runners, avg_duration_s, best_duration_s,
			avg_pace_s_per_km, best_pace_s_per_km, completion_rate, runs_by_hour, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (course_id) DO UPDATE SET
			total_runs = EXCLUDED.total_runs,
			unique_runners = EXCLUDED.unique_runners,
			avg_duration_s = EXCLUDED.avg_duration_s,
			best_duration_s = EXCLUDED.best_duration_s,
			avg_pace_s_per_km = EXCLUDED.avg_pace_s_per_km,
			best_pace_s_per_km = EXCLUDED.best_pace_s_per_km,
			completion_rate = EXCLUDED.completion_rate,
			runs_by_hour = EXCLUDED.runs_by_hour,
			updated_at = now()
	`

	_, err = r.db.Exec(ctx, query,
		s.CourseID, s.TotalRuns, s.UniqueRunners, s.AvgDurationS, s.BestDurationS,
		s.AvgPaceSPerKm, s.BestPaceSPerKm, s.CompletionRate, runsByHour,
	)
	if err != nil {
		return fmt.Errorf("upsert course stats: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.List")
	defer span.End()

	query := `
		SELECT id, creator_id, name, route_geometry, raw_route_geometry,
		       ST_X(start_point::geometry), ST_Y(start_point::geometry),
		       distance_m, elevation_gain_m, difficulty, is_public,
		       created_at, updated_at
		FROM courses
		WHERE is_public = true
	`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		query += " AND name ILIKE " + arg("%"+filter.Search+"%")
	}
	if filter.MinDistance != nil {
		query += " AND distance_m >= " + arg(*filter.MinDistance)
	}
	if filter.MaxDistance != nil {
		query += " AND distance_m <= " + arg(*filter.MaxDistance)
	}
	if filter.NearLat != nil && filter.NearLng != nil && filter.NearRadiusM != nil {
		lngArg := arg(*filter.NearLng)
		latArg := arg(*filter.NearLat)
		radiusArg := arg(*filter.NearRadiusM)
		query += fmt.Sprintf(
			" AND ST_DWithin(start_point_geog, ST_SetSRID(ST_MakePoint(%s, %s), 4326)::geography, %s)",
			lngArg, latArg, radiusArg,
		)
	}

	switch filter.Sort {
	case SortByNameAsc:
		query += " ORDER BY name ASC"
	case SortByNewest:
		query += " ORDER BY created_at DESC"
	default:
		query += " ORDER BY distance_m ASC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var out []*Course
	for rows.Next() {
		var c Course
		var routeJSON, rawJSON []byte
		var difficulty string
		if err := rows.Scan(
			&c.ID, &c.CreatorID, &c.Name, &routeJSON, &rawJSON,
			&c.StartPoint.Lng, &c.StartPoint.Lat,
			&c.DistanceM, &c.ElevationGainM, &difficulty, &c.IsPublic,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		c.Difficulty = Difficulty(difficulty)
		if c.RouteGeometry, err = unmarshalPoints(routeJSON); err != nil {
			return nil, fmt.Errorf("unmarshal route geometry: %w", err)
		}
		if c.RawRouteGeometry, err = unmarshalPoints(rawJSON); err != nil {
			return nil, fmt.Errorf("unmarshal raw route geometry: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) NearbyStartCandidates(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearCandidate, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.PostgresRepository.NearbyStartCandidates")
	defer span.End()

	query := `
		SELECT id, route_geometry,
		       ST_Distance(start_point_geog, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
		FROM courses
		WHERE is_public = true
		  AND ST_DWithin(start_point_geog, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY start_point_geog <-> ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, lng, lat, radiusM, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearby start candidates: %w", err)
	}
	defer rows.Close()

	var out []NearCandidate
	for rows.Next() {
		var c NearCandidate
		var routeJSON []byte
		if err := rows.Scan(&c.CourseID, &routeJSON, &c.DistanceM); err != nil {
			return nil, fmt.Errorf("scan nearby candidate: %w", err)
		}
		if c.RouteGeometry, err = unmarshalPoints(routeJSON); err != nil {
			return nil, fmt.Errorf("unmarshal candidate route geometry: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshalPoints(points []Point) ([]byte, error) {
	type coord [2]float64
	coords := make([]coord, len(points))
	for i, p := range points {
		coords[i] = coord{p.Lng, p.Lat}
	}
	return json.Marshal(coords)
}

func unmarshalPoints(data []byte) ([]Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var coords [][2]float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return nil, err
	}
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lng: c[0], Lat: c[1]}
	}
	return points, nil
}

// lineStringGeoJSON renders points as a GeoJSON LineString for
// ST_GeomFromGeoJSON. Courses with fewer than 2 vertices store a null
// geometry column rather than an invalid LineString.
func lineStringGeoJSON(points []Point) *string {
	if len(points) < 2 {
		return nil
	}
	type lineString struct {
		Type        string      `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}
	ls := lineString{Type: "LineString"}
	for _, p := range points {
		ls.Coordinates = append(ls.Coordinates, [2]float64{p.Lng, p.Lat})
	}
	b, _ := json.Marshal(ls)
	s := string(b)
	return &s
}
