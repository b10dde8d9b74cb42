package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
	"runcore/internal/trace"
)

// PostgresSessionRepository is the Postgres-backed SessionRepository.
type PostgresSessionRepository struct {
	db database.Querier
}

// NewPostgresSessionRepository builds a Postgres-backed session repository.
func NewPostgresSessionRepository(db database.Querier) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, s *RunSession) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresSessionRepository.Create")
	defer span.End()

	deviceInfo, err := json.Marshal(s.DeviceInfo)
	if err != nil {
		return fmt.Errorf("marshal device info: %w", err)
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO run_sessions (id, user_id, course_id, status, started_at, device_info)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query, s.ID, s.UserID, s.CourseID, string(s.Status), s.StartedAt, deviceInfo).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*RunSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresSessionRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, user_id, course_id, status, started_at, device_info, created_at, updated_at
		FROM run_sessions WHERE id = $1
	`

	var s RunSession
	var status string
	var deviceInfo []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.CourseID, &status, &s.StartedAt, &deviceInfo, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get run session: %w", err)
	}
	s.Status = SessionStatus(status)

	if len(deviceInfo) > 0 && string(deviceInfo) != "null" {
		var di DeviceInfo
		if err := json.Unmarshal(deviceInfo, &di); err != nil {
			return nil, fmt.Errorf("unmarshal device info: %w", err)
		}
		s.DeviceInfo = &di
	}

	return &s, nil
}

func (r *PostgresSessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresSessionRepository.UpdateStatus")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE run_sessions SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update run session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// PostgresChunkRepository is the Postgres-backed ChunkRepository.
type PostgresChunkRepository struct {
	db database.Querier
}

// NewPostgresChunkRepository builds a Postgres-backed chunk repository.
func NewPostgresChunkRepository(db database.Querier) *PostgresChunkRepository {
	return &PostgresChunkRepository{db: db}
}

const pgUniqueViolation = "23505"

func (r *PostgresChunkRepository) Create(ctx context.Context, c *RunChunk) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresChunkRepository.Create")
	defer span.End()

	rawPoints, err := json.Marshal(c.RawGPSPoints)
	if err != nil {
		return fmt.Errorf("marshal raw gps points: %w", err)
	}
	var filteredPoints []byte
	if c.FilteredPoints != nil {
		if filteredPoints, err = json.Marshal(c.FilteredPoints); err != nil {
			return fmt.Errorf("marshal filtered points: %w", err)
		}
	}
	chunkSummary, err := json.Marshal(c.ChunkSummary)
	if err != nil {
		return fmt.Errorf("marshal chunk summary: %w", err)
	}
	cumulative, err := json.Marshal(c.Cumulative)
	if err != nil {
		return fmt.Errorf("marshal cumulative: %w", err)
	}
	splits, err := json.Marshal(c.CompletedSplits)
	if err != nil {
		return fmt.Errorf("marshal completed splits: %w", err)
	}
	pauses, err := json.Marshal(c.PauseIntervals)
	if err != nil {
		return fmt.Errorf("marshal pause intervals: %w", err)
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO run_chunks (
			id, session_id, sequence, chunk_type, raw_gps_points, filtered_points,
			chunk_summary, cumulative, completed_splits, pause_intervals
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		c.ID, c.SessionID, c.Sequence, string(c.ChunkType), rawPoints, filteredPoints,
		chunkSummary, cumulative, splits, pauses,
	).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrChunkDuplicate
		}
		return fmt.Errorf("create run chunk: %w", err)
	}
	return nil
}

func (r *PostgresChunkRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*RunChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresChunkRepository.ListBySession")
	defer span.End()

	query := `
		SELECT id, session_id, sequence, chunk_type, raw_gps_points, filtered_points,
		       chunk_summary, cumulative, completed_splits, pause_intervals, created_at
		FROM run_chunks
		WHERE session_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list run chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*RunChunk
	for rows.Next() {
		c := &RunChunk{}
		var chunkType string
		var rawPoints, filteredPoints, chunkSummary, cumulative, splits, pauses []byte

		if err := rows.Scan(
			&c.ID, &c.SessionID, &c.Sequence, &chunkType, &rawPoints, &filteredPoints,
			&chunkSummary, &cumulative, &splits, &pauses, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run chunk: %w", err)
		}
		c.ChunkType = ChunkType(chunkType)

		if err := unmarshalChunkBlobs(c, rawPoints, filteredPoints, chunkSummary, cumulative, splits, pauses); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresChunkRepository) ExistingSequences(ctx context.Context, sessionID uuid.UUID) (map[int]bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresChunkRepository.ExistingSequences")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT sequence FROM run_chunks WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query existing sequences: %w", err)
	}
	defer rows.Close()

	seqs := make(map[int]bool)
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		seqs[seq] = true
	}
	return seqs, rows.Err()
}

func unmarshalChunkBlobs(c *RunChunk, rawPoints, filteredPoints, chunkSummary, cumulative, splits, pauses []byte) error {
	if err := json.Unmarshal(rawPoints, &c.RawGPSPoints); err != nil {
		return fmt.Errorf("unmarshal raw gps points: %w", err)
	}
	if len(filteredPoints) > 0 && string(filteredPoints) != "null" {
		if err := json.Unmarshal(filteredPoints, &c.FilteredPoints); err != nil {
			return fmt.Errorf("unmarshal filtered points: %w", err)
		}
	}
	if err := json.Unmarshal(chunkSummary, &c.ChunkSummary); err != nil {
		return fmt.Errorf("unmarshal chunk summary: %w", err)
	}
	if err := json.Unmarshal(cumulative, &c.Cumulative); err != nil {
		return fmt.Errorf("unmarshal cumulative: %w", err)
	}
	if len(splits) > 0 && string(splits) != "null" {
		if err := json.Unmarshal(splits, &c.CompletedSplits); err != nil {
			return fmt.Errorf("unmarshal completed splits: %w", err)
		}
	}
	if len(pauses) > 0 && string(pauses) != "null" {
		if err := json.Unmarshal(pauses, &c.PauseIntervals); err != nil {
			return fmt.Errorf("unmarshal pause intervals: %w", err)
		}
	}
	return nil
}

// PostgresRunRecordRepository is the Postgres-backed RunRecordRepository.
type PostgresRunRecordRepository struct {
	db database.Querier
}

// NewPostgresRunRecordRepository builds a Postgres-backed run record repository.
func NewPostgresRunRecordRepository(db database.Querier) *PostgresRunRecordRepository {
	return &PostgresRunRecordRepository{db: db}
}

func (r *PostgresRunRecordRepository) Create(ctx context.Context, run *RunRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresRunRecordRepository.Create")
	defer span.End()

	routeGeometry, err := json.Marshal(run.RouteGeometry)
	if err != nil {
		return fmt.Errorf("marshal route geometry: %w", err)
	}
	elevationProfile, err := json.Marshal(run.ElevationProfile)
	if err != nil {
		return fmt.Errorf("marshal elevation profile: %w", err)
	}
	splits, err := json.Marshal(run.Splits)
	if err != nil {
		return fmt.Errorf("marshal splits: %w", err)
	}
	pauses, err := json.Marshal(run.PauseIntervals)
	if err != nil {
		return fmt.Errorf("marshal pause intervals: %w", err)
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO run_records (
			id, session_id, user_id, course_id, distance_m, duration_s,
			avg_pace_s_per_km, best_pace_s_per_km, max_speed_mps, avg_speed_mps,
			elevation_gain_m, elevation_loss_m, route_geometry, route_geometry_geog,
			elevation_profile, splits, pause_intervals, course_completed,
			route_match_percent, max_deviation_m, is_flagged, flag_reason, source,
			external_import_id, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			ST_SetSRID(ST_GeomFromGeoJSON($14), 4326)::geography,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		run.ID, run.SessionID, run.UserID, run.CourseID, run.DistanceM, run.DurationS,
		run.AvgPaceSPerKm, run.BestPaceSPerKm, run.MaxSpeedMPS, run.AvgSpeedMPS,
		run.ElevationGainM, run.ElevationLossM, routeGeometry, routeLineStringGeoJSON(run.RouteGeometry),
		elevationProfile, splits, pauses, run.CourseCompleted, run.RouteMatchPercent,
		run.MaxDeviationM, run.IsFlagged, run.FlagReason, string(run.Source), run.ExternalImportID,
		run.StartedAt, run.FinishedAt,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	return nil
}

func (r *PostgresRunRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	return r.get(ctx, "id", id)
}

func (r *PostgresRunRecordRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*RunRecord, error) {
	return r.get(ctx, "session_id", sessionID)
}

func (r *PostgresRunRecordRepository) get(ctx context.Context, column string, value uuid.UUID) (*RunRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.PostgresRunRecordRepository.get")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT id, session_id, user_id, course_id, distance_m, duration_s,
		       avg_pace_s_per_km, best_pace_s_per_km, max_speed_mps, avg_speed_mps,
		       elevation_gain_m, elevation_loss_m, route_geometry, elevation_profile,
		       splits, pause_intervals, course_completed, route_match_percent,
		       max_deviation_m, is_flagged, flag_reason, source, external_import_id,
		       started_at, finished_at, created_at
		FROM run_records WHERE %s = $1
	`, column)

	var run RunRecord
	var source string
	var routeGeometry, elevationProfile, splits, pauses []byte

	err := r.db.QueryRow(ctx, query, value).Scan(
		&run.ID, &run.SessionID, &run.UserID, &run.CourseID, &run.DistanceM, &run.DurationS,
		&run.AvgPaceSPerKm, &run.BestPaceSPerKm, &run.MaxSpeedMPS, &run.AvgSpeedMPS,
		&run.ElevationGainM, &run.ElevationLossM, &routeGeometry, &elevationProfile,
		&splits, &pauses, &run.CourseCompleted, &run.RouteMatchPercent,
		&run.MaxDeviationM, &run.IsFlagged, &run.FlagReason, &source, &run.ExternalImportID,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get run record: %w", err)
	}
	run.Source = Source(source)

	if err := json.Unmarshal(routeGeometry, &run.RouteGeometry); err != nil {
		return nil, fmt.Errorf("unmarshal route geometry: %w", err)
	}
	if err := json.Unmarshal(elevationProfile, &run.ElevationProfile); err != nil {
		return nil, fmt.Errorf("unmarshal elevation profile: %w", err)
	}
	if len(splits) > 0 && string(splits) != "null" {
		if err := json.Unmarshal(splits, &run.Splits); err != nil {
			return nil, fmt.Errorf("unmarshal splits: %w", err)
		}
	}
	if len(pauses) > 0 && string(pauses) != "null" {
		if err := json.Unmarshal(pauses, &run.PauseIntervals); err != nil {
			return nil, fmt.Errorf("unmarshal pause intervals: %w", err)
		}
	}

	return &run, nil
}

// concatenatePoints concatenates each chunk's Points() (filtered, or raw
// when no filtered points were uploaded) in ascending sequence order,
// matching spec §4.1 recover_session.
func concatenatePoints(chunks []*RunChunk) []trace.Point {
	var points []trace.Point
	for _, c := range chunks {
		points = append(points, c.Points()...)
	}
	return points
}

// routeLineStringGeoJSON renders a run's route as a GeoJSON LineString for
// ST_GeomFromGeoJSON, mirroring courses.lineStringGeoJSON so internal/spatial
// can run the same ST_Intersects/ST_DWithin envelope queries over
// run_records that internal/courses runs over courses.
func routeLineStringGeoJSON(coords []trace.Coordinate) *string {
	if len(coords) < 2 {
		return nil
	}
	type lineString struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}
	ls := lineString{Type: "LineString"}
	for _, c := range coords {
		ls.Coordinates = append(ls.Coordinates, [2]float64{c.Lng, c.Lat})
	}
	b, _ := json.Marshal(ls)
	s := string(b)
	return &s
}
