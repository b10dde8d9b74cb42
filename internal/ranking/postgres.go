package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
)

// PostgresRepository is the Postgres-backed Repository implementation. db
// may be the pool itself or a pgx.Tx, so a ranking upsert and the course
// stats recompute it drives can share one transaction (spec §4.5 "within
// one transaction").
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository builds a Postgres-backed ranking repository.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByUserAndCourse(ctx context.Context, courseID, userID uuid.UUID) (*Ranking, error) {
	ctx, span := telemetry.StartSpan(ctx, "ranking.PostgresRepository.GetByUserAndCourse")
	defer span.End()

	query := `
		SELECT id, course_id, user_id, best_duration_s, best_pace_s_per_km,
		       run_count, rank, achieved_at, created_at, updated_at
		FROM rankings WHERE course_id = $1 AND user_id = $2
	`

	var rk Ranking
	err := r.db.QueryRow(ctx, query, courseID, userID).Scan(
		&rk.ID, &rk.CourseID, &rk.UserID, &rk.BestDurationS, &rk.BestPaceSPerKm,
		&rk.RunCount, &rk.Rank, &rk.AchievedAt, &rk.CreatedAt, &rk.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ranking: %w", err)
	}
	return &rk, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rk *Ranking) error {
	ctx, span := telemetry.StartSpan(ctx, "ranking.PostgresRepository.Upsert")
	defer span.End()

	if rk.ID == uuid.Nil {
		rk.ID = uuid.New()
	}

	query := `
		INSERT INTO rankings (
			id, course_id, user_id, best_duration_s, best_pace_s_per_km,
			run_count, rank, achieved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (course_id, user_id) DO UPDATE SET
			best_duration_s = EXCLUDED.best_duration_s,
			best_pace_s_per_km = EXCLUDED.best_pace_s_per_km,
			run_count = EXCLUDED.run_count,
			achieved_at = EXCLUDED.achieved_at,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		rk.ID, rk.CourseID, rk.UserID, rk.BestDurationS, rk.BestPaceSPerKm,
		rk.RunCount, rk.Rank, rk.AchievedAt,
	).Scan(&rk.ID, &rk.CreatedAt, &rk.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert ranking: %w", err)
	}
	return nil
}

// ListByCourse orders by best_duration_s ascending with created_at
// ascending (row insertion order) as the documented tie-break (spec §9 Q2).
func (r *PostgresRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*Ranking, error) {
	ctx, span := telemetry.StartSpan(ctx, "ranking.PostgresRepository.ListByCourse")
	defer span.End()

	query := `
		SELECT id, course_id, user_id, best_duration_s, best_pace_s_per_km,
		       run_count, rank, achieved_at, created_at, updated_at
		FROM rankings
		WHERE course_id = $1
		ORDER BY best_duration_s ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list rankings by course: %w", err)
	}
	defer rows.Close()

	var out []*Ranking
	for rows.Next() {
		var rk Ranking
		if err := rows.Scan(
			&rk.ID, &rk.CourseID, &rk.UserID, &rk.BestDurationS, &rk.BestPaceSPerKm,
			&rk.RunCount, &rk.Rank, &rk.AchievedAt, &rk.CreatedAt, &rk.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		out = append(out, &rk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateRank(ctx context.Context, id uuid.UUID, rank int) error {
	ctx, span := telemetry.StartSpan(ctx, "ranking.PostgresRepository.UpdateRank")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE rankings SET rank = $1, updated_at = now() WHERE id = $2`, rank, id)
	if err != nil {
		return fmt.Errorf("update ranking rank: %w", err)
	}
	return nil
}

// PostgresAggregator computes CourseStats directly from run_records via
// grouped aggregate queries, following history-svc's GetUserStatistics
// style of composing several targeted queries rather than loading every
// row into application code.
type PostgresAggregator struct {
	db database.Querier
}

// NewPostgresAggregator builds a Postgres-backed course aggregator.
func NewPostgresAggregator(db database.Querier) *PostgresAggregator {
	return &PostgresAggregator{db: db}
}

func (a *PostgresAggregator) CourseAggregates(ctx context.Context, courseID uuid.UUID) (Aggregates, error) {
	ctx, span := telemetry.StartSpan(ctx, "ranking.PostgresAggregator.CourseAggregates")
	defer span.End()

	var agg Aggregates

	attemptsQuery := `SELECT COUNT(*) FROM run_records WHERE course_id = $1`
	if err := a.db.QueryRow(ctx, attemptsQuery, courseID).Scan(&agg.TotalAttempts); err != nil {
		return Aggregates{}, fmt.Errorf("count course attempts: %w", err)
	}

	statsQuery := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COALESCE(AVG(duration_s), 0),
			MIN(duration_s)
		FROM run_records
		WHERE course_id = $1 AND course_completed = true AND is_flagged = false
	`

	var bestDuration *int
	if err := a.db.QueryRow(ctx, statsQuery, courseID).Scan(
		&agg.TotalRuns, &agg.UniqueRunners, &agg.AvgDurationS, &bestDuration,
	); err != nil {
		return Aggregates{}, fmt.Errorf("aggregate course stats: %w", err)
	}
	agg.BestDurationS = bestDuration

	hourQuery := `
		SELECT to_char(started_at AT TIME ZONE 'UTC', 'HH24'), COUNT(*)
		FROM run_records
		WHERE course_id = $1 AND course_completed = true AND is_flagged = false
		GROUP BY 1
	`

	rows, err := a.db.Query(ctx, hourQuery, courseID)
	if err != nil {
		return Aggregates{}, fmt.Errorf("aggregate runs by hour: %w", err)
	}
	defer rows.Close()

	agg.RunsByHour = make(map[string]int)
	for rows.Next() {
		var hour string
		var count int
		if err := rows.Scan(&hour, &count); err != nil {
			return Aggregates{}, fmt.Errorf("scan runs-by-hour row: %w", err)
		}
		agg.RunsByHour[hour] = count
	}
	if err := rows.Err(); err != nil {
		return Aggregates{}, fmt.Errorf("iterate runs-by-hour rows: %w", err)
	}

	return agg, nil
}
