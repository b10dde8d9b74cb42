package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
)

// PostgresRepository is the Postgres-backed Repository implementation.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository builds a Postgres-backed user repository. db may be
// the pool itself or a pgx.Tx (see internal/courses.NewPostgresRepository).
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	ctx, span := telemetry.StartSpan(ctx, "users.PostgresRepository.Create")
	defer span.End()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, nickname, total_distance_m, total_runs)
		VALUES ($1, $2, 0, 0)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, u.ID, u.Nickname).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, span := telemetry.StartSpan(ctx, "users.PostgresRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, nickname, total_distance_m, total_runs, created_at, updated_at
		FROM users WHERE id = $1
	`

	var u User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Nickname, &u.TotalDistanceM, &u.TotalRuns, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "users.PostgresRepository.Exists")
	defer span.End()

	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) IncrementCumulativeStats(ctx context.Context, id uuid.UUID, distanceM float64) error {
	ctx, span := telemetry.StartSpan(ctx, "users.PostgresRepository.IncrementCumulativeStats")
	defer span.End()

	query := `
		UPDATE users
		SET total_distance_m = total_distance_m + $2,
		    total_runs = total_runs + 1,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, distanceM)
	if err != nil {
		return fmt.Errorf("increment user cumulative stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
