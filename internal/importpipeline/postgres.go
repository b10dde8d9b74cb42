package importpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"runcore/internal/ingest"
	"runcore/internal/platform/database"
	"runcore/internal/platform/telemetry"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the Postgres-backed Repository implementation.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository builds a Postgres-backed external_imports repository.
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, imp *ExternalImport) error {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.PostgresRepository.Create")
	defer span.End()

	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}

	query := `
		INSERT INTO external_imports (id, user_id, source, external_id, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		imp.ID, imp.UserID, string(imp.Source), imp.ExternalID, imp.Payload, string(StatusPending),
	).Scan(&imp.CreatedAt, &imp.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("create external import: %w", err)
	}
	imp.Status = StatusPending
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*ExternalImport, error) {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.PostgresRepository.GetByID")
	defer span.End()

	query := `
		SELECT id, user_id, source, external_id, payload, status,
		       run_record_id, error_message, created_at, updated_at
		FROM external_imports WHERE id = $1
	`
	return scanImport(r.db.QueryRow(ctx, query, id))
}

// ClaimNextPending implements the dequeue pattern the pack's conductor
// backend uses for its job_queue table: SELECT ... FOR UPDATE SKIP LOCKED
// inside a transaction, then flip the claimed row to processing.
func (r *PostgresRepository) ClaimNextPending(ctx context.Context) (*ExternalImport, error) {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.PostgresRepository.ClaimNextPending")
	defer span.End()

	return database.WithTransactionResult(ctx, r.db, func(tx pgx.Tx) (*ExternalImport, error) {
		row := tx.QueryRow(ctx, `
			SELECT id, user_id, source, external_id, payload, status,
			       run_record_id, error_message, created_at, updated_at
			FROM external_imports
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, string(StatusPending))

		imp, err := scanImport(row)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNoPending
			}
			return nil, err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE external_imports SET status = $1, updated_at = now() WHERE id = $2
		`, string(StatusProcessing), imp.ID); err != nil {
			return nil, fmt.Errorf("claim external import: %w", err)
		}
		imp.Status = StatusProcessing
		return imp, nil
	})
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id uuid.UUID, runRecordID uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.PostgresRepository.MarkCompleted")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE external_imports
		SET status = $1, run_record_id = $2, error_message = NULL, updated_at = now()
		WHERE id = $3
	`, string(StatusCompleted), runRecordID, id)
	if err != nil {
		return fmt.Errorf("mark import completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.PostgresRepository.MarkFailed")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE external_imports
		SET status = $1, error_message = $2, updated_at = now()
		WHERE id = $3
	`, string(StatusFailed), message, id)
	if err != nil {
		return fmt.Errorf("mark import failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanImport(row pgx.Row) (*ExternalImport, error) {
	var imp ExternalImport
	var source, status string
	err := row.Scan(
		&imp.ID, &imp.UserID, &source, &imp.ExternalID, &imp.Payload, &status,
		&imp.RunRecordID, &imp.ErrorMessage, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan external import: %w", err)
	}
	imp.Source = ingest.Source(source)
	imp.Status = Status(status)
	return &imp, nil
}
