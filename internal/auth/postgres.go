package auth

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

// NewPostgresRepository builds a Postgres-backed refresh token repository.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rt *RefreshToken) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresRepository.Create")
	defer span.End()

	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if rt.FamilyID == uuid.Nil {
		rt.FamilyID = uuid.New()
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, is_revoked, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, rt.ID, rt.UserID, rt.TokenHash, rt.FamilyID, rt.IsRevoked, rt.ExpiresAt).
		Scan(&rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresRepository.GetByHash")
	defer span.End()

	query := `
		SELECT id, user_id, token_hash, family_id, is_revoked, used_at, expires_at, created_at
		FROM refresh_tokens WHERE token_hash = $1
	`

	var rt RefreshToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID, &rt.UserID, &rt.TokenHash, &rt.FamilyID, &rt.IsRevoked, &rt.UsedAt, &rt.ExpiresAt, &rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get refresh token by hash: %w", err)
	}
	return &rt, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresRepository.MarkUsed")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresRepository.RevokeFamily")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET is_revoked = true WHERE family_id = $1`, familyID)
	if err != nil {
		return fmt.Errorf("revoke refresh token family: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresRepository.RevokeAllForUser")
	defer span.End()

	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens for user: %w", err)
	}
	return nil
}

// PostgresSocialAccountRepository is the Postgres-backed SocialAccountRepository.
type PostgresSocialAccountRepository struct {
	db database.Querier
}

// NewPostgresSocialAccountRepository builds a Postgres-backed social account repository.
func NewPostgresSocialAccountRepository(db database.Querier) *PostgresSocialAccountRepository {
	return &PostgresSocialAccountRepository{db: db}
}

func (r *PostgresSocialAccountRepository) GetByProvider(ctx context.Context, provider Provider, externalID string) (*SocialAccount, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresSocialAccountRepository.GetByProvider")
	defer span.End()

	query := `
		SELECT id, user_id, provider, provider_id, created_at
		FROM social_accounts WHERE provider = $1 AND provider_id = $2
	`

	var sa SocialAccount
	var providerStr string
	err := r.db.QueryRow(ctx, query, string(provider), externalID).Scan(
		&sa.ID, &sa.UserID, &providerStr, &sa.ExternalID, &sa.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSocialAccountNotFound
		}
		return nil, fmt.Errorf("get social account: %w", err)
	}
	sa.Provider = Provider(providerStr)
	return &sa, nil
}

func (r *PostgresSocialAccountRepository) Create(ctx context.Context, sa *SocialAccount) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.PostgresSocialAccountRepository.Create")
	defer span.End()

	if sa.ID == uuid.Nil {
		sa.ID = uuid.New()
	}

	query := `
		INSERT INTO social_accounts (id, user_id, provider, provider_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, sa.ID, sa.UserID, string(sa.Provider), sa.ExternalID).Scan(&sa.CreatedAt)
	if err != nil {
		return fmt.Errorf("create social account: %w", err)
	}
	return nil
}
