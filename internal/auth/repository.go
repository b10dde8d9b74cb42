package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a refresh token hash has no matching row.
var ErrNotFound = errors.New("refresh token not found")

// ErrSocialAccountNotFound is returned when no user is linked to a
// provider identity yet.
var ErrSocialAccountNotFound = errors.New("social account not found")

// SocialAccountRepository persists the provider-identity-to-user mapping.
type SocialAccountRepository interface {
	GetByProvider(ctx context.Context, provider Provider, externalID string) (*SocialAccount, error)
	Create(ctx context.Context, sa *SocialAccount) error
}

// Repository persists RefreshToken rows.
type Repository interface {
	Create(ctx context.Context, rt *RefreshToken) error
	// GetByHash looks up a refresh token by its SHA-256 hash.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// MarkUsed marks a token consumed by a successful rotation.
	MarkUsed(ctx context.Context, id uuid.UUID) error
	// RevokeFamily revokes every token sharing familyID, i.e. one login
	// session; used by logout. Reuse detection uses RevokeAllForUser.
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	// RevokeAllForUser revokes every refresh token belonging to a user,
	// across every family (spec scenario 8: reuse revokes all of the
	// user's refresh tokens, not just the one family).
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}
