// Package auth issues JWT access tokens and rotates the opaque refresh
// tokens paired with them, which together authenticate every
// authenticated HTTP request (spec §6.2 expansion).
// Verifying a social login provider's id_token/access_token is an external
// collaborator's job (spec §1); this package starts from an
// already-verified ProviderIdentity.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a supported social login provider (spec §6 POST /auth/login).
type Provider string

const (
	ProviderApple  Provider = "apple"
	ProviderGoogle Provider = "google"
	ProviderKakao  Provider = "kakao"
	ProviderNaver  Provider = "naver"
)

// ProviderIdentity is the collaborator boundary: a caller (the HTTP layer,
// after verifying the provider's id_token/access_token out of process)
// hands this package a trusted identity and nothing more.
type ProviderIdentity struct {
	Provider   Provider
	ExternalID string
	Nickname   string
}

// TokenPair is the access/refresh pair returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInS   int64
}

// SocialAccount links a ProviderIdentity to a platform User, grounded in
// original_source's SocialAccount model (provider + provider_id unique).
type SocialAccount struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   Provider
	ExternalID string
	CreatedAt  time.Time
}

// RefreshToken is a persisted, hashed refresh token (spec §3.1). The raw
// token handed to the client is an opaque random secret, not a JWT: a
// stateless JWT cannot be revoked, so rotation and reuse-detection track
// tokens server-side by hash, grouped into rotation families.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	FamilyID  uuid.UUID
	IsRevoked bool
	UsedAt    *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}
