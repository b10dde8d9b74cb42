package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"runcore/internal/platform/apperror"
	"runcore/internal/platform/cache"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/telemetry"
	"runcore/internal/users"
	"runcore/pkg/passhash"
)

// ErrReuseDetected is returned by Refresh when a previously-used or revoked
// refresh token is presented again. The caller must treat this as a forced
// logout (spec scenario 8): every refresh token for the user is revoked
// before this error returns.
var ErrReuseDetected = errors.New("refresh token reuse detected")

const refreshTokenTTL = 7 * 24 * time.Hour

const signingKeyTTL = 24 * time.Hour

// Service issues and rotates token pairs for verified provider identities.
type Service struct {
	tokens     *passhash.JWTManager
	refresh    Repository
	social     SocialAccountRepository
	userRepo   users.Repository
	signingKey cache.Cache
}

// NewService wires a token manager over the refresh-token, social-account
// and user repositories. db-backed repositories are expected to already be
// bound to a pool or transaction by the caller. signingKey may be nil, in
// which case ProviderSigningKey/CacheProviderSigningKey are no-ops.
func NewService(tokens *passhash.JWTManager, refresh Repository, social SocialAccountRepository, userRepo users.Repository, signingKey cache.Cache) *Service {
	return &Service{tokens: tokens, refresh: refresh, social: social, userRepo: userRepo, signingKey: signingKey}
}

// ProviderSigningKey returns a previously cached signing key for an OAuth
// provider's key ID, so the external token-verification collaborator (spec
// §1, §6.2) does not re-fetch a provider's JWKS on every login. Returns
// ok=false on a cache miss or when no cache is configured.
func (s *Service) ProviderSigningKey(ctx context.Context, provider Provider, kid string) (key []byte, ok bool) {
	if s.signingKey == nil {
		return nil, false
	}
	v, err := s.signingKey.Get(ctx, signingKeyCacheKey(provider, kid))
	if err != nil {
		return nil, false
	}
	return v, true
}

// CacheProviderSigningKey stores a signing key fetched by the verification
// collaborator for 24h (spec §5.2), process-local.
func (s *Service) CacheProviderSigningKey(ctx context.Context, provider Provider, kid string, key []byte) error {
	if s.signingKey == nil {
		return nil
	}
	return s.signingKey.Set(ctx, signingKeyCacheKey(provider, kid), key, signingKeyTTL)
}

func signingKeyCacheKey(provider Provider, kid string) string {
	return string(provider) + ":" + kid
}

// Login resolves a verified ProviderIdentity to a platform user, creating
// both the user and its social account link on first login, then issues a
// fresh access/refresh pair in a new rotation family.
func (s *Service) Login(ctx context.Context, identity ProviderIdentity) (*TokenPair, uuid.UUID, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Service.Login")
	defer span.End()

	sa, err := s.social.GetByProvider(ctx, identity.Provider, identity.ExternalID)
	if err != nil && !errors.Is(err, ErrSocialAccountNotFound) {
		return nil, uuid.Nil, fmt.Errorf("look up social account: %w", err)
	}

	var userID uuid.UUID
	if sa == nil {
		u := &users.User{Nickname: identity.Nickname}
		if err := s.userRepo.Create(ctx, u); err != nil {
			return nil, uuid.Nil, fmt.Errorf("create user: %w", err)
		}
		sa = &SocialAccount{UserID: u.ID, Provider: identity.Provider, ExternalID: identity.ExternalID}
		if err := s.social.Create(ctx, sa); err != nil {
			return nil, uuid.Nil, fmt.Errorf("link social account: %w", err)
		}
		userID = u.ID
		logger.Info("new user provisioned from social login", "user_id", userID, "provider", identity.Provider)
	} else {
		userID = sa.UserID
	}

	pair, err := s.issuePair(ctx, userID, uuid.New())
	if err != nil {
		return nil, uuid.Nil, err
	}
	return pair, userID, nil
}

// Refresh rotates a presented refresh token. Reusing a token that was
// already marked used, or that belongs to a revoked family, revokes every
// refresh token the user holds and returns ErrReuseDetected.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, "auth.Service.Refresh")
	defer span.End()

	hash := hashToken(rawToken)
	existing, err := s.refresh.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}

	if existing.IsRevoked || existing.UsedAt != nil {
		if revokeErr := s.refresh.RevokeAllForUser(ctx, existing.UserID); revokeErr != nil {
			return nil, fmt.Errorf("revoke refresh tokens after reuse: %w", revokeErr)
		}
		logger.Warn("refresh token reuse detected, revoked all tokens", "user_id", existing.UserID, "family_id", existing.FamilyID)
		return nil, ErrReuseDetected
	}

	if time.Now().After(existing.ExpiresAt) {
		return nil, ErrNotFound
	}

	if err := s.refresh.MarkUsed(ctx, existing.ID); err != nil {
		return nil, fmt.Errorf("mark refresh token used: %w", err)
	}

	return s.issuePair(ctx, existing.UserID, existing.FamilyID)
}

// Logout revokes every refresh token in the presented token's rotation
// family, leaving other devices' sessions untouched.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	ctx, span := telemetry.StartSpan(ctx, "auth.Service.Logout")
	defer span.End()

	existing, err := s.refresh.GetByHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up refresh token: %w", err)
	}
	if err := s.refresh.RevokeFamily(ctx, existing.FamilyID); err != nil {
		return fmt.Errorf("revoke refresh token family: %w", err)
	}
	return nil
}

// VerifyAccessToken validates a bearer access token and returns the caller's
// user id, for use by the HTTP auth middleware. Any failure (malformed,
// expired, bad signature) is reported as apperror.ErrAuthExpired so handlers
// never need to distinguish the cause from the client's point of view.
func (s *Service) VerifyAccessToken(tokenString string) (uuid.UUID, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, apperror.ErrAuthExpired
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, apperror.ErrAuthExpired
	}
	return userID, nil
}

func (s *Service) issuePair(ctx context.Context, userID, familyID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(userID.String(), "", "user")
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	// The refresh token is an opaque bearer secret, not a JWT: its whole
	// purpose is server-side hash tracking for rotation and reuse
	// detection, so it carries no claims to decode.
	rawRefresh := uuid.New().String() + uuid.New().String()

	rt := &RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(rawRefresh),
		FamilyID:  familyID,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}
	if err := s.refresh.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresInS:   s.tokens.GetAccessTokenExpiry(),
	}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
