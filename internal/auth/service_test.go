package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/platform/cache"
	"runcore/internal/users"
	"runcore/pkg/passhash"
)

// memoryRefreshRepo is an in-memory Repository fake, in the style of
// internal/ranking's memoryRankingRepo, used to exercise rotation and
// reuse-detection without a database.
type memoryRefreshRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*RefreshToken
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{rows: make(map[uuid.UUID]*RefreshToken)}
}

func (r *memoryRefreshRepo) Create(ctx context.Context, rt *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	cp := *rt
	r.rows[rt.ID] = &cp
	return nil
}

func (r *memoryRefreshRepo) GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.rows {
		if rt.TokenHash == tokenHash {
			cp := *rt
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRefreshRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := rt.CreatedAt
	rt.UsedAt = &now
	return nil
}

func (r *memoryRefreshRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.rows {
		if rt.FamilyID == familyID {
			rt.IsRevoked = true
		}
	}
	return nil
}

func (r *memoryRefreshRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.rows {
		if rt.UserID == userID {
			rt.IsRevoked = true
		}
	}
	return nil
}

type memorySocialRepo struct {
	mu   sync.Mutex
	rows map[string]*SocialAccount // keyed by provider:externalID
}

func newMemorySocialRepo() *memorySocialRepo {
	return &memorySocialRepo{rows: make(map[string]*SocialAccount)}
}

func socialKey(provider Provider, externalID string) string {
	return string(provider) + ":" + externalID
}

func (r *memorySocialRepo) GetByProvider(ctx context.Context, provider Provider, externalID string) (*SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.rows[socialKey(provider, externalID)]
	if !ok {
		return nil, ErrSocialAccountNotFound
	}
	cp := *sa
	return &cp, nil
}

func (r *memorySocialRepo) Create(ctx context.Context, sa *SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sa.ID == uuid.Nil {
		sa.ID = uuid.New()
	}
	cp := *sa
	r.rows[socialKey(sa.Provider, sa.ExternalID)] = &cp
	return nil
}

type memoryUserRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*users.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{rows: make(map[uuid.UUID]*users.User)}
}

func (r *memoryUserRepo) Create(ctx context.Context, u *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	r.rows[u.ID] = &cp
	return nil
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok, nil
}

func (r *memoryUserRepo) IncrementCumulativeStats(ctx context.Context, id uuid.UUID, distanceM float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return users.ErrNotFound
	}
	u.TotalDistanceM += distanceM
	u.TotalRuns++
	return nil
}

func newTestService() (*Service, *memoryRefreshRepo, *memorySocialRepo, *memoryUserRepo) {
	refresh := newMemoryRefreshRepo()
	social := newMemorySocialRepo()
	userRepo := newMemoryUserRepo()
	tokens := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	return NewService(tokens, refresh, social, userRepo, nil), refresh, social, userRepo
}

func TestLogin_FirstTime_CreatesUserAndSocialAccount(t *testing.T) {
	svc, _, social, userRepo := newTestService()
	identity := ProviderIdentity{Provider: ProviderGoogle, ExternalID: "g-123", Nickname: "runner"}

	pair, userID, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, uuid.Nil, userID)

	sa, err := social.GetByProvider(context.Background(), ProviderGoogle, "g-123")
	require.NoError(t, err)
	assert.Equal(t, userID, sa.UserID)

	_, err = userRepo.GetByID(context.Background(), userID)
	require.NoError(t, err)
}

func TestLogin_RepeatIdentity_ReusesExistingUser(t *testing.T) {
	svc, _, _, userRepo := newTestService()
	identity := ProviderIdentity{Provider: ProviderKakao, ExternalID: "k-456", Nickname: "runner"}

	_, firstUserID, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)

	_, secondUserID, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)

	assert.Equal(t, firstUserID, secondUserID)
	assert.Equal(t, 1, len(userRepo.rows))
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, refresh, _, _ := newTestService()
	identity := ProviderIdentity{Provider: ProviderApple, ExternalID: "a-789"}

	initial, _, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), initial.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, initial.RefreshToken, rotated.RefreshToken)

	old, err := refresh.GetByHash(context.Background(), hashToken(initial.RefreshToken))
	require.NoError(t, err)
	assert.NotNil(t, old.UsedAt)
}

func TestRefresh_ReuseOfUsedToken_RevokesAllAndReturnsError(t *testing.T) {
	svc, refresh, _, _ := newTestService()
	identity := ProviderIdentity{Provider: ProviderNaver, ExternalID: "n-111"}

	initial, userID, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), initial.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), initial.RefreshToken)
	assert.ErrorIs(t, err, ErrReuseDetected)

	for _, rt := range refresh.rows {
		if rt.UserID == userID {
			assert.True(t, rt.IsRevoked)
		}
	}
}

func TestRefresh_UnknownToken_ReturnsNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Refresh(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogout_RevokesFamilyOnly(t *testing.T) {
	svc, refresh, _, _ := newTestService()
	identity := ProviderIdentity{Provider: ProviderGoogle, ExternalID: "g-222"}

	pairA, userID, err := svc.Login(context.Background(), identity)
	require.NoError(t, err)
	pairB, err := svc.issuePair(context.Background(), userID, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pairA.RefreshToken))

	rtA, err := refresh.GetByHash(context.Background(), hashToken(pairA.RefreshToken))
	require.NoError(t, err)
	assert.True(t, rtA.IsRevoked)

	rtB, err := refresh.GetByHash(context.Background(), hashToken(pairB.RefreshToken))
	require.NoError(t, err)
	assert.False(t, rtB.IsRevoked)
}

func TestProviderSigningKey_CacheHitAfterSet(t *testing.T) {
	mc, err := cache.New(cache.DefaultOptions())
	require.NoError(t, err)
	defer mc.Close()

	svc := NewService(passhash.NewJWTManager(passhash.DefaultJWTConfig()), nil, nil, nil, mc)

	_, ok := svc.ProviderSigningKey(context.Background(), ProviderGoogle, "kid-1")
	assert.False(t, ok)

	require.NoError(t, svc.CacheProviderSigningKey(context.Background(), ProviderGoogle, "kid-1", []byte("pem-bytes")))

	key, ok := svc.ProviderSigningKey(context.Background(), ProviderGoogle, "kid-1")
	require.True(t, ok)
	assert.Equal(t, []byte("pem-bytes"), key)
}

func TestProviderSigningKey_NilCacheIsNoop(t *testing.T) {
	svc := NewService(passhash.NewJWTManager(passhash.DefaultJWTConfig()), nil, nil, nil, nil)

	require.NoError(t, svc.CacheProviderSigningKey(context.Background(), ProviderGoogle, "kid-1", []byte("pem-bytes")))
	_, ok := svc.ProviderSigningKey(context.Background(), ProviderGoogle, "kid-1")
	assert.False(t, ok)
}
