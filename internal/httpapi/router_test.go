package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/auth"
	"runcore/internal/platform/ratelimit"
	"runcore/internal/users"
	"runcore/pkg/passhash"
)

// The fakes below mirror internal/auth's own in-memory test doubles, kept
// local since those are unexported to their package.

type memoryRefreshRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*auth.RefreshToken
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{rows: make(map[uuid.UUID]*auth.RefreshToken)}
}

func (r *memoryRefreshRepo) Create(ctx context.Context, rt *auth.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	cp := *rt
	r.rows[rt.ID] = &cp
	return nil
}

func (r *memoryRefreshRepo) GetByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.rows {
		if rt.TokenHash == tokenHash {
			cp := *rt
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memoryRefreshRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.rows[id]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now()
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
	rows map[string]*auth.SocialAccount
}

func newMemorySocialRepo() *memorySocialRepo {
	return &memorySocialRepo{rows: make(map[string]*auth.SocialAccount)}
}

func socialKey(provider auth.Provider, externalID string) string {
	return string(provider) + ":" + externalID
}

func (r *memorySocialRepo) GetByProvider(ctx context.Context, provider auth.Provider, externalID string) (*auth.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa, ok := r.rows[socialKey(provider, externalID)]
	if !ok {
		return nil, auth.ErrSocialAccountNotFound
	}
	cp := *sa
	return &cp, nil
}

func (r *memorySocialRepo) Create(ctx context.Context, sa *auth.SocialAccount) error {
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

func testRouter(t *testing.T, limiter ratelimit.Limiter) http.Handler {
	t.Helper()
	authService := auth.NewService(
		passhash.NewJWTManager(passhash.DefaultJWTConfig()),
		newMemoryRefreshRepo(), newMemorySocialRepo(), newMemoryUserRepo(), nil,
	)
	return NewRouter(Dependencies{Auth: authService, Limiter: limiter})
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	r := testRouter(t, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_RejectsUnsupportedProvider(t *testing.T) {
	r := testRouter(t, nil)

	rec := doJSON(r, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"provider":    "friendster",
		"external_id": "u-1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestLogin_FirstTimeIssuesTokenPair(t *testing.T) {
	r := testRouter(t, nil)

	rec := doJSON(r, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"provider":    "google",
		"external_id": "g-abc",
		"nickname":    "runner",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)
	assert.NotEmpty(t, body.UserID)
}

func TestProtectedRoute_RejectsMissingBearerToken(t *testing.T) {
	r := testRouter(t, nil)

	rec := doJSON(r, http.MethodPost, "/api/v1/courses", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Requests: 1, Window: time.Minute, Burst: 0, CleanupInterval: time.Minute})
	defer limiter.Close()
	r := testRouter(t, limiter)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
