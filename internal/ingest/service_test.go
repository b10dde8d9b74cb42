package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/courses"
	"runcore/internal/trace"
	"runcore/internal/users"
)

// memorySessionRepo, memoryChunkRepo, memoryRecordRepo are small in-memory
// fakes in the teacher's MemoryUserRepository style (auth-svc), used so the
// ingest service's ownership/status logic can be tested without a database.

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*RunSession
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[uuid.UUID]*RunSession)}
}

func (r *memorySessionRepo) Create(ctx context.Context, s *RunSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*RunSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memorySessionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Status = status
	return nil
}

type memoryChunkRepo struct {
	mu     sync.Mutex
	chunks map[uuid.UUID][]*RunChunk
}

func newMemoryChunkRepo() *memoryChunkRepo {
	return &memoryChunkRepo{chunks: make(map[uuid.UUID][]*RunChunk)}
}

func (r *memoryChunkRepo) Create(ctx context.Context, c *RunChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.chunks[c.SessionID] {
		if existing.Sequence == c.Sequence {
			return ErrChunkDuplicate
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.chunks[c.SessionID] = append(r.chunks[c.SessionID], &cp)
	return nil
}

func (r *memoryChunkRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*RunChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RunChunk, len(r.chunks[sessionID]))
	copy(out, r.chunks[sessionID])
	return out, nil
}

func (r *memoryChunkRepo) ExistingSequences(ctx context.Context, sessionID uuid.UUID) (map[int]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seqs := make(map[int]bool)
	for _, c := range r.chunks[sessionID] {
		seqs[c.Sequence] = true
	}
	return seqs, nil
}

type memoryRecordRepo struct {
	mu      sync.Mutex
	records []*RunRecord
}

func newMemoryRecordRepo() *memoryRecordRepo { return &memoryRecordRepo{} }

func (r *memoryRecordRepo) Create(ctx context.Context, run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	r.records = append(r.records, run)
	return nil
}

func (r *memoryRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *memoryRecordRepo) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*RunRecord, error) {
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

type memoryCourseRepo struct{ exists bool }

func (m memoryCourseRepo) Create(ctx context.Context, c *courses.Course) error { return nil }
func (m memoryCourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*courses.Course, error) {
	return nil, courses.ErrNotFound
}
func (m memoryCourseRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) { return m.exists, nil }
func (m memoryCourseRepo) UpdateDifficulty(ctx context.Context, id uuid.UUID, d courses.Difficulty) error {
	return nil
}
func (m memoryCourseRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (m memoryCourseRepo) GetStats(ctx context.Context, courseID uuid.UUID) (*courses.Stats, error) {
	return nil, courses.ErrNotFound
}
func (m memoryCourseRepo) UpsertStats(ctx context.Context, s *courses.Stats) error { return nil }
func (m memoryCourseRepo) NearbyStartCandidates(ctx context.Context, lat, lng, radiusM float64, limit int) ([]courses.NearCandidate, error) {
	return nil, nil
}

type memoryUserRepo struct {
	mu    sync.Mutex
	stats map[uuid.UUID]float64
	runs  map[uuid.UUID]int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{stats: make(map[uuid.UUID]float64), runs: make(map[uuid.UUID]int)}
}

func (r *memoryUserRepo) Create(ctx context.Context, u *users.User) error { return nil }

func (r *memoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return nil, users.ErrNotFound
}

func (r *memoryUserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) { return true, nil }

func (r *memoryUserRepo) IncrementCumulativeStats(ctx context.Context, id uuid.UUID, distanceM float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[id] += distanceM
	r.runs[id]++
	return nil
}

func newTestService(courseExists bool) (*Service, *memorySessionRepo, *memoryChunkRepo, *memoryRecordRepo, *memoryUserRepo) {
	sessions := newMemorySessionRepo()
	chunks := newMemoryChunkRepo()
	records := newMemoryRecordRepo()
	userRepo := newMemoryUserRepo()
	svc := NewService(sessions, chunks, records, memoryCourseRepo{exists: courseExists}, userRepo, nil, nil, nil, false)
	return svc, sessions, chunks, records, userRepo
}

func TestCreateSession_UnknownCourse_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(false)
	courseID := uuid.New()

	_, err := svc.CreateSession(context.Background(), uuid.New(), time.Now(), &courseID, nil)

	require.Error(t, err)
}

func TestUploadChunk_DuplicateSequence_Conflicts(t *testing.T) {
	svc, _, _, _, _ := newTestService(true)
	userID := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), userID, time.Now(), nil, nil)
	require.NoError(t, err)

	summary := ChunkSummary{PointCount: 1}
	_, err = svc.UploadChunk(context.Background(), userID, sessionID, 0, ChunkIntermediate, nil, nil, summary, Cumulative{}, nil, nil)
	require.NoError(t, err)

	_, err = svc.UploadChunk(context.Background(), userID, sessionID, 0, ChunkIntermediate, nil, nil, summary, Cumulative{}, nil, nil)
	require.Error(t, err)
}

func TestUploadChunk_WrongOwner_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(true)
	owner := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), owner, time.Now(), nil, nil)
	require.NoError(t, err)

	_, err = svc.UploadChunk(context.Background(), uuid.New(), sessionID, 0, ChunkIntermediate, nil, nil, ChunkSummary{}, Cumulative{}, nil, nil)
	require.Error(t, err)
}

func TestBatchUploadChunks_DuplicatesReportedAsAccepted(t *testing.T) {
	svc, _, _, _, _ := newTestService(true)
	userID := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), userID, time.Now(), nil, nil)
	require.NoError(t, err)

	input := []BatchChunkInput{{Sequence: 0, ChunkType: ChunkIntermediate}}
	accepted, failed, err := svc.BatchUploadChunks(context.Background(), userID, sessionID, input)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []int{0}, accepted)

	accepted, failed, err = svc.BatchUploadChunks(context.Background(), userID, sessionID, input)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []int{0}, accepted, "duplicate chunk uploads are idempotent-success, not failures")
}

func TestRecoverSession_ReconstructsFromChunks(t *testing.T) {
	// spec §8 scenario 3: chunks 0,1,2 persisted, total_chunks=5,
	// uploaded_sequences=[0..4] -> missing [3,4], session recovered.
	svc, _, _, records, userRepo := newTestService(true)
	userID := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), userID, time.Now(), nil, nil)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for seq := 0; seq < 3; seq++ {
		pts := []trace.Point{
			{Lat: 37.5, Lng: 127.0 + float64(seq)*0.001, Timestamp: base.Add(time.Duration(seq) * time.Minute)},
			{Lat: 37.5, Lng: 127.0 + float64(seq)*0.001 + 0.0005, Timestamp: base.Add(time.Duration(seq)*time.Minute + 30*time.Second)},
		}
		pace := 300
		_, err := svc.UploadChunk(context.Background(), userID, sessionID, seq, ChunkIntermediate, pts, nil,
			ChunkSummary{PointCount: len(pts)},
			Cumulative{DistanceM: float64(seq+1) * 500, DurationS: (seq + 1) * 300, AvgPaceSPerKm: &pace},
			nil, nil)
		require.NoError(t, err)
	}

	runID, missing, err := svc.RecoverSession(context.Background(), userID, sessionID, base.Add(25*time.Minute), 5, []int{0, 1, 2, 3, 4})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)
	assert.Equal(t, []int{3, 4}, missing)

	run, err := records.GetBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, run.DistanceM)
	assert.Equal(t, SessionRecovered, mustSessionStatus(t, svc, sessionID))

	// User cumulative stats update unconditionally on every finalized run,
	// independent of whether a course was ever bound (spec §4.3 step 8).
	assert.Equal(t, 1, userRepo.runs[userID])
	assert.Equal(t, 1500.0, userRepo.stats[userID])
}

func TestRecoverSession_NoChunks_Fails(t *testing.T) {
	svc, _, _, _, _ := newTestService(true)
	userID := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), userID, time.Now(), nil, nil)
	require.NoError(t, err)

	_, _, err = svc.RecoverSession(context.Background(), userID, sessionID, time.Now(), 1, nil)
	require.Error(t, err)
}

func TestRecoverSession_AlreadyCompleted_Fails(t *testing.T) {
	svc, sessions, _, _, _ := newTestService(true)
	userID := uuid.New()
	sessionID, err := svc.CreateSession(context.Background(), userID, time.Now(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, sessions.UpdateStatus(context.Background(), sessionID, SessionCompleted))

	_, _, err = svc.RecoverSession(context.Background(), userID, sessionID, time.Now(), 1, nil)
	require.Error(t, err)
}

func mustSessionStatus(t *testing.T, svc *Service, sessionID uuid.UUID) SessionStatus {
	t.Helper()
	session, err := svc.sessions.GetByID(context.Background(), sessionID)
	require.NoError(t, err)
	return session.Status
}
