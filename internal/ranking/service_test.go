package ranking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/courses"
	"runcore/internal/ingest"
)

// memoryRankingRepo is an in-memory Repository fake, in the style of
// internal/ingest's memorySessionRepo, used to exercise the upsert and
// rank-recompute logic without a database.
type memoryRankingRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*Ranking // keyed by ranking id
}

func newMemoryRankingRepo() *memoryRankingRepo {
	return &memoryRankingRepo{rows: make(map[uuid.UUID]*Ranking)}
}

func (r *memoryRankingRepo) GetByUserAndCourse(ctx context.Context, courseID, userID uuid.UUID) (*Ranking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rk := range r.rows {
		if rk.CourseID == courseID && rk.UserID == userID {
			cp := *rk
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRankingRepo) Upsert(ctx context.Context, rk *Ranking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rk.ID == uuid.Nil {
		rk.ID = uuid.New()
		rk.CreatedAt = time.Now()
	}
	cp := *rk
	r.rows[rk.ID] = &cp
	return nil
}

func (r *memoryRankingRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*Ranking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Ranking
	for _, rk := range r.rows {
		if rk.CourseID == courseID {
			cp := *rk
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestDurationS != out[j].BestDurationS {
			return out[i].BestDurationS < out[j].BestDurationS
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRankingRepo) UpdateRank(ctx context.Context, id uuid.UUID, rank int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rk, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	rk.Rank = rank
	return nil
}

type stubAggregator struct {
	agg Aggregates
}

func (s stubAggregator) CourseAggregates(ctx context.Context, courseID uuid.UUID) (Aggregates, error) {
	return s.agg, nil
}

func TestUpsertRanking_NoExistingRow_CreatesWithFirstResultAsBest(t *testing.T) {
	repo := newMemoryRankingRepo()
	courseID, userID := uuid.New(), uuid.New()
	pace := 300
	finishedAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	run := &ingest.RunRecord{DurationS: 1500, BestPaceSPerKm: &pace, FinishedAt: finishedAt}
	require.NoError(t, upsertRanking(context.Background(), repo, courseID, userID, run))

	rk, err := repo.GetByUserAndCourse(context.Background(), courseID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1500, rk.BestDurationS)
	assert.Equal(t, 1, rk.RunCount)
	assert.Equal(t, &pace, rk.BestPaceSPerKm)
	assert.Equal(t, finishedAt, rk.AchievedAt)
}

func TestUpsertRanking_FasterRun_OverwritesBestAndIncrementsCount(t *testing.T) {
	repo := newMemoryRankingRepo()
	courseID, userID := uuid.New(), uuid.New()
	oldPace, newPace := 320, 290
	firstFinish := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	secondFinish := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, upsertRanking(context.Background(), repo, courseID, userID,
		&ingest.RunRecord{DurationS: 1600, BestPaceSPerKm: &oldPace, FinishedAt: firstFinish}))
	require.NoError(t, upsertRanking(context.Background(), repo, courseID, userID,
		&ingest.RunRecord{DurationS: 1450, BestPaceSPerKm: &newPace, FinishedAt: secondFinish}))

	rk, err := repo.GetByUserAndCourse(context.Background(), courseID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1450, rk.BestDurationS)
	assert.Equal(t, 2, rk.RunCount)
	assert.Equal(t, &newPace, rk.BestPaceSPerKm)
	assert.Equal(t, secondFinish, rk.AchievedAt)
}

func TestUpsertRanking_SlowerRun_KeepsBestButIncrementsCount(t *testing.T) {
	repo := newMemoryRankingRepo()
	courseID, userID := uuid.New(), uuid.New()
	bestPace := 300
	firstFinish := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, upsertRanking(context.Background(), repo, courseID, userID,
		&ingest.RunRecord{DurationS: 1400, BestPaceSPerKm: &bestPace, FinishedAt: firstFinish}))
	require.NoError(t, upsertRanking(context.Background(), repo, courseID, userID,
		&ingest.RunRecord{DurationS: 1700, FinishedAt: firstFinish.Add(24 * time.Hour)}))

	rk, err := repo.GetByUserAndCourse(context.Background(), courseID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1400, rk.BestDurationS)
	assert.Equal(t, 2, rk.RunCount)
	assert.Equal(t, firstFinish, rk.AchievedAt)
}

func TestRecomputeRanks_OrdersByBestDurationAscending(t *testing.T) {
	repo := newMemoryRankingRepo()
	courseID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	slow := &Ranking{CourseID: courseID, UserID: uuid.New(), BestDurationS: 2000, CreatedAt: base}
	fast := &Ranking{CourseID: courseID, UserID: uuid.New(), BestDurationS: 1200, CreatedAt: base.Add(time.Minute)}
	mid := &Ranking{CourseID: courseID, UserID: uuid.New(), BestDurationS: 1500, CreatedAt: base.Add(2 * time.Minute)}
	for _, rk := range []*Ranking{slow, fast, mid} {
		require.NoError(t, repo.Upsert(context.Background(), rk))
	}

	require.NoError(t, recomputeRanks(context.Background(), repo, courseID))

	got, err := repo.GetByUserAndCourse(context.Background(), courseID, fast.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rank)

	got, err = repo.GetByUserAndCourse(context.Background(), courseID, mid.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rank)

	got, err = repo.GetByUserAndCourse(context.Background(), courseID, slow.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Rank)
}

func TestRecomputeRanks_TiesBrokenByInsertionOrder(t *testing.T) {
	repo := newMemoryRankingRepo()
	courseID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	earlier := &Ranking{CourseID: courseID, UserID: uuid.New(), BestDurationS: 1500, CreatedAt: base}
	later := &Ranking{CourseID: courseID, UserID: uuid.New(), BestDurationS: 1500, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, repo.Upsert(context.Background(), earlier))
	require.NoError(t, repo.Upsert(context.Background(), later))

	require.NoError(t, recomputeRanks(context.Background(), repo, courseID))

	got, err := repo.GetByUserAndCourse(context.Background(), courseID, earlier.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rank)

	got, err = repo.GetByUserAndCourse(context.Background(), courseID, later.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rank)
}

func TestRecomputeStats_PacesDerivedFromCourseDistanceNotRunDistance(t *testing.T) {
	courseID := uuid.New()
	course := &courses.Course{ID: courseID, DistanceM: 5000}
	best := 1200
	agg := Aggregates{
		TotalRuns:     8,
		TotalAttempts: 10,
		UniqueRunners: 6,
		AvgDurationS:  1500,
		BestDurationS: &best,
		RunsByHour:    map[string]int{"09": 5, "18": 3},
	}

	stats, err := recomputeStats(context.Background(), stubAggregator{agg: agg}, course)
	require.NoError(t, err)

	assert.Equal(t, 8, stats.TotalRuns)
	assert.Equal(t, 6, stats.UniqueRunners)
	assert.InDelta(t, 0.8, stats.CompletionRate, 1e-9)
	assert.InDelta(t, 300.0, stats.AvgPaceSPerKm, 1e-9) // 1500s / 5km
	require.NotNil(t, stats.BestPaceSPerKm)
	assert.Equal(t, 240, *stats.BestPaceSPerKm) // 1200s / 5km
	assert.Equal(t, agg.RunsByHour, stats.RunsByHour)
}

func TestRecomputeStats_NoAttempts_ZeroCompletionRate(t *testing.T) {
	course := &courses.Course{ID: uuid.New(), DistanceM: 5000}
	stats, err := recomputeStats(context.Background(), stubAggregator{agg: Aggregates{}}, course)
	require.NoError(t, err)
	assert.Zero(t, stats.CompletionRate)
	assert.Nil(t, stats.BestPaceSPerKm)
}
