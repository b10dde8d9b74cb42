package courses

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepository struct {
	courses map[uuid.UUID]*Course
	stats   map[uuid.UUID]*Stats
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{courses: map[uuid.UUID]*Course{}, stats: map[uuid.UUID]*Stats{}}
}

func (r *memoryRepository) Create(ctx context.Context, c *Course) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.courses[c.ID] = c
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Course, error) {
	c, ok := r.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := r.courses[id]
	return ok, nil
}

func (r *memoryRepository) UpdateDifficulty(ctx context.Context, id uuid.UUID, d Difficulty) error {
	c, ok := r.courses[id]
	if !ok {
		return ErrNotFound
	}
	c.Difficulty = d
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.courses, id)
	return nil
}

func (r *memoryRepository) GetStats(ctx context.Context, courseID uuid.UUID) (*Stats, error) {
	s, ok := r.stats[courseID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *memoryRepository) UpsertStats(ctx context.Context, s *Stats) error {
	r.stats[s.CourseID] = s
	return nil
}

func (r *memoryRepository) List(ctx context.Context, filter ListFilter) ([]*Course, error) {
	var out []*Course
	for _, c := range r.courses {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepository) NearbyStartCandidates(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearCandidate, error) {
	return nil, nil
}

func TestService_Create_NormalizesAndDerivesDistance(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo)

	geometry := []Point{
		{Lng: 127.0, Lat: 37.5},
		{Lng: 127.0, Lat: 37.5}, // exact duplicate, dropped by normalization
		{Lng: 127.01, Lat: 37.51},
	}

	c, err := svc.Create(context.Background(), uuid.New(), CreateInput{Name: "Hangang Loop", Geometry: geometry, IsPublic: true})
	require.NoError(t, err)
	assert.Len(t, c.RouteGeometry, 2)
	assert.Len(t, c.RawRouteGeometry, 3)
	assert.Greater(t, c.DistanceM, 0.0)
	assert.Equal(t, geometry[0], c.StartPoint)
}

func TestService_Create_RejectsDegenerateRoute(t *testing.T) {
	svc := NewService(newMemoryRepository())

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Name:     "Single Point",
		Geometry: []Point{{Lng: 127.0, Lat: 37.5}},
	})
	require.Error(t, err)
}

func TestService_Get_ReturnsNotFoundAsAppError(t *testing.T) {
	svc := NewService(newMemoryRepository())

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
}
