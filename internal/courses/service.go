package courses

import (
	"context"
	"math"

	"github.com/google/uuid"

	"runcore/internal/difficulty"
	"runcore/internal/geo"
	"runcore/internal/platform/apperror"
	"runcore/internal/platform/telemetry"
)

// minVertices is the fewest points a submitted route needs before it is a
// usable reference course.
const minVertices = 2

// Service creates and reads the public course catalog. Write access is
// narrow by design (spec §3: Course is "exclusively owned by its
// creator"); every mutating method is scoped to the creator's own rows.
type Service struct {
	repo Repository
}

// NewService builds the course catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput is the caller-submitted shape of a new course (spec §6 POST
// /api/v1/courses): a polyline of longitude/latitude points, a name, and a
// visibility flag.
type CreateInput struct {
	Name      string
	Geometry  []Point
	IsPublic  bool
}

// Create normalizes a submitted polyline into a Course: it dedupes
// consecutive duplicate vertices (normalization), derives distance_m from
// the normalized geometry, and scores an initial difficulty with no
// completion-rate signal yet, since CourseStats does not exist until the
// first run completes it (spec §4.6 "hasCompletionRate=false").
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, in CreateInput) (*Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.Service.Create")
	defer span.End()

	normalized := normalizeGeometry(in.Geometry)
	if len(normalized) < minVertices {
		return nil, apperror.NewWithField(apperror.CodeValidation, "route must have at least two distinct points", "geometry")
	}

	distanceM, elevationGainM := routeStats(normalized)
	grade := difficulty.GradeFor(difficulty.Score(distanceM, elevationGainM, 0, false))

	c := &Course{
		CreatorID:        creatorID,
		Name:             in.Name,
		RouteGeometry:    normalized,
		RawRouteGeometry: in.Geometry,
		StartPoint:       normalized[0],
		DistanceM:        distanceM,
		ElevationGainM:   elevationGainM,
		Difficulty:       Difficulty(grade),
		IsPublic:         in.IsPublic,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads one course by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.Service.Get")
	defer span.End()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the public course catalog page matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.Service.List")
	defer span.End()

	return s.repo.List(ctx, filter)
}

// Stats loads a course's CourseStats aggregate, if any runs have
// completed it yet.
func (s *Service) Stats(ctx context.Context, courseID uuid.UUID) (*Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "courses.Service.Stats")
	defer span.End()

	stats, err := s.repo.GetStats(ctx, courseID)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return stats, nil
}

// normalizeGeometry drops consecutive duplicate vertices, which otherwise
// contribute zero-length segments to distance/elevation accumulation.
func normalizeGeometry(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]Point, 0, len(points))
	out = append(out, points[0])
	for _, p := range points[1:] {
		last := out[len(out)-1]
		if p.Lng == last.Lng && p.Lat == last.Lat {
			continue
		}
		out = append(out, p)
	}
	return out
}

// routeStats sums haversine segment distance across a normalized polyline.
// Course geometry carries no altitude component, so the returned elevation
// gain is always zero.
func routeStats(points []Point) (distanceM, elevationGainM float64) {
	for i := 1; i < len(points); i++ {
		a := geo.Point{Lat: points[i-1].Lat, Lng: points[i-1].Lng}
		b := geo.Point{Lat: points[i].Lat, Lng: points[i].Lng}
		distanceM += geo.HaversineDistance(a, b)
	}
	return math.Round(distanceM*100) / 100, elevationGainM
}
