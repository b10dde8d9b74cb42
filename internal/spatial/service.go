package spatial

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"runcore/internal/platform/logger"
	"runcore/internal/platform/telemetry"
)

const (
	maxNearbyRadiusM = 50_000 // spec §6: GET /courses/nearby radius <= 50km
	maxHeatmapRoutes = 500    // spec §4.8/§5: heatmap source records hard cap
	maxHeatmapCells  = 10_000 // spec §4.8/§5: heatmap output cells hard cap

	// heatmapGridDeg is the ~50m lat/lng grid spacing vertices snap to
	// (spec §4.8 step c, GLOSSARY "Heatmap cell").
	heatmapGridDeg = 0.00045
)

// Service implements the Spatial Query Layer of spec §4.8. It is stateless:
// every call is a direct read against Repository.
type Service struct {
	repo Repository
}

// NewService builds the spatial query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Nearby returns public courses within radiusM of (lat, lng), nearest
// first. radiusM is clamped to the 50km ceiling (spec §6).
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusM float64, limit int) ([]NearbyCourse, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.Service.Nearby")
	defer span.End()

	if radiusM > maxNearbyRadiusM {
		radiusM = maxNearbyRadiusM
	}
	if limit <= 0 {
		limit = 50
	}

	return s.repo.NearbyCourses(ctx, lat, lng, radiusM, limit)
}

// Bounds returns public courses whose start point falls inside the
// viewport envelope (spec §6).
func (s *Service) Bounds(ctx context.Context, b Bounds) ([]BoundsCourse, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.Service.Bounds")
	defer span.End()

	return s.repo.CoursesInBounds(ctx, b)
}

// Heatmap implements the viewport heatmap of spec §4.8: find intersecting
// routes (capped at 500), dump vertices, snap each to a ~50m grid cell,
// count distinct runs per cell, and return cell centroids sorted by count
// descending, capped at maxHeatmapCells (spec invariant T5: no two cells
// share the same (round(lat,6), round(lng,6))).
func (s *Service) Heatmap(ctx context.Context, b Bounds, limit int) ([]HeatmapCell, error) {
	ctx, span := telemetry.StartSpan(ctx, "spatial.Service.Heatmap")
	defer span.End()

	if limit <= 0 || limit > maxHeatmapCells {
		limit = maxHeatmapCells
	}

	routes, err := s.repo.RoutesInBounds(ctx, b, maxHeatmapRoutes)
	if err != nil {
		return nil, fmt.Errorf("load routes in bounds: %w", err)
	}

	cells, dropped := buildHeatmap(routes, limit)
	if dropped > 0 {
		logger.Warn("heatmap cell cap truncated result", "dropped_cells", dropped, "limit", limit)
	}
	return cells, nil
}

type cellKey struct {
	lat float64
	lng float64
}

// buildHeatmap snaps every route vertex to a grid cell, dedupes by run id
// per cell so a run contributes at most once to a cell's count even if
// several of its vertices land in the same cell, sorts by count descending,
// and truncates to limit. Returns how many cells were dropped by the cap.
func buildHeatmap(routes []RunRoute, limit int) ([]HeatmapCell, int) {
	runsByCell := make(map[cellKey]map[uuid.UUID]struct{})

	for _, route := range routes {
		seen := make(map[cellKey]struct{})
		for _, c := range route.Coordinates {
			key := cellKey{lat: snapToGrid(c.Lat), lng: snapToGrid(c.Lng)}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if runsByCell[key] == nil {
				runsByCell[key] = make(map[uuid.UUID]struct{})
			}
			runsByCell[key][route.RunRecordID] = struct{}{}
		}
	}

	cells := make([]HeatmapCell, 0, len(runsByCell))
	for key, runs := range runsByCell {
		cells = append(cells, HeatmapCell{Lat: key.lat, Lng: key.lng, Count: len(runs)})
	}

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		if cells[i].Lat != cells[j].Lat {
			return cells[i].Lat < cells[j].Lat
		}
		return cells[i].Lng < cells[j].Lng
	})

	if len(cells) > limit {
		dropped := len(cells) - limit
		return cells[:limit], dropped
	}
	return cells, 0
}

func snapToGrid(v float64) float64 {
	return math.Round(v/heatmapGridDeg) * heatmapGridDeg
}
