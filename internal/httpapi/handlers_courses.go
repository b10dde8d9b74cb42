package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"runcore/internal/courses"
	"runcore/internal/platform/apperror"
	"runcore/internal/ranking"
)

// wirePoint is the HTTP encoding of one course vertex: a JSON object with
// lng and lat keys, not a GeoJSON [lng,lat] array. It is distinct from
// courses.Point so the package's domain type carries no JSON tags of its own.
type wirePoint struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func toWirePoints(points []courses.Point) []wirePoint {
	out := make([]wirePoint, len(points))
	for i, p := range points {
		out[i] = wirePoint{Lng: p.Lng, Lat: p.Lat}
	}
	return out
}

func toCoursePoints(points []wirePoint) []courses.Point {
	out := make([]courses.Point, len(points))
	for i, p := range points {
		out[i] = courses.Point{Lng: p.Lng, Lat: p.Lat}
	}
	return out
}

type courseResponse struct {
	ID             uuid.UUID          `json:"id"`
	CreatorID      uuid.UUID          `json:"creator_id"`
	Name           string             `json:"name"`
	RouteGeometry  []wirePoint        `json:"route_geometry"`
	StartPoint     wirePoint          `json:"start_point"`
	DistanceM      float64            `json:"distance_m"`
	ElevationGainM float64            `json:"elevation_gain_m"`
	Difficulty     courses.Difficulty `json:"difficulty"`
	IsPublic       bool               `json:"is_public"`
}

func toCourseResponse(c *courses.Course) courseResponse {
	return courseResponse{
		ID:             c.ID,
		CreatorID:      c.CreatorID,
		Name:           c.Name,
		RouteGeometry:  toWirePoints(c.RouteGeometry),
		StartPoint:     wirePoint{Lng: c.StartPoint.Lng, Lat: c.StartPoint.Lat},
		DistanceM:      c.DistanceM,
		ElevationGainM: c.ElevationGainM,
		Difficulty:     c.Difficulty,
		IsPublic:       c.IsPublic,
	}
}

func (h *handlers) listCourses(w http.ResponseWriter, r *http.Request) {
	filter := courses.ListFilter{
		Search:      r.URL.Query().Get("search"),
		MinDistance: queryOptFloat(r, "min_distance_m"),
		MaxDistance: queryOptFloat(r, "max_distance_m"),
		NearLat:     queryOptFloat(r, "near_lat"),
		NearLng:     queryOptFloat(r, "near_lng"),
		NearRadiusM: queryOptFloat(r, "near_radius_m"),
		Sort:        courses.ListSort(r.URL.Query().Get("sort")),
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	}

	list, err := h.deps.Courses.List(r.Context(), filter)
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "failed to list courses"))
		return
	}

	out := make([]courseResponse, len(list))
	for i, c := range list {
		out[i] = toCourseResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (h *handlers) getCourse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid course id", "id"))
		return
	}

	c, err := h.deps.Courses.Get(r.Context(), id)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}

	resp := toCourseResponse(c)
	if stats, statsErr := h.deps.Courses.Stats(r.Context(), id); statsErr == nil {
		writeJSON(w, http.StatusOK, map[string]any{"course": resp, "stats": toStatsResponse(stats)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"course": resp})
}

type statsResponse struct {
	TotalRuns      int            `json:"total_runs"`
	UniqueRunners  int            `json:"unique_runners"`
	AvgDurationS   float64        `json:"avg_duration_s"`
	BestDurationS  *int           `json:"best_duration_s,omitempty"`
	AvgPaceSPerKm  float64        `json:"avg_pace_s_per_km"`
	BestPaceSPerKm *int           `json:"best_pace_s_per_km,omitempty"`
	CompletionRate float64        `json:"completion_rate"`
	RunsByHour     map[string]int `json:"runs_by_hour"`
}

func toStatsResponse(s *courses.Stats) statsResponse {
	return statsResponse{
		TotalRuns:      s.TotalRuns,
		UniqueRunners:  s.UniqueRunners,
		AvgDurationS:   s.AvgDurationS,
		BestDurationS:  s.BestDurationS,
		AvgPaceSPerKm:  s.AvgPaceSPerKm,
		BestPaceSPerKm: s.BestPaceSPerKm,
		CompletionRate: s.CompletionRate,
		RunsByHour:     s.RunsByHour,
	}
}

type createCourseRequest struct {
	Name     string      `json:"name"`
	Geometry []wirePoint `json:"geometry"`
	IsPublic bool        `json:"is_public"`
}

func (h *handlers) createCourse(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)

	var req createCourseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "name is required", "name"))
		return
	}

	c, err := h.deps.Courses.Create(r.Context(), userID, courses.CreateInput{
		Name:     req.Name,
		Geometry: toCoursePoints(req.Geometry),
		IsPublic: req.IsPublic,
	})
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseResponse(c))
}

const (
	defaultRankingsPageSize = 50
	maxRankingsPageSize     = 200
)

// courseRankings paginates the already-sorted leaderboard in the handler
// layer rather than in SQL: per-course leaderboards are small (spec §4.5),
// so ranking.Repository.ListByCourse's single "ORDER BY best_duration_s"
// query plus an in-memory slice is simpler than a parallel LIMIT/OFFSET
// SQL path, at the cost of reading the full leaderboard on every page.
func (h *handlers) courseRankings(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid course id", "id"))
		return
	}

	limit := queryInt(r, "limit", defaultRankingsPageSize)
	if limit <= 0 || limit > maxRankingsPageSize {
		limit = defaultRankingsPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	all, err := h.deps.Rankings.ListByCourse(r.Context(), courseID)
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "failed to load rankings"))
		return
	}

	total := len(all)
	var page []*ranking.Ranking
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page = all[offset:end]
	}

	out := make([]rankingResponse, len(page))
	for i, rk := range page {
		out[i] = toRankingResponse(rk)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rankings": out,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

type rankingResponse struct {
	UserID         uuid.UUID `json:"user_id"`
	BestDurationS  int       `json:"best_duration_s"`
	BestPaceSPerKm *int      `json:"best_pace_s_per_km,omitempty"`
	RunCount       int       `json:"run_count"`
	Rank           int       `json:"rank"`
}

func toRankingResponse(r *ranking.Ranking) rankingResponse {
	return rankingResponse{
		UserID:         r.UserID,
		BestDurationS:  r.BestDurationS,
		BestPaceSPerKm: r.BestPaceSPerKm,
		RunCount:       r.RunCount,
		Rank:           r.Rank,
	}
}
