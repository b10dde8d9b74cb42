package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"runcore/internal/courses"
	"runcore/internal/platform/apperror"
	"runcore/internal/spatial"
)

type nearbyCourseResponse struct {
	CourseID   uuid.UUID          `json:"course_id"`
	Name       string             `json:"name"`
	DistanceM  float64            `json:"distance_m"`
	FromUserM  float64            `json:"from_user_m"`
	Difficulty courses.Difficulty `json:"difficulty"`
	IsPublic   bool               `json:"is_public"`
}

type boundsCourseResponse struct {
	CourseID   uuid.UUID          `json:"course_id"`
	Name       string             `json:"name"`
	StartPoint wirePoint          `json:"start_point"`
	DistanceM  float64            `json:"distance_m"`
	Difficulty courses.Difficulty `json:"difficulty"`
}

type heatmapCellResponse struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Count int     `json:"count"`
}

func (h *handlers) nearbyCourses(w http.ResponseWriter, r *http.Request) {
	lat := queryFloat(r, "lat", 0)
	lng := queryFloat(r, "lng", 0)
	radiusM := queryFloat(r, "radius_m", 5000)
	limit := queryInt(r, "limit", 0)

	list, err := h.deps.Spatial.Nearby(r.Context(), lat, lng, radiusM, limit)
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "failed to query nearby courses"))
		return
	}

	out := make([]nearbyCourseResponse, len(list))
	for i, c := range list {
		out[i] = nearbyCourseResponse{
			CourseID:   c.CourseID,
			Name:       c.Name,
			DistanceM:  c.DistanceM,
			FromUserM:  c.FromUserM,
			Difficulty: c.Difficulty,
			IsPublic:   c.IsPublic,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func boundsFromQuery(r *http.Request) spatial.Bounds {
	return spatial.Bounds{
		MinLat: queryFloat(r, "min_lat", 0),
		MinLng: queryFloat(r, "min_lng", 0),
		MaxLat: queryFloat(r, "max_lat", 0),
		MaxLng: queryFloat(r, "max_lng", 0),
	}
}

func (h *handlers) coursesInBounds(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Spatial.Bounds(r.Context(), boundsFromQuery(r))
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "failed to query courses in bounds"))
		return
	}

	out := make([]boundsCourseResponse, len(list))
	for i, c := range list {
		out[i] = boundsCourseResponse{
			CourseID:   c.CourseID,
			Name:       c.Name,
			StartPoint: wirePoint{Lng: c.StartPoint.Lng, Lat: c.StartPoint.Lat},
			DistanceM:  c.DistanceM,
			Difficulty: c.Difficulty,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": out})
}

func (h *handlers) heatmap(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)

	cells, err := h.deps.Spatial.Heatmap(r.Context(), boundsFromQuery(r), limit)
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(err, apperror.CodeInternal, "failed to build heatmap"))
		return
	}

	out := make([]heatmapCellResponse, len(cells))
	for i, c := range cells {
		out[i] = heatmapCellResponse{Lat: c.Lat, Lng: c.Lng, Count: c.Count}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": out})
}
