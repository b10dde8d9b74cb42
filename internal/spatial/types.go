// Package spatial is the stateless read-side Spatial Query Layer (spec
// §4.8): nearest-N courses within a radius, courses inside a viewport
// envelope, and a vertex-density heatmap over stored run routes. It holds
// no state of its own; every query runs directly against the PostGIS
// geography columns internal/courses and internal/ingest maintain.
package spatial

import (
	"github.com/google/uuid"

	"runcore/internal/courses"
)

// NearbyCourse is one result of a nearest-N-within-radius query, enriched
// enough for a home-screen list (spec §6 GET /api/v1/courses/nearby).
type NearbyCourse struct {
	CourseID   uuid.UUID
	Name       string
	DistanceM  float64 // course length
	FromUserM  float64 // distance from the query point to the course start
	Difficulty courses.Difficulty
	IsPublic   bool
}

// BoundsCourse is one result of a viewport envelope query, enriched for
// map markers (spec §6 GET /api/v1/courses/bounds).
type BoundsCourse struct {
	CourseID   uuid.UUID
	Name       string
	StartPoint courses.Point
	DistanceM  float64
	Difficulty courses.Difficulty
}

// HeatmapCell is one ~50m grid square and the number of distinct runs
// that passed through it (spec §4.8 step d/e, GLOSSARY "Heatmap cell").
type HeatmapCell struct {
	Lat   float64
	Lng   float64
	Count int
}

// Bounds is a lat/lng viewport envelope, SW to NE.
type Bounds struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}
