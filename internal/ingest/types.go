// Package ingest implements Session & Chunk Ingest (spec §4.1): accepting
// an append-only stream of GPS chunks for one live run, persisting each
// durably, and deciding at finalization whether to trust the client's
// summary or reconstruct one from server-held chunks.
package ingest

import (
	"time"

	"github.com/google/uuid"

	"runcore/internal/trace"
)

// SessionStatus is the RunSession state machine (spec §3/§4.1): forward-only,
// active -> {completed, recovered}.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionRecovered SessionStatus = "recovered"
	// SessionImported marks a synthetic session created by
	// internal/importpipeline so an imported RunRecord still has a valid
	// session FK (spec §4.3 step 5).
	SessionImported SessionStatus = "imported"
)

// ChunkType distinguishes a mid-run chunk from the run's final one.
type ChunkType string

const (
	ChunkIntermediate ChunkType = "intermediate"
	ChunkFinal        ChunkType = "final"
)

// Source is where a RunRecord originated.
type Source string

const (
	SourceApp        Source = "app"
	SourceGPXUpload  Source = "gpx_upload"
	SourceFITUpload  Source = "fit_upload"
	SourceStrava     Source = "strava"
)

// DeviceInfo is free-form client device metadata, captured but never
// interpreted by the server.
type DeviceInfo struct {
	Platform   string `json:"platform"`
	Model      string `json:"model"`
	AppVersion string `json:"app_version"`
	OSVersion  string `json:"os_version"`
}

// RunSession is a live run (spec §3 RunSession).
type RunSession struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CourseID   *uuid.UUID
	Status     SessionStatus
	StartedAt  time.Time
	DeviceInfo *DeviceInfo
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PauseInterval is one paused span within a run.
type PauseInterval struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// ChunkSummary is the client-computed summary of one chunk's points.
type ChunkSummary struct {
	DistanceM       float64   `json:"distance_m"`
	DurationS       int       `json:"duration_s"`
	AvgPaceSPerKm   *int      `json:"avg_pace_s_per_km,omitempty"`
	ElevationDeltaM float64   `json:"elevation_delta_m"`
	PointCount      int       `json:"point_count"`
	StartTimestamp  time.Time `json:"start_timestamp"`
	EndTimestamp    time.Time `json:"end_timestamp"`
}

// Cumulative is the running total as of the end of a chunk.
type Cumulative struct {
	DistanceM     float64 `json:"distance_m"`
	DurationS     int     `json:"duration_s"`
	AvgPaceSPerKm *int    `json:"avg_pace_s_per_km,omitempty"`
}

// RunChunk is one immutable, ordered slice of a session's GPS stream
// (spec §3 RunChunk). Dict-shaped payloads (raw/filtered points, summary,
// cumulative) are explicit structs per spec §9, stored as jsonb.
type RunChunk struct {
	ID               uuid.UUID
	SessionID        uuid.UUID
	Sequence         int
	ChunkType        ChunkType
	RawGPSPoints     []trace.Point
	FilteredPoints   []trace.Point // optional; nil means "use raw"
	ChunkSummary     ChunkSummary
	Cumulative       Cumulative
	CompletedSplits  []trace.Split
	PauseIntervals   []PauseInterval
	CreatedAt        time.Time
}

// Points returns FilteredPoints when present, else RawGPSPoints, per the
// recovery-path rule in spec §4.1.
func (c *RunChunk) Points() []trace.Point {
	if len(c.FilteredPoints) > 0 {
		return c.FilteredPoints
	}
	return c.RawGPSPoints
}

// ClientSummary is the client-computed activity summary submitted to
// CompleteSession. The server trusts it without reconciling against
// server-held chunks (spec §9 Open Question Q1); the StrictMode config
// flag is stored on the Service but does not change this.
type ClientSummary struct {
	DistanceM        float64
	DurationS        int
	AvgPaceSPerKm    *int
	BestPaceSPerKm   *int
	MaxSpeedMPS      float64
	AvgSpeedMPS      float64
	ElevationGainM   float64
	ElevationLossM   float64
	RouteGeometry    []trace.Coordinate
	ElevationProfile []float64
	Splits           []trace.Split
	PauseIntervals   []PauseInterval
	TotalChunks      int
	FinishedAt       time.Time
}

// RunRecord is a finalized run (spec §3 RunRecord), 1:1 with a RunSession.
type RunRecord struct {
	ID                uuid.UUID
	SessionID         uuid.UUID
	UserID            uuid.UUID
	CourseID          *uuid.UUID
	DistanceM         float64
	DurationS         int
	AvgPaceSPerKm     *int
	BestPaceSPerKm    *int
	MaxSpeedMPS       float64
	AvgSpeedMPS       float64
	ElevationGainM    float64
	ElevationLossM    float64
	RouteGeometry     []trace.Coordinate
	ElevationProfile  []float64
	Splits            []trace.Split
	PauseIntervals    []PauseInterval
	CourseCompleted   *bool // nil = no course chosen
	RouteMatchPercent float64
	MaxDeviationM     float64
	IsFlagged         bool
	FlagReason        string
	Source            Source
	ExternalImportID  *uuid.UUID
	StartedAt         time.Time
	FinishedAt        time.Time
	CreatedAt         time.Time
}
