package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"runcore/internal/ingest"
	"runcore/internal/platform/apperror"
	"runcore/internal/trace"
)

type createSessionRequest struct {
	StartedAt  time.Time          `json:"started_at"`
	CourseID   *uuid.UUID         `json:"course_id,omitempty"`
	DeviceInfo *ingest.DeviceInfo `json:"device_info,omitempty"`
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)

	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID, err := h.deps.Ingest.CreateSession(r.Context(), userID, req.StartedAt, req.CourseID, req.DeviceInfo)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": sessionID})
}

func sessionIDFromPath(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type chunkRequest struct {
	Sequence       int                     `json:"sequence"`
	ChunkType      ingest.ChunkType        `json:"chunk_type"`
	RawGPSPoints   []trace.Point           `json:"raw_gps_points"`
	FilteredPoints []trace.Point           `json:"filtered_points,omitempty"`
	ChunkSummary   ingest.ChunkSummary     `json:"chunk_summary"`
	Cumulative     ingest.Cumulative       `json:"cumulative"`
	Splits         []trace.Split           `json:"splits,omitempty"`
	PauseIntervals []ingest.PauseInterval  `json:"pause_intervals,omitempty"`
}

func (h *handlers) uploadChunk(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid session id", "id"))
		return
	}

	var req chunkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chunkID, err := h.deps.Ingest.UploadChunk(r.Context(), userID, sessionID, req.Sequence, req.ChunkType,
		req.RawGPSPoints, req.FilteredPoints, req.ChunkSummary, req.Cumulative, req.Splits, req.PauseIntervals)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chunk_id": chunkID})
}

type batchUploadRequest struct {
	Chunks []chunkRequest `json:"chunks"`
}

func (h *handlers) batchUploadChunks(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid session id", "id"))
		return
	}

	var req batchUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inputs := make([]ingest.BatchChunkInput, len(req.Chunks))
	for i, c := range req.Chunks {
		inputs[i] = ingest.BatchChunkInput{
			Sequence:       c.Sequence,
			ChunkType:      c.ChunkType,
			RawGPSPoints:   c.RawGPSPoints,
			FilteredPoints: c.FilteredPoints,
			ChunkSummary:   c.ChunkSummary,
			Cumulative:     c.Cumulative,
			Splits:         c.Splits,
			PauseIntervals: c.PauseIntervals,
		}
	}

	accepted, failed, err := h.deps.Ingest.BatchUploadChunks(r.Context(), userID, sessionID, inputs)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted, "failed": failed})
}

type clientSummaryRequest struct {
	DistanceM        float64                `json:"distance_m"`
	DurationS        int                    `json:"duration_s"`
	AvgPaceSPerKm    *int                   `json:"avg_pace_s_per_km,omitempty"`
	BestPaceSPerKm   *int                   `json:"best_pace_s_per_km,omitempty"`
	MaxSpeedMPS      float64                `json:"max_speed_mps"`
	AvgSpeedMPS      float64                `json:"avg_speed_mps"`
	ElevationGainM   float64                `json:"elevation_gain_m"`
	ElevationLossM   float64                `json:"elevation_loss_m"`
	RouteGeometry    []trace.Coordinate     `json:"route_geometry"`
	ElevationProfile []float64              `json:"elevation_profile,omitempty"`
	Splits           []trace.Split          `json:"splits,omitempty"`
	PauseIntervals   []ingest.PauseInterval `json:"pause_intervals,omitempty"`
	TotalChunks      int                    `json:"total_chunks"`
	FinishedAt       time.Time              `json:"finished_at"`
}

func (h *handlers) completeSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid session id", "id"))
		return
	}

	var req clientSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	runRecordID, missing, err := h.deps.Ingest.CompleteSession(r.Context(), userID, sessionID, ingest.ClientSummary{
		DistanceM:        req.DistanceM,
		DurationS:        req.DurationS,
		AvgPaceSPerKm:    req.AvgPaceSPerKm,
		BestPaceSPerKm:   req.BestPaceSPerKm,
		MaxSpeedMPS:      req.MaxSpeedMPS,
		AvgSpeedMPS:      req.AvgSpeedMPS,
		ElevationGainM:   req.ElevationGainM,
		ElevationLossM:   req.ElevationLossM,
		RouteGeometry:    req.RouteGeometry,
		ElevationProfile: req.ElevationProfile,
		Splits:           req.Splits,
		PauseIntervals:   req.PauseIntervals,
		TotalChunks:      req.TotalChunks,
		FinishedAt:       req.FinishedAt,
	})
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_record_id": runRecordID, "missing_chunk_sequences": missing})
}

type recoverSessionRequest struct {
	FinishedAt        time.Time `json:"finished_at"`
	TotalChunks       int       `json:"total_chunks"`
	UploadedSequences []int     `json:"uploaded_sequences"`
}

func (h *handlers) recoverSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := currentUserID(r)
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "invalid session id", "id"))
		return
	}

	var req recoverSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	runRecordID, missing, err := h.deps.Ingest.RecoverSession(r.Context(), userID, sessionID, req.FinishedAt, req.TotalChunks, req.UploadedSequences)
	if err != nil {
		apperror.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_record_id": runRecordID, "missing_chunk_sequences": missing})
}
