package ingest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"runcore/internal/courses"
	"runcore/internal/platform/apperror"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/telemetry"
	"runcore/internal/routematch"
	"runcore/internal/trace"
	"runcore/internal/users"
)

// MatchDecider evaluates a finalized point stream against a single bound
// course, satisfied by *routematch.Decider.
type MatchDecider interface {
	MatchAgainstCourse(ctx context.Context, courseID uuid.UUID, routeGeometry []trace.Coordinate) (routematch.Verdict, error)
}

// AnomalyDetector flags physically impossible runs, satisfied by
// internal/anomaly.
type AnomalyDetector interface {
	Detect(summary RunRecord) (flagged bool, reason string)
}

// RankingEnqueuer schedules the post-commit ranking/stats recompute task
// (spec §4.5 trigger), satisfied by internal/taskqueue.
type RankingEnqueuer interface {
	EnqueueRankingRecalc(ctx context.Context, courseID, userID, runRecordID uuid.UUID) error
}

// Service implements the Session & Chunk Ingest operations of spec §4.1.
type Service struct {
	sessions  SessionRepository
	chunks    ChunkRepository
	records   RunRecordRepository
	courses   courses.Repository
	users     users.Repository
	matcher   MatchDecider
	anomaly   AnomalyDetector
	rankings  RankingEnqueuer
	strictMode bool
}

// NewService builds the ingest Service.
func NewService(
	sessions SessionRepository,
	chunks ChunkRepository,
	records RunRecordRepository,
	courseRepo courses.Repository,
	userRepo users.Repository,
	matcher MatchDecider,
	anomaly AnomalyDetector,
	rankings RankingEnqueuer,
	strictMode bool,
) *Service {
	return &Service{
		sessions:   sessions,
		chunks:     chunks,
		records:    records,
		courses:    courseRepo,
		users:      userRepo,
		matcher:    matcher,
		anomaly:    anomaly,
		rankings:   rankings,
		strictMode: strictMode,
	}
}

// SetRankingEnqueuer rebinds the ranking enqueuer after construction,
// breaking the construction-order cycle between this Service and
// internal/taskqueue.Pool: the Pool itself needs a fully built
// *importpipeline.Service (as its ImportHandler) before it can exist, but
// importpipeline.Service and this Service both need the Pool as their
// RankingEnqueuer/ImportEnqueuer. cmd/server wires a nil enqueuer first,
// builds the Pool, then calls this once before serving traffic.
func (s *Service) SetRankingEnqueuer(rankings RankingEnqueuer) {
	s.rankings = rankings
}

// CreateSession starts a live RunSession, verifying the bound course exists
// when one is given.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, startedAt time.Time, courseID *uuid.UUID, deviceInfo *DeviceInfo) (uuid.UUID, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Service.CreateSession")
	defer span.End()

	if courseID != nil {
		exists, err := s.courses.Exists(ctx, *courseID)
		if err != nil {
			return uuid.Nil, apperror.Wrap(err, apperror.CodeInternal, "failed to verify course")
		}
		if !exists {
			return uuid.Nil, apperror.New(apperror.CodeNotFound, "course not found")
		}
	}

	session := &RunSession{
		UserID:     userID,
		CourseID:   courseID,
		Status:     SessionActive,
		StartedAt:  startedAt,
		DeviceInfo: deviceInfo,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return uuid.Nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create run session")
	}
	return session.ID, nil
}

// UploadChunk appends one chunk to an active session. Ownership violations
// and missing sessions are both reported as NOT_FOUND so existence is not
// leaked to non-owners.
func (s *Service) UploadChunk(ctx context.Context, userID, sessionID uuid.UUID, sequence int, chunkType ChunkType, rawPoints []trace.Point, filteredPoints []trace.Point, summary ChunkSummary, cumulative Cumulative, splits []trace.Split, pauses []PauseInterval) (uuid.UUID, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Service.UploadChunk")
	defer span.End()

	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return uuid.Nil, err
	}
	if session.Status != SessionActive {
		return uuid.Nil, apperror.New(apperror.CodeInvalidSessionState, "session is not active")
	}

	chunk := &RunChunk{
		SessionID:       sessionID,
		Sequence:        sequence,
		ChunkType:       chunkType,
		RawGPSPoints:    rawPoints,
		FilteredPoints:  filteredPoints,
		ChunkSummary:    summary,
		Cumulative:      cumulative,
		CompletedSplits: splits,
		PauseIntervals:  pauses,
	}

	if err := s.chunks.Create(ctx, chunk); err != nil {
		if errors.Is(err, ErrChunkDuplicate) {
			return uuid.Nil, apperror.New(apperror.CodeDuplicateChunk, "chunk sequence already uploaded")
		}
		return uuid.Nil, apperror.Wrap(err, apperror.CodeInternal, "failed to store chunk")
	}
	return chunk.ID, nil
}

// BatchChunkInput is one chunk in a batch-upload request.
type BatchChunkInput struct {
	Sequence       int
	ChunkType      ChunkType
	RawGPSPoints   []trace.Point
	FilteredPoints []trace.Point
	ChunkSummary   ChunkSummary
	Cumulative     Cumulative
	Splits         []trace.Split
	PauseIntervals []PauseInterval
}

// BatchFailure reports one rejected chunk in a batch upload.
type BatchFailure struct {
	Sequence int
	Reason   string
}

// BatchUploadChunks backfills missed chunks. Allowed while the session is
// active, completed, or recovered; duplicates are reported as accepted,
// not errors, per spec §4.1.
func (s *Service) BatchUploadChunks(ctx context.Context, userID, sessionID uuid.UUID, chunks []BatchChunkInput) (accepted []int, failed []BatchFailure, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Service.BatchUploadChunks")
	defer span.End()

	session, loadErr := s.loadOwnedSession(ctx, userID, sessionID)
	if loadErr != nil {
		return nil, nil, loadErr
	}
	if session.Status != SessionActive && session.Status != SessionCompleted && session.Status != SessionRecovered {
		return nil, nil, apperror.New(apperror.CodeInvalidSessionState, "session cannot accept chunk backfill")
	}

	for _, in := range chunks {
		c := &RunChunk{
			SessionID:       sessionID,
			Sequence:        in.Sequence,
			ChunkType:       in.ChunkType,
			RawGPSPoints:    in.RawGPSPoints,
			FilteredPoints:  in.FilteredPoints,
			ChunkSummary:    in.ChunkSummary,
			Cumulative:      in.Cumulative,
			CompletedSplits: in.Splits,
			PauseIntervals:  in.PauseIntervals,
		}
		createErr := s.chunks.Create(ctx, c)
		switch {
		case createErr == nil:
			accepted = append(accepted, in.Sequence)
		case errors.Is(createErr, ErrChunkDuplicate):
			accepted = append(accepted, in.Sequence)
		default:
			failed = append(failed, BatchFailure{Sequence: in.Sequence, Reason: createErr.Error()})
		}
	}
	return accepted, failed, nil
}

// CompleteSession finalizes an active session, trusting the client-reported
// summary as authoritative (spec §9 Q1). It runs route matching and
// anomaly detection on the client's reported route geometry, persists the
// RunRecord, flips the session to completed, and reports which chunk
// sequences the server never received.
func (s *Service) CompleteSession(ctx context.Context, userID, sessionID uuid.UUID, summary ClientSummary) (uuid.UUID, []int, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Service.CompleteSession")
	defer span.End()

	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if session.Status != SessionActive {
		return uuid.Nil, nil, apperror.New(apperror.CodeAlreadyCompleted, "session is not active")
	}

	run := &RunRecord{
		SessionID:        sessionID,
		UserID:           userID,
		CourseID:         session.CourseID,
		DistanceM:        summary.DistanceM,
		DurationS:        summary.DurationS,
		AvgPaceSPerKm:    summary.AvgPaceSPerKm,
		BestPaceSPerKm:   summary.BestPaceSPerKm,
		MaxSpeedMPS:      summary.MaxSpeedMPS,
		AvgSpeedMPS:      summary.AvgSpeedMPS,
		ElevationGainM:   summary.ElevationGainM,
		ElevationLossM:   summary.ElevationLossM,
		RouteGeometry:    summary.RouteGeometry,
		ElevationProfile: summary.ElevationProfile,
		Splits:           summary.Splits,
		PauseIntervals:   summary.PauseIntervals,
		Source:           SourceApp,
		StartedAt:        session.StartedAt,
		FinishedAt:       summary.FinishedAt,
	}

	if err := s.finalizeMatchAndAnomaly(ctx, run); err != nil {
		return uuid.Nil, nil, err
	}

	if err := s.records.Create(ctx, run); err != nil {
		return uuid.Nil, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create run record")
	}
	if err := s.sessions.UpdateStatus(ctx, sessionID, SessionCompleted); err != nil {
		return uuid.Nil, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to mark session completed")
	}

	s.updateUserStats(ctx, run)
	s.enqueueRankingIfEligible(ctx, run)

	missing, err := s.missingSequences(ctx, sessionID, summary.TotalChunks)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return run.ID, missing, nil
}

// RecoverSession reconstructs a RunRecord entirely from server-held chunks
// when the client crashed before calling CompleteSession (spec §4.1).
func (s *Service) RecoverSession(ctx context.Context, userID, sessionID uuid.UUID, finishedAt time.Time, totalChunks int, uploadedSequences []int) (uuid.UUID, []int, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.Service.RecoverSession")
	defer span.End()

	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if session.Status == SessionCompleted {
		return uuid.Nil, nil, apperror.New(apperror.CodeAlreadyCompleted, "session is already completed")
	}

	chunks, err := s.chunks.ListBySession(ctx, sessionID)
	if err != nil {
		return uuid.Nil, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load chunks")
	}
	if len(chunks) == 0 {
		return uuid.Nil, nil, apperror.New(apperror.CodeNoChunks, "session has no persisted chunks")
	}

	last := chunks[len(chunks)-1]
	points := concatenatePoints(chunks)

	var allSplits []trace.Split
	var allPauses []PauseInterval
	for _, c := range chunks {
		allSplits = append(allSplits, c.CompletedSplits...)
		allPauses = append(allPauses, c.PauseIntervals...)
	}

	run := &RunRecord{
		SessionID:        sessionID,
		UserID:           userID,
		CourseID:         session.CourseID,
		DistanceM:        last.Cumulative.DistanceM,
		DurationS:        last.Cumulative.DurationS,
		AvgPaceSPerKm:    last.Cumulative.AvgPaceSPerKm,
		RouteGeometry:    trace.RouteCoordinates(points),
		ElevationProfile: trace.ElevationProfile(points),
		Splits:           allSplits,
		PauseIntervals:   allPauses,
		Source:           SourceApp,
		StartedAt:        session.StartedAt,
		FinishedAt:       finishedAt,
	}

	if err := s.finalizeMatchAndAnomaly(ctx, run); err != nil {
		return uuid.Nil, nil, err
	}

	if err := s.records.Create(ctx, run); err != nil {
		return uuid.Nil, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create run record")
	}
	if err := s.sessions.UpdateStatus(ctx, sessionID, SessionRecovered); err != nil {
		return uuid.Nil, nil, apperror.Wrap(err, apperror.CodeInternal, "failed to mark session recovered")
	}

	s.updateUserStats(ctx, run)
	s.enqueueRankingIfEligible(ctx, run)

	persisted := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		persisted[c.Sequence] = true
	}
	var missing []int
	for i := 0; i < totalChunks; i++ {
		if !persisted[i] {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)

	return run.ID, missing, nil
}

// finalizeMatchAndAnomaly runs route matching (when a course is bound) and
// speed-anomaly detection against a not-yet-persisted RunRecord, filling
// in its CourseCompleted/RouteMatchPercent/MaxDeviationM/IsFlagged fields.
func (s *Service) finalizeMatchAndAnomaly(ctx context.Context, run *RunRecord) error {
	if run.CourseID != nil && s.matcher != nil {
		verdict, err := s.matcher.MatchAgainstCourse(ctx, *run.CourseID, run.RouteGeometry)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to match course")
		}
		completed := verdict.Completed
		run.CourseCompleted = &completed
		run.RouteMatchPercent = verdict.MatchPercent
		run.MaxDeviationM = verdict.MaxDeviationM
	}

	if s.anomaly != nil {
		if flagged, reason := s.anomaly.Detect(*run); flagged {
			run.IsFlagged = true
			run.FlagReason = reason
		}
	}

	return nil
}

// updateUserStats increments User.total_distance_m/total_runs for every
// finalized RunRecord (spec §3, §4.3 step 8), unconditionally: unlike
// Ranking/CourseStats, cumulative user totals are not gated on course
// completion or the flagged state (spec I5a names only Ranking and
// CourseStats). Failures are logged, not surfaced, matching how the rest
// of this method treats its post-commit side effects.
func (s *Service) updateUserStats(ctx context.Context, run *RunRecord) {
	if s.users == nil {
		return
	}
	if err := s.users.IncrementCumulativeStats(ctx, run.UserID, run.DistanceM); err != nil {
		logger.Error("failed to update user cumulative stats", "run_record_id", run.ID.String(), "error", err)
	}
}

// enqueueRankingIfEligible schedules the post-commit ranking/stats
// recompute for RunRecords that completed a course and were not flagged
// (spec I5a, §4.5 trigger). This gate covers Ranking and CourseStats only;
// user cumulative stats are updated separately by updateUserStats on every
// finalized run. Enqueue failures never surface to the caller; they are
// logged here.
func (s *Service) enqueueRankingIfEligible(ctx context.Context, run *RunRecord) {
	if s.rankings == nil || run.CourseID == nil || run.CourseCompleted == nil || !*run.CourseCompleted || run.IsFlagged {
		return
	}
	if err := s.rankings.EnqueueRankingRecalc(ctx, *run.CourseID, run.UserID, run.ID); err != nil {
		logger.Error("failed to enqueue ranking recalc", "run_record_id", run.ID.String(), "error", err)
	}
}

func (s *Service) missingSequences(ctx context.Context, sessionID uuid.UUID, totalChunks int) ([]int, error) {
	existing, err := s.chunks.ExistingSequences(ctx, sessionID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to check existing chunks")
	}
	var missing []int
	for i := 0; i < totalChunks; i++ {
		if !existing[i] {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing, nil
}

// loadOwnedSession loads a session and verifies the caller owns it.
// Ownership violations and missing sessions both return NOT_FOUND so
// existence is never leaked to a non-owner.
func (s *Service) loadOwnedSession(ctx context.Context, userID, sessionID uuid.UUID) (*RunSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "run session not found")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to load run session")
	}
	if session.UserID != userID {
		return nil, apperror.New(apperror.CodeNotFound, "run session not found")
	}
	return session, nil
}
