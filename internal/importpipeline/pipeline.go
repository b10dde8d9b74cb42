package importpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"runcore/internal/anomaly"
	"runcore/internal/ingest"
	"runcore/internal/platform/apperror"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/telemetry"
	"runcore/internal/routematch"
	"runcore/internal/trace"
	"runcore/internal/users"
)

// CandidateMatcher evaluates a finalized point stream against the best of
// a set of nearby public course candidates, satisfied by
// *routematch.CandidateDecider (spec §4.4 "Candidate selection").
type CandidateMatcher interface {
	MatchBest(ctx context.Context, startLat, startLng float64, route []trace.Coordinate) (courseID uuid.UUID, verdict routematch.Verdict, ok bool)
}

// ImportEnqueuer schedules a claim-and-process pass, satisfied by
// *taskqueue.Pool's EnqueueImportProcess.
type ImportEnqueuer interface {
	EnqueueImportProcess(ctx context.Context, importID uuid.UUID) error
}

// Service claims pending imports and drives each through the nine-step
// pipeline of spec §4.3.
type Service struct {
	imports  Repository
	sessions ingest.SessionRepository
	records  ingest.RunRecordRepository
	users    users.Repository
	matcher  CandidateMatcher
	rankings ingest.RankingEnqueuer
	queue    ImportEnqueuer
}

// NewService builds the import pipeline Service.
func NewService(
	imports Repository,
	sessions ingest.SessionRepository,
	records ingest.RunRecordRepository,
	userRepo users.Repository,
	matcher CandidateMatcher,
	rankings ingest.RankingEnqueuer,
	queue ImportEnqueuer,
) *Service {
	return &Service{
		imports:  imports,
		sessions: sessions,
		records:  records,
		users:    userRepo,
		matcher:  matcher,
		rankings: rankings,
		queue:    queue,
	}
}

// SetQueue rebinds the import enqueuer after construction, for the same
// construction-order cycle ingest.Service.SetRankingEnqueuer documents:
// internal/taskqueue.Pool needs this Service as its ImportHandler before
// it exists, but this Service needs the Pool as its ImportEnqueuer.
func (s *Service) SetQueue(queue ImportEnqueuer) {
	s.queue = queue
}

// SetRankingEnqueuer rebinds the ranking enqueuer for the same reason.
func (s *Service) SetRankingEnqueuer(rankings ingest.RankingEnqueuer) {
	s.rankings = rankings
}

// Submit persists a caller-provided upload as a pending ExternalImport and
// schedules a worker to process it (spec §6 POST /api/v1/imports/upload).
// It never runs the pipeline inline: a malformed payload is discovered by
// the worker and recorded as a failed import, not a request error, matching
// spec §9's "handler enqueues an opaque message" model. Submit does not
// check payload size; the HTTP handler enforces the upload cap.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, source ingest.Source, payload []byte) (*ExternalImport, error) {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.Service.Submit")
	defer span.End()

	imp := &ExternalImport{
		UserID:  userID,
		Source:  source,
		Payload: payload,
		Status:  StatusPending,
	}
	if err := s.imports.Create(ctx, imp); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to create import")
	}

	if s.queue != nil {
		if err := s.queue.EnqueueImportProcess(ctx, imp.ID); err != nil {
			logger.Error("failed to enqueue import processing", "import_id", imp.ID.String(), "error", err)
		}
	}
	return imp, nil
}

// ProcessNext claims and fully processes one pending import. An empty
// queue (ErrNoPending from ClaimNextPending) returns nil, so
// internal/taskqueue treats it as "nothing to do" rather than a failure.
func (s *Service) ProcessNext(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "importpipeline.Service.ProcessNext")
	defer span.End()

	imp, err := s.imports.ClaimNextPending(ctx)
	if errors.Is(err, ErrNoPending) {
		return nil
	}
	if err != nil {
		return err
	}

	if procErr := s.process(ctx, imp); procErr != nil {
		logger.Error("import pipeline failed", "import_id", imp.ID.String(), "error", procErr)
		if markErr := s.imports.MarkFailed(ctx, imp.ID, procErr.Error()); markErr != nil {
			logger.Error("failed to record import failure", "import_id", imp.ID.String(), "error", markErr)
		}
	}
	return nil
}

// process implements spec §4.3 steps 2-9. Any error here rolls back only
// this import's writes; ProcessNext is responsible for flipping the
// import row to failed, never for surfacing the error to a caller.
func (s *Service) process(ctx context.Context, imp *ExternalImport) error {
	points, err := parsePayload(imp.Source, imp.Payload)
	if err != nil {
		return fmt.Errorf("parse activity: %w", err)
	}

	derived := trace.Derive(points)
	if len(points) == 0 || derived.DistanceM < minDistanceM || derived.DurationS < minDurationS {
		return fmt.Errorf("activity below minimum thresholds (distance=%.1fm duration=%ds points=%d)",
			derived.DistanceM, derived.DurationS, len(points))
	}

	session := &ingest.RunSession{
		UserID:    imp.UserID,
		Status:    ingest.SessionImported,
		StartedAt: points[0].Timestamp,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("create synthetic session: %w", err)
	}

	run := &ingest.RunRecord{
		SessionID:        session.ID,
		UserID:           imp.UserID,
		DistanceM:        derived.DistanceM,
		DurationS:        derived.DurationS,
		AvgPaceSPerKm:    derived.AvgPaceSPerKm,
		BestPaceSPerKm:   derived.BestPaceSPerKm,
		MaxSpeedMPS:      derived.MaxSpeedMPS,
		AvgSpeedMPS:      derived.AvgSpeedMPS,
		ElevationGainM:   derived.ElevationGainM,
		ElevationLossM:   derived.ElevationLossM,
		RouteGeometry:    derived.RouteCoordinates,
		ElevationProfile: derived.ElevationProfile,
		Splits:           derived.Splits,
		Source:           imp.Source,
		ExternalImportID: &imp.ID,
		StartedAt:        points[0].Timestamp,
		FinishedAt:       points[len(points)-1].Timestamp,
	}

	s.matchAgainstCandidates(ctx, run, points[0])

	if flagged, reason := anomaly.NewAdapter().Detect(*run); flagged {
		run.IsFlagged = true
		run.FlagReason = reason
	}

	if err := s.records.Create(ctx, run); err != nil {
		return fmt.Errorf("create run record: %w", err)
	}

	if err := s.imports.MarkCompleted(ctx, imp.ID, run.ID); err != nil {
		return fmt.Errorf("mark import completed: %w", err)
	}

	s.updateUserStats(ctx, run)
	s.enqueueRankingIfEligible(ctx, run)

	return nil
}

// updateUserStats increments User.total_distance_m/total_runs for every
// finalized import (spec §3, §4.3 step 8), unconditionally and
// independent of the ranking-eligibility gate below.
func (s *Service) updateUserStats(ctx context.Context, run *ingest.RunRecord) {
	if s.users == nil {
		return
	}
	if err := s.users.IncrementCumulativeStats(ctx, run.UserID, run.DistanceM); err != nil {
		logger.Error("failed to update user cumulative stats", "run_record_id", run.ID.String(), "error", err)
	}
}

func (s *Service) matchAgainstCandidates(ctx context.Context, run *ingest.RunRecord, start trace.Point) {
	if s.matcher == nil {
		return
	}
	courseID, verdict, ok := s.matcher.MatchBest(ctx, start.Lat, start.Lng, run.RouteGeometry)
	if !ok {
		return
	}
	completed := verdict.Completed
	run.CourseID = &courseID
	run.CourseCompleted = &completed
	run.RouteMatchPercent = verdict.MatchPercent
	run.MaxDeviationM = verdict.MaxDeviationM
}

// enqueueRankingIfEligible mirrors internal/ingest's eligibility gate
// exactly (spec I5a: flagged runs, and runs that did not complete a
// bound course, never update Ranking/CourseStats). User cumulative stats
// are unaffected by this gate; updateUserStats runs unconditionally above.
func (s *Service) enqueueRankingIfEligible(ctx context.Context, run *ingest.RunRecord) {
	if s.rankings == nil || run.CourseID == nil || run.CourseCompleted == nil || !*run.CourseCompleted || run.IsFlagged {
		return
	}
	if err := s.rankings.EnqueueRankingRecalc(ctx, *run.CourseID, run.UserID, run.ID); err != nil {
		logger.Error("failed to enqueue ranking recalc", "run_record_id", run.ID.String(), "error", err)
	}
}

// parsePayload dispatches to the source-specific parser. Strava payloads
// arrive pre-normalized to a JSON-encoded trace.Point stream, produced by
// StravaClient.FetchActivityPoints at import-creation time (spec §4.3:
// "already normalized to a point stream at fetch time").
func parsePayload(source ingest.Source, payload []byte) ([]trace.Point, error) {
	switch source {
	case ingest.SourceGPXUpload:
		return parseGPX(payload)
	case ingest.SourceFITUpload:
		return parseFIT(payload)
	case ingest.SourceStrava:
		var points []trace.Point
		if err := json.Unmarshal(payload, &points); err != nil {
			return nil, fmt.Errorf("unmarshal normalized strava payload: %w", err)
		}
		return points, nil
	default:
		return nil, fmt.Errorf("unsupported import source %q", source)
	}
}
