package ranking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"runcore/internal/courses"
	"runcore/internal/difficulty"
	"runcore/internal/ingest"
	"runcore/internal/platform/database"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/telemetry"
)

// Service implements the Ranking & Course Stats recompute of spec §4.5. It
// is invoked as a post-commit task (internal/taskqueue drives it via the
// RankingEnqueuer handoff from internal/ingest and internal/importpipeline),
// never inline with the request that finalized the RunRecord.
type Service struct {
	db      database.DB
	records ingest.RunRecordRepository
}

// NewService builds the ranking recompute service. db is the pool: each
// call opens its own transaction so the upsert, rank recompute, and stats
// recompute commit atomically together (spec §4.5 "within one transaction").
func NewService(db database.DB, records ingest.RunRecordRepository) *Service {
	return &Service{db: db, records: records}
}

// Recalculate runs the full trigger->upsert->rank-recompute->stats-recompute
// ->difficulty-recalculation chain for one newly completed, non-flagged
// RunRecord (spec §4.5). Course-stats recomputation is idempotent (spec
// §9 "repeat runs are safe"), so task redelivery is harmless.
func (s *Service) Recalculate(ctx context.Context, courseID, userID, runRecordID uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "ranking.Service.Recalculate")
	defer span.End()

	run, err := s.records.GetByID(ctx, runRecordID)
	if err != nil {
		return fmt.Errorf("load run record: %w", err)
	}

	return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		rankings := NewPostgresRepository(tx)
		courseRepo := courses.NewPostgresRepository(tx)
		aggregator := NewPostgresAggregator(tx)

		if err := upsertRanking(ctx, rankings, courseID, userID, run); err != nil {
			return err
		}
		if err := recomputeRanks(ctx, rankings, courseID); err != nil {
			return err
		}

		course, err := courseRepo.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}

		previous, err := courseRepo.GetStats(ctx, courseID)
		if err != nil && err != courses.ErrNotFound {
			return fmt.Errorf("load previous course stats: %w", err)
		}

		stats, err := recomputeStats(ctx, aggregator, course)
		if err != nil {
			return err
		}
		if err := courseRepo.UpsertStats(ctx, stats); err != nil {
			return fmt.Errorf("upsert course stats: %w", err)
		}

		if previous == nil || previous.CompletionRate != stats.CompletionRate {
			grade := difficulty.GradeFor(difficulty.Score(course.DistanceM, course.ElevationGainM, stats.CompletionRate, true))
			if err := courseRepo.UpdateDifficulty(ctx, courseID, courses.Difficulty(grade)); err != nil {
				return fmt.Errorf("update course difficulty: %w", err)
			}
		}

		logger.Info("ranking recalculated",
			"course_id", courseID, "user_id", userID, "run_record_id", runRecordID,
			"total_runs", stats.TotalRuns, "completion_rate", stats.CompletionRate,
		)
		return nil
	})
}

// upsertRanking implements the "Ranking upsert" step of spec §4.5.
func upsertRanking(ctx context.Context, repo Repository, courseID, userID uuid.UUID, run *ingest.RunRecord) error {
	existing, err := repo.GetByUserAndCourse(ctx, courseID, userID)
	if err != nil && err != ErrNotFound {
		return fmt.Errorf("load existing ranking: %w", err)
	}

	if existing == nil {
		return repo.Upsert(ctx, &Ranking{
			CourseID:       courseID,
			UserID:         userID,
			BestDurationS:  run.DurationS,
			BestPaceSPerKm: run.BestPaceSPerKm,
			RunCount:       1,
			AchievedAt:     run.FinishedAt,
		})
	}

	existing.RunCount++
	if run.DurationS < existing.BestDurationS {
		existing.BestDurationS = run.DurationS
		existing.BestPaceSPerKm = run.BestPaceSPerKm
		existing.AchievedAt = run.FinishedAt
	}
	return repo.Upsert(ctx, existing)
}

// recomputeRanks implements the "Rank recomputation" step of spec §4.5:
// enumerate by best_duration_s ascending and write 1-based positions.
func recomputeRanks(ctx context.Context, repo Repository, courseID uuid.UUID) error {
	rows, err := repo.ListByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("list rankings for rank recompute: %w", err)
	}
	for i, rk := range rows {
		rank := i + 1
		if rk.Rank == rank {
			continue
		}
		if err := repo.UpdateRank(ctx, rk.ID, rank); err != nil {
			return fmt.Errorf("write rank: %w", err)
		}
	}
	return nil
}

// recomputeStats implements the "Course-stats recomputation" step of
// spec §4.5: paces are derived from the course's reference distance, not
// any individual run's distance.
func recomputeStats(ctx context.Context, aggregator Aggregator, course *courses.Course) (*courses.Stats, error) {
	agg, err := aggregator.CourseAggregates(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("compute course aggregates: %w", err)
	}

	stats := &courses.Stats{
		CourseID:      course.ID,
		TotalRuns:     agg.TotalRuns,
		UniqueRunners: agg.UniqueRunners,
		AvgDurationS:  agg.AvgDurationS,
		BestDurationS: agg.BestDurationS,
		RunsByHour:    agg.RunsByHour,
	}

	if agg.TotalAttempts > 0 {
		stats.CompletionRate = float64(agg.TotalRuns) / float64(agg.TotalAttempts)
	}

	if course.DistanceM > 0 {
		distanceKm := course.DistanceM / 1000
		if agg.AvgDurationS > 0 {
			stats.AvgPaceSPerKm = agg.AvgDurationS / distanceKm
		}
		if agg.BestDurationS != nil {
			pace := int(float64(*agg.BestDurationS) / distanceKm)
			stats.BestPaceSPerKm = &pace
		}
	}

	return stats, nil
}
