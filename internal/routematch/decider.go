package routematch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"runcore/internal/courses"
	"runcore/internal/platform/telemetry"
	"runcore/internal/trace"
)

// Decider adapts the pure Match function to a single-course lookup for
// internal/ingest's live-session completion path (spec §4.4: "the live
// path uses the session's bound course only").
type Decider struct {
	courses courses.Repository
}

// NewDecider builds a course-bound route-match decider.
func NewDecider(courseRepo courses.Repository) *Decider {
	return &Decider{courses: courseRepo}
}

// MatchAgainstCourse fetches courseID's reference polyline and matches
// routeGeometry against it (spec §4.4, live-session path: "the live path
// uses the session's bound course only").
func (d *Decider) MatchAgainstCourse(ctx context.Context, courseID uuid.UUID, routeGeometry []trace.Coordinate) (Verdict, error) {
	ctx, span := telemetry.StartSpan(ctx, "routematch.Decider.MatchAgainstCourse")
	defer span.End()

	course, err := d.courses.GetByID(ctx, courseID)
	if err != nil {
		return Verdict{}, fmt.Errorf("load course for match: %w", err)
	}

	result := Match(toCoursePoints(course.RouteGeometry), toRunnerPoints(routeGeometry))
	return Verdict{
		Completed:     result.IsCompleted,
		MatchPercent:  result.MatchPercent,
		MaxDeviationM: result.MaxDeviationM,
	}, nil
}

// Verdict is the reduced outcome internal/ingest and internal/importpipeline
// consume: just enough to stamp a RunRecord's course_completed,
// route_match_percent, and max_deviation_m fields.
type Verdict struct {
	Completed     bool
	MatchPercent  float64
	MaxDeviationM float64
}

// BestCandidate evaluates runnerRoute against every candidate and returns
// the match with the highest percent, iff it clears the completion
// threshold (spec §4.4 "Candidate selection"). ok is false when no
// candidate completes.
func BestCandidate(candidates []courses.NearCandidate, runnerRoute []trace.Coordinate) (courseID uuid.UUID, verdict Verdict, ok bool) {
	runner := toRunnerPoints(runnerRoute)

	var best Result
	var bestID uuid.UUID
	found := false

	for _, cand := range candidates {
		result := Match(toCoursePoints(cand.RouteGeometry), runner)
		if !result.IsCompleted {
			continue
		}
		if !found || result.MatchPercent > best.MatchPercent {
			best = result
			bestID = cand.CourseID
			found = true
		}
	}

	if !found {
		return uuid.Nil, Verdict{}, false
	}
	return bestID, Verdict{Completed: best.IsCompleted, MatchPercent: best.MatchPercent, MaxDeviationM: best.MaxDeviationM}, true
}

// CandidateDecider adapts BestCandidate to the import pipeline's
// candidate-search path (spec §4.4 "Candidate selection": public courses
// within 500m of the runner's start, top 10 evaluated).
type CandidateDecider struct {
	courses   courses.Repository
	radiusM   float64
	limit     int
}

// NewCandidateDecider builds an import-path route-match decider.
func NewCandidateDecider(courseRepo courses.Repository, radiusM float64, limit int) *CandidateDecider {
	return &CandidateDecider{courses: courseRepo, radiusM: radiusM, limit: limit}
}

// MatchBest searches for nearby public courses and returns the
// highest-scoring completion, if any (spec §4.4, §4.3 step 7).
func (d *CandidateDecider) MatchBest(ctx context.Context, startLat, startLng float64, route []trace.Coordinate) (uuid.UUID, Verdict, bool) {
	ctx, span := telemetry.StartSpan(ctx, "routematch.CandidateDecider.MatchBest")
	defer span.End()

	candidates, err := d.courses.NearbyStartCandidates(ctx, startLat, startLng, d.radiusM, d.limit)
	if err != nil || len(candidates) == 0 {
		return uuid.Nil, Verdict{}, false
	}

	return BestCandidate(candidates, route)
}

func toCoursePoints(points []courses.Point) []CoursePoint {
	out := make([]CoursePoint, len(points))
	for i, p := range points {
		out[i] = CoursePoint{Lat: p.Lat, Lng: p.Lng}
	}
	return out
}

func toRunnerPoints(coords []trace.Coordinate) []RunnerPoint {
	out := make([]RunnerPoint, len(coords))
	for i, c := range coords {
		out[i] = RunnerPoint{Lat: c.Lat, Lng: c.Lng}
	}
	return out
}
