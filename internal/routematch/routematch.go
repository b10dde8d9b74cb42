// Package routematch decides whether a runner's finalized point stream
// completes a community-authored course, and how closely it tracked the
// reference line (spec §4.4).
package routematch

import (
	"runcore/internal/geo"
)

const (
	curvatureThreshold   = 0.001 // rad·m⁻¹
	straightThresholdM   = 50.0
	curvedThresholdM     = 60.0
	completionRatio      = 0.80
)

// CoursePoint is one vertex of a course's reference polyline.
type CoursePoint struct {
	Lat float64
	Lng float64
}

// RunnerPoint is one sample of the runner's finalized trace.
type RunnerPoint struct {
	Lat float64
	Lng float64
}

// segment is a course polyline edge tagged with its curvature class.
type segment struct {
	a, b   geo.Point
	curved bool
}

// Result is the verdict of matching a runner trace against a course.
type Result struct {
	IsCompleted      bool
	MatchPercent     float64
	MaxDeviationM    float64
	DeviationPoints  int
	TotalPoints      int
	MatchedPoints    int
}

// Match evaluates runnerPoints against the course polyline. Degenerate
// inputs (empty runner stream, or a course with fewer than 2 vertices)
// return a zero result with IsCompleted false, per spec.
func Match(coursePolyline []CoursePoint, runnerPoints []RunnerPoint) Result {
	if len(runnerPoints) == 0 || len(coursePolyline) < 2 {
		return Result{}
	}

	segments := classifySegments(coursePolyline)

	var matched int
	var maxDeviation float64

	for _, rp := range runnerPoints {
		p := geo.Point{Lat: rp.Lat, Lng: rp.Lng}
		dist, curved := nearestSegmentDistance(p, segments)

		threshold := straightThresholdM
		if curved {
			threshold = curvedThresholdM
		}
		if dist <= threshold {
			matched++
		}
		if dist > maxDeviation {
			maxDeviation = dist
		}
	}

	total := len(runnerPoints)
	matchPercent := float64(matched) / float64(total) * 100

	return Result{
		IsCompleted:     float64(matched)/float64(total) >= completionRatio,
		MatchPercent:    matchPercent,
		MaxDeviationM:   maxDeviation,
		DeviationPoints: total - matched,
		TotalPoints:     total,
		MatchedPoints:   matched,
	}
}

// classifySegments computes Menger curvature at each interior vertex and
// marks both of its adjacent segments as curved when the curvature clears
// curvatureThreshold.
func classifySegments(polyline []CoursePoint) []segment {
	points := make([]geo.Point, len(polyline))
	for i, cp := range polyline {
		points[i] = geo.Point{Lat: cp.Lat, Lng: cp.Lng}
	}

	segments := make([]segment, len(points)-1)
	for i := 0; i < len(segments); i++ {
		segments[i] = segment{a: points[i], b: points[i+1]}
	}

	for i := 1; i < len(points)-1; i++ {
		curvature := geo.MengerCurvature(points[i-1], points[i], points[i+1])
		if curvature > curvatureThreshold {
			segments[i-1].curved = true
			segments[i].curved = true
		}
	}

	return segments
}

// nearestSegmentDistance returns the distance to the closest course segment
// and whether that segment is curved.
func nearestSegmentDistance(p geo.Point, segments []segment) (dist float64, curved bool) {
	dist = -1
	for _, seg := range segments {
		d := geo.PointToSegmentDistance(p, seg.a, seg.b)
		if dist < 0 || d < dist {
			dist = d
			curved = seg.curved
		}
	}
	return dist, curved
}
