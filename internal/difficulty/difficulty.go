// Package difficulty scores a course's difficulty from its distance,
// elevation gain, gradient, and completion rate (spec §4.6).
package difficulty

import "math"

// Grade buckets the numeric score into a human-facing label.
type Grade string

const (
	Easy   Grade = "easy"
	Medium Grade = "medium"
	Hard   Grade = "hard"
)

const (
	weightDistance          = 0.30
	weightElevation         = 0.30
	weightGradient          = 0.20
	weightCompletionInverse = 0.20

	unknownCompletionScore = 50.0
)

// Score computes the [0,100] difficulty score for a course. completionRate
// is the course's CourseStats.completion_rate; pass hasCompletionRate=false
// when no attempts have happened yet.
func Score(distanceM, elevationGainM float64, completionRate float64, hasCompletionRate bool) float64 {
	distanceScore := math.Min(distanceM/10000, 1) * 100
	elevationScore := math.Min(elevationGainM/300, 1) * 100

	var gradientScore float64
	if distanceM > 0 {
		gradientPerKm := (elevationGainM / distanceM) * 1000
		gradientScore = math.Min(gradientPerKm/60, 1) * 100
	}

	var completionInverseScore float64
	if hasCompletionRate {
		completionInverseScore = (1 - completionRate) * 100
	} else {
		completionInverseScore = unknownCompletionScore
	}

	return weightDistance*distanceScore +
		weightElevation*elevationScore +
		weightGradient*gradientScore +
		weightCompletionInverse*completionInverseScore
}

// GradeFor buckets a numeric score into a Grade.
func GradeFor(score float64) Grade {
	switch {
	case score < 33:
		return Easy
	case score < 66:
		return Medium
	default:
		return Hard
	}
}
