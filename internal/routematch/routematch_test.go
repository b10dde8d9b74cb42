package routematch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// straightCourse builds a straight 1 km east-bound line, matching spec
// §8 scenario 4/5 (starting at 37.5N, spaced ~10m per vertex along
// longitude at that latitude).
func straightCourse() []CoursePoint {
	const lat = 37.5
	const steps = 100
	const totalM = 1000.0
	points := make([]CoursePoint, steps+1)
	for i := 0; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		dLng := metersToLngDegrees(totalM*frac, lat)
		points[i] = CoursePoint{Lat: lat, Lng: dLng}
	}
	return points
}

func metersToLngDegrees(m, lat float64) float64 {
	// Inverse of the projection used in internal/geo, good enough for
	// building deterministic test fixtures.
	const earthRadiusM = 6371000.0
	radLat := lat * math.Pi / 180
	return m / (earthRadiusM * math.Cos(radLat)) * 180 / math.Pi
}

func TestMatch_OffsetWithinThreshold_Completes(t *testing.T) {
	course := straightCourse()

	runner := make([]RunnerPoint, 101)
	for i, cp := range course {
		runner[i] = RunnerPoint{Lat: cp.Lat + metersToLatDegrees(40), Lng: cp.Lng}
	}

	result := Match(course, runner)

	assert.True(t, result.IsCompleted)
	assert.InDelta(t, 100.0, result.MatchPercent, 0.01)
	assert.InDelta(t, 40.0, result.MaxDeviationM, 1.0)
}

func TestMatch_OffsetBeyondThreshold_Misses(t *testing.T) {
	course := straightCourse()

	runner := make([]RunnerPoint, 101)
	for i, cp := range course {
		runner[i] = RunnerPoint{Lat: cp.Lat + metersToLatDegrees(80), Lng: cp.Lng}
	}

	result := Match(course, runner)

	assert.False(t, result.IsCompleted)
	assert.InDelta(t, 0.0, result.MatchPercent, 0.01)
}

func TestMatch_EmptyRunnerStream_ReturnsZeroResult(t *testing.T) {
	result := Match(straightCourse(), nil)
	assert.False(t, result.IsCompleted)
	assert.Zero(t, result.MatchPercent)
}

func TestMatch_DegenerateCourse_ReturnsZeroResult(t *testing.T) {
	result := Match([]CoursePoint{{Lat: 1, Lng: 1}}, []RunnerPoint{{Lat: 1, Lng: 1}})
	assert.False(t, result.IsCompleted)
}

func metersToLatDegrees(m float64) float64 {
	const earthRadiusM = 6371000.0
	return m / earthRadiusM * 180 / math.Pi
}
