package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistance_Degenerate(t *testing.T) {
	p := Point{Lat: 37.5, Lng: 127.0}
	assert.Equal(t, 0.0, HaversineDistance(p, p))
}

func TestHaversineDistance_KnownSpan(t *testing.T) {
	// Roughly 1 degree of latitude at the equator is ~111.19 km.
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 1, Lng: 0}
	d := HaversineDistance(a, b)
	assert.InDelta(t, 111195.0, d, 500.0)
}

func TestPointToSegmentDistance_OnSegment(t *testing.T) {
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 0.01}
	mid := Point{Lat: 0, Lng: 0.005}

	d := PointToSegmentDistance(mid, a, b)
	assert.InDelta(t, 0, d, 1.0)
}

func TestPointToSegmentDistance_OffsetPerpendicular(t *testing.T) {
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 0.01}
	// ~0.00036 degrees of latitude is close to 40m at the equator.
	offset := Point{Lat: 0.00036, Lng: 0.005}

	d := PointToSegmentDistance(offset, a, b)
	assert.InDelta(t, 40.0, d, 5.0)
}

func TestPointToSegmentDistance_DegenerateSegment(t *testing.T) {
	a := Point{Lat: 10, Lng: 10}
	p := Point{Lat: 10.001, Lng: 10}

	d := PointToSegmentDistance(p, a, a)
	require.Greater(t, d, 0.0)
}

func TestMengerCurvature_Straight(t *testing.T) {
	p1 := Point{Lat: 0, Lng: 0}
	p2 := Point{Lat: 0, Lng: 0.005}
	p3 := Point{Lat: 0, Lng: 0.01}

	c := MengerCurvature(p1, p2, p3)
	assert.InDelta(t, 0, c, 1e-9)
}

func TestMengerCurvature_Curved(t *testing.T) {
	p1 := Point{Lat: 0, Lng: 0}
	p2 := Point{Lat: 0.003, Lng: 0.003}
	p3 := Point{Lat: 0, Lng: 0.006}

	c := MengerCurvature(p1, p2, p3)
	assert.Greater(t, c, 0.001)
	assert.False(t, math.IsNaN(c))
}
