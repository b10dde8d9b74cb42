// Package trace reduces an ordered stream of GPS points to distance,
// duration, pace, speed, elevation, and per-kilometer splits (spec §4.2).
// It is a pure function package: no I/O, no database handle. Both the live
// session-recovery path and the file/third-party import pipeline call it.
package trace

import (
	"math"
	"time"

	"runcore/internal/geo"
)

// elevationHysteresisM is the minimum altitude delta that counts as real
// elevation change rather than GPS jitter.
const elevationHysteresisM = 2.0

// splitDistanceM is the distance boundary at which a new split is emitted.
const splitDistanceM = 1000.0

// Point is one sample in the trace. Speed and HeartRate are optional; Alt
// of exactly 0 is treated as a missing-altitude sentinel, matching how
// source GPS devices encode "no fix".
type Point struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Alt       float64    `json:"alt"`
	Timestamp time.Time  `json:"timestamp"`
	Speed     *float64   `json:"speed,omitempty"`
	HeartRate *int       `json:"heart_rate,omitempty"`
}

// Split is a per-kilometer segment of a derived activity.
type Split struct {
	SplitNumber     int     `json:"split_number"`
	DistanceM       float64 `json:"distance_meters"`
	DurationS       int     `json:"duration_seconds"`
	PaceSPerKm      int     `json:"pace_seconds_per_km"`
	ElevationDeltaM float64 `json:"elevation_delta_m"`
}

// Coordinate is one route vertex (longitude, latitude, altitude). It
// encodes to JSON as an object with lng, lat and alt keys, not as a
// GeoJSON [lng, lat, alt] array.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt"`
}

// DerivedActivity is the output of Derive.
type DerivedActivity struct {
	DistanceM        float64
	DurationS        int
	AvgPaceSPerKm    *int
	BestPaceSPerKm   *int
	MaxSpeedMPS      float64
	AvgSpeedMPS      float64
	ElevationGainM   float64
	ElevationLossM   float64
	Splits           []Split
	RouteCoordinates []Coordinate
	ElevationProfile []float64
}

// Derive computes a DerivedActivity from an ordered point stream. Empty or
// single-point input yields a zero-filled result, per contract.
func Derive(points []Point) DerivedActivity {
	result := DerivedActivity{
		RouteCoordinates: routeCoordinates(points),
		ElevationProfile: elevationProfile(points),
	}

	if len(points) < 2 {
		return result
	}

	result.DistanceM = totalDistance(points)
	result.DurationS = int(points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Seconds())

	if result.DistanceM > 0 {
		pace := int(float64(result.DurationS) * 1000 / result.DistanceM)
		result.AvgPaceSPerKm = &pace
	}

	result.MaxSpeedMPS = maxSpeed(points)
	if result.DurationS > 0 && result.DistanceM > 0 {
		result.AvgSpeedMPS = result.DistanceM / float64(result.DurationS)
	}

	result.ElevationGainM, result.ElevationLossM = elevationChange(points)

	result.Splits = splits(points)
	if len(result.Splits) > 0 {
		best := result.Splits[0].PaceSPerKm
		for _, s := range result.Splits[1:] {
			if s.PaceSPerKm < best {
				best = s.PaceSPerKm
			}
		}
		result.BestPaceSPerKm = &best
	}

	return result
}

func totalDistance(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		a := geo.Point{Lat: points[i-1].Lat, Lng: points[i-1].Lng}
		b := geo.Point{Lat: points[i].Lat, Lng: points[i].Lng}
		total += geo.HaversineDistance(a, b)
	}
	return total
}

func maxSpeed(points []Point) float64 {
	var max float64
	for _, p := range points {
		if p.Speed != nil && *p.Speed > max {
			max = *p.Speed
		}
	}
	return max
}

// elevationChange applies a single-pass hysteresis accumulator: the
// reference altitude only moves when a delta clears elevationHysteresisM,
// which suppresses GPS jitter. Points with altitude exactly 0 are treated
// as missing and skipped entirely.
func elevationChange(points []Point) (gain, loss float64) {
	hasRef := false
	var ref float64

	for _, p := range points {
		if p.Alt == 0 {
			continue
		}
		if !hasRef {
			ref = p.Alt
			hasRef = true
			continue
		}

		delta := p.Alt - ref
		if math.Abs(delta) < elevationHysteresisM {
			continue
		}
		if delta > 0 {
			gain += delta
		} else {
			loss += -delta
		}
		ref = p.Alt
	}

	return gain, loss
}

// splits walks the point stream, emitting a split every time accumulated
// distance since the last boundary reaches splitDistanceM. ElevationDeltaM
// is the raw endpoint-to-endpoint altitude difference over the segment
// (points[i].Alt - points[segStartIdx].Alt), not a re-run of the
// whole-activity hysteresis filter: the two measure different things, and
// per-split hysteresis would need its own reference state that resets
// arbitrarily at each 1km boundary instead of at real direction changes.
func splits(points []Point) []Split {
	var result []Split

	segStartIdx := 0
	var segDistance float64

	for i := 1; i < len(points); i++ {
		a := geo.Point{Lat: points[i-1].Lat, Lng: points[i-1].Lng}
		b := geo.Point{Lat: points[i].Lat, Lng: points[i].Lng}
		segDistance += geo.HaversineDistance(a, b)

		if segDistance >= splitDistanceM {
			durationS := int(points[i].Timestamp.Sub(points[segStartIdx].Timestamp).Seconds())
			pace := durationS // segment is ~1km, so pace == duration

			var elevDelta float64
			if points[i].Alt != 0 && points[segStartIdx].Alt != 0 {
				elevDelta = points[i].Alt - points[segStartIdx].Alt
			}

			result = append(result, Split{
				SplitNumber:     len(result) + 1,
				DistanceM:       segDistance,
				DurationS:       durationS,
				PaceSPerKm:      pace,
				ElevationDeltaM: elevDelta,
			})

			segStartIdx = i
			segDistance = 0
		}
	}

	return result
}

// RouteCoordinates exposes the [lng,lat,alt] projection for callers that
// need it without a full Derive pass (e.g. session recovery, which
// concatenates chunk points but trusts chunk-reported scalars).
func RouteCoordinates(points []Point) []Coordinate { return routeCoordinates(points) }

// ElevationProfile exposes the altitude-sequence projection for callers
// that need it without a full Derive pass.
func ElevationProfile(points []Point) []float64 { return elevationProfile(points) }

func routeCoordinates(points []Point) []Coordinate {
	coords := make([]Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, Coordinate{Lng: p.Lng, Lat: p.Lat, Alt: p.Alt})
	}
	return coords
}

func elevationProfile(points []Point) []float64 {
	profile := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Alt == 0 {
			continue
		}
		profile = append(profile, p.Alt)
	}
	return profile
}
