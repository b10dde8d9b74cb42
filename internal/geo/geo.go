// Package geo provides dependency-free geometric primitives shared by trace
// derivation and route matching: haversine distance, planar point-to-segment
// distance, and Menger curvature.
package geo

import "math"

// earthRadiusM is the mean Earth radius used for all haversine distances.
const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate, optionally carrying altitude.
type Point struct {
	Lat float64
	Lng float64
	Alt float64
}

// HaversineDistance returns the great-circle distance between a and b in
// meters. A degenerate pair (identical coordinates) returns 0.
func HaversineDistance(a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// MengerCurvature returns the Menger curvature of three consecutive points,
// 2 * triangle_area / (a*b*c), using haversine side lengths. Returns 0 when
// any side is degenerate (collinear or coincident points).
func MengerCurvature(p1, p2, p3 Point) float64 {
	a := HaversineDistance(p1, p2)
	b := HaversineDistance(p2, p3)
	c := HaversineDistance(p1, p3)

	if a == 0 || b == 0 || c == 0 {
		return 0
	}

	// Planar-equirectangular projection (valid for the short legs a
	// route segment spans) to compute the signed triangle area.
	area := triangleArea(p1, p2, p3)
	return 2 * math.Abs(area) / (a * b * c)
}

// triangleArea computes the area of the triangle formed by three points
// using an equirectangular projection centered on p1, scaled to meters.
func triangleArea(p1, p2, p3 Point) float64 {
	x1, y1 := projectMeters(p1, p1)
	x2, y2 := projectMeters(p2, p1)
	x3, y3 := projectMeters(p3, p1)
	return 0.5 * ((x2-x1)*(y3-y1) - (x3-x1)*(y2-y1))
}

// projectMeters projects p onto a local planar approximation centered at
// origin, in meters.
func projectMeters(p, origin Point) (x, y float64) {
	latRad := origin.Lat * math.Pi / 180
	x = (p.Lng - origin.Lng) * math.Pi / 180 * earthRadiusM * math.Cos(latRad)
	y = (p.Lat - origin.Lat) * math.Pi / 180 * earthRadiusM
	return x, y
}

// PointToSegmentDistance returns the distance in meters from p to the
// segment [a,b], using a planar projection suitable for short segments.
// For segment endpoints it falls back to haversine distance so long
// segments are not misrepresented by the local projection.
func PointToSegmentDistance(p, a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return HaversineDistance(p, a)
	}

	px, py := projectMeters(p, a)
	ax, ay := 0.0, 0.0
	bx, by := projectMeters(b, a)

	abx, aby := bx-ax, by-ay
	apx, apy := px-ax, py-ay

	abLenSq := abx*abx + aby*aby
	t := (apx*abx + apy*aby) / abLenSq
	if t <= 0 {
		return HaversineDistance(p, a)
	}
	if t >= 1 {
		return HaversineDistance(p, b)
	}

	closestX := ax + t*abx
	closestY := ay + t*aby

	dx := px - closestX
	dy := py - closestY
	return math.Sqrt(dx*dx + dy*dy)
}
