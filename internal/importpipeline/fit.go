package importpipeline

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"runcore/internal/trace"
)

// FIT position and measurement invalid sentinels, per the Garmin FIT
// profile and FitGlue's own record parsing (fit_parser/parser.go).
const (
	fitInvalidU8      = 0xFF
	fitInvalidU16     = 0xFFFF
	fitInvalidU32     = 0xFFFFFFFF
	fitInvalidPos     = 0x7FFFFFFF
	semicircleToDegree = 180.0 / 2147483648.0 // 180 / 2^31
)

// parseFIT decodes record messages out of a FIT activity file (spec §4.3
// step 2). Positions are stored as semicircles and converted with
// × 180/2^31; enhanced_altitude/enhanced_speed are preferred over their
// narrower counterparts when present.
func parseFIT(data []byte) ([]trace.Point, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("fit: empty file")
	}

	dec := decoder.New(bytes.NewReader(data))

	var points []trace.Point
	for dec.Next() {
		fitData, err := dec.Decode()
		if err != nil {
			return nil, fmt.Errorf("fit: decode: %w", err)
		}
		for _, msg := range fitData.Messages {
			if msg.Num != typedef.MesgNumRecord {
				continue
			}
			if p, ok := parseFITRecord(&msg); ok {
				points = append(points, p)
			}
		}
	}

	return points, nil
}

func parseFITRecord(msg *proto.Message) (trace.Point, bool) {
	record := mesgdef.NewRecord(msg)
	return recordToPoint(
		record.Timestamp, record.PositionLat, record.PositionLong,
		record.Altitude, record.EnhancedAltitude,
		record.Speed, record.EnhancedSpeed,
		record.HeartRate,
	)
}

// recordToPoint is the pure sentinel-handling and unit-conversion core of
// FIT record parsing, isolated from the mesgdef decode step so it can be
// exercised directly in tests.
func recordToPoint(
	timestamp time.Time,
	positionLat, positionLong int32,
	altitude uint16, enhancedAltitude uint32,
	speed uint16, enhancedSpeed uint32,
	heartRate uint8,
) (trace.Point, bool) {
	if timestamp.IsZero() {
		return trace.Point{}, false
	}
	if positionLat == fitInvalidPos || positionLong == fitInvalidPos {
		return trace.Point{}, false
	}

	lat := float64(positionLat) * semicircleToDegree
	lng := float64(positionLong) * semicircleToDegree
	if !validCoordinate(lat, lng) {
		return trace.Point{}, false
	}

	p := trace.Point{Lat: lat, Lng: lng, Timestamp: timestamp}

	switch {
	case enhancedAltitude != fitInvalidU32:
		p.Alt = float64(enhancedAltitude)/5 - 500
	case altitude != fitInvalidU16:
		p.Alt = float64(altitude)/5 - 500
	}

	switch {
	case enhancedSpeed != fitInvalidU32:
		v := float64(enhancedSpeed) / 1000
		p.Speed = &v
	case speed != fitInvalidU16:
		v := float64(speed) / 1000
		p.Speed = &v
	}

	if heartRate != fitInvalidU8 {
		hr := int(heartRate)
		p.HeartRate = &hr
	}

	return p, true
}
