package importpipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToPoint_SemicircleConversion(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	// 37.5 degrees north as a semicircle value: 37.5 / semicircleToDegree.
	latSemi := int32(37.5 / semicircleToDegree)
	lngSemi := int32(127.0 / semicircleToDegree)

	p, ok := recordToPoint(ts, latSemi, lngSemi, fitInvalidU16, fitInvalidU32, fitInvalidU16, fitInvalidU32, fitInvalidU8)
	require.True(t, ok)
	assert.InDelta(t, 37.5, p.Lat, 1e-4)
	assert.InDelta(t, 127.0, p.Lng, 1e-4)
	assert.Zero(t, p.Alt)
	assert.Nil(t, p.Speed)
	assert.Nil(t, p.HeartRate)
}

func TestRecordToPoint_PrefersEnhancedFieldsOverPlain(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	latSemi := int32(37.5 / semicircleToDegree)
	lngSemi := int32(127.0 / semicircleToDegree)

	// enhanced_altitude encodes 100m, plain altitude encodes a different
	// (wrong) value; enhanced must win.
	enhancedAlt := uint32((100 + 500) * 5)
	plainAlt := uint16((10 + 500) * 5)
	enhancedSpeed := uint32(3500) // 3.5 m/s
	plainSpeed := uint16(1000)    // 1.0 m/s

	p, ok := recordToPoint(ts, latSemi, lngSemi, plainAlt, enhancedAlt, plainSpeed, enhancedSpeed, 150)
	require.True(t, ok)
	assert.InDelta(t, 100.0, p.Alt, 1e-9)
	require.NotNil(t, p.Speed)
	assert.InDelta(t, 3.5, *p.Speed, 1e-9)
	require.NotNil(t, p.HeartRate)
	assert.Equal(t, 150, *p.HeartRate)
}

func TestRecordToPoint_InvalidPositionRejected(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	_, ok := recordToPoint(ts, fitInvalidPos, fitInvalidPos, fitInvalidU16, fitInvalidU32, fitInvalidU16, fitInvalidU32, fitInvalidU8)
	assert.False(t, ok)
}

func TestRecordToPoint_ZeroTimestampRejected(t *testing.T) {
	_, ok := recordToPoint(time.Time{}, 0, 0, fitInvalidU16, fitInvalidU32, fitInvalidU16, fitInvalidU32, fitInvalidU8)
	assert.False(t, ok)
}

func TestParseFIT_EmptyData_Errors(t *testing.T) {
	_, err := parseFIT(nil)
	require.Error(t, err)
}
