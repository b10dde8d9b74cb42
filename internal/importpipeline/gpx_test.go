package importpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1">
  <trk>
    <trkseg>
      <trkpt lat="37.5000" lon="127.0000">
        <ele>50.0</ele>
        <time>2026-01-01T09:00:00Z</time>
      </trkpt>
      <trkpt lat="37.5010" lon="127.0010">
        <ele>52.5</ele>
        <time>2026-01-01T09:00:30Z</time>
      </trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestParseGPX_OrderedTrackPoints(t *testing.T) {
	points, err := parseGPX([]byte(sampleGPX))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.InDelta(t, 37.5000, points[0].Lat, 1e-9)
	assert.InDelta(t, 127.0000, points[0].Lng, 1e-9)
	assert.InDelta(t, 50.0, points[0].Alt, 1e-9)
	assert.Equal(t, "2026-01-01T09:00:30Z", points[1].Timestamp.Format("2006-01-02T15:04:05Z"))
}

func TestParseGPX_RejectsOutOfRangeCoordinate(t *testing.T) {
	bad := `<gpx><trk><trkseg><trkpt lat="200.0" lon="127.0"></trkpt></trkseg></trk></gpx>`
	_, err := parseGPX([]byte(bad))
	require.Error(t, err)
}

func TestParseGPX_RejectsDoctype(t *testing.T) {
	bad := `<?xml version="1.0"?><!DOCTYPE gpx [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><gpx></gpx>`
	_, err := parseGPX([]byte(bad))
	require.Error(t, err)
}

func TestParseGPX_EmptyDocument_ReturnsNoPoints(t *testing.T) {
	points, err := parseGPX([]byte(`<gpx><trk><trkseg></trkseg></trk></gpx>`))
	require.NoError(t, err)
	assert.Empty(t, points)
}
