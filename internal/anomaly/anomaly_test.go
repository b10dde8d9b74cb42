package anomaly

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_10kmOverLimit_Flags(t *testing.T) {
	// spec §8 scenario 6: 10 km in 25 minutes -> avg_speed 6.67 m/s,
	// exceeds the 10km+ bracket limit of 6.3.
	result := Detect(Summary{
		DistanceM:   10000,
		AvgSpeedMPS: 10000.0 / (25 * 60),
		MaxSpeedMPS: 7.0,
	})

	require.True(t, result.IsFlagged)
	assert.Contains(t, result.FlagReason, "10km+")
	assert.InDelta(t, 0.4, result.Confidence, 1e-9)
}

func TestDetect_WithinLimits_DoesNotFlag(t *testing.T) {
	pace := 300
	result := Detect(Summary{
		DistanceM:      10000,
		AvgSpeedMPS:    3.0,
		MaxSpeedMPS:    5.0,
		BestPaceSPerKm: &pace,
		SplitPaces:     []int{300, 310, 295},
	})

	assert.False(t, result.IsFlagged)
	assert.Zero(t, result.Confidence)
}

func TestDetect_MultipleReasons_CapsConfidenceAndMessage(t *testing.T) {
	pace := 90
	result := Detect(Summary{
		DistanceM:      10000,
		AvgSpeedMPS:    9.0,
		MaxSpeedMPS:    13.0,
		BestPaceSPerKm: &pace,
		SplitPaces:     []int{90, 95},
	})

	require.True(t, result.IsFlagged)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Equal(t, 2, strings.Count(result.FlagReason, "; "), "message lists at most three reasons")
}
