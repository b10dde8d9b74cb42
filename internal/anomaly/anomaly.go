// Package anomaly flags physically impossible runs from a finalized
// activity summary (spec §4.7). It is a pure function package.
package anomaly

import "fmt"

// speedBracket is a distance-indexed ceiling on average speed.
type speedBracket struct {
	minDistanceM float64
	limitMPS     float64
	label        string
}

// brackets are checked strictest-applicable-first: pick the bracket with
// the largest minDistanceM that is still <= the run's distance.
var brackets = []speedBracket{
	{minDistanceM: 42195, limitMPS: 5.8, label: "marathon+"},
	{minDistanceM: 21097, limitMPS: 6.0, label: "half-marathon+"},
	{minDistanceM: 10000, limitMPS: 6.3, label: "10km+"},
	{minDistanceM: 5000, limitMPS: 6.8, label: "5km+"},
	{minDistanceM: 1000, limitMPS: 7.5, label: "1km+"},
	{minDistanceM: 0, limitMPS: 10.5, label: "short"},
}

const (
	maxSpeedLimitMPS    = 12.5
	minPaceSPerKm       = 120
	confidencePerReason = 0.4
	maxReasonsInMessage = 3
)

// Summary is the subset of a finalized RunRecord the detector needs.
type Summary struct {
	DistanceM      float64
	AvgSpeedMPS    float64
	MaxSpeedMPS    float64
	BestPaceSPerKm *int
	SplitPaces     []int // pace_s_per_km of each split
}

// Result is the detector's verdict.
type Result struct {
	IsFlagged  bool
	FlagReason string
	Confidence float64
}

// Detect evaluates a finalized summary against the bracket, max-speed and
// pace thresholds, flagging when any condition is met.
func Detect(s Summary) Result {
	var reasons []string

	if limit, label, ok := bracketLimit(s.DistanceM); ok && s.AvgSpeedMPS > limit {
		reasons = append(reasons, fmt.Sprintf("average speed %.2f m/s exceeds %s limit of %.2f m/s", s.AvgSpeedMPS, label, limit))
	}

	if s.MaxSpeedMPS > maxSpeedLimitMPS {
		reasons = append(reasons, fmt.Sprintf("max speed %.2f m/s exceeds %.1f m/s", s.MaxSpeedMPS, maxSpeedLimitMPS))
	}

	if s.BestPaceSPerKm != nil && *s.BestPaceSPerKm < minPaceSPerKm {
		reasons = append(reasons, fmt.Sprintf("best pace %d s/km is under %d s/km", *s.BestPaceSPerKm, minPaceSPerKm))
	}

	for _, pace := range s.SplitPaces {
		if pace < minPaceSPerKm {
			reasons = append(reasons, fmt.Sprintf("split pace %d s/km is under %d s/km", pace, minPaceSPerKm))
			break
		}
	}

	if len(reasons) == 0 {
		return Result{}
	}

	confidence := float64(len(reasons)) * confidencePerReason
	if confidence > 1.0 {
		confidence = 1.0
	}

	shown := reasons
	if len(shown) > maxReasonsInMessage {
		shown = shown[:maxReasonsInMessage]
	}

	reason := shown[0]
	for _, r := range shown[1:] {
		reason += "; " + r
	}

	return Result{
		IsFlagged:  true,
		FlagReason: reason,
		Confidence: confidence,
	}
}

// bracketLimit picks the strictest bracket whose min-distance is <=
// distanceM.
func bracketLimit(distanceM float64) (limit float64, label string, ok bool) {
	for _, b := range brackets {
		if distanceM >= b.minDistanceM {
			return b.limitMPS, b.label, true
		}
	}
	return 0, "", false
}
