package anomaly

import (
	"runcore/internal/ingest"
	"runcore/internal/trace"
)

// Adapter satisfies ingest.AnomalyDetector by projecting a RunRecord down
// to the Summary this package's pure Detect function needs.
type Adapter struct{}

// NewAdapter builds the ingest-facing anomaly detector.
func NewAdapter() Adapter { return Adapter{} }

// Detect implements ingest.AnomalyDetector.
func (Adapter) Detect(r ingest.RunRecord) (bool, string) {
	result := Detect(Summary{
		DistanceM:      r.DistanceM,
		AvgSpeedMPS:    r.AvgSpeedMPS,
		MaxSpeedMPS:    r.MaxSpeedMPS,
		BestPaceSPerKm: r.BestPaceSPerKm,
		SplitPaces:     splitPaces(r.Splits),
	})
	return result.IsFlagged, result.FlagReason
}

func splitPaces(splits []trace.Split) []int {
	paces := make([]int, len(splits))
	for i, s := range splits {
		paces[i] = s.PaceSPerKm
	}
	return paces
}
