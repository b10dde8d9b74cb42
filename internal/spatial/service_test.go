package spatial

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/trace"
)

func TestBuildHeatmap_DistinctRunsPerCellNotPerVertex(t *testing.T) {
	runID := uuid.New()
	// Two vertices of the same run land in the same grid cell; it must
	// count once, not twice.
	route := RunRoute{
		RunRecordID: runID,
		Coordinates: []trace.Coordinate{
			{Lat: 37.50001, Lng: 127.00001},
			{Lat: 37.50002, Lng: 127.00002},
		},
	}

	cells, dropped := buildHeatmap([]RunRoute{route}, maxHeatmapCells)
	require.Zero(t, dropped)
	require.Len(t, cells, 1)
	assert.Equal(t, 1, cells[0].Count)
}

func TestBuildHeatmap_CountsDistinctRunsThroughSameCell(t *testing.T) {
	// Three different runs all pass through the same grid cell.
	var routes []RunRoute
	for i := 0; i < 3; i++ {
		routes = append(routes, RunRoute{
			RunRecordID: uuid.New(),
			Coordinates: []trace.Coordinate{{Lat: 37.5, Lng: 127.0}},
		})
	}

	cells, _ := buildHeatmap(routes, maxHeatmapCells)
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].Count)
}

func TestBuildHeatmap_SortedByCountDescending(t *testing.T) {
	hot := RunRoute{RunRecordID: uuid.New(), Coordinates: []trace.Coordinate{{Lat: 37.5, Lng: 127.0}}}
	also := RunRoute{RunRecordID: uuid.New(), Coordinates: []trace.Coordinate{{Lat: 37.5, Lng: 127.0}}}
	cold := RunRoute{RunRecordID: uuid.New(), Coordinates: []trace.Coordinate{{Lat: 38.0, Lng: 128.0}}}

	cells, _ := buildHeatmap([]RunRoute{hot, also, cold}, maxHeatmapCells)
	require.Len(t, cells, 2)
	assert.Equal(t, 2, cells[0].Count)
	assert.Equal(t, 1, cells[1].Count)
}

func TestBuildHeatmap_CapsOutputAndReportsDropped(t *testing.T) {
	var routes []RunRoute
	for i := 0; i < 5; i++ {
		routes = append(routes, RunRoute{
			RunRecordID: uuid.New(),
			Coordinates: []trace.Coordinate{{Lat: 37.0 + float64(i)*0.01, Lng: 127.0}},
		})
	}

	cells, dropped := buildHeatmap(routes, 2)
	assert.Len(t, cells, 2)
	assert.Equal(t, 3, dropped)
}

func TestBuildHeatmap_NoTwoCellsShareRoundedCoordinate(t *testing.T) {
	var routes []RunRoute
	for i := 0; i < 50; i++ {
		routes = append(routes, RunRoute{
			RunRecordID: uuid.New(),
			Coordinates: []trace.Coordinate{{Lat: 37.0 + float64(i)*0.0001, Lng: 127.0}},
		})
	}

	cells, _ := buildHeatmap(routes, maxHeatmapCells)
	seen := make(map[[2]float64]bool)
	for _, c := range cells {
		key := [2]float64{roundTo6(c.Lat), roundTo6(c.Lng)}
		require.False(t, seen[key], "duplicate rounded cell coordinate")
		seen[key] = true
	}
}

func roundTo6(v float64) float64 {
	const scale = 1e6
	return float64(int64(v*scale+0.5)) / scale
}
