package exposure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stormrisk/internal/boundary"
	"github.com/vk/stormrisk/internal/gdacs"
	"github.com/vk/stormrisk/internal/geotiff"
	"github.com/vk/stormrisk/internal/testutil"
)

var columns = []string{"ADM2_PCODE", "ADM2_EN"}

// fixtureRaster is a 20x10 grid covering x 0..20, y 0..10, every cell
// holding 2 people.
func fixtureRaster(t *testing.T) *geotiff.Raster {
	t.Helper()
	values := make([]float64, 20*10)
	for i := range values {
		values[i] = 2
	}
	r, err := geotiff.Decode(testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:   20,
		Height:  10,
		Values:  values,
		OriginX: 0,
		OriginY: 10,
		Scale:   1,
		NoData:  -9999,
	}))
	require.NoError(t, err)
	return r
}

// fixtureUnits splits the grid into a west and an east square of 100 cells
// each.
func fixtureUnits(t *testing.T) *boundary.Set {
	t.Helper()
	dir := t.TempDir()
	archive := testutil.BoundaryZip(t, dir, "adm2", columns, []testutil.ZipUnit{
		{Attrs: []string{"W1", "West"}, Ring: [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}},
		{Attrs: []string{"E1", "East"}, Ring: [][2]float64{{10, 0}, {20, 0}, {20, 10}, {10, 10}}},
	})
	set, err := boundary.LoadZip(context.Background(), archive, "adm2", columns)
	require.NoError(t, err)
	return set
}

// fixtureBands nests three square buffers around (5,5), all inside the
// west unit.
func fixtureBands(t *testing.T) []gdacs.Band {
	t.Helper()
	data := testutil.CycloneGeoJSON(t, []testutil.CycloneFeature{
		{Label: "60 km/h", Geometry: testutil.Square(5, 5, 3)},
		{Label: "90 km/h", Geometry: testutil.Square(5, 5, 2)},
		{Label: "120 km/h", Geometry: testutil.Square(5, 5, 1)},
	})
	bands, err := gdacs.ParseBands(context.Background(), data)
	require.NoError(t, err)
	return bands
}

func TestJoinPopulation(t *testing.T) {
	join, err := JoinPopulation(context.Background(), fixtureRaster(t), fixtureUnits(t), 4)
	require.NoError(t, err)

	// 100 cells of 2 people in each unit.
	assert.Equal(t, 200.0, join.Total(0))
	assert.Equal(t, 200.0, join.Total(1))
}

func TestBandExposure(t *testing.T) {
	units := fixtureUnits(t)
	join, err := JoinPopulation(context.Background(), fixtureRaster(t), units, 4)
	require.NoError(t, err)

	res, err := join.BandExposure(context.Background(), fixtureBands(t), 4)
	require.NoError(t, err)

	assert.Equal(t, columns, res.Columns)
	assert.Equal(t, []float64{60, 90, 120}, res.Bands)

	// The 120 buffer spans 2x2 centroids, the 90 buffer 4x4, the 60 buffer
	// 6x6; strongest-band attribution makes them disjoint.
	assert.Equal(t, 8.0, res.BandTotals[120])
	assert.Equal(t, 24.0, res.BandTotals[90])
	assert.Equal(t, 40.0, res.BandTotals[60])

	require.Len(t, res.Rows, 2)

	west := res.Rows[0]
	assert.Equal(t, []string{"W1", "West"}, west.Attributes)
	assert.Equal(t, 200.0, west.Total)
	assert.Equal(t, map[float64]float64{60: 40, 90: 24, 120: 8}, west.People)
	assert.Equal(t, map[float64]float64{60: 20, 90: 12, 120: 4}, west.Percent)

	east := res.Rows[1]
	assert.Equal(t, []string{"E1", "East"}, east.Attributes)
	assert.Equal(t, 200.0, east.Total)
	assert.Empty(t, east.People, "the cyclone never touches the east unit")
	assert.Empty(t, east.Percent)
}

func TestBandExposureSingleWorkerMatchesConcurrent(t *testing.T) {
	units := fixtureUnits(t)

	serialJoin, err := JoinPopulation(context.Background(), fixtureRaster(t), units, 1)
	require.NoError(t, err)
	serial, err := serialJoin.BandExposure(context.Background(), fixtureBands(t), 1)
	require.NoError(t, err)

	concurrentJoin, err := JoinPopulation(context.Background(), fixtureRaster(t), units, 8)
	require.NoError(t, err)
	concurrent, err := concurrentJoin.BandExposure(context.Background(), fixtureBands(t), 8)
	require.NoError(t, err)

	assert.Equal(t, serial.BandTotals, concurrent.BandTotals)
	assert.Equal(t, serial.Rows, concurrent.Rows)
}

func TestJoinPopulationCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := JoinPopulation(ctx, fixtureRaster(t), fixtureUnits(t), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
