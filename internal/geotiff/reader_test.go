package geotiff

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stormrisk/internal/testutil"
)

func TestDecodeUncompressed(t *testing.T) {
	data := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:  3,
		Height: 2,
		Values: []float64{
			1, 2, 3,
			4, 5, 6,
		},
		OriginX: 45,
		OriginY: -15,
		Scale:   0.5,
		NoData:  -9999,
	})

	r, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Width)
	assert.Equal(t, 2, r.Height)

	v, ok := r.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = r.Value(2, 1)
	require.True(t, ok)
	assert.Equal(t, 6.0, v)

	_, ok = r.Value(3, 0)
	assert.False(t, ok, "out of range column")
	_, ok = r.Value(0, -1)
	assert.False(t, ok, "out of range row")
}

func TestDecodeDeflate(t *testing.T) {
	data := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:   2,
		Height:  2,
		Values:  []float64{10, 20, 30, 40},
		OriginX: 0,
		OriginY: 0,
		Scale:   1,
		NoData:  -9999,
		Deflate: true,
	})

	r, err := Decode(data)
	require.NoError(t, err)

	v, ok := r.Value(1, 1)
	require.True(t, ok)
	assert.Equal(t, 40.0, v)
}

func TestDecodeNoData(t *testing.T) {
	data := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:   2,
		Height:  1,
		Values:  []float64{7, math.NaN()},
		OriginX: 0,
		OriginY: 0,
		Scale:   1,
		NoData:  -9999,
	})

	r, err := Decode(data)
	require.NoError(t, err)

	_, ok := r.Value(1, 0)
	assert.False(t, ok, "nodata cell must not be a valid value")

	cells := r.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 7.0, cells[0].Value)
}

func TestCentroidsAndBound(t *testing.T) {
	data := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:   2,
		Height:  2,
		Values:  []float64{1, 1, 1, 1},
		OriginX: 40,
		OriginY: -10,
		Scale:   1,
		NoData:  -9999,
	})

	r, err := Decode(data)
	require.NoError(t, err)

	// Rows advance south: cell (0,0) sits half a cell right of and below
	// the top-left corner.
	assert.Equal(t, orb.Point{40.5, -10.5}, r.Centroid(0, 0))
	assert.Equal(t, orb.Point{41.5, -11.5}, r.Centroid(1, 1))

	b := r.Bound()
	assert.Equal(t, orb.Point{40, -12}, b.Min)
	assert.Equal(t, orb.Point{42, -10}, b.Max)
}

func TestOpenReadsFromDisk(t *testing.T) {
	data := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width:   1,
		Height:  1,
		Values:  []float64{123.5},
		OriginX: 0,
		OriginY: 0,
		Scale:   1,
		NoData:  -9999,
	})
	path := filepath.Join(t.TempDir(), "pop.tif")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	v, ok := r.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, 123.5, v)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.tif"))
	assert.ErrorContains(t, err, "failed to read raster file")
}

// assertGrid checks every cell of the decoded raster against want, where
// NaN entries mark nodata cells.
func assertGrid(t *testing.T, r *Raster, width, height int, want []float64) {
	t.Helper()
	require.Equal(t, width, r.Width)
	require.Equal(t, height, r.Height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			v, ok := r.Value(col, row)
			if math.IsNaN(want[row*width+col]) {
				assert.False(t, ok, "cell (%d,%d) must be nodata", col, row)
				continue
			}
			require.True(t, ok, "cell (%d,%d)", col, row)
			assert.Equal(t, want[row*width+col], v, "cell (%d,%d)", col, row)
		}
	}
}

func TestDecodeLayouts(t *testing.T) {
	// 5x3 so 2x2 tiles leave partial tiles on the right and bottom edges.
	values := []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, math.NaN(),
		11, 12, 13, 14, 15,
	}

	cases := []struct {
		name string
		opts testutil.TIFFOptions
	}{
		{"tiled", testutil.TIFFOptions{TileWidth: 2, TileLength: 2}},
		{"tiled deflate", testutil.TIFFOptions{TileWidth: 2, TileLength: 2, Deflate: true}},
		{"packbits strip", testutil.TIFFOptions{PackBits: true}},
		{"packbits tiled", testutil.TIFFOptions{TileWidth: 2, TileLength: 2, PackBits: true}},
		{"predictor strip", testutil.TIFFOptions{Sample: testutil.Uint16Sample, Predictor: true}},
		{"predictor deflate tiled", testutil.TIFFOptions{
			Sample: testutil.Int32Sample, Predictor: true, Deflate: true, TileWidth: 2, TileLength: 2,
		}},
		{"predictor packbits", testutil.TIFFOptions{
			Sample: testutil.Uint8Sample, Predictor: true, PackBits: true,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := tc.opts
			opts.Width, opts.Height = 5, 3
			opts.Values = values
			opts.Scale = 1
			opts.NoData = 255

			r, err := Decode(testutil.TIFFBytes(t, opts))
			require.NoError(t, err)
			assertGrid(t, r, 5, 3, values)
		})
	}
}

func TestDecodeSampleFormats(t *testing.T) {
	values := []float64{
		0, 1, 250,
		12, 100, math.NaN(),
	}

	cases := []struct {
		name   string
		sample testutil.SampleKind
	}{
		{"uint8", testutil.Uint8Sample},
		{"uint16", testutil.Uint16Sample},
		{"uint32", testutil.Uint32Sample},
		{"int16", testutil.Int16Sample},
		{"int32", testutil.Int32Sample},
		{"float64", testutil.Float64Sample},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Decode(testutil.TIFFBytes(t, testutil.TIFFOptions{
				Width: 3, Height: 2, Values: values, Scale: 1, NoData: 255,
				Sample: tc.sample,
			}))
			require.NoError(t, err)
			assertGrid(t, r, 3, 2, values)
		})
	}
}

func TestDecodeSignedSamples(t *testing.T) {
	// Negative elevations survive the signed arms, including through the
	// predictor.
	values := []float64{-5, -3, 0, 7}
	for _, sample := range []testutil.SampleKind{testutil.Int16Sample, testutil.Int32Sample} {
		r, err := Decode(testutil.TIFFBytes(t, testutil.TIFFOptions{
			Width: 4, Height: 1, Values: values, Scale: 1, NoData: -9999,
			Sample: sample, Predictor: true, Deflate: true,
		}))
		require.NoError(t, err)
		assertGrid(t, r, 4, 1, values)
	}
}

func TestDecodeRejections(t *testing.T) {
	valid := testutil.TIFFBytes(t, testutil.TIFFOptions{
		Width: 1, Height: 1, Values: []float64{1}, Scale: 1, NoData: -9999,
	})

	t.Run("short file", func(t *testing.T) {
		_, err := Decode([]byte("II"))
		assert.ErrorContains(t, err, "too short")
	})

	t.Run("bad byte order", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[0], data[1] = 'X', 'X'
		_, err := Decode(data)
		assert.ErrorContains(t, err, "byte order")
	})

	t.Run("bad magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[2] = 99
		_, err := Decode(data)
		assert.ErrorContains(t, err, "magic")
	})
}
