package testutil

import (
	"archive/zip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundaryZipArchiveEntries(t *testing.T) {
	archive := BoundaryZip(t, t.TempDir(), "adm2", []string{"ADM2_PCODE"}, []ZipUnit{
		{Attrs: []string{"W1"}, Ring: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}},
	})

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.NotZero(t, f.UncompressedSize64, "%s must not be empty", f.Name)
	}
	// The attribute file matters most: without adm2.dbf the zip reader has
	// no columns to select from.
	assert.ElementsMatch(t, []string{"adm2.shp", "adm2.shx", "adm2.dbf"}, names)
}
