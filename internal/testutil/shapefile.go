package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
)

// ZipUnit is one polygon record for a fixture boundary layer: its attribute
// values (aligned with the columns passed to BoundaryZip) and its outer
// ring as (x, y) pairs.
type ZipUnit struct {
	Attrs []string
	Ring  [][2]float64
}

// BoundaryZip writes a small shapefile layer with string attribute columns
// into a zip archive under dir, and returns the archive path. Rings are
// reoriented clockwise, the shapefile convention for outer rings.
func BoundaryZip(t *testing.T, dir, layer string, columns []string, units []ZipUnit) string {
	t.Helper()

	shpPath := filepath.Join(dir, layer+".shp")
	w, err := shp.Create(shpPath, shp.POLYGON)
	if err != nil {
		t.Fatalf("BoundaryZip: create shapefile: %v", err)
	}

	fields := make([]shp.Field, len(columns))
	for i, col := range columns {
		fields[i] = shp.StringField(col, 60)
	}
	if err := w.SetFields(fields); err != nil {
		t.Fatalf("BoundaryZip: set fields: %v", err)
	}

	for row, u := range units {
		w.Write(polygonShape(t, u.Ring))
		for fi, val := range u.Attrs {
			if err := w.WriteAttribute(row, fi, val); err != nil {
				t.Fatalf("BoundaryZip: write attribute: %v", err)
			}
		}
	}
	w.Close()

	archive := filepath.Join(dir, layer+".zip")
	zf, err := os.Create(archive)
	if err != nil {
		t.Fatalf("BoundaryZip: create archive: %v", err)
	}
	zw := zip.NewWriter(zf)
	// The go-shp writer drops the dot when it names the attribute file
	// (layer+"dbf"), so the source name and the archive entry name differ.
	parts := []struct{ src, entry string }{
		{layer + ".shp", layer + ".shp"},
		{layer + ".shx", layer + ".shx"},
		{layer + "dbf", layer + ".dbf"},
	}
	for _, p := range parts {
		data, err := os.ReadFile(filepath.Join(dir, p.src))
		if err != nil {
			t.Fatalf("BoundaryZip: read %s: %v", p.src, err)
		}
		entry, err := zw.Create(p.entry)
		if err != nil {
			t.Fatalf("BoundaryZip: add %s: %v", p.entry, err)
		}
		if _, err := entry.Write(data); err != nil {
			t.Fatalf("BoundaryZip: write %s: %v", p.entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("BoundaryZip: finish archive: %v", err)
	}
	if err := zf.Close(); err != nil {
		t.Fatalf("BoundaryZip: close archive: %v", err)
	}
	return archive
}

// polygonShape builds a single-ring shapefile polygon with its bounding box
// filled in.
func polygonShape(t *testing.T, ring [][2]float64) *shp.Polygon {
	t.Helper()
	if len(ring) < 3 {
		t.Fatalf("polygonShape: ring needs at least 3 points")
	}

	// Close the ring if the fixture left it open.
	if ring[0] != ring[len(ring)-1] {
		ring = append(append([][2]float64{}, ring...), ring[0])
	}
	// Outer rings are clockwise (negative shoelace area with north-up axes).
	var area float64
	for i := 0; i < len(ring)-1; i++ {
		area += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	if area > 0 {
		for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
			ring[i], ring[j] = ring[j], ring[i]
		}
	}

	pts := make([]shp.Point, len(ring))
	box := shp.Box{MinX: ring[0][0], MinY: ring[0][1], MaxX: ring[0][0], MaxY: ring[0][1]}
	for i, p := range ring {
		pts[i] = shp.Point{X: p[0], Y: p[1]}
		box.MinX = min(box.MinX, p[0])
		box.MinY = min(box.MinY, p[1])
		box.MaxX = max(box.MaxX, p[0])
		box.MaxY = max(box.MaxY, p[1])
	}

	return &shp.Polygon{
		Box:       box,
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
	}
}
