package testutil

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CycloneFeature is one feature for a fixture GDACS response.
type CycloneFeature struct {
	Label    string
	Geometry orb.Geometry
}

// CycloneGeoJSON renders a GDACS-style feature collection. Each feature gets
// the given polygonlabel property, matching the field the band parser keys
// off.
func CycloneGeoJSON(t *testing.T, features []CycloneFeature) []byte {
	t.Helper()

	fc := geojson.NewFeatureCollection()
	for _, cf := range features {
		f := geojson.NewFeature(cf.Geometry)
		f.Properties["polygonlabel"] = cf.Label
		fc.Append(f)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("CycloneGeoJSON: marshal: %v", err)
	}
	return data
}

// SquareRing returns a closed clockwise square ring centred on (cx, cy) with
// the given half-side length.
func SquareRing(cx, cy, half float64) orb.Ring {
	return orb.Ring{
		{cx - half, cy - half},
		{cx - half, cy + half},
		{cx + half, cy + half},
		{cx + half, cy - half},
		{cx - half, cy - half},
	}
}

// Square returns a square polygon centred on (cx, cy).
func Square(cx, cy, half float64) orb.Polygon {
	return orb.Polygon{SquareRing(cx, cy, half)}
}
