package boundary

import (
	"fmt"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// toMultiPolygon converts a shapefile polygon record into an orb geometry.
// Shapefile rings are grouped by winding order: outer rings run clockwise,
// holes counter-clockwise, and each hole belongs to the most recent outer.
func toMultiPolygon(shape shp.Shape) (orb.MultiPolygon, error) {
	switch s := shape.(type) {
	case *shp.Polygon:
		return assembleRings(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return assembleRings(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return assembleRings(s.Parts, s.Points), nil
	case *shp.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected shape type %T, want polygon", shape)
	}
}

func assembleRings(parts []int32, points []shp.Point) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		ring := toRing(points[start:end])
		if len(ring) < 4 {
			continue // degenerate ring
		}

		// Clockwise rings (negative shoelace area with north-up axes)
		// open a new polygon; the rest are holes in the current one.
		if signedArea(ring) < 0 || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
		} else {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
		}
	}
	return mp
}

// toRing copies shapefile points into a closed orb.Ring.
func toRing(pts []shp.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{p.X, p.Y})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// signedArea is the shoelace area of the ring: positive for counter-clockwise
// rings, negative for clockwise ones.
func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}
