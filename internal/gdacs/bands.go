package gdacs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/vk/stormrisk/internal/ctxlog"
)

// speedUnit is the label suffix marking a wind-buffer feature.
const speedUnit = "km/h"

// Band is one wind-speed buffer: every polygon the event's wind reaches at
// the given speed. GDACS buffers are nested, so a stronger band's geometry
// lies inside every weaker one.
type Band struct {
	// Speed is the wind speed in km/h.
	Speed float64
	// Geometry unions every polygon feature labelled with this speed.
	Geometry orb.MultiPolygon

	bound orb.Bound
}

// Contains reports whether the point lies inside the buffer.
func (b *Band) Contains(pt orb.Point) bool {
	if !b.bound.Contains(pt) {
		return false
	}
	return planar.MultiPolygonContains(b.Geometry, pt)
}

// ParseBands extracts wind-speed buffers from a GDACS GeoJSON feature
// collection. Features are selected by a `polygonlabel` property carrying a
// km/h speed, e.g. "120 km/h"; everything else is dropped. The result is
// sorted ascending by speed.
func ParseBands(ctx context.Context, data []byte) ([]Band, error) {
	logger := ctxlog.FromContext(ctx)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GDACS GeoJSON: %w", err)
	}

	bySpeed := map[float64]orb.MultiPolygon{}
	for _, f := range fc.Features {
		label, ok := f.Properties["polygonlabel"].(string)
		if !ok || !strings.Contains(label, speedUnit) {
			continue
		}
		speed, err := parseSpeed(label)
		if err != nil {
			logger.Warn("Skipping wind buffer with unparseable label.", "label", label, "error", err)
			continue
		}

		switch g := f.Geometry.(type) {
		case orb.Polygon:
			bySpeed[speed] = append(bySpeed[speed], g)
		case orb.MultiPolygon:
			bySpeed[speed] = append(bySpeed[speed], g...)
		default:
			logger.Warn("Skipping wind buffer with non-polygon geometry.", "label", label, "type", geojson.NewGeometry(f.Geometry).Type)
		}
	}

	if len(bySpeed) == 0 {
		return nil, fmt.Errorf("GDACS response holds no wind-speed buffers")
	}

	bands := make([]Band, 0, len(bySpeed))
	for speed, geom := range bySpeed {
		bands = append(bands, Band{Speed: speed, Geometry: geom, bound: geom.Bound()})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].Speed < bands[j].Speed })
	return bands, nil
}

// parseSpeed turns a label like "90 km/h" into its numeric speed.
func parseSpeed(label string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(label, speedUnit, ""))
	speed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("no numeric speed in %q", label)
	}
	return speed, nil
}

// Select picks the requested band speeds out of the fetched set, preserving
// ascending order. Asking for a speed the event does not have is an error.
func Select(bands []Band, speeds []float64) ([]Band, error) {
	selected := make([]Band, 0, len(speeds))
	for _, want := range speeds {
		found := false
		for i := range bands {
			if bands[i].Speed == want {
				selected = append(selected, bands[i])
				found = true
				break
			}
		}
		if !found {
			available := make([]string, 0, len(bands))
			for i := range bands {
				available = append(available, strconv.FormatFloat(bands[i].Speed, 'f', -1, 64))
			}
			return nil, fmt.Errorf("wind band %g km/h not present in event geometry (available: %s)",
				want, strings.Join(available, ", "))
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Speed < selected[j].Speed })
	return selected, nil
}
