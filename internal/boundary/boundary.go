package boundary

import (
	"context"
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/vk/stormrisk/internal/ctxlog"
)

// Unit is a single administrative subdivision: its attribute values (aligned
// with Set.Columns) and its geometry.
type Unit struct {
	Attributes []string
	Geometry   orb.MultiPolygon

	// bound caches the geometry's bounding box for cheap pre-filtering.
	bound orb.Bound
}

// Contains reports whether the point lies inside the unit.
func (u *Unit) Contains(pt orb.Point) bool {
	if !u.bound.Contains(pt) {
		return false
	}
	return planar.MultiPolygonContains(u.Geometry, pt)
}

// Bound returns the unit's bounding box.
func (u *Unit) Bound() orb.Bound {
	return u.bound
}

// Set is a loaded boundary layer.
type Set struct {
	// Columns are the attribute column names, in the order requested.
	Columns []string
	Units   []*Unit
}

// LoadZip reads the named shapefile layer from a zip archive and keeps the
// requested attribute columns. The layer name is the shapefile base name
// inside the archive, with or without the .shp extension.
func LoadZip(ctx context.Context, archive, layer string, columns []string) (*Set, error) {
	logger := ctxlog.FromContext(ctx)

	name := layer
	if !strings.HasSuffix(name, ".shp") {
		name += ".shp"
	}
	r, err := shp.OpenShapeFromZip(archive, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open layer %q in %s: %w", layer, archive, err)
	}
	defer r.Close()

	colIdx, err := columnIndexes(r.Fields(), columns)
	if err != nil {
		return nil, err
	}

	set := &Set{Columns: append([]string(nil), columns...)}
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, shape := r.Shape()
		geom, err := toMultiPolygon(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if len(geom) == 0 {
			continue
		}

		attrs := make([]string, len(columns))
		for i, fi := range colIdx {
			attrs[i] = strings.Trim(r.Attribute(fi), " \x00")
		}
		set.Units = append(set.Units, &Unit{
			Attributes: attrs,
			Geometry:   geom,
			bound:      geom.Bound(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read layer %q: %w", layer, err)
	}
	if len(set.Units) == 0 {
		return nil, fmt.Errorf("layer %q holds no polygon records", layer)
	}

	logger.Debug("Boundary layer loaded.", "layer", layer, "units", len(set.Units))
	return set, nil
}

// columnIndexes resolves the requested column names against the DBF fields.
func columnIndexes(fields []shp.Field, columns []string) ([]int, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[strings.Trim(f.String(), " \x00")] = i
	}

	idx := make([]int, len(columns))
	for i, col := range columns {
		fi, ok := byName[col]
		if !ok {
			return nil, fmt.Errorf("attribute column %q not found in layer", col)
		}
		idx[i] = fi
	}
	return idx, nil
}
