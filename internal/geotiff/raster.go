package geotiff

import (
	"math"

	"github.com/paulmach/orb"
)

// Raster is a single-band population grid in model (WGS84) coordinates.
// Cells holding the file's nodata marker are stored as NaN.
type Raster struct {
	// Width and Height are the grid dimensions in cells.
	Width  int
	Height int

	// originX, originY anchor the top-left corner of cell (0,0).
	originX float64
	originY float64
	// scaleX, scaleY are the cell sizes in model units, both positive;
	// rows advance towards smaller Y.
	scaleX float64
	scaleY float64

	values []float64
}

// Cell is one valid raster cell: its centroid point and its value.
type Cell struct {
	Point orb.Point
	Value float64
}

// Value returns the cell value at the given column and row. The second
// return is false for nodata cells and out-of-range coordinates.
func (r *Raster) Value(col, row int) (float64, bool) {
	if col < 0 || col >= r.Width || row < 0 || row >= r.Height {
		return 0, false
	}
	v := r.values[row*r.Width+col]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Centroid returns the model-space center point of the given cell. Using
// centroids rather than cell footprints keeps a cell from being attributed
// to two polygons at once.
func (r *Raster) Centroid(col, row int) orb.Point {
	return orb.Point{
		r.originX + (float64(col)+0.5)*r.scaleX,
		r.originY - (float64(row)+0.5)*r.scaleY,
	}
}

// Cells returns every valid (non-nodata) cell with its centroid.
func (r *Raster) Cells() []Cell {
	cells := make([]Cell, 0, len(r.values))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			v := r.values[row*r.Width+col]
			if math.IsNaN(v) {
				continue
			}
			cells = append(cells, Cell{Point: r.Centroid(col, row), Value: v})
		}
	}
	return cells
}

// Bound returns the model-space bounding box of the whole grid.
func (r *Raster) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.originX, r.originY - float64(r.Height)*r.scaleY},
		Max: orb.Point{r.originX + float64(r.Width)*r.scaleX, r.originY},
	}
}
