package exposure

import (
	"context"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/vk/stormrisk/internal/boundary"
	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/geotiff"
)

// Join is the population raster joined onto the boundary layer: every valid
// cell, the unit its centroid falls in, and the per-unit population totals.
type Join struct {
	cells []geotiff.Cell
	// cellUnit maps a cell index to its unit index, -1 when the centroid
	// falls outside every unit.
	cellUnit []int32
	units    *boundary.Set
	// totals holds the unrounded population sum per unit.
	totals []float64
}

// Units returns the boundary layer the join was built against.
func (j *Join) Units() *boundary.Set {
	return j.units
}

// Total returns the unrounded population total of the given unit.
func (j *Join) Total(unit int) float64 {
	return j.totals[unit]
}

// JoinPopulation assigns every raster cell centroid to the administrative
// unit containing it and sums population per unit. Units are processed
// concurrently by the given number of workers; a cell is only ever counted
// once, in the first unit (by layer order) that contains its centroid.
func JoinPopulation(ctx context.Context, raster *geotiff.Raster, units *boundary.Set, workers int) (*Join, error) {
	logger := ctxlog.FromContext(ctx)

	cells := raster.Cells()
	logger.Debug("Indexing raster cells.", "cells", len(cells), "units", len(units.Units))

	// A point R-tree over cell centroids lets each unit pull just the cells
	// inside its bounding box instead of scanning the whole country.
	var index rtree.RTreeG[int32]
	for i, c := range cells {
		pt := [2]float64{c.Point[0], c.Point[1]}
		index.Insert(pt, pt, int32(i))
	}

	// Each worker writes only its own unit's slot, so no locking is needed.
	matched := make([][]int32, len(units.Units))

	unitCh := make(chan int, len(units.Units))
	for i := range units.Units {
		unitCh <- i
	}
	close(unitCh)

	var wg sync.WaitGroup
	for n := max(workers, 1); n > 0; n-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ui := range unitCh {
				if ctx.Err() != nil {
					return
				}
				unit := units.Units[ui]
				b := unit.Bound()

				var hits []int32
				index.Search([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]},
					func(_, _ [2]float64, ci int32) bool {
						if unit.Contains(cells[ci].Point) {
							hits = append(hits, ci)
						}
						return true
					})
				matched[ui] = hits
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j := &Join{
		cells:    cells,
		cellUnit: make([]int32, len(cells)),
		units:    units,
		totals:   make([]float64, len(units.Units)),
	}
	for i := range j.cellUnit {
		j.cellUnit[i] = -1
	}
	for ui, hits := range matched {
		for _, ci := range hits {
			if j.cellUnit[ci] != -1 {
				continue // boundary sliver overlap, first unit wins
			}
			j.cellUnit[ci] = int32(ui)
			j.totals[ui] += j.cells[ci].Value
		}
	}

	logger.Info("Population joined onto boundaries.", "cells", len(cells), "units", len(units.Units))
	return j, nil
}
