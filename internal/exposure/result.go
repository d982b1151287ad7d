package exposure

import (
	"context"
	"math"
	"sync"

	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/gdacs"
)

// Result answers the four exposure questions for one analysis run.
type Result struct {
	// Columns are the attribute column names, one value per row.
	Columns []string
	// Bands are the reported wind speeds, ascending.
	Bands []float64
	// Rows hold one entry per administrative unit, in layer order.
	Rows []Row
	// BandTotals is the country-wide population per wind band, rounded.
	BandTotals map[float64]float64
}

// Row is the exposure of a single administrative unit.
type Row struct {
	// Attributes identify the unit (e.g. ADM names and p-code).
	Attributes []string
	// Total is the unit's population, rounded.
	Total float64
	// People maps a band speed to the unit's population inside that band,
	// rounded. Bands the unit does not touch are absent.
	People map[float64]float64
	// Percent maps a band speed to People as a share of Total, rounded.
	Percent map[float64]float64
}

// BandExposure attributes every joined cell to the strongest wind band
// containing its centroid and aggregates population per band and per unit.
// Attributing points to the strongest containing band makes the nested GDACS
// buffers disjoint, so nobody is counted at two speeds.
func (j *Join) BandExposure(ctx context.Context, bands []gdacs.Band, workers int) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	// cellBand[i] is the index into bands of the strongest band containing
	// cell i, or -1. Workers own disjoint chunks, so writes do not race.
	cellBand := make([]int32, len(j.cells))

	workers = max(workers, 1)
	chunk := (len(j.cells) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(j.cells))
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if i%4096 == 0 && ctx.Err() != nil {
					return
				}
				cellBand[i] = -1
				for bi := len(bands) - 1; bi >= 0; bi-- {
					if bands[bi].Contains(j.cells[i].Point) {
						cellBand[i] = int32(bi)
						break
					}
				}
			}
		}(lo, hi)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Aggregate. Band totals count every cell in the raster; per-unit
	// figures only cells that joined onto a unit.
	bandTotals := make([]float64, len(bands))
	unitBand := make([][]float64, len(j.units.Units))
	for i := range unitBand {
		unitBand[i] = make([]float64, len(bands))
	}
	for i, bi := range cellBand {
		if bi < 0 {
			continue
		}
		bandTotals[bi] += j.cells[i].Value
		if ui := j.cellUnit[i]; ui >= 0 {
			unitBand[ui][bi] += j.cells[i].Value
		}
	}

	res := &Result{
		Columns:    j.units.Columns,
		Bands:      make([]float64, len(bands)),
		Rows:       make([]Row, len(j.units.Units)),
		BandTotals: make(map[float64]float64, len(bands)),
	}
	for i, b := range bands {
		res.Bands[i] = b.Speed
		res.BandTotals[b.Speed] = round2(bandTotals[i])
	}
	for ui, unit := range j.units.Units {
		row := Row{
			Attributes: unit.Attributes,
			Total:      round2(j.totals[ui]),
			People:     make(map[float64]float64),
			Percent:    make(map[float64]float64),
		}
		for bi, b := range bands {
			people := unitBand[ui][bi]
			if people == 0 {
				continue
			}
			row.People[b.Speed] = round2(people)
			if j.totals[ui] > 0 {
				row.Percent[b.Speed] = round2(people / j.totals[ui] * 100)
			}
		}
		res.Rows[ui] = row
	}

	for _, b := range res.Bands {
		logger.Info("Band exposure computed.", "kmph", b, "people", res.BandTotals[b])
	}
	return res, nil
}

// round2 rounds to two decimal places, the precision reported in the
// workbook.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
