package app

import (
	"context"
	"fmt"

	"github.com/vk/stormrisk/internal/boundary"
	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/executor"
	"github.com/vk/stormrisk/internal/exposure"
	"github.com/vk/stormrisk/internal/gdacs"
	"github.com/vk/stormrisk/internal/geotiff"
	"github.com/vk/stormrisk/internal/workbook"
)

// Run executes the analysis pipeline. The three dataset loads run
// concurrently; the joins and the workbook writing follow once their inputs
// are ready.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	// Shared pipeline state, written by the stage that produces it and read
	// only by stages downstream of it.
	var (
		raster *geotiff.Raster
		units  *boundary.Set
		bands  []gdacs.Band
		join   *exposure.Join
		result *exposure.Result
	)

	stages := []executor.Stage{
		{
			ID: "load_raster",
			Run: func(ctx context.Context) error {
				var err error
				raster, err = geotiff.Open(a.model.PopulationRaster)
				if err != nil {
					return err
				}
				ctxlog.FromContext(ctx).Info("Population raster loaded.",
					"path", a.model.PopulationRaster, "width", raster.Width, "height", raster.Height)
				return nil
			},
		},
		{
			ID: "load_boundaries",
			Run: func(ctx context.Context) error {
				var err error
				units, err = boundary.LoadZip(ctx, a.model.Boundaries.Archive, a.model.Boundaries.Layer, a.model.Boundaries.Columns)
				return err
			},
		},
		{
			ID: "fetch_cyclone",
			Run: func(ctx context.Context) error {
				client := gdacs.NewClient("")
				defer client.Close()

				all, err := client.FetchBands(ctx, a.model.Cyclone)
				if err != nil {
					return err
				}
				bands, err = gdacs.Select(all, a.model.WindBands)
				return err
			},
		},
		{
			ID:    "join_population",
			After: []string{"load_raster", "load_boundaries"},
			Run: func(ctx context.Context) error {
				var err error
				join, err = exposure.JoinPopulation(ctx, raster, units, appConfig.WorkerCount)
				return err
			},
		},
		{
			ID:    "band_exposure",
			After: []string{"join_population", "fetch_cyclone"},
			Run: func(ctx context.Context) error {
				var err error
				result, err = join.BandExposure(ctx, bands, appConfig.WorkerCount)
				return err
			},
		},
		{
			ID:    "write_workbook",
			After: []string{"band_exposure"},
			Run: func(ctx context.Context) error {
				return workbook.Write(ctx, a.model.Output, result)
			},
		},
	}

	exec, err := executor.New(stages, appConfig.WorkerCount)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	a.logger.Info("Starting analysis.", "analysis", a.model.Name, "workers", appConfig.WorkerCount)
	if err := exec.Run(ctx); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	a.printSummary(result)
	a.logger.Info("Analysis finished.", "output", a.model.Output)
	return nil
}

// printSummary writes the country-wide band totals to the output writer,
// one band per line.
func (a *App) printSummary(result *exposure.Result) {
	for _, b := range result.Bands {
		fmt.Fprintf(a.outW, "Total_people_at_%gkmph: %.2f\n", b, result.BandTotals[b])
	}
}
