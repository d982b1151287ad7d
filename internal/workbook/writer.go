package workbook

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/vk/stormrisk/internal/ctxlog"
	"github.com/vk/stormrisk/internal/exposure"
)

// sheet is the worksheet the result table is written to.
const sheet = "Sheet1"

// Write saves the exposure result as an Excel workbook: a header row
// followed by one row per administrative unit. Band columns a unit is not
// exposed to stay blank.
func Write(ctx context.Context, path string, res *exposure.Result) error {
	logger := ctxlog.FromContext(ctx)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheet, "A1", headerRow(res)); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, row := range res.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, dataRow(res, row)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	logger.Info("Workbook written.", "path", path, "rows", len(res.Rows))
	return nil
}

// Headers returns the workbook's column names in order.
func Headers(res *exposure.Result) []string {
	headers := append([]string(nil), res.Columns...)
	headers = append(headers, "Total_population_by_adm2")
	for _, b := range res.Bands {
		headers = append(headers, "People_at_"+formatSpeed(b)+"kmph")
	}
	for _, b := range res.Bands {
		headers = append(headers, "%_people_at_"+formatSpeed(b)+"kmph")
	}
	return headers
}

func headerRow(res *exposure.Result) *[]any {
	headers := Headers(res)
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return &row
}

// dataRow builds one unit's row; nil entries leave the cell blank.
func dataRow(res *exposure.Result, r exposure.Row) *[]any {
	row := make([]any, 0, len(r.Attributes)+1+2*len(res.Bands))
	for _, a := range r.Attributes {
		row = append(row, a)
	}
	row = append(row, r.Total)
	for _, b := range res.Bands {
		if v, ok := r.People[b]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	for _, b := range res.Bands {
		if v, ok := r.Percent[b]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	return &row
}

// formatSpeed renders a band speed the way it appears in column names:
// "60", not "60.0".
func formatSpeed(b float64) string {
	return strconv.FormatFloat(b, 'f', -1, 64)
}
