package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Model is the unified, format-agnostic representation of one analysis: the
// datasets to load, the cyclone event to fetch, and how to report the result.
type Model struct {
	// Name is the human-readable label of the analysis block.
	Name string

	// PopulationRaster is the path to the gridded population GeoTIFF.
	PopulationRaster string

	// Boundaries describes where the administrative subdivisions come from.
	Boundaries Boundaries

	// Cyclone identifies the event whose wind buffers are fetched.
	Cyclone Cyclone

	// WindBands are the buffer speeds (km/h) reported in the workbook,
	// ascending.
	WindBands []float64

	// Output is the path of the Excel workbook to write.
	Output string
}

// Boundaries describes an administrative boundary layer inside a zipped
// ESRI shapefile archive.
type Boundaries struct {
	// Archive is the path to the .zip file.
	Archive string
	// Layer is the shapefile base name inside the archive, without extension.
	Layer string
	// Columns are the attribute columns carried into the workbook, in order.
	Columns []string
}

// Cyclone identifies a GDACS event. Either URL is set explicitly, or the
// four coordinates are combined with the API base URL.
type Cyclone struct {
	EventType string
	EventID   int
	EpisodeID int
	Source    string
	// URL, when non-empty, is used verbatim and the coordinates are ignored.
	URL string
}

// Default values applied by loaders when the analysis omits them.
var (
	DefaultWindBands = []float64{60, 90, 120}
	DefaultColumns   = []string{"ADM0_EN", "ADM1_EN", "ADM2_PCODE", "ADM2_EN"}
)

// DefaultOutput is the workbook path used when the analysis does not name one.
const DefaultOutput = "output.xlsx"

// ResolveURL returns the polygon endpoint for the event: the explicit URL if
// set, otherwise base with the event coordinates as query parameters.
func (c Cyclone) ResolveURL(base string) (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid GDACS base URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("eventtype", c.EventType)
	q.Set("eventid", strconv.Itoa(c.EventID))
	q.Set("episodeid", strconv.Itoa(c.EpisodeID))
	q.Set("sourceid", c.Source)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Validate checks the model for the invariants every loader must guarantee.
func (m *Model) Validate() error {
	if m.PopulationRaster == "" {
		return errors.New("population_raster is required")
	}
	if m.Boundaries.Archive == "" {
		return errors.New("boundaries.archive is required")
	}
	if m.Boundaries.Layer == "" {
		return errors.New("boundaries.layer is required")
	}
	if len(m.Boundaries.Columns) == 0 {
		return errors.New("boundaries.columns must not be empty")
	}
	if m.Cyclone.URL == "" {
		if m.Cyclone.EventType == "" || m.Cyclone.EventID == 0 {
			return errors.New("cyclone requires either url or event_type and event_id")
		}
	}
	if len(m.WindBands) == 0 {
		return errors.New("wind_bands must not be empty")
	}
	for i, b := range m.WindBands {
		if b <= 0 {
			return fmt.Errorf("wind_bands[%d] must be positive, got %v", i, b)
		}
		if i > 0 && m.WindBands[i-1] >= b {
			return errors.New("wind_bands must be strictly ascending")
		}
	}
	if m.Output == "" {
		return errors.New("output is required")
	}
	return nil
}
