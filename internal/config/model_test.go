package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() *Model {
	return &Model{
		Name:             "enawo",
		PopulationRaster: "pop.tif",
		Boundaries: Boundaries{
			Archive: "adm.zip",
			Layer:   "adm2",
			Columns: []string{"ADM2_PCODE", "ADM2_EN"},
		},
		Cyclone:   Cyclone{EventType: "TC", EventID: 1000859, EpisodeID: 13, Source: "JTWC"},
		WindBands: []float64{60, 90, 120},
		Output:    "output.xlsx",
	}
}

func TestValidateAcceptsCompleteModel(t *testing.T) {
	require.NoError(t, validModel().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Model)
		want   string
	}{
		{"missing raster", func(m *Model) { m.PopulationRaster = "" }, "population_raster"},
		{"missing archive", func(m *Model) { m.Boundaries.Archive = "" }, "boundaries.archive"},
		{"missing layer", func(m *Model) { m.Boundaries.Layer = "" }, "boundaries.layer"},
		{"no columns", func(m *Model) { m.Boundaries.Columns = nil }, "boundaries.columns"},
		{"no event coordinates", func(m *Model) { m.Cyclone = Cyclone{} }, "cyclone"},
		{"no bands", func(m *Model) { m.WindBands = nil }, "wind_bands"},
		{"negative band", func(m *Model) { m.WindBands = []float64{-60} }, "positive"},
		{"unsorted bands", func(m *Model) { m.WindBands = []float64{90, 60} }, "ascending"},
		{"duplicate bands", func(m *Model) { m.WindBands = []float64{60, 60} }, "ascending"},
		{"missing output", func(m *Model) { m.Output = "" }, "output"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validModel()
			tc.mutate(m)
			assert.ErrorContains(t, m.Validate(), tc.want)
		})
	}
}

func TestValidateAcceptsExplicitURLWithoutCoordinates(t *testing.T) {
	m := validModel()
	m.Cyclone = Cyclone{URL: "https://example.com/geometry.json"}
	require.NoError(t, m.Validate())
}

func TestResolveURL(t *testing.T) {
	t.Run("builds query from event coordinates", func(t *testing.T) {
		c := Cyclone{EventType: "TC", EventID: 1000859, EpisodeID: 13, Source: "JTWC"}
		got, err := c.ResolveURL("https://www.gdacs.org/gdacsapi/api/polygons/getgeometry")
		require.NoError(t, err)
		assert.Contains(t, got, "eventtype=TC")
		assert.Contains(t, got, "eventid=1000859")
		assert.Contains(t, got, "episodeid=13")
		assert.Contains(t, got, "sourceid=JTWC")
	})

	t.Run("explicit URL wins", func(t *testing.T) {
		c := Cyclone{URL: "https://example.com/fixture.json", EventType: "TC", EventID: 1}
		got, err := c.ResolveURL("https://www.gdacs.org/ignored")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/fixture.json", got)
	})
}
