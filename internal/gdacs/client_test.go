package gdacs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stormrisk/internal/config"
	"github.com/vk/stormrisk/internal/testutil"
)

// fixtureResponse mimics a GDACS tropical cyclone geometry: three nested
// wind buffers plus the non-buffer features the API also returns.
func fixtureResponse(t *testing.T) []byte {
	return testutil.CycloneGeoJSON(t, []testutil.CycloneFeature{
		{Label: "120 km/h", Geometry: testutil.Square(47, -20, 1)},
		{Label: "90 km/h", Geometry: testutil.Square(47, -20, 2)},
		{Label: "60 km/h", Geometry: testutil.Square(47, -20, 3)},
		{Label: "Uncertainty", Geometry: testutil.Square(47, -20, 5)},
		{Label: "Line of the storm", Geometry: orb.LineString{{40, -15}, {50, -25}}},
	})
}

func TestFetchBands(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write(fixtureResponse(t))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	event := config.Cyclone{EventType: "TC", EventID: 1000859, EpisodeID: 13, Source: "JTWC"}
	bands, err := client.FetchBands(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, bands, 3, "only km/h labelled polygons become bands")
	assert.Equal(t, []float64{60, 90, 120}, []float64{bands[0].Speed, bands[1].Speed, bands[2].Speed})

	assert.Contains(t, gotQuery, "eventtype=TC")
	assert.Contains(t, gotQuery, "eventid=1000859")
	assert.Contains(t, gotQuery, "episodeid=13")
	assert.Contains(t, gotQuery, "sourceid=JTWC")
}

func TestFetchBandsExplicitURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixtureResponse(t))
	}))
	defer srv.Close()

	client := NewClient("http://127.0.0.1:1/unreachable")
	defer client.Close()

	bands, err := client.FetchBands(context.Background(), config.Cyclone{URL: srv.URL + "/fixture.json"})
	require.NoError(t, err)
	assert.Len(t, bands, 3)
}

func TestFetchBandsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "event not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	defer client.Close()

	_, err := client.FetchBands(context.Background(), config.Cyclone{EventType: "TC", EventID: 1})
	assert.ErrorContains(t, err, "status 404")
}

func TestBandContains(t *testing.T) {
	bands, err := ParseBands(context.Background(), fixtureResponse(t))
	require.NoError(t, err)

	strongest := bands[2]
	require.Equal(t, 120.0, strongest.Speed)
	assert.True(t, strongest.Contains(orb.Point{47, -20}))
	assert.False(t, strongest.Contains(orb.Point{47, -22.5}), "inside 60 but outside 120")
}

func TestParseBandsErrors(t *testing.T) {
	t.Run("not geojson", func(t *testing.T) {
		_, err := ParseBands(context.Background(), []byte("<html>down for maintenance</html>"))
		assert.ErrorContains(t, err, "failed to parse GDACS GeoJSON")
	})

	t.Run("no wind buffers", func(t *testing.T) {
		data := testutil.CycloneGeoJSON(t, []testutil.CycloneFeature{
			{Label: "Uncertainty", Geometry: testutil.Square(0, 0, 1)},
		})
		_, err := ParseBands(context.Background(), data)
		assert.ErrorContains(t, err, "no wind-speed buffers")
	})
}

func TestSelect(t *testing.T) {
	bands, err := ParseBands(context.Background(), fixtureResponse(t))
	require.NoError(t, err)

	t.Run("picks requested speeds ascending", func(t *testing.T) {
		got, err := Select(bands, []float64{120, 60})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 60.0, got[0].Speed)
		assert.Equal(t, 120.0, got[1].Speed)
	})

	t.Run("missing band is an error", func(t *testing.T) {
		_, err := Select(bands, []float64{60, 150})
		assert.ErrorContains(t, err, "wind band 150 km/h not present")
		assert.ErrorContains(t, err, "available: 60, 90, 120")
	})
}
