package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/db"
	"github.com/banshee-data/corridor.report/internal/engine"
	"github.com/banshee-data/corridor.report/internal/monitoring"
	"github.com/banshee-data/corridor.report/internal/signal"
	"github.com/banshee-data/corridor.report/internal/sim"
	"github.com/banshee-data/corridor.report/internal/units"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

const testHorizon = 5400

// setupTestServer stores one simulated run and returns a server over it.
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	names := []string{"K1", "K2"}
	var raws []signal.RawPlan
	for i, name := range names {
		durations := make([]float64, 0, 2*(testHorizon/60+2))
		for len(durations) < cap(durations) {
			durations = append(durations, 30, 30)
		}
		raws = append(raws, signal.RawPlan{
			Name:      name,
			Offset:    i * 20,
			Phases:    [][]string{{"G", "R"}, {"R", "G"}},
			Durations: durations,
		})
	}
	plans, err := signal.CompileAll(raws, testHorizon)
	require.NoError(t, err)

	fake := engine.NewFake(engine.DemoNetwork(engine.SameGroups(2, names...)))
	fake.Fill = engine.DemoReadings
	drv, err := sim.NewDriver(fake, plans, engine.Settings{Horizon: testHorizon, Seed: 42})
	require.NoError(t, err)
	res, err := drv.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(context.Background(), res, db.RunMeta{Comment: "api test", Version: "test"}))

	return NewServer(store, units.KMPH), res.ID
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	return w
}

func TestListRuns(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []db.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "api test", runs[0].Comment)

	w = doRequest(t, s, http.MethodGet, "/api/runs?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(t, s, http.MethodGet, "/api/runs?limit=ten")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowRun(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		ID       string       `json:"id"`
		Horizon  int          `json:"horizon"`
		Layout   *sim.Layout  `json:"layout"`
		Counters []db.Counter `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, testHorizon, got.Horizon)
	require.NotNil(t, got.Layout)
	// Two controllers, each with one link carrying a single detector cluster.
	assert.Len(t, got.Counters, 2)
	assert.Len(t, got.Layout.Detectors, 8)

	w = doRequest(t, s, http.MethodGet, "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowSeries(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/vehicle_count")
	require.Equal(t, http.StatusOK, w.Code)
	var got seriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, aggregate.VehicleCount, got.Kind)
	assert.Equal(t, "veh", got.Unit)
	assert.Len(t, got.Hourly, 2)
	assert.Len(t, got.Overall, 8)
	assert.Empty(t, got.Columns)

	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/level_of_service")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(t, s, http.MethodGet, "/api/runs/missing/series/vehicle_count")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowSeriesExpandsLinkColumns(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/queue_stops?expand=true")
	require.Equal(t, http.StatusOK, w.Code)
	var got seriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	// Each link has four detectors, so each counter value is shown four times.
	require.Len(t, got.Overall, 8)
	require.Len(t, got.Columns, 8)
	assert.Equal(t, got.Overall[0], got.Overall[3])
	assert.Equal(t, got.Overall[4], got.Overall[7])
	assert.Len(t, got.RawOverall, 8)
	for _, row := range got.Hourly {
		assert.Len(t, row, 8)
	}
}

func TestShowSeriesLinkMeasures(t *testing.T) {
	s, id := setupTestServer(t)

	for _, name := range []string{"link_delay", "link_density"} {
		w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/"+name+"?expand=true")
		require.Equal(t, http.StatusOK, w.Code, name)
		var got seriesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got.Overall, 8, name)
		assert.Equal(t, got.Overall[0], got.Overall[3], name)
		assert.Nil(t, got.RawOverall, name)
	}

	kmph := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/link_speed")
	require.Equal(t, http.StatusOK, kmph.Code)
	mph := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/link_speed?units=mph")
	require.Equal(t, http.StatusOK, mph.Code)
	var a, b seriesResponse
	require.NoError(t, json.Unmarshal(kmph.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(mph.Body.Bytes(), &b))
	assert.Equal(t, units.MPH, b.Unit)
	// Link 10 reports no speed in the first hour.
	assert.Equal(t, units.NoObservation, a.Hourly[0][0])
	assert.Equal(t, units.NoObservation, b.Hourly[0][0])
	assert.InDelta(t, units.FromKMPH(a.Overall[1], units.MPH), b.Overall[1], 1e-9)
}

func TestShowSeriesLevelOfService(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/node_los")
	require.Equal(t, http.StatusOK, w.Code)
	var got seriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "LOS", got.Unit)
	// Grades cycle by node and hour; node 2 is unrated in hour 1.
	assert.Equal(t, [][]float64{{3, -1}, {4, 5}}, got.Hourly)
	assert.Equal(t, [][]string{{"C", ""}, {"D", "E"}}, got.HourlyGrades)
	assert.Equal(t, []float64{4, 5}, got.Overall)
	assert.Equal(t, []string{"D", "E"}, got.OverallGrades)

	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/vehicle_count")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "grades")
}

func TestShowSeriesConvertsSpeedUnits(t *testing.T) {
	s, id := setupTestServer(t)

	kmph := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/travel_speed")
	require.Equal(t, http.StatusOK, kmph.Code)
	mps := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/travel_speed?units=mps")
	require.Equal(t, http.StatusOK, mps.Code)

	var a, b seriesResponse
	require.NoError(t, json.Unmarshal(kmph.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(mps.Body.Bytes(), &b))
	assert.Equal(t, units.KMPH, a.Unit)
	assert.Equal(t, units.MPS, b.Unit)
	require.Equal(t, len(a.Hourly), len(b.Hourly))
	for h := range a.Hourly {
		for i, v := range a.Hourly[h] {
			assert.InDelta(t, units.FromKMPH(v, units.MPS), b.Hourly[h][i], 1e-9)
		}
	}

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/series/travel_speed?units=knots")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowChart(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/chart")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "Corridor run "+id)

	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/chart?format=png&kind=occupancy_rate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/chart?format=png")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id+"/chart?format=svg")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteRun(t *testing.T) {
	s, id := setupTestServer(t)

	w := doRequest(t, s, http.MethodDelete, "/api/runs/"+id)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doRequest(t, s, http.MethodGet, "/api/runs/"+id)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(t, s, http.MethodDelete, "/api/runs/"+id)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowConfig(t *testing.T) {
	s, _ := setupTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Units string   `json:"units"`
		Kinds []string `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, units.KMPH, got.Units)
	assert.Contains(t, got.Kinds, "queue_stops")
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	assert.Contains(t, statusCodeColor(200), "200")
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
