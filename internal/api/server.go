// Package api serves stored simulation runs over HTTP.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/db"
	"github.com/banshee-data/corridor.report/internal/httputil"
	"github.com/banshee-data/corridor.report/internal/report"
	"github.com/banshee-data/corridor.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db    *db.DB
	units string
}

// NewServer serves runs from store. units is the default display unit for
// travel speed; stored values are km/h.
func NewServer(store *db.DB, units string) *Server {
	return &Server{db: store, units: units}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/series/{kind}", s.showSeries)
	mux.HandleFunc("GET /api/runs/{id}/chart", s.showChart)
	return mux
}

// writeStoreError maps store lookups to 404 and everything else to 500.
func writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, db.ErrRunNotFound) || errors.Is(err, db.ErrSeriesNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve %s: %v", what, err))
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units": s.units,
		"kinds": kindNames(),
	})
}

func kindNames() []string {
	out := make([]string, len(aggregate.AllKinds))
	for i, k := range aggregate.AllKinds {
		out[i] = k.String()
	}
	return out
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		writeStoreError(w, "runs", err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

type runResponse struct {
	*db.Run
	Counters []db.Counter `json:"counters"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, "run", err)
		return
	}
	counters, err := s.db.Counters(r.Context(), id)
	if err != nil {
		writeStoreError(w, "counters", err)
		return
	}
	httputil.WriteJSONOK(w, runResponse{Run: run, Counters: counters})
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, "run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seriesResponse struct {
	aggregate.Result
	Unit    string   `json:"unit"`
	Columns []string `json:"columns,omitempty"`
	// HourlyGrades and OverallGrades spell out level of service values as
	// letters; an unrated node is "".
	HourlyGrades  [][]string `json:"hourly_grades,omitempty"`
	OverallGrades []string   `json:"overall_grades,omitempty"`
}

// showSeries returns one kind of a run. With expand=true per-link values are
// widened to one column per signal head and labelled. Travel and link speeds
// honour the units parameter, and level of service comes with its letters.
func (s *Server) showSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kind, err := aggregate.ParseKind(r.PathValue("kind"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	unit, ok := s.displayUnit(r)
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("Invalid 'units' parameter. Must be one of: %s", units.GetValidUnitsString()))
		return
	}

	res, err := s.db.Series(r.Context(), id, kind)
	if err != nil {
		writeStoreError(w, "series", err)
		return
	}
	out := seriesResponse{Unit: kind.Unit()}
	if kind == aggregate.TravelSpeed || kind == aggregate.LinkSpeed {
		convertSpeeds(res, unit)
		out.Unit = unit
	}
	out.Result = *res

	if expand, _ := strconv.ParseBool(r.URL.Query().Get("expand")); expand {
		run, err := s.db.GetRun(r.Context(), id)
		if err != nil {
			writeStoreError(w, "run", err)
			return
		}
		if err := expandResult(&out, run); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
	}
	if kind == aggregate.NodeLOS {
		addGrades(&out)
	}
	httputil.WriteJSONOK(w, out)
}

func addGrades(out *seriesResponse) {
	letters := func(row []float64) []string {
		g := make([]string, len(row))
		for i, v := range row {
			g[i] = units.LOSLetter(v)
		}
		return g
	}
	out.HourlyGrades = make([][]string, len(out.Hourly))
	for h, row := range out.Hourly {
		out.HourlyGrades[h] = letters(row)
	}
	out.OverallGrades = letters(out.Overall)
}

func (s *Server) displayUnit(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		u = s.units
	}
	if u == "" {
		return units.KMPH, true
	}
	return u, units.IsValid(u)
}

func convertSpeeds(res *aggregate.Result, unit string) {
	for _, row := range res.Hourly {
		for i, v := range row {
			row[i] = units.FromKMPH(v, unit)
		}
	}
	for i, v := range res.Overall {
		res.Overall[i] = units.FromKMPH(v, unit)
	}
}

func expandResult(out *seriesResponse, run *db.Run) error {
	l := run.Layout
	for h, row := range out.Hourly {
		wide, err := report.DisplayRow(l, out.Kind, row)
		if err != nil {
			return err
		}
		out.Hourly[h] = wide
	}
	overall, err := report.DisplayRow(l, out.Kind, out.Overall)
	if err != nil {
		return err
	}
	out.Overall = overall
	if out.RawOverall != nil {
		raw, err := report.DisplayRow(l, out.Kind, out.RawOverall)
		if err != nil {
			return err
		}
		out.RawOverall = raw
	}
	out.Columns = report.Columns(l, out.Kind)
	return nil
}

// showChart renders every kind of a run as an HTML page, or one kind as a
// PNG when format=png and kind are given.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, "run", err)
		return
	}

	var buf bytes.Buffer
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		sum, err := s.db.Summary(r.Context(), id)
		if err != nil {
			writeStoreError(w, "series", err)
			return
		}
		info := report.RunInfo{ID: run.ID, Comment: run.Comment, Horizon: run.Horizon}
		if err := report.RenderHTML(&buf, info, run.Layout, sum); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
	case "png":
		kind, err := aggregate.ParseKind(r.URL.Query().Get("kind"))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		res, err := s.db.Series(r.Context(), id, kind)
		if err != nil {
			writeStoreError(w, "series", err)
			return
		}
		if err := report.WritePNG(&buf, run.Layout, *res); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		httputil.WriteBody(w, "image/png", buf.Bytes())
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown format %q", format))
	}
}
