package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/sim"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrSeriesNotFound = errors.New("series not found")
)

// overallHour is the hour value under which whole-run values are stored.
const overallHour = 0

// RunMeta is stored alongside a run result.
type RunMeta struct {
	Comment string
	Version string
	// Config is the run configuration as JSON.
	Config json.RawMessage
}

// Run is a stored run. Config, Layout and Kinds are only filled by GetRun.
type Run struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Horizon        int             `json:"horizon"`
	ScheduleLength int             `json:"schedule_length"`
	Comment        string          `json:"comment"`
	Version        string          `json:"version"`
	Config         json.RawMessage `json:"config,omitempty"`
	Layout         *sim.Layout     `json:"layout,omitempty"`
	Kinds          []string        `json:"kinds,omitempty"`
}

// Counter is one queue counter of a stored run.
type Counter struct {
	Index      int     `json:"index"`
	CounterID  int     `json:"counter_id"`
	LinkID     int     `json:"link_id"`
	HeadCount  int     `json:"head_count"`
	Position   float64 `json:"position"`
	LinkLength float64 `json:"link_length"`
}

// SaveRun stores a finished run in one transaction.
func (db *DB) SaveRun(ctx context.Context, res *sim.Result, meta RunMeta) error {
	if res.Summary == nil || res.Layout == nil {
		return fmt.Errorf("save run %s: result is incomplete", res.ID)
	}
	layout, err := json.Marshal(res.Layout)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	config := meta.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
			run_id, started_at, finished_at, horizon, schedule_length,
			comment, version, config_json, layout_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.StartedAt.UnixMilli(), res.FinishedAt.UnixMilli(), res.Horizon, res.ScheduleLength,
		meta.Comment, meta.Version, string(config), string(layout),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.ID, err)
	}

	if err := insertCounters(ctx, tx, res); err != nil {
		return err
	}
	if err := insertSeries(ctx, tx, res); err != nil {
		return err
	}
	return tx.Commit()
}

func insertCounters(ctx context.Context, tx *sql.Tx, res *sim.Result) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_counters (
			run_id, counter_index, counter_id, link_id, head_count, position, link_length
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	l := res.Layout
	for i, c := range l.Clusters {
		var id int
		if i < len(l.CounterIDs) {
			id = l.CounterIDs[i]
		}
		if _, err := stmt.ExecContext(ctx, res.ID, i, id, c.LinkID, c.Size(),
			cluster.CounterPosition(l.Detectors, c), cluster.CounterLinkLength(l.Detectors, c)); err != nil {
			return fmt.Errorf("insert counter %d: %w", i, err)
		}
	}
	return nil
}

func insertSeries(ctx context.Context, tx *sql.Tx, res *sim.Result) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_series (
			run_id, kind, hour, column_index, value, raw_value
		) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range res.Summary.Results {
		kind := r.Kind.String()
		for h, row := range r.Hourly {
			for col, v := range row {
				if _, err := stmt.ExecContext(ctx, res.ID, kind, h+1, col, v, nil); err != nil {
					return fmt.Errorf("insert %s hour %d: %w", kind, h+1, err)
				}
			}
		}
		for col, v := range r.Overall {
			var raw interface{}
			if r.RawOverall != nil {
				raw = r.RawOverall[col]
			}
			if _, err := stmt.ExecContext(ctx, res.ID, kind, overallHour, col, v, raw); err != nil {
				return fmt.Errorf("insert %s overall: %w", kind, err)
			}
		}
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, started_at, finished_at, horizon, schedule_length, comment, version
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Horizon, &r.ScheduleLength, &r.Comment, &r.Version); err != nil {
			return nil, err
		}
		r.StartedAt, r.FinishedAt = time.UnixMilli(started).UTC(), time.UnixMilli(finished).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its configuration, layout and stored kinds.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var started, finished int64
	var config, layout string
	err := db.QueryRowContext(ctx, `SELECT run_id, started_at, finished_at, horizon, schedule_length,
			comment, version, config_json, layout_json
		FROM runs WHERE run_id = ?`, id).Scan(
		&r.ID, &started, &finished, &r.Horizon, &r.ScheduleLength, &r.Comment, &r.Version, &config, &layout)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, r.FinishedAt = time.UnixMilli(started).UTC(), time.UnixMilli(finished).UTC()
	r.Config = json.RawMessage(config)
	r.Layout = &sim.Layout{}
	if err := json.Unmarshal([]byte(layout), r.Layout); err != nil {
		return nil, fmt.Errorf("decode layout of run %s: %w", id, err)
	}

	kinds, err := db.QueryContext(ctx, `SELECT DISTINCT kind FROM run_series WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer kinds.Close()
	stored := make(map[string]bool)
	for kinds.Next() {
		var k string
		if err := kinds.Scan(&k); err != nil {
			return nil, err
		}
		stored[k] = true
	}
	if err := kinds.Err(); err != nil {
		return nil, err
	}
	for _, k := range aggregate.AllKinds {
		if stored[k.String()] {
			r.Kinds = append(r.Kinds, k.String())
		}
	}
	return &r, nil
}

// Counters returns the queue counters of a run in counter order.
func (db *DB) Counters(ctx context.Context, id string) ([]Counter, error) {
	rows, err := db.QueryContext(ctx, `SELECT counter_index, counter_id, link_id, head_count, position, link_length
		FROM run_counters WHERE run_id = ? ORDER BY counter_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Counter
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.Index, &c.CounterID, &c.LinkID, &c.HeadCount, &c.Position, &c.LinkLength); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Series rebuilds the stored result of one kind.
func (db *DB) Series(ctx context.Context, id string, kind aggregate.Kind) (*aggregate.Result, error) {
	rows, err := db.QueryContext(ctx, `SELECT hour, column_index, value, raw_value
		FROM run_series WHERE run_id = ? AND kind = ? ORDER BY hour, column_index`, id, kind.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &aggregate.Result{Kind: kind}
	found := false
	for rows.Next() {
		var hour, col int
		var v float64
		var raw sql.NullFloat64
		if err := rows.Scan(&hour, &col, &v, &raw); err != nil {
			return nil, err
		}
		found = true
		if hour == overallHour {
			res.Overall = setAt(res.Overall, col, v)
			if raw.Valid {
				res.RawOverall = setAt(res.RawOverall, col, raw.Float64)
			}
			continue
		}
		for len(res.Hourly) < hour {
			res.Hourly = append(res.Hourly, nil)
		}
		res.Hourly[hour-1] = setAt(res.Hourly[hour-1], col, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s of run %s", ErrSeriesNotFound, kind, id)
	}
	return res, nil
}

// Summary rebuilds every stored kind of a run.
func (db *DB) Summary(ctx context.Context, id string) (*aggregate.Summary, error) {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := &aggregate.Summary{Horizon: run.Horizon}
	for _, name := range run.Kinds {
		kind, err := aggregate.ParseKind(name)
		if err != nil {
			return nil, err
		}
		r, err := db.Series(ctx, id, kind)
		if err != nil {
			return nil, err
		}
		sum.Results = append(sum.Results, *r)
	}
	return sum, nil
}

// DeleteRun removes a run and everything stored with it.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func setAt(row []float64, i int, v float64) []float64 {
	for len(row) <= i {
		row = append(row, 0)
	}
	row[i] = v
	return row
}
