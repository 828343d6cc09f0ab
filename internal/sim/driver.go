// Package sim drives one simulation run: it places measurement equipment,
// steps the engine through the global signal schedule and reduces the
// measurements it reads back.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/engine"
	"github.com/banshee-data/corridor.report/internal/monitoring"
	"github.com/banshee-data/corridor.report/internal/schedule"
	"github.com/banshee-data/corridor.report/internal/signal"
	"github.com/banshee-data/corridor.report/internal/timeutil"
	"github.com/banshee-data/corridor.report/internal/units"
)

// Result is everything one run produced.
type Result struct {
	ID             string             `json:"id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	Horizon        int                `json:"horizon"`
	ScheduleLength int                `json:"schedule_length"`
	Layout         *Layout            `json:"layout"`
	Summary        *aggregate.Summary `json:"summary"`
}

// Driver runs compiled plans against an engine. A Driver is used for one run.
type Driver struct {
	eng      engine.Engine
	plans    []*signal.SignalPlan
	sched    *schedule.GlobalSchedule
	settings engine.Settings

	clock timeutil.Clock
}

// NewDriver merges the plans into a global schedule for settings.Horizon.
func NewDriver(eng engine.Engine, plans []*signal.SignalPlan, settings engine.Settings) (*Driver, error) {
	if len(plans) == 0 {
		return nil, &signal.ConfigError{Err: signal.ErrEmptyPlan}
	}
	sched, err := schedule.Merge(plans, settings.Horizon)
	if err != nil {
		return nil, err
	}
	return &Driver{eng: eng, plans: plans, sched: sched, settings: settings, clock: timeutil.RealClock{}}, nil
}

// Schedule returns the merged schedule.
func (d *Driver) Schedule() *schedule.GlobalSchedule { return d.sched }

// Run performs setup, drives the schedule to the horizon and aggregates the
// hourly measurements. Any error aborts the run.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		ID:             uuid.New().String(),
		StartedAt:      d.clock.Now(),
		Horizon:        d.settings.Horizon,
		ScheduleLength: d.sched.Len(),
	}
	monitoring.Logf("run %s: %d controllers, %d schedule instants over %ds",
		res.ID, len(d.plans), d.sched.Len(), d.settings.Horizon)

	layout, err := d.Setup(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	res.Layout = layout

	if err := d.Drive(ctx); err != nil {
		return nil, fmt.Errorf("drive: %w", err)
	}

	acc, err := d.Extract(ctx, layout)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	summary, err := aggregate.Aggregate(acc, layout.CounterLengths)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	res.Summary = summary
	res.FinishedAt = d.clock.Now()
	monitoring.Logf("run %s finished in %s", res.ID, d.clock.Since(res.StartedAt).Round(time.Millisecond))
	return res, nil
}

// Setup configures the engine, checks its network against the plans and
// places queue counters and data collection points.
func (d *Driver) Setup(ctx context.Context) (*Layout, error) {
	if err := d.eng.Configure(ctx, d.settings); err != nil {
		return nil, fmt.Errorf("configure engine: %w", err)
	}
	net, err := d.eng.Network(ctx)
	if err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}
	if err := checkControllers(net, d.plans); err != nil {
		return nil, err
	}
	if err := checkSections(net.Sections); err != nil {
		return nil, err
	}
	return place(ctx, d.eng, net)
}

// Drive applies the time-zero states, then for every scheduled instant runs
// the engine up to it and pushes the changes due there. After the last
// instant the engine runs to the horizon with no further pushes.
func (d *Driver) Drive(ctx context.Context) error {
	if err := d.push(ctx, schedule.InitialChanges(d.plans)); err != nil {
		return fmt.Errorf("t=0: %w", err)
	}
	progress := monitoring.NewProgress("signal schedule", d.sched.Len())
	for i := 0; i < d.sched.Len(); i++ {
		instant := d.sched.At(i)
		if err := d.eng.RunUntil(ctx, instant); err != nil {
			return fmt.Errorf("run to t=%d: %w", instant, err)
		}
		changes, err := schedule.ChangesAt(d.plans, instant)
		if err != nil {
			return err
		}
		if err := d.push(ctx, changes); err != nil {
			return fmt.Errorf("t=%d: %w", instant, err)
		}
		progress.Step(i+1, instant)
	}
	if err := d.eng.RunToEnd(ctx); err != nil {
		return fmt.Errorf("run to horizon: %w", err)
	}
	return nil
}

func (d *Driver) push(ctx context.Context, changes []schedule.Change) error {
	for _, c := range changes {
		if err := d.eng.SetControllerState(ctx, c.Controller, c.Step); err != nil {
			return fmt.Errorf("set %s to %s: %w", c.Controller, c.Step, err)
		}
	}
	return nil
}

// Extract reads every measurement for every hour of the run, in hour order.
func (d *Driver) Extract(ctx context.Context, l *Layout) (*aggregate.Accumulator, error) {
	acc := aggregate.NewAccumulator(d.settings.Horizon)
	for hour := 1; hour <= aggregate.Hours(d.settings.Horizon); hour++ {
		if err := d.extractHour(ctx, l, acc, hour); err != nil {
			return nil, fmt.Errorf("hour %d: %w", hour, err)
		}
	}
	return acc, nil
}

func (d *Driver) extractHour(ctx context.Context, l *Layout, acc *aggregate.Accumulator, hour int) error {
	n := len(l.DataCollectionIDs)
	vehs, occ := make([]float64, n), make([]float64, n)
	for i, id := range l.DataCollectionIDs {
		v, err := d.read(ctx, engine.Vehicles, id, hour)
		if err != nil {
			return err
		}
		o, err := d.read(ctx, engine.Occupancy, id, hour)
		if err != nil {
			return err
		}
		vehs[i], occ[i] = v, units.FractionToPercent(o)
	}

	stops := make([]float64, len(l.CounterIDs))
	for i, id := range l.CounterIDs {
		v, err := d.read(ctx, engine.QueueStops, id, hour)
		if err != nil {
			return err
		}
		stops[i] = v
	}

	delay, density, linkSpeed := make([]float64, len(l.Heads)), make([]float64, len(l.Heads)), make([]float64, len(l.Heads))
	for i, h := range l.Heads {
		v, err := d.read(ctx, engine.LinkDelayRel, h.LinkID, hour)
		if err != nil {
			return err
		}
		w, err := d.read(ctx, engine.LinkDensity, h.LinkID, hour)
		if err != nil {
			return err
		}
		sp, err := d.read(ctx, engine.LinkSpeed, h.LinkID, hour)
		if err != nil {
			return err
		}
		delay[i], density[i], linkSpeed[i] = v, w, units.SpeedOrNoObservation(sp)
	}

	speeds := make([]float64, len(l.Sections))
	for i, s := range l.Sections {
		tt, err := d.read(ctx, engine.TravelTime, s.ID, hour)
		if err != nil {
			return err
		}
		speeds[i] = units.TravelSpeed(s.Distance, tt)
	}

	co, voc, los := make([]float64, len(l.Nodes)), make([]float64, len(l.Nodes)), make([]float64, len(l.Nodes))
	for i, node := range l.Nodes {
		g, err := d.readGrade(ctx, node, hour)
		if err != nil {
			return err
		}
		los[i] = g
		v, err := d.read(ctx, engine.EmissionsCO, node, hour)
		if err != nil {
			return err
		}
		w, err := d.read(ctx, engine.EmissionsVOC, node, hour)
		if err != nil {
			return err
		}
		co[i], voc[i] = v, w
	}

	for _, row := range []struct {
		kind    aggregate.Kind
		samples []float64
	}{
		{aggregate.VehicleCount, vehs},
		{aggregate.OccupancyRate, occ},
		{aggregate.QueueStops, stops},
		{aggregate.LinkDelay, delay},
		{aggregate.LinkDensity, density},
		{aggregate.LinkSpeed, linkSpeed},
		{aggregate.TravelSpeed, speeds},
		{aggregate.NodeLOS, los},
		{aggregate.EmissionCO, co},
		{aggregate.EmissionVOC, voc},
	} {
		if err := acc.Append(row.kind, hour, row.samples); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) read(ctx context.Context, q engine.Quantity, id, hour int) (float64, error) {
	v, err := d.eng.Query(ctx, q, id, hour)
	if err != nil {
		return 0, err
	}
	return engine.Guard("QUERY", fmt.Sprintf("%s %d hour %d", q, id, hour), v)
}

// readGrade reads a node's level of service. An unrated node is a missing
// observation rather than grade zero.
func (d *Driver) readGrade(ctx context.Context, node, hour int) (float64, error) {
	v, err := d.eng.Query(ctx, engine.LevelOfService, node, hour)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return units.NoObservation, nil
	}
	if units.LOSLetter(*v) == "" {
		return 0, &engine.ConsistencyError{
			Op:      "QUERY",
			Element: fmt.Sprintf("%s %d hour %d", engine.LevelOfService, node, hour),
			Err:     fmt.Errorf("%w: %v", engine.ErrBadGrade, *v),
		}
	}
	return *v, nil
}
