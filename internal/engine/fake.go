package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/corridor.report/internal/cluster"
	"github.com/banshee-data/corridor.report/internal/signal"
)

// Reading identifies one query answered by a Fake.
type Reading struct {
	Quantity Quantity
	ID       int
	Hour     int
}

// Push is one controller state change seen by a Fake.
type Push struct {
	At         int
	Controller string
	Step       signal.PhaseStep
}

// Placement is a queue counter or data collection point placed on a Fake.
type Placement struct {
	ID       int
	LinkID   int
	LaneID   int
	Position float64
}

// Fake is an in-memory Engine. It enforces the call order a real session
// needs and records everything it is asked to do.
type Fake struct {
	mu sync.Mutex

	Net Network
	// Readings answers Query. Absent keys answer null unless Fill is set.
	Readings map[Reading]*float64
	// Fill, when set, answers queries that Readings does not cover.
	Fill func(Reading) *float64

	Settings        Settings
	Now             int
	Calls           []string
	Pushes          []Push
	QueueCounters   []Placement
	DataCollections []Placement
	Closed          bool
}

// NewFake returns a Fake serving net.
func NewFake(net Network) *Fake {
	return &Fake{Net: net, Readings: make(map[Reading]*float64)}
}

// Set stores a reading.
func (f *Fake) Set(q Quantity, id, hour int, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings[Reading{Quantity: q, ID: id, Hour: hour}] = &v
}

func (f *Fake) record(format string, args ...interface{}) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Configure(_ context.Context, s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Horizon <= 0 {
		return fmt.Errorf("configure: horizon %d must be positive", s.Horizon)
	}
	f.record("CONFIGURE %d", s.Horizon)
	f.Settings = s
	f.Now = 0
	return nil
}

func (f *Fake) Network(context.Context) (*Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("NETWORK")
	n := f.Net
	n.Detectors = append([]cluster.DetectorPosition(nil), f.Net.Detectors...)
	return &n, nil
}

func (f *Fake) ResetCounters(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RESET_COUNTERS")
	f.QueueCounters = nil
	f.DataCollections = nil
	return nil
}

func (f *Fake) hasLink(link int) bool {
	for _, d := range f.Net.Detectors {
		if d.LinkID == link {
			return true
		}
	}
	return false
}

func (f *Fake) AddQueueCounter(_ context.Context, link int, pos float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasLink(link) {
		return 0, &ConsistencyError{Op: "ADD_QUEUE_COUNTER", Element: fmt.Sprintf("link %d", link), Err: ErrUnknownElement}
	}
	id := len(f.QueueCounters) + 1
	f.record("ADD_QUEUE_COUNTER %d %g", link, pos)
	f.QueueCounters = append(f.QueueCounters, Placement{ID: id, LinkID: link, Position: pos})
	return id, nil
}

func (f *Fake) AddDataCollection(_ context.Context, link, lane int, pos float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasLink(link) {
		return 0, &ConsistencyError{Op: "ADD_DATA_COLLECTION", Element: fmt.Sprintf("lane %d-%d", link, lane), Err: ErrUnknownElement}
	}
	id := len(f.DataCollections) + 1
	f.record("ADD_DATA_COLLECTION %d %d %g", link, lane, pos)
	f.DataCollections = append(f.DataCollections, Placement{ID: id, LinkID: link, LaneID: lane, Position: pos})
	return id, nil
}

func (f *Fake) RunUntil(_ context.Context, instant int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if instant <= f.Now || instant > f.Settings.Horizon {
		return fmt.Errorf("run: instant %d outside (%d, %d]", instant, f.Now, f.Settings.Horizon)
	}
	f.record("RUN %d", instant)
	f.Now = instant
	return nil
}

func (f *Fake) RunToEnd(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RUN_END")
	f.Now = f.Settings.Horizon
	return nil
}

func (f *Fake) SetControllerState(_ context.Context, controller string, step signal.PhaseStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Net.Controller(controller)
	if !ok {
		return &ConsistencyError{Op: "SET", Element: controller, Err: ErrUnknownController}
	}
	if c.Groups > 0 && c.Groups != len(step) {
		return &ConsistencyError{Op: "SET", Element: controller,
			Err: fmt.Errorf("%w: %d states for %d groups", ErrGroupMismatch, len(step), c.Groups)}
	}
	f.record("SET %s %s", controller, step)
	f.Pushes = append(f.Pushes, Push{At: f.Now, Controller: controller, Step: append(signal.PhaseStep(nil), step...)})
	return nil
}

func (f *Fake) Query(_ context.Context, q Quantity, id, hour int) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.knows(q, id) {
		return nil, &ConsistencyError{Op: "QUERY", Element: fmt.Sprintf("%s %d", q, id), Err: ErrUnknownElement}
	}
	key := Reading{Quantity: q, ID: id, Hour: hour}
	if v, ok := f.Readings[key]; ok {
		return v, nil
	}
	if f.Fill != nil {
		return f.Fill(key), nil
	}
	return nil, nil
}

func (f *Fake) knows(q Quantity, id int) bool {
	switch q {
	case Vehicles, Occupancy:
		return id >= 1 && id <= len(f.DataCollections)
	case QueueStops:
		return id >= 1 && id <= len(f.QueueCounters)
	case TravelTime:
		for _, s := range f.Net.Sections {
			if s.ID == id {
				return true
			}
		}
	case LinkDelayRel, LinkDensity, LinkSpeed:
		return f.hasLink(id)
	case EmissionsCO, EmissionsVOC, LevelOfService:
		for _, n := range f.Net.Nodes {
			if n == id {
				return true
			}
		}
	}
	return false
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// SameGroups lists controllers that all have the given number of signal
// groups.
func SameGroups(groups int, names ...string) []Controller {
	out := make([]Controller, len(names))
	for i, name := range names {
		out[i] = Controller{Name: name, Groups: groups}
	}
	return out
}

// DemoNetwork builds a small corridor with one approach link per controller,
// each carrying a stop-bar and advance detector on two lanes, for running
// without an engine.
func DemoNetwork(controllers []Controller) Network {
	var n Network
	for i, c := range controllers {
		link := (i + 1) * 10
		n.Controllers = append(n.Controllers, c)
		for lane := 1; lane <= 2; lane++ {
			n.Detectors = append(n.Detectors,
				cluster.DetectorPosition{LinkID: link, LaneID: lane, Position: 180, LinkLength: 200},
				cluster.DetectorPosition{LinkID: link, LaneID: lane, Position: 188, LinkLength: 200},
			)
		}
		n.Sections = append(n.Sections, TravelTimeSection{ID: i + 1, StartLink: link, EndLink: link + 10, Distance: 400})
		n.Nodes = append(n.Nodes, i+1)
	}
	return n
}

// DemoReadings is a deterministic Fill function producing plausible values.
// Travel time and link speed are missing in the first hour of odd elements,
// and node 2 has no grade in the first hour, so the no-observation paths are
// exercised.
func DemoReadings(r Reading) *float64 {
	wave := 1 + 0.25*math.Sin(float64(r.ID+r.Hour))
	var v float64
	switch r.Quantity {
	case Vehicles:
		v = math.Round(420 * wave)
	case Occupancy:
		v = 0.12 * wave
	case QueueStops:
		v = math.Round(35 * wave)
	case TravelTime:
		if r.Hour == 1 && r.ID%2 == 1 {
			v = 0
		} else {
			v = 40 * wave
		}
	case EmissionsCO:
		v = 850 * wave
	case EmissionsVOC:
		v = 190 * wave
	case LinkDelayRel:
		v = 18 * wave
	case LinkDensity:
		v = 22 * wave
	case LinkSpeed:
		if r.Hour == 1 && (r.ID/10)%2 == 1 {
			v = 0
		} else {
			v = 32 * wave
		}
	case LevelOfService:
		if r.Hour == 1 && r.ID == 2 {
			return nil
		}
		v = float64(1 + (r.ID+r.Hour)%6)
	}
	return &v
}
