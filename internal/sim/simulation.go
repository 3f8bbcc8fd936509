package sim

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"neurodrive/internal/track"
	"neurodrive/internal/vehicle"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config controls the fixed-step driver.
type Config struct {
	// DT is the fixed timestep in seconds.
	DT float64 `ini:"dt"`
	// MaxTicks deactivates vehicles still running after this many steps. Zero
	// disables the limit.
	MaxTicks int `ini:"max_ticks"`
	// StallTicks deactivates vehicles that reached no new segment for this
	// many steps. Zero disables the limit.
	StallTicks int `ini:"stall_ticks"`
}

func DefaultConfig() Config {
	return Config{DT: 0.1, MaxTicks: 10000, StallTicks: 300}
}

func (c Config) Validate() error {
	if !(c.DT > 0) {
		return fmt.Errorf("%w: dt must be > 0", ErrInvalidConfig)
	}
	if c.MaxTicks < 0 || c.StallTicks < 0 {
		return fmt.Errorf("%w: tick limits must be >= 0", ErrInvalidConfig)
	}
	return nil
}

type progress struct {
	best  track.SegmentID
	since int
}

// Simulation advances named groups of vehicles on one track in lockstep.
type Simulation struct {
	track *track.Track
	cfg   Config

	groups   map[string][]*vehicle.Vehicle
	progress map[*vehicle.Vehicle]*progress
	steps    int
	leader   Leader
}

func New(t *track.Track, cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulation{
		track:    t,
		cfg:      cfg,
		groups:   map[string][]*vehicle.Vehicle{},
		progress: map[*vehicle.Vehicle]*progress{},
	}, nil
}

// Add appends a vehicle to a group. Vehicles keep their insertion order.
func (s *Simulation) Add(group string, v *vehicle.Vehicle) {
	s.groups[group] = append(s.groups[group], v)
	s.progress[v] = &progress{best: v.Segment()}
}

func (s *Simulation) Track() *track.Track {
	return s.track
}

func (s *Simulation) Config() Config {
	return s.cfg
}

// Steps counts completed Step calls.
func (s *Simulation) Steps() int {
	return s.steps
}

// GroupNames returns the group names in sorted order, the order vehicles are
// stepped in.
func (s *Simulation) GroupNames() []string {
	return slices.Sorted(maps.Keys(s.groups))
}

func (s *Simulation) Vehicles(group string) []*vehicle.Vehicle {
	return slices.Clone(s.groups[group])
}

// Active counts vehicles that have not stopped.
func (s *Simulation) Active() int {
	n := 0
	for _, vs := range s.groups {
		for _, v := range vs {
			if v.Active() {
				n++
			}
		}
	}
	return n
}

func (s *Simulation) Done() bool {
	return s.Active() == 0
}

// Step ticks every active vehicle once, then applies the tick and stall
// limits. A geometry or controller fault aborts the step.
func (s *Simulation) Step() error {
	s.steps++
	for _, name := range s.GroupNames() {
		for i, v := range s.groups[name] {
			if !v.Active() {
				continue
			}
			if err := v.Tick(s.track, s.cfg.DT); err != nil {
				return fmt.Errorf("step %d: group %s vehicle %d: %w", s.steps, name, i, err)
			}
			s.limit(v)
		}
	}
	s.updateLeader()
	return nil
}

func (s *Simulation) limit(v *vehicle.Vehicle) {
	if !v.Active() {
		return
	}
	p := s.progress[v]
	if v.Segment() > p.best {
		p.best = v.Segment()
		p.since = s.steps
	}
	switch {
	case s.cfg.MaxTicks > 0 && s.steps >= s.cfg.MaxTicks:
		v.Deactivate(vehicle.ReasonTickLimit)
	case s.cfg.StallTicks > 0 && s.steps-p.since >= s.cfg.StallTicks:
		v.Deactivate(vehicle.ReasonStalled)
	}
}

// Leader is the active vehicle furthest along the track. Once every vehicle
// has stopped the last leader is kept.
type Leader struct {
	Group    string
	Index    int
	Segment  track.SegmentID
	Position r2.Vec
	Found    bool
}

func (s *Simulation) Leader() Leader {
	return s.leader
}

func (s *Simulation) updateLeader() {
	var next Leader
	for _, name := range s.GroupNames() {
		for i, v := range s.groups[name] {
			if !v.Active() || (next.Found && v.Segment() <= next.Segment) {
				continue
			}
			next = Leader{
				Group:    name,
				Index:    i,
				Segment:  v.Segment(),
				Position: v.Body().Shape.Centroid(),
				Found:    true,
			}
		}
	}
	if next.Found {
		s.leader = next
	}
}

// Views snapshots every vehicle, grouped and in insertion order.
func (s *Simulation) Views() map[string][]vehicle.View {
	out := make(map[string][]vehicle.View, len(s.groups))
	for name, vs := range s.groups {
		views := make([]vehicle.View, len(vs))
		for i, v := range vs {
			views[i] = v.View()
		}
		out[name] = views
	}
	return out
}

// Run steps until every vehicle has stopped.
func (s *Simulation) Run() error {
	for !s.Done() {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}
