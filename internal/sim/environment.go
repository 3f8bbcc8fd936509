package sim

import (
	"context"
	"fmt"

	"neurodrive/internal/evo"
	"neurodrive/internal/nn"
	"neurodrive/internal/track"
	"neurodrive/internal/vehicle"
)

// Fitness rewards the furthest segment reached and penalises slow progress:
// segment² / ticks.
func Fitness(v *vehicle.Vehicle) float64 {
	seg := float64(v.Segment())
	return seg * seg / float64(v.Ticks())
}

// Result is the final state of one vehicle.
type Result struct {
	Fitness float64
	Segment track.SegmentID
	Ticks   int
	Reason  vehicle.Reason
}

// TrackEnvironment scores genomes by racing them all at once on a track,
// one vehicle per genome, starting from the track's start pose.
type TrackEnvironment struct {
	track     *track.Track
	params    vehicle.Params
	cfg       Config
	feedSpeed bool
}

var _ evo.Environment = (*TrackEnvironment)(nil)

func NewTrackEnvironment(t *track.Track, params vehicle.Params, cfg Config, feedSpeed bool) (*TrackEnvironment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TrackEnvironment{track: t, params: params, cfg: cfg, feedSpeed: feedSpeed}, nil
}

// Inputs is the network input width vehicles on this environment provide.
func (e *TrackEnvironment) Inputs() int {
	if e.feedSpeed {
		return vehicle.SurroundingRayCount + 1
	}
	return vehicle.SurroundingRayCount
}

// Simulation places one vehicle per genome at the start of the track.
func (e *TrackEnvironment) Simulation(groups map[string][]*nn.Network) (*Simulation, error) {
	s, err := New(e.track, e.cfg)
	if err != nil {
		return nil, err
	}
	position, heading := e.track.StartPose()
	for name, genomes := range groups {
		for i, g := range genomes {
			c, err := vehicle.NewNetworkController(g, vehicle.SurroundingRayCount, e.feedSpeed)
			if err != nil {
				return nil, fmt.Errorf("group %s genome %d: %w", name, i, err)
			}
			v := vehicle.New(e.params, c)
			v.Place(position, heading, 0)
			s.Add(name, v)
		}
	}
	return s, nil
}

// Evaluate runs one rollout to completion. The context is checked before the
// rollout starts; a started rollout is never interrupted.
func (e *TrackEnvironment) Evaluate(ctx context.Context, groups map[string][]*nn.Network) (map[string][]float64, error) {
	results, err := e.Race(ctx, groups, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(results))
	for name, rs := range results {
		fitness := make([]float64, len(rs))
		for i, r := range rs {
			fitness[i] = r.Fitness
		}
		out[name] = fitness
	}
	return out, nil
}

// Race is Evaluate with full per-vehicle results and an optional observer
// that sees every step.
func (e *TrackEnvironment) Race(ctx context.Context, groups map[string][]*nn.Network, observer Observer[context.Context]) (map[string][]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := e.Simulation(groups)
	if err != nil {
		return nil, err
	}
	if err := NewRollout(s, observer).Finish(ctx); err != nil {
		return nil, err
	}
	return Results(s), nil
}

// Results reduces every vehicle of a finished simulation.
func Results(s *Simulation) map[string][]Result {
	out := make(map[string][]Result, len(s.groups))
	for name, vs := range s.groups {
		rs := make([]Result, len(vs))
		for i, v := range vs {
			rs[i] = Result{Fitness: Fitness(v), Segment: v.Segment(), Ticks: v.Ticks(), Reason: v.Reason()}
		}
		out[name] = rs
	}
	return out
}
