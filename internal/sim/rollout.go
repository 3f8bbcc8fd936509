package sim

import (
	"errors"

	"neurodrive/internal/track"
	"neurodrive/internal/vehicle"
)

var ErrRolloutFinished = errors.New("rollout already finished")

// Snapshot is the read-only state handed to observers after a step.
type Snapshot struct {
	Step     int
	Track    *track.Track
	Vehicles map[string][]vehicle.View
	Leader   Leader
	Done     bool
}

// Observer sees every completed step of a rollout together with the frame
// the driver resumed it with, a render target for example.
type Observer[C any] interface {
	Observe(frame C, snap Snapshot) error
}

type ObserverFunc[C any] func(frame C, snap Snapshot) error

func (f ObserverFunc[C]) Observe(frame C, snap Snapshot) error {
	return f(frame, snap)
}

type rolloutState int

const (
	rolloutReady rolloutState = iota
	rolloutRunning
	rolloutDone
	rolloutFailed
)

// StepResult summarises one resumed step.
type StepResult struct {
	Step   int
	Active int
	Leader Leader
	Done   bool
}

// Rollout drives a Simulation one fixed step per Resume call, so an external
// loop can interleave its own work between steps. It never suspends inside a
// step.
type Rollout[C any] struct {
	sim      *Simulation
	observer Observer[C]
	state    rolloutState
	err      error
}

// NewRollout wraps sim. observer may be nil.
func NewRollout[C any](sim *Simulation, observer Observer[C]) *Rollout[C] {
	r := &Rollout[C]{sim: sim, observer: observer}
	if sim.Done() {
		r.state = rolloutDone
	}
	return r
}

func (r *Rollout[C]) Simulation() *Simulation {
	return r.sim
}

// Done reports whether the rollout finished or failed.
func (r *Rollout[C]) Done() bool {
	return r.state == rolloutDone || r.state == rolloutFailed
}

// Resume performs one step and passes the result to the observer. After the
// last step it returns ErrRolloutFinished; after a failure it keeps returning
// the failure.
func (r *Rollout[C]) Resume(frame C) (StepResult, error) {
	switch r.state {
	case rolloutDone:
		return StepResult{Step: r.sim.Steps(), Leader: r.sim.Leader(), Done: true}, ErrRolloutFinished
	case rolloutFailed:
		return StepResult{Step: r.sim.Steps()}, r.err
	}
	r.state = rolloutRunning

	if err := r.sim.Step(); err != nil {
		return r.fail(err)
	}
	result := StepResult{
		Step:   r.sim.Steps(),
		Active: r.sim.Active(),
		Leader: r.sim.Leader(),
	}
	result.Done = result.Active == 0
	if r.observer != nil {
		snap := Snapshot{
			Step:     result.Step,
			Track:    r.sim.Track(),
			Vehicles: r.sim.Views(),
			Leader:   result.Leader,
			Done:     result.Done,
		}
		if err := r.observer.Observe(frame, snap); err != nil {
			return r.fail(err)
		}
	}
	if result.Done {
		r.state = rolloutDone
	}
	return result, nil
}

func (r *Rollout[C]) fail(err error) (StepResult, error) {
	r.state = rolloutFailed
	r.err = err
	return StepResult{Step: r.sim.Steps()}, err
}

// Finish resumes with the same frame until the rollout is done.
func (r *Rollout[C]) Finish(frame C) error {
	for !r.Done() {
		if _, err := r.Resume(frame); err != nil {
			return err
		}
	}
	return r.err
}
