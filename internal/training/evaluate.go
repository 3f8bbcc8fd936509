package training

import (
	"context"
	"fmt"

	"neurodrive/internal/config"
	"neurodrive/internal/log"
	"neurodrive/internal/nn"
	"neurodrive/internal/sim"
	"neurodrive/internal/stats"
	"neurodrive/internal/storage"
	"neurodrive/internal/track"
)

// EvaluationGroup is the group stored genomes race in.
const EvaluationGroup = "genomes"

type EvaluateConfig struct {
	Hyperparameters config.Hyperparameters
	Track           *track.Track
	TrackName       string
	Genomes         string
	// Limit caps how many genomes of the set race. Zero races all of them.
	Limit int
	// TrackPlot is a file path for a chart of the genomes' paths.
	TrackPlot string
}

// Evaluation is one stored genome's race outcome, in set order.
type Evaluation struct {
	Index  int
	sim.Result
}

type EvaluateResult struct {
	Genomes     string
	Generation  int
	Evaluations []Evaluation
}

// Evaluate races a stored genome set once on a track without evolving it.
func (t *Trainer) Evaluate(ctx context.Context, cfg EvaluateConfig) (EvaluateResult, error) {
	if cfg.Track == nil {
		return EvaluateResult{}, ErrTrackRequired
	}
	h := cfg.Hyperparameters
	env, err := sim.NewTrackEnvironment(cfg.Track, h.Vehicle, h.Simulation, h.Network.FeedSpeed)
	if err != nil {
		return EvaluateResult{}, err
	}
	genomes, generation, err := storage.LoadGenomes(ctx, t.store, cfg.Genomes, cfg.Limit)
	if err != nil {
		return EvaluateResult{}, err
	}

	var observer sim.Observer[context.Context]
	var trails *stats.TrailRecorder
	if cfg.TrackPlot != "" {
		trails = stats.NewTrailRecorder()
		observer = trails
	}
	results, err := env.Race(ctx, map[string][]*nn.Network{EvaluationGroup: genomes}, observer)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("evaluate %s: %w", cfg.Genomes, err)
	}

	out := EvaluateResult{Genomes: cfg.Genomes, Generation: generation}
	for i, r := range results[EvaluationGroup] {
		out.Evaluations = append(out.Evaluations, Evaluation{Index: i, Result: r})
	}
	if trails != nil {
		if err := stats.PlotTrack(cfg.Track, trails.Trails(), cfg.TrackName, cfg.TrackPlot); err != nil {
			return EvaluateResult{}, fmt.Errorf("plot track: %w", err)
		}
	}

	t.log.Info("evaluated genomes",
		log.String("genomes", cfg.Genomes),
		log.String("track", cfg.TrackName),
		log.Int("count", len(out.Evaluations)),
	)
	return out, nil
}
