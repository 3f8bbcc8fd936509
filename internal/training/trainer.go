// Package training runs neuroevolution on a track and persists its results.
package training

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"neurodrive/internal/config"
	"neurodrive/internal/evo"
	"neurodrive/internal/log"
	"neurodrive/internal/model"
	"neurodrive/internal/nn"
	"neurodrive/internal/sim"
	"neurodrive/internal/stats"
	"neurodrive/internal/storage"
	"neurodrive/internal/track"
	"neurodrive/internal/vehicle"
)

const defaultTopGenomes = 5

var (
	ErrRunStopped    = errors.New("run stopped")
	ErrRunNotFound   = errors.New("run not found")
	ErrRunActive     = errors.New("run already active")
	ErrGenomeShape   = errors.New("stored genomes do not fit the sensor layout")
	ErrTrackRequired = errors.New("track is required")
)

type TrainConfig struct {
	RunID           string
	Hyperparameters config.Hyperparameters
	Track           *track.Track
	TrackName       string
	TracksFile      string
	// ResumeFrom names a stored genome set to seed the population with.
	ResumeFrom string
	// Checkpoint names the genome set checkpoints are written to. Defaults
	// to the run id.
	Checkpoint string
	// ArtifactsDir receives run artifacts and plots when set.
	ArtifactsDir string
	// PlotTrails races the final top genomes once more to draw their paths.
	PlotTrails bool
	Progress   func(Progress)
}

// Progress is reported after every completed generation.
type Progress struct {
	RunID       string
	Completed   int
	Total       int
	Diagnostics model.GenerationDiagnostics
	Elapsed     time.Duration
}

type Result struct {
	RunID                 string
	Checkpoint            string
	InitialGeneration     int
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	BestFinalFitness      float64
	TopFinal              []model.TopGenomeRecord
	Lineage               []model.LineageRecord
	ArtifactsDir          string
	// Stopped is set when StopRun ended the run before all generations.
	Stopped bool
}

// Trainer owns a store and the cancel handles of its active runs.
type Trainer struct {
	store storage.Store
	log   *log.Logger
	now   func() time.Time

	mu   sync.Mutex
	runs map[string]context.CancelCauseFunc
}

func NewTrainer(store storage.Store) *Trainer {
	return &Trainer{
		store: store,
		log:   log.Default().Named("training"),
		now:   time.Now,
		runs:  make(map[string]context.CancelCauseFunc),
	}
}

// WithLogger replaces the trainer's logger.
func (t *Trainer) WithLogger(l *log.Logger) *Trainer {
	t.log = l
	return t
}

func (t *Trainer) Store() storage.Store {
	return t.store
}

// Train runs the configured number of generations. Stopping the run through
// StopRun persists the generations completed so far and returns them with
// Stopped set; cancelling ctx does the same but also returns ctx's error.
func (t *Trainer) Train(ctx context.Context, cfg TrainConfig) (Result, error) {
	if cfg.Track == nil {
		return Result{}, ErrTrackRequired
	}
	h := cfg.Hyperparameters
	if err := h.Validate(); err != nil {
		return Result{}, err
	}
	evoCfg, err := h.EvolutionConfig()
	if err != nil {
		return Result{}, err
	}
	env, err := sim.NewTrackEnvironment(cfg.Track, h.Vehicle, h.Simulation, h.Network.FeedSpeed)
	if err != nil {
		return Result{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = "run-" + uuid.NewString()
	}
	checkpoint := cfg.Checkpoint
	if checkpoint == "" {
		checkpoint = runID
	}
	logger := t.log.With(log.String("run", runID))

	ne, err := t.population(ctx, cfg, evoCfg, env)
	if err != nil {
		return Result{}, err
	}
	initial := ne.Generation()

	runCtx, err := t.registerRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	defer t.unregisterRun(runID)

	logger.Info("training started",
		log.String("track", cfg.TrackName),
		log.Int("generations", h.Training.Generations),
		log.Int("population", evoCfg.PopulationSize),
		log.Int("initial_generation", initial),
		log.String("resume_from", cfg.ResumeFrom),
	)

	// Checkpoints and the final save use a context that survives a stop so
	// completed work is kept.
	persistCtx := context.WithoutCancel(ctx)
	started := t.now()
	result := Result{RunID: runID, Checkpoint: checkpoint, InitialGeneration: initial}
	var stepErr error
	for completed := 0; completed < h.Training.Generations; completed++ {
		diag, err := ne.Step(runCtx, env)
		if err != nil {
			stepErr = err
			break
		}
		result.BestByGeneration = append(result.BestByGeneration, diag.BestFitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
		logger.Info("generation",
			log.Int("generation", diag.Generation),
			log.Float64("best", diag.BestFitness),
			log.Float64("mean", diag.MeanFitness),
			log.Float64("min", diag.MinFitness),
			log.Int("parents", diag.Parents),
			log.Int("mutated", diag.Mutated),
		)
		if cfg.Progress != nil {
			cfg.Progress(Progress{
				RunID:       runID,
				Completed:   completed + 1,
				Total:       h.Training.Generations,
				Diagnostics: diag,
				Elapsed:     t.now().Sub(started),
			})
		}
		if every := h.Training.SaveEvery; every > 0 && (completed+1)%every == 0 {
			if err := t.checkpoint(persistCtx, ne, checkpoint, h.Training.TopGenomes); err != nil {
				return Result{}, err
			}
			logger.Debug("checkpoint saved", log.String("genomes", checkpoint), log.Int("generation", ne.Generation()))
		}
	}

	if stepErr != nil {
		if runCtx.Err() == nil {
			return Result{}, stepErr
		}
		if !errors.Is(context.Cause(runCtx), ErrRunStopped) {
			logger.Warn("training cancelled", log.ErrorField(stepErr))
		}
		result.Stopped = true
	}

	if err := t.persist(persistCtx, ne, cfg, &result); err != nil {
		return Result{}, err
	}
	if cfg.ArtifactsDir != "" {
		if err := t.writeArtifacts(persistCtx, cfg, env, &result); err != nil {
			return Result{}, err
		}
	}

	logger.Info("training finished",
		log.Int("generations", len(result.BestByGeneration)),
		log.Float64("best", result.BestFinalFitness),
		log.Bool("stopped", result.Stopped),
		log.Duration("elapsed", t.now().Sub(started)),
	)
	if result.Stopped && !errors.Is(context.Cause(runCtx), ErrRunStopped) {
		return result, stepErr
	}
	return result, nil
}

func (t *Trainer) population(ctx context.Context, cfg TrainConfig, evoCfg evo.Config, env *sim.TrackEnvironment) (*evo.Neuroevolution, error) {
	h := cfg.Hyperparameters
	if cfg.ResumeFrom == "" {
		return evo.NewRandom(evoCfg, h.Network.LayerSpecs(), vehicle.ControlOutputs)
	}
	genomes, generation, err := storage.LoadGenomes(ctx, t.store, cfg.ResumeFrom, evoCfg.PopulationSize)
	if err != nil {
		return nil, err
	}
	for i, g := range genomes {
		if g.InputWidth() != env.Inputs() || g.OutputWidth() != vehicle.ControlOutputs {
			return nil, fmt.Errorf("%w: genome %d of %s maps %d inputs to %d outputs, want %d to %d",
				ErrGenomeShape, i, cfg.ResumeFrom, g.InputWidth(), g.OutputWidth(), env.Inputs(), vehicle.ControlOutputs)
		}
	}
	return evo.FromGenomes(evoCfg, genomes, generation)
}

func (t *Trainer) checkpoint(ctx context.Context, ne *evo.Neuroevolution, name string, limit int) error {
	if limit <= 0 {
		limit = len(ne.Adults())
	}
	genomes := ne.Top(limit)
	if len(genomes) == 0 {
		return nil
	}
	if err := storage.SaveGenomes(ctx, t.store, name, ne.Generation(), genomes); err != nil {
		return fmt.Errorf("checkpoint %s: %w", name, err)
	}
	return nil
}

func (t *Trainer) persist(ctx context.Context, ne *evo.Neuroevolution, cfg TrainConfig, result *Result) error {
	if err := t.checkpoint(ctx, ne, result.Checkpoint, cfg.Hyperparameters.Training.TopGenomes); err != nil {
		return err
	}

	result.Lineage = ne.Lineage()
	result.TopFinal = lo.Map(ne.Adults()[:min(defaultTopGenomes, len(ne.Adults()))], func(a evo.Adult, i int) model.TopGenomeRecord {
		return model.TopGenomeRecord{Rank: i + 1, Fitness: a.Fitness, Genome: nn.ToRecord(a.Genome, a.ID)}
	})
	if best, err := ne.Best(); err == nil {
		result.BestFinalFitness = best.Fitness
	}

	merged := *result
	if cfg.ResumeFrom != "" {
		var err error
		if merged, err = t.mergeExistingRunHistory(ctx, result.RunID, merged); err != nil {
			return err
		}
	}
	if err := t.store.SaveFitnessHistory(ctx, result.RunID, merged.BestByGeneration); err != nil {
		return err
	}
	if err := t.store.SaveGenerationDiagnostics(ctx, result.RunID, merged.GenerationDiagnostics); err != nil {
		return err
	}
	if err := t.store.SaveLineage(ctx, result.RunID, merged.Lineage); err != nil {
		return err
	}
	*result = merged
	return nil
}

// mergeExistingRunHistory prefixes the records a previous session of the same
// run id stored, so a resumed run keeps one continuous history.
func (t *Trainer) mergeExistingRunHistory(ctx context.Context, runID string, current Result) (Result, error) {
	if history, ok, err := t.store.GetFitnessHistory(ctx, runID); err != nil {
		return Result{}, err
	} else if ok {
		current.BestByGeneration = append(append([]float64{}, history...), current.BestByGeneration...)
	}
	if diagnostics, ok, err := t.store.GetGenerationDiagnostics(ctx, runID); err != nil {
		return Result{}, err
	} else if ok {
		current.GenerationDiagnostics = append(append([]model.GenerationDiagnostics{}, diagnostics...), current.GenerationDiagnostics...)
	}
	if lineage, ok, err := t.store.GetLineage(ctx, runID); err != nil {
		return Result{}, err
	} else if ok {
		current.Lineage = append(append([]model.LineageRecord{}, lineage...), current.Lineage...)
	}
	return current, nil
}

func (t *Trainer) writeArtifacts(ctx context.Context, cfg TrainConfig, env *sim.TrackEnvironment, result *Result) error {
	h := cfg.Hyperparameters
	runDir, err := stats.WriteRunArtifacts(cfg.ArtifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:             result.RunID,
			Track:             cfg.TrackName,
			TracksFile:        cfg.TracksFile,
			ResumeFrom:        cfg.ResumeFrom,
			InitialGeneration: result.InitialGeneration,
			Generations:       h.Training.Generations,
			PopulationSize:    h.Evolution.PopulationSize,
			GoldenTickets:     h.Evolution.GoldenTickets,
			MaxParents:        h.Evolution.MaxParents,
			MutationChance:    h.Evolution.MutationChance,
			ReevaluateParents: h.Evolution.ReevaluateParents,
			Seed:              h.Evolution.Seed,
			Hidden:            h.Network.Hidden,
			Activation:        h.Network.Activation,
			FeedSpeed:         h.Network.FeedSpeed,
			DT:                h.Simulation.DT,
			MaxTicks:          h.Simulation.MaxTicks,
			StallTicks:        h.Simulation.StallTicks,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		TopGenomes:            result.TopFinal,
		Lineage:               result.Lineage,
	})
	if err != nil {
		return err
	}
	result.ArtifactsDir = runDir
	if err := h.Save(filepath.Join(runDir, stats.HyperparamsFile)); err != nil {
		return fmt.Errorf("write hyperparameters: %w", err)
	}

	if len(result.GenerationDiagnostics) > 0 {
		if err := stats.PlotFitness(result.GenerationDiagnostics, result.RunID, filepath.Join(runDir, stats.FitnessPlotFile)); err != nil {
			return fmt.Errorf("plot fitness: %w", err)
		}
	}
	if cfg.PlotTrails && len(result.TopFinal) > 0 {
		genomes := make([]*nn.Network, 0, len(result.TopFinal))
		for _, rec := range result.TopFinal {
			g, err := nn.FromRecord(rec.Genome)
			if err != nil {
				return err
			}
			genomes = append(genomes, g)
		}
		trails := stats.NewTrailRecorder()
		if _, err := env.Race(ctx, map[string][]*nn.Network{"top": genomes}, trails); err != nil {
			return fmt.Errorf("race top genomes: %w", err)
		}
		if err := stats.PlotTrack(cfg.Track, trails.Trails(), cfg.TrackName, filepath.Join(runDir, stats.TrackPlotFile)); err != nil {
			return fmt.Errorf("plot track: %w", err)
		}
	}

	return stats.AppendRunIndex(cfg.ArtifactsDir, stats.RunIndexEntry{
		RunID:            result.RunID,
		Track:            cfg.TrackName,
		PopulationSize:   h.Evolution.PopulationSize,
		Generations:      len(result.BestByGeneration),
		Seed:             h.Evolution.Seed,
		FinalBestFitness: result.BestFinalFitness,
		CreatedAtUTC:     t.now().UTC().Format(time.RFC3339Nano),
	})
}

// StopRun asks an active run to finish after its current generation.
func (t *Trainer) StopRun(runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cancel(ErrRunStopped)
	return nil
}

// ActiveRuns lists the ids of runs in progress.
func (t *Trainer) ActiveRuns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := lo.Keys(t.runs)
	slices.Sort(ids)
	return ids
}

func (t *Trainer) registerRun(ctx context.Context, runID string) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	t.runs[runID] = cancel
	return runCtx, nil
}

func (t *Trainer) unregisterRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.runs[runID]; ok {
		cancel(nil)
		delete(t.runs, runID)
	}
}
