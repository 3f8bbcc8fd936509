package neurodrive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"neurodrive/internal/config"
	"neurodrive/internal/log"
	"neurodrive/internal/model"
	"neurodrive/internal/stats"
	"neurodrive/internal/storage"
	"neurodrive/internal/track"
	"neurodrive/internal/training"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "neurodrive.db"
	defaultRunsLimit  = 20
)

type Options struct {
	// StoreKind is memory, sqlite or file.
	StoreKind string
	// StorePath is the sqlite database file or the file store directory.
	StorePath  string
	RunsDir    string
	ExportsDir string
	Logger     *log.Logger
}

type Client struct {
	store   storage.Store
	trainer *training.Trainer

	initOnce sync.Once
	initErr  error

	runsDir    string
	exportsDir string
}

type TrainRequest struct {
	RunID string
	// ConfigFile is an INI hyperparameter file; defaults apply without one.
	ConfigFile string
	// TracksFile is a JSON tracks file; the built-in tracks apply without one.
	TracksFile string
	// Track is a track name or index.
	Track       string
	Generations int
	Population  int
	Seed        *int64
	ResumeFrom  string
	Checkpoint  string
	SaveEvery   int
	PlotTrails  bool
	Progress    func(training.Progress)
}

type TrainSummary struct {
	RunID             string
	Track             string
	Checkpoint        string
	ArtifactsDir      string
	InitialGeneration int
	BestByGeneration  []float64
	FinalBestFitness  float64
	Stopped           bool
}

type EvaluateRequest struct {
	ConfigFile string
	TracksFile string
	Track      string
	Genomes    string
	Limit      int
	TrackPlot  string
}

type EvaluationItem struct {
	Index   int
	Fitness float64
	Segment int
	Ticks   int
	Reason  string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Track            string
	Seed             int64
	Population       int
	Generations      int
	FinalBestFitness float64
}

// RunRef selects a run by id or the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type TrackItem struct {
	Index    int
	Name     string
	Segments int
	MinX     float64
	MinY     float64
	MaxX     float64
	MaxY     float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	storePath := opts.StorePath
	if storePath == "" {
		storePath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, storePath)
	if err != nil {
		return nil, err
	}
	trainer := training.NewTrainer(store)
	if opts.Logger != nil {
		trainer.WithLogger(opts.Logger)
	}
	return &Client{
		store:      store,
		trainer:    trainer,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init prepares the store. Other methods call it on first use.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	if err := c.Init(ctx); err != nil {
		return TrainSummary{}, err
	}
	h, err := loadHyperparameters(req.ConfigFile)
	if err != nil {
		return TrainSummary{}, err
	}
	if req.Generations < 0 || req.Population < 0 || req.SaveEvery < 0 {
		return TrainSummary{}, errors.New("generations, population and save every must be >= 0")
	}
	if req.Generations > 0 {
		h.Training.Generations = req.Generations
	}
	if req.Population > 0 {
		h.Evolution.PopulationSize = req.Population
		// parent limits that no longer fit fall back to a third of the population
		if h.Evolution.MaxParents >= req.Population {
			h.Evolution.MaxParents = max(2, req.Population/3)
		}
		h.Evolution.GoldenTickets = min(h.Evolution.GoldenTickets, h.Evolution.MaxParents)
	}
	if req.SaveEvery > 0 {
		h.Training.SaveEvery = req.SaveEvery
	}
	if req.Seed != nil {
		h.Evolution.Seed = *req.Seed
	}

	def, tr, err := loadTrack(req.TracksFile, req.Track)
	if err != nil {
		return TrainSummary{}, err
	}
	res, err := c.trainer.Train(ctx, training.TrainConfig{
		RunID:           req.RunID,
		Hyperparameters: h,
		Track:           tr,
		TrackName:       def.Name,
		TracksFile:      req.TracksFile,
		ResumeFrom:      req.ResumeFrom,
		Checkpoint:      req.Checkpoint,
		ArtifactsDir:    c.runsDir,
		PlotTrails:      req.PlotTrails,
		Progress:        req.Progress,
	})
	if err != nil {
		return TrainSummary{}, err
	}
	return TrainSummary{
		RunID:             res.RunID,
		Track:             def.Name,
		Checkpoint:        res.Checkpoint,
		ArtifactsDir:      res.ArtifactsDir,
		InitialGeneration: res.InitialGeneration,
		BestByGeneration:  append([]float64(nil), res.BestByGeneration...),
		FinalBestFitness:  res.BestFinalFitness,
		Stopped:           res.Stopped,
	}, nil
}

// Stop asks a run started by this client to finish after its current
// generation.
func (c *Client) Stop(runID string) error {
	return c.trainer.StopRun(runID)
}

func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) ([]EvaluationItem, error) {
	if req.Genomes == "" {
		return nil, errors.New("evaluate requires a genome set")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	h, err := loadHyperparameters(req.ConfigFile)
	if err != nil {
		return nil, err
	}
	def, tr, err := loadTrack(req.TracksFile, req.Track)
	if err != nil {
		return nil, err
	}
	res, err := c.trainer.Evaluate(ctx, training.EvaluateConfig{
		Hyperparameters: h,
		Track:           tr,
		TrackName:       def.Name,
		Genomes:         req.Genomes,
		Limit:           req.Limit,
		TrackPlot:       req.TrackPlot,
	})
	if err != nil {
		return nil, err
	}
	out := make([]EvaluationItem, 0, len(res.Evaluations))
	for _, e := range res.Evaluations {
		out = append(out, EvaluationItem{
			Index:   e.Index,
			Fitness: e.Fitness,
			Segment: int(e.Segment),
			Ticks:   e.Ticks,
			Reason:  string(e.Reason),
		})
	}
	return out, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Track:            e.Track,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(RunRef{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(ctx context.Context, ref RunRef) ([]float64, error) {
	runID, err := c.prepareRunQuery(ctx, ref)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Runs trained against another store still have their artifacts.
		if history, ok, err = stats.ReadFitnessHistory(c.runsDir, runID); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return append([]float64(nil), limited(history, ref.Limit)...), nil
}

func (c *Client) Diagnostics(ctx context.Context, ref RunRef) ([]model.GenerationDiagnostics, error) {
	runID, err := c.prepareRunQuery(ctx, ref)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return append([]model.GenerationDiagnostics(nil), limited(diagnostics, ref.Limit)...), nil
}

func (c *Client) Lineage(ctx context.Context, ref RunRef) ([]model.LineageRecord, error) {
	runID, err := c.prepareRunQuery(ctx, ref)
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	return append([]model.LineageRecord(nil), limited(lineage, ref.Limit)...), nil
}

func (c *Client) TopGenomes(ctx context.Context, ref RunRef) ([]model.TopGenomeRecord, error) {
	runID, err := c.prepareRunQuery(ctx, ref)
	if err != nil {
		return nil, err
	}
	top, ok, err := stats.ReadTopGenomes(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	return limited(top, ref.Limit), nil
}

// Summary condenses a run's fitness history.
func (c *Client) Summary(ctx context.Context, ref RunRef) (stats.FitnessSummary, error) {
	runID, err := c.resolveRunID(ref)
	if err != nil {
		return stats.FitnessSummary{}, err
	}
	history, err := c.FitnessHistory(ctx, RunRef{RunID: runID})
	if err != nil {
		return stats.FitnessSummary{}, err
	}
	return stats.Summarize(runID, history)
}

// GenomeSets lists the names of stored genome sets.
func (c *Client) GenomeSets(ctx context.Context) ([]string, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c.store.ListGenomeSets(ctx)
}

// Tracks describes every track of a tracks file, or the built-in tracks.
func (c *Client) Tracks(tracksFile string) ([]TrackItem, error) {
	defs, err := track.Load(tracksFile)
	if err != nil {
		return nil, err
	}
	out := make([]TrackItem, 0, len(defs))
	for i, d := range defs {
		tr, err := d.Build()
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", d.Name, err)
		}
		b := tr.Bounds()
		out = append(out, TrackItem{
			Index:    i,
			Name:     d.Name,
			Segments: tr.Len(),
			MinX:     b.Min.X,
			MinY:     b.Min.Y,
			MaxX:     b.Max.X,
			MaxY:     b.Max.Y,
		})
	}
	return out, nil
}

func (c *Client) prepareRunQuery(ctx context.Context, ref RunRef) (string, error) {
	if ref.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ref)
	if err != nil {
		return "", err
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	return runID, nil
}

func (c *Client) resolveRunID(ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if !ref.Latest {
		if ref.RunID == "" {
			return "", errors.New("run id or latest is required")
		}
		return ref.RunID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func limited[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func loadHyperparameters(path string) (config.Hyperparameters, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func loadTrack(tracksFile, key string) (track.Definition, *track.Track, error) {
	defs, err := track.Load(tracksFile)
	if err != nil {
		return track.Definition{}, nil, err
	}
	if key == "" {
		key = track.DefaultTrack
		if tracksFile != "" {
			key = "0"
		}
	}
	def, err := track.Select(defs, key)
	if err != nil {
		return track.Definition{}, nil, err
	}
	tr, err := def.Build()
	if err != nil {
		return track.Definition{}, nil, fmt.Errorf("track %s: %w", def.Name, err)
	}
	return def, tr, nil
}
