package training

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"neurodrive/internal/config"
	"neurodrive/internal/log"
	"neurodrive/internal/nn"
	"neurodrive/internal/stats"
	"neurodrive/internal/storage"
	"neurodrive/internal/track"
)

func testTrack(t *testing.T) *track.Track {
	t.Helper()
	tr, err := track.FromPoints([]track.Station{
		{Left: r2.Vec{X: 0, Y: -20}, Right: r2.Vec{X: 0, Y: 20}},
		{Left: r2.Vec{X: 100, Y: -20}, Right: r2.Vec{X: 100, Y: 20}},
		{Left: r2.Vec{X: 200, Y: -20}, Right: r2.Vec{X: 200, Y: 20}},
		{Left: r2.Vec{X: 300, Y: -20}, Right: r2.Vec{X: 300, Y: 20}},
	})
	require.NoError(t, err)
	return tr
}

func testHyperparameters() config.Hyperparameters {
	h := config.Default()
	h.Evolution.PopulationSize = 10
	h.Evolution.GoldenTickets = 2
	h.Evolution.MaxParents = 5
	h.Evolution.Seed = 3
	h.Network.Hidden = []int{4}
	h.Simulation.MaxTicks = 400
	h.Simulation.StallTicks = 50
	h.Training.Generations = 3
	h.Training.SaveEvery = 2
	return h
}

func newTestTrainer() (*Trainer, storage.Store) {
	store := storage.NewMemoryStore()
	return NewTrainer(store).WithLogger(log.Nop()), store
}

func TestTrainPersistsRun(t *testing.T) {
	trainer, store := newTestTrainer()
	artifacts := t.TempDir()
	var progress []Progress

	res, err := trainer.Train(context.Background(), TrainConfig{
		RunID:           "run-a",
		Hyperparameters: testHyperparameters(),
		Track:           testTrack(t),
		TrackName:       "straight",
		ArtifactsDir:    artifacts,
		PlotTrails:      true,
		Progress:        func(p Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, "run-a", res.RunID)
	assert.Equal(t, "run-a", res.Checkpoint)
	assert.False(t, res.Stopped)
	require.Len(t, res.BestByGeneration, 3)
	require.Len(t, res.GenerationDiagnostics, 3)
	for i := 1; i < len(res.BestByGeneration); i++ {
		assert.GreaterOrEqual(t, res.BestByGeneration[i], res.BestByGeneration[i-1])
	}
	assert.Equal(t, res.BestByGeneration[2], res.BestFinalFitness)
	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[2].Completed)
	assert.Equal(t, 3, progress[2].Total)

	require.Len(t, res.TopFinal, 5)
	for i, top := range res.TopFinal {
		assert.Equal(t, i+1, top.Rank)
		assert.NotEmpty(t, top.Genome.ID)
	}
	assert.NotEmpty(t, res.Lineage)

	history, ok, err := store.GetFitnessHistory(context.Background(), "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.BestByGeneration, history)

	genomes, generation, err := storage.LoadGenomes(context.Background(), store, "run-a", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, generation)
	assert.Len(t, genomes, 10)

	for _, file := range []string{stats.ConfigFile, stats.HistoryFile, stats.FitnessPlotFile, stats.TrackPlotFile} {
		_, err := os.Stat(filepath.Join(artifacts, "run-a", file))
		assert.NoError(t, err, file)
	}
	runs, err := stats.ListRunIndex(artifacts)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "straight", runs[0].Track)

	saved, err := config.Load(filepath.Join(artifacts, "run-a", stats.HyperparamsFile))
	require.NoError(t, err)
	assert.Equal(t, testHyperparameters().Evolution.PopulationSize, saved.Evolution.PopulationSize)
	assert.Equal(t, testHyperparameters().Network.Hidden, saved.Network.Hidden)
	assert.Equal(t, testHyperparameters().Simulation, saved.Simulation)
}

func TestTrainResumesFromCheckpoint(t *testing.T) {
	trainer, store := newTestTrainer()
	h := testHyperparameters()
	tr := testTrack(t)

	first, err := trainer.Train(context.Background(), TrainConfig{RunID: "run-r", Hyperparameters: h, Track: tr})
	require.NoError(t, err)

	second, err := trainer.Train(context.Background(), TrainConfig{
		RunID:           "run-r",
		Hyperparameters: h,
		Track:           tr,
		ResumeFrom:      "run-r",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, second.InitialGeneration)
	require.Len(t, second.BestByGeneration, 6)
	assert.Equal(t, first.BestByGeneration, second.BestByGeneration[:3])
	require.Len(t, second.GenerationDiagnostics, 6)
	for i, d := range second.GenerationDiagnostics {
		assert.Equal(t, i, d.Generation)
	}
	assert.GreaterOrEqual(t, second.BestByGeneration[3], first.BestFinalFitness)

	_, generation, err := storage.LoadGenomes(context.Background(), store, "run-r", 0)
	require.NoError(t, err)
	assert.Equal(t, 6, generation)
}

func TestStopRunKeepsCompletedGenerations(t *testing.T) {
	trainer, store := newTestTrainer()
	h := testHyperparameters()
	h.Training.Generations = 10

	res, err := trainer.Train(context.Background(), TrainConfig{
		RunID:           "run-s",
		Hyperparameters: h,
		Track:           testTrack(t),
		Progress: func(p Progress) {
			assert.Equal(t, []string{"run-s"}, trainer.ActiveRuns())
			require.NoError(t, trainer.StopRun(p.RunID))
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Len(t, res.BestByGeneration, 1)
	assert.Empty(t, trainer.ActiveRuns())

	_, generation, err := storage.LoadGenomes(context.Background(), store, "run-s", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, generation)

	assert.ErrorIs(t, trainer.StopRun("run-s"), ErrRunNotFound)
}

func TestCancelledContextReturnsError(t *testing.T) {
	trainer, store := newTestTrainer()
	h := testHyperparameters()
	h.Training.Generations = 10
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := trainer.Train(ctx, TrainConfig{
		RunID:           "run-c",
		Hyperparameters: h,
		Track:           testTrack(t),
		Progress:        func(Progress) { cancel() },
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Stopped)
	assert.Len(t, res.BestByGeneration, 1)

	history, ok, err := store.GetFitnessHistory(context.Background(), "run-c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, history, 1)
}

func TestTrainRejectsBadInput(t *testing.T) {
	trainer, store := newTestTrainer()
	h := testHyperparameters()

	_, err := trainer.Train(context.Background(), TrainConfig{Hyperparameters: h})
	assert.ErrorIs(t, err, ErrTrackRequired)

	bad := h
	bad.Evolution.GoldenTickets = 1
	_, err = trainer.Train(context.Background(), TrainConfig{Hyperparameters: bad, Track: testTrack(t)})
	assert.Error(t, err)

	_, err = trainer.Train(context.Background(), TrainConfig{Hyperparameters: h, Track: testTrack(t), ResumeFrom: "nothing"})
	assert.ErrorIs(t, err, storage.ErrGenomesNotFound)

	rng := rand.New(rand.NewSource(1))
	var wrong []*nn.Network
	for range 3 {
		g, err := nn.NewRandom(rng, []nn.LayerSpec{{Neurons: 3, Activation: "tanh"}, {Neurons: 4, Activation: "tanh"}}, 2)
		require.NoError(t, err)
		wrong = append(wrong, g)
	}
	require.NoError(t, storage.SaveGenomes(context.Background(), store, "narrow", 0, wrong))
	_, err = trainer.Train(context.Background(), TrainConfig{Hyperparameters: h, Track: testTrack(t), ResumeFrom: "narrow"})
	assert.ErrorIs(t, err, ErrGenomeShape)
}

func TestEvaluateStoredGenomes(t *testing.T) {
	trainer, _ := newTestTrainer()
	h := testHyperparameters()
	h.Training.TopGenomes = 4
	tr := testTrack(t)

	_, err := trainer.Train(context.Background(), TrainConfig{RunID: "run-e", Hyperparameters: h, Track: tr})
	require.NoError(t, err)

	plot := filepath.Join(t.TempDir(), "paths.png")
	res, err := trainer.Evaluate(context.Background(), EvaluateConfig{
		Hyperparameters: h,
		Track:           tr,
		TrackName:       "straight",
		Genomes:         "run-e",
		Limit:           2,
		TrackPlot:       plot,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generation)
	require.Len(t, res.Evaluations, 2)
	for i, e := range res.Evaluations {
		assert.Equal(t, i, e.Index)
		assert.GreaterOrEqual(t, e.Fitness, 0.0)
		assert.NotEmpty(t, e.Reason)
	}
	_, err = os.Stat(plot)
	assert.NoError(t, err)

	_, err = trainer.Evaluate(context.Background(), EvaluateConfig{Hyperparameters: h, Track: tr, Genomes: "missing"})
	assert.ErrorIs(t, err, storage.ErrGenomesNotFound)
}
