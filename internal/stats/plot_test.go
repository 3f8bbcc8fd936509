package stats

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"neurodrive/internal/sim"
	"neurodrive/internal/track"
	"neurodrive/internal/vehicle"
)

var pngMagic = []byte("\x89PNG")

func TestPlotFitness(t *testing.T) {
	dir := fs.NewDir(t, "plots")
	path := dir.Join(FitnessPlotFile)

	err := PlotFitness(sampleArtifacts("run-plot").GenerationDiagnostics, "run-plot", path)
	assert.NilError(t, err)

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, bytes.HasPrefix(data, pngMagic))

	assert.ErrorContains(t, PlotFitness(nil, "empty", path), "no generations")
}

func TestPlotTrackWithTrails(t *testing.T) {
	tr, err := track.FromPoints([]track.Station{
		{Left: r2.Vec{X: 0, Y: -20}, Right: r2.Vec{X: 0, Y: 20}},
		{Left: r2.Vec{X: 100, Y: -20}, Right: r2.Vec{X: 100, Y: 20}},
		{Left: r2.Vec{X: 200, Y: -30}, Right: r2.Vec{X: 200, Y: 30}},
	})
	assert.NilError(t, err)

	rec := NewTrailRecorder()
	frames := []sim.Snapshot{
		{Step: 1, Vehicles: map[string][]vehicle.View{
			"children": {{Center: r2.Vec{X: 10}, Active: true}, {Center: r2.Vec{X: 10}, Active: true}},
		}},
		{Step: 2, Vehicles: map[string][]vehicle.View{
			"children": {{Center: r2.Vec{X: 20}, Active: true}, {Center: r2.Vec{X: 12}, Active: false}},
		}},
		{Step: 3, Vehicles: map[string][]vehicle.View{
			"children": {{Center: r2.Vec{X: 30}, Active: false}, {Center: r2.Vec{X: 12}, Active: false}},
		}},
		{Step: 4, Vehicles: map[string][]vehicle.View{
			"children": {{Center: r2.Vec{X: 30}, Active: false}, {Center: r2.Vec{X: 12}, Active: false}},
		}},
	}
	for _, f := range frames {
		assert.NilError(t, rec.Observe(context.Background(), f))
	}

	trails := rec.Trails()
	assert.Assert(t, is.Len(trails, 2))
	assert.Equal(t, trails[0].Name, "children/0")
	assert.Assert(t, is.Len(trails[0].Points, 3))
	assert.Equal(t, trails[1].Name, "children/1")
	assert.Assert(t, is.Len(trails[1].Points, 2))

	dir := fs.NewDir(t, "plots")
	path := dir.Join(TrackPlotFile)
	assert.NilError(t, PlotTrack(tr, trails, "straight", path))

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, bytes.HasPrefix(data, pngMagic))
}

func TestExportIncludesPlots(t *testing.T) {
	baseDir := fs.NewDir(t, "runs")
	artifacts := sampleArtifacts("run-plots")
	runDir, err := WriteRunArtifacts(baseDir.Path(), artifacts)
	assert.NilError(t, err)
	assert.NilError(t, PlotFitness(artifacts.GenerationDiagnostics, "run-plots", filepath.Join(runDir, FitnessPlotFile)))

	out := fs.NewDir(t, "exports")
	exported, err := ExportRunArtifacts(baseDir.Path(), "run-plots", out.Path())
	assert.NilError(t, err)
	_, err = os.Stat(filepath.Join(exported, FitnessPlotFile))
	assert.NilError(t, err)
	_, err = os.Stat(filepath.Join(exported, TrackPlotFile))
	assert.Assert(t, os.IsNotExist(err))
}
