package stats

import (
	"context"
	"fmt"
	"image/color"
	"slices"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"neurodrive/internal/model"
	"neurodrive/internal/sim"
	"neurodrive/internal/track"
)

var (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
	wallColor  = color.Gray{Y: 80}
)

// PlotFitness draws best, mean and min fitness per generation and saves the
// chart to path. The image format follows the file extension.
func PlotFitness(diagnostics []model.GenerationDiagnostics, title, path string) error {
	if len(diagnostics) == 0 {
		return fmt.Errorf("no generations to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	series := []struct {
		name  string
		value func(model.GenerationDiagnostics) float64
	}{
		{"best", func(d model.GenerationDiagnostics) float64 { return d.BestFitness }},
		{"mean", func(d model.GenerationDiagnostics) float64 { return d.MeanFitness }},
		{"min", func(d model.GenerationDiagnostics) float64 { return d.MinFitness }},
	}
	for i, s := range series {
		pts := make(plotter.XYs, len(diagnostics))
		for j, d := range diagnostics {
			pts[j].X = float64(d.Generation)
			pts[j].Y = s.value(d)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	return p.Save(plotWidth, plotHeight, path)
}

// Trail is the path of one vehicle's center over a rollout.
type Trail struct {
	Name   string
	Points []r2.Vec
}

// PlotTrack draws the track walls and the given trails. The y axis points
// down like the simulation's coordinates.
func PlotTrack(t *track.Track, trails []Trail, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	for i := range t.Len() {
		for _, w := range t.Segment(track.SegmentID(i)).Walls() {
			line, err := plotter.NewLine(plotter.XYs{{X: w.Start.X, Y: w.Start.Y}, {X: w.End.X, Y: w.End.Y}})
			if err != nil {
				return err
			}
			line.Color = wallColor
			p.Add(line)
		}
	}

	for i, trail := range trails {
		if len(trail.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(trail.Points))
		for j, pt := range trail.Points {
			pts[j].X, pts[j].Y = pt.X, pt.Y
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(trail.Name, line)
	}

	return p.Save(plotWidth, plotHeight, path)
}

// TrailRecorder is a rollout observer that records every active vehicle's
// center after each step.
type TrailRecorder struct {
	trails  map[string][]r2.Vec
	stopped map[string]bool
}

func NewTrailRecorder() *TrailRecorder {
	return &TrailRecorder{trails: map[string][]r2.Vec{}, stopped: map[string]bool{}}
}

// Observe keeps the position a vehicle stopped at and ignores it afterwards.
func (r *TrailRecorder) Observe(_ context.Context, snap sim.Snapshot) error {
	for group, views := range snap.Vehicles {
		for i, v := range views {
			name := trailName(group, i)
			if r.stopped[name] {
				continue
			}
			r.trails[name] = append(r.trails[name], v.Center)
			r.stopped[name] = !v.Active
		}
	}
	return nil
}

// Trails returns the recorded trails ordered by name.
func (r *TrailRecorder) Trails() []Trail {
	names := make([]string, 0, len(r.trails))
	for name := range r.trails {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Trail, 0, len(names))
	for _, name := range names {
		out = append(out, Trail{Name: name, Points: slices.Clone(r.trails[name])})
	}
	return out
}

func trailName(group string, index int) string {
	return fmt.Sprintf("%s/%d", group, index)
}
