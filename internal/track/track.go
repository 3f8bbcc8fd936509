package track

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"neurodrive/internal/geom"
)

var (
	ErrTooFewStations   = errors.New("track needs at least two stations")
	ErrSensorUnresolved = errors.New("sensor not resolved by any track segment")
	ErrSegmentNotFound  = errors.New("no track segment contains point")
)

// Station is a pair of boundary points across the track.
type Station struct {
	Left  r2.Vec
	Right r2.Vec
}

// Track is an ordered, immutable sequence of segments. It holds no per-vehicle
// state and may be shared by any number of vehicles.
type Track struct {
	segments []Segment
	bounds   geom.Box
}

// FromPoints builds one segment per pair of consecutive stations.
func FromPoints(stations []Station) (*Track, error) {
	if len(stations) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewStations, len(stations))
	}
	last := len(stations) - 2
	segments := make([]Segment, 0, len(stations)-1)
	for i := 0; i <= last; i++ {
		from, to := stations[i], stations[i+1]
		segments = append(segments, newSegment(
			geom.NewWall(from.Left, to.Left),
			geom.NewWall(from.Right, to.Right),
			i == 0,
			i == last,
		))
	}
	t := &Track{segments: segments, bounds: segments[0].bounds}
	for _, s := range segments[1:] {
		t.bounds = t.bounds.Union(s.bounds)
	}
	return t, nil
}

func (t *Track) Len() int {
	return len(t.segments)
}

func (t *Track) Segment(id SegmentID) Segment {
	return t.segments[id]
}

func (t *Track) Bounds() geom.Box {
	return t.bounds
}

// Regions returns every segment polygon in order, for renderers.
func (t *Track) Regions() []geom.Polygon {
	out := make([]geom.Polygon, len(t.segments))
	for i := range t.segments {
		out[i] = t.segments[i].region
	}
	return out
}

// StartPose places a vehicle in the middle of the first segment, heading from
// its back wall towards its front edge.
func (t *Track) StartPose() (position, heading r2.Vec) {
	first := t.segments[0]
	back := r2.Scale(0.5, r2.Add(first.Left.Start, first.Right.Start))
	front := r2.Scale(0.5, r2.Add(first.Left.End, first.Right.End))
	position = r2.Scale(0.5, r2.Add(back, front))
	heading = geom.NewWall(back, front).Direction()
	return position, heading
}

func (t *Track) spread(active SegmentID) iter.Seq2[SegmentID, Direction] {
	return Spread(active, 0, SegmentID(len(t.segments)))
}

// SenseClosest measures, for every sensor, the distance to the nearest wall of
// the first segment (searching outwards from active) that the sensor's ray
// hits.
func (t *Track) SenseClosest(sensors []geom.Ray, active SegmentID) ([]float64, error) {
	distances := make([]float64, len(sensors))
	resolved := make([]bool, len(sensors))
	pending := len(sensors)
	if pending == 0 {
		return distances, nil
	}
	for id := range t.spread(active) {
		walls := t.segments[id].walls
		for i, sensor := range sensors {
			if resolved[i] {
				continue
			}
			best := math.Inf(1)
			for _, w := range walls {
				if d, ok := sensor.DistanceTo(w); ok && d < best {
					best = d
				}
			}
			if !math.IsInf(best, 1) {
				distances[i] = best
				resolved[i] = true
				pending--
			}
		}
		if pending == 0 {
			return distances, nil
		}
	}
	return nil, fmt.Errorf("%w: %d of %d pending around segment %d", ErrSensorUnresolved, pending, len(sensors), active)
}

// Intersects reports whether any wall near active crosses shape. A search
// direction stops at the first segment whose bounding box misses the shape's.
func (t *Track) Intersects(shape geom.Polygon, active SegmentID) bool {
	shapeBounds := shape.Bounds()
	forwardDone, backwardDone := false, false
	for id, dir := range t.spread(active) {
		if (dir == Forward && forwardDone) || (dir == Backward && backwardDone) {
			continue
		}
		seg := &t.segments[id]
		if !seg.bounds.Overlaps(shapeBounds) {
			switch dir {
			case Forward:
				forwardDone = true
			case Backward:
				backwardDone = true
			}
			if forwardDone && backwardDone {
				return false
			}
			continue
		}
		for _, w := range seg.walls {
			if w.IntersectsPolygon(shape) {
				return true
			}
		}
	}
	return false
}

// UpdateActive returns the first segment, searching outwards from active,
// whose region contains point.
func (t *Track) UpdateActive(active SegmentID, point r2.Vec) (SegmentID, error) {
	for id := range t.spread(active) {
		if t.segments[id].region.Contains(point) {
			return id, nil
		}
	}
	return active, fmt.Errorf("%w: (%.3f, %.3f) near segment %d", ErrSegmentNotFound, point.X, point.Y, active)
}
