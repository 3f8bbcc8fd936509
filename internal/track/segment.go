package track

import (
	"neurodrive/internal/geom"
)

// SegmentID indexes a Segment within a Track.
type SegmentID int

// Segment is a quadrilateral slice of track bounded by a left and a right
// wall. Both walls run in the direction of travel. The first and last segment
// of a track are closed by a synthetic back and front wall.
type Segment struct {
	Left  geom.Wall
	Right geom.Wall

	region geom.Polygon
	bounds geom.Box
	walls  []geom.Wall
}

func newSegment(left, right geom.Wall, first, last bool) Segment {
	s := Segment{Left: left, Right: right}
	s.region = geom.Polygon{left.Start, left.End, right.End, right.Start}
	s.bounds = s.region.Bounds()
	s.walls = []geom.Wall{left, right}
	if first {
		s.walls = append(s.walls, geom.NewWall(left.Start, right.Start))
	}
	if last {
		s.walls = append(s.walls, geom.NewWall(left.End, right.End))
	}
	return s
}

// Region returns the segment's polygon. The slice must not be modified.
func (s Segment) Region() geom.Polygon {
	return s.region
}

func (s Segment) Bounds() geom.Box {
	return s.bounds
}

// Walls returns left, right and, for end segments, the closing walls.
func (s Segment) Walls() []geom.Wall {
	return s.walls
}
