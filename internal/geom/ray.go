package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Ray is a half line. Direction is kept at unit length so DistanceTo returns
// Euclidean distances.
type Ray struct {
	Anchor    r2.Vec
	Direction r2.Vec
}

func NewRay(anchor, direction r2.Vec) Ray {
	if n := r2.Norm(direction); n >= Epsilon {
		direction = r2.Scale(1/n, direction)
	}
	return Ray{Anchor: anchor, Direction: direction}
}

// DistanceTo solves anchor + t*direction = wall.Start + u*wallDirection with 2D
// cross products. It reports no hit for (near) parallel lines, for u outside
// [0, wall length] and for t < 0.
func (r Ray) DistanceTo(w Wall) (float64, bool) {
	s := w.Direction()
	rxs := r2.Cross(r.Direction, s)
	if math.Abs(rxs) < Epsilon {
		return 0, false
	}
	qp := r2.Sub(w.Start, r.Anchor)
	wallAlong := r2.Cross(qp, r.Direction) / rxs
	if wallAlong < 0 || wallAlong > w.Length() {
		return 0, false
	}
	along := r2.Cross(qp, s) / rxs
	if along < 0 {
		return 0, false
	}
	return along, true
}

func (r Ray) Transform(a Affine) Ray {
	return Ray{Anchor: a.Apply(r.Anchor), Direction: a.ApplyVector(r.Direction)}
}
