package vehicle

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"neurodrive/internal/geom"
)

// AngleCalibration converts speed*dt/radius into degrees of body rotation.
const AngleCalibration = 90 / (math.Pi * math.Pi)

// SurroundingRayCount is the number of rays SurroundingRays returns.
const SurroundingRayCount = 5

// DirectedRectangle is a rectangle with a heading. Shape corners are ordered
// front-right, front-left, rear-left, rear-right; "right" is the heading's
// normal (-dy, dx), which points right on a y-down screen.
type DirectedRectangle struct {
	Heading geom.Ray
	Shape   geom.Polygon
}

// NewAtOrigin centers a rectangle on the origin heading along +X.
func NewAtOrigin(width, length float64) DirectedRectangle {
	frontRight := r2.Vec{X: length / 2, Y: width / 2}
	return DirectedRectangle{
		Heading: geom.NewRay(r2.Vec{}, r2.Vec{X: 1}),
		Shape: geom.Polygon{
			frontRight,
			r2.Sub(frontRight, r2.Vec{Y: width}),
			r2.Sub(frontRight, r2.Vec{X: length, Y: width}),
			r2.Sub(frontRight, r2.Vec{X: length}),
		},
	}
}

func (r DirectedRectangle) Center() r2.Vec {
	return r.Heading.Anchor
}

func (r DirectedRectangle) Direction() r2.Vec {
	return r.Heading.Direction
}

func (r DirectedRectangle) Right() r2.Vec {
	d := r.Heading.Direction
	return r2.Vec{X: -d.Y, Y: d.X}
}

func (r DirectedRectangle) Left() r2.Vec {
	return r2.Scale(-1, r.Right())
}

// SurroundingRays casts from the center forward, right, left and towards the
// two front corners.
func (r DirectedRectangle) SurroundingRays() []geom.Ray {
	c := r.Center()
	return []geom.Ray{
		geom.NewRay(c, r.Direction()),
		geom.NewRay(c, r.Right()),
		geom.NewRay(c, r.Left()),
		geom.NewRay(c, r2.Sub(r.Shape[0], c)),
		geom.NewRay(c, r2.Sub(r.Shape[1], c)),
	}
}

func (r *DirectedRectangle) Transform(a geom.Affine) {
	r.Heading = r.Heading.Transform(a)
	r.Shape = r.Shape.Transform(a)
}

// CurveTransform models dt seconds of motion along a circular arc. The turn
// radius is speed²/(traction*turningRate); a positive turning rate pivots
// around a point on the right. Backward motion rotates the other way around
// the same pivot.
func (r DirectedRectangle) CurveTransform(speed, traction, turningRate, dt float64) geom.Affine {
	if math.Abs(speed) < geom.Epsilon {
		return geom.Identity()
	}
	if math.Abs(turningRate) < geom.Epsilon || math.IsNaN(turningRate) {
		return geom.Translation(r2.Scale(speed*dt, r.Direction()))
	}
	turningRate = math.Max(-1, math.Min(1, turningRate))
	radius := speed * speed / (traction * turningRate)
	pivot := r2.Add(r.Center(), r2.Scale(radius, r.Right()))
	degrees := AngleCalibration * speed * dt / radius
	return geom.RotationAround(pivot, degrees*math.Pi/180)
}
