package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Affine is a 2D rigid transform x' = R*x + T, with R = [a b; c d].
type Affine struct {
	a, b, c, d float64
	t          r2.Vec
}

func Identity() Affine {
	return Affine{a: 1, d: 1}
}

func Translation(v r2.Vec) Affine {
	return Affine{a: 1, d: 1, t: v}
}

// Rotation rotates about the origin. Positive angles turn +X towards +Y.
func Rotation(radians float64) Affine {
	sin, cos := math.Sincos(radians)
	return Affine{a: cos, b: -sin, c: sin, d: cos}
}

func RotationAround(pivot r2.Vec, radians float64) Affine {
	return Translation(r2.Scale(-1, pivot)).Then(Rotation(radians)).Then(Translation(pivot))
}

// Then returns the transform that applies m first and n second.
func (m Affine) Then(n Affine) Affine {
	return Affine{
		a: n.a*m.a + n.b*m.c,
		b: n.a*m.b + n.b*m.d,
		c: n.c*m.a + n.d*m.c,
		d: n.c*m.b + n.d*m.d,
		t: n.Apply(m.t),
	}
}

func (m Affine) Apply(p r2.Vec) r2.Vec {
	return r2.Add(m.ApplyVector(p), m.t)
}

// ApplyVector applies only the linear part.
func (m Affine) ApplyVector(v r2.Vec) r2.Vec {
	return r2.Vec{X: m.a*v.X + m.b*v.Y, Y: m.c*v.X + m.d*v.Y}
}

func (m Affine) IsIdentity() bool {
	return m == Identity()
}
