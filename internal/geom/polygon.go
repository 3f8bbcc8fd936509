package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Polygon is a closed vertex loop; the last vertex connects back to the first.
type Polygon []r2.Vec

// Contains uses the even-odd crossing rule.
func (p Polygon) Contains(pt r2.Vec) bool {
	inside := false
	j := len(p) - 1
	for i := range p {
		a, b := p[i], p[j]
		if (a.Y > pt.Y) != (b.Y > pt.Y) {
			x := (b.X-a.X)*(pt.Y-a.Y)/(b.Y-a.Y) + a.X
			if pt.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func (p Polygon) Bounds() Box {
	if len(p) == 0 {
		return Box{}
	}
	box := Box{Min: p[0], Max: p[0]}
	for _, v := range p[1:] {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
	}
	return box
}

// Centroid is the vertex average.
func (p Polygon) Centroid() r2.Vec {
	var c r2.Vec
	if len(p) == 0 {
		return c
	}
	for _, v := range p {
		c = r2.Add(c, v)
	}
	return r2.Scale(1/float64(len(p)), c)
}

func (p Polygon) Transform(a Affine) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = a.Apply(v)
	}
	return out
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min r2.Vec
	Max r2.Vec
}

func (b Box) Overlaps(o Box) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

func (b Box) Contains(pt r2.Vec) bool {
	return pt.X >= b.Min.X && pt.X <= b.Max.X && pt.Y >= b.Min.Y && pt.Y <= b.Max.Y
}

func (b Box) Union(o Box) Box {
	return Box{
		Min: r2.Vec{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y)},
		Max: r2.Vec{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y)},
	}
}
