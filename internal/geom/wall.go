package geom

import "gonum.org/v1/gonum/spatial/r2"

// Epsilon is the tolerance below which lengths, cross products and speeds are
// treated as zero.
const Epsilon = 1e-5

// Wall is an oriented line segment.
type Wall struct {
	Start r2.Vec
	End   r2.Vec
}

func NewWall(start, end r2.Vec) Wall {
	return Wall{Start: start, End: end}
}

func (w Wall) Vector() r2.Vec {
	return r2.Sub(w.End, w.Start)
}

func (w Wall) Length() float64 {
	return r2.Norm(w.Vector())
}

// Direction returns the unit vector from Start to End, or the zero vector for
// a degenerate wall.
func (w Wall) Direction() r2.Vec {
	v := w.Vector()
	n := r2.Norm(v)
	if n < Epsilon {
		return r2.Vec{}
	}
	return r2.Scale(1/n, v)
}

// Side reports whether p lies strictly on the positive side of the wall's
// infinite line. Points on the line report false.
func (w Wall) Side(p r2.Vec) bool {
	return r2.Cross(w.Vector(), r2.Sub(p, w.Start)) > 0
}

// IntersectsPolygon runs a mutual straddle test: an edge whose endpoints lie on
// different sides of the wall's line crosses the wall when the wall's endpoints
// also lie on different sides of the edge's line.
func (w Wall) IntersectsPolygon(poly Polygon) bool {
	n := len(poly)
	if n < 2 {
		return false
	}
	prev := poly[n-1]
	prevSide := w.Side(prev)
	for _, p := range poly {
		side := w.Side(p)
		if side != prevSide {
			edge := Wall{Start: prev, End: p}
			if edge.Side(w.Start) != edge.Side(w.End) {
				return true
			}
		}
		prev, prevSide = p, side
	}
	return false
}
