package track

import "iter"

// Direction tells on which side of the search center an index was found.
type Direction int

const (
	Center Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "center"
	}
}

// Spread yields center, center+1, center-1, center+2, center-2, ... clipped to
// [lo, hi). A center outside the bounds is clamped first. The sequence is
// lazy and can be ranged over any number of times.
func Spread(center, lo, hi SegmentID) iter.Seq2[SegmentID, Direction] {
	return func(yield func(SegmentID, Direction) bool) {
		if lo >= hi {
			return
		}
		center = min(max(center, lo), hi-1)
		if !yield(center, Center) {
			return
		}
		for diff := SegmentID(1); ; diff++ {
			exhausted := true
			if next := center + diff; next < hi {
				if !yield(next, Forward) {
					return
				}
				exhausted = false
			}
			if prev := center - diff; prev >= lo {
				if !yield(prev, Backward) {
					return
				}
				exhausted = false
			}
			if exhausted {
				return
			}
		}
	}
}
