package world

import "iter"

// CubeRing walks every coordinate at exactly Radius steps from Center.
// It starts at the RingStartDirection corner and follows the six edges in
// direction order 0..5. Radius 0 yields nothing; the centre is not a ring.
//
// A CubeRing is single-pass. Build a new one to walk the same ring again.
type CubeRing struct {
	cube   CubeCoord
	radius int
	edge   int // current edge, 0..5
	step   int // steps taken along the current edge
}

// NewCubeRing returns an iterator over the ring of the given radius.
func NewCubeRing(center CubeCoord, radius int) *CubeRing {
	r := &CubeRing{radius: radius}
	if radius < 1 {
		r.edge = 6
		return r
	}
	r.cube = center.Add(Direction(RingStartDirection).Scale(radius))
	return r
}

// Next returns the next coordinate on the ring, or false once all 6*radius
// coordinates have been produced.
func (r *CubeRing) Next() (CubeCoord, bool) {
	for r.edge < 6 {
		if r.step < r.radius {
			r.step++
			ret := r.cube
			r.cube = r.cube.Neighbor(r.edge)
			return ret, true
		}
		r.step = 0
		r.edge++
	}
	return CubeCoord{}, false
}

// Ring adapts NewCubeRing to a range-over-func sequence.
func Ring(center CubeCoord, radius int) iter.Seq[CubeCoord] {
	return func(yield func(CubeCoord) bool) {
		ring := NewCubeRing(center, radius)
		for {
			c, ok := ring.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}

// Spiral yields center followed by rings 1..maxRadius, in ring order.
func Spiral(center CubeCoord, maxRadius int) iter.Seq[CubeCoord] {
	return func(yield func(CubeCoord) bool) {
		if !yield(center) {
			return
		}
		for radius := 1; radius <= maxRadius; radius++ {
			for c := range Ring(center, radius) {
				if !yield(c) {
					return
				}
			}
		}
	}
}
