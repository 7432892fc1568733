package maze

import (
	"math"

	"simmer-sim/internal/common"
)

// epsilon absorbs rounding when a ray grazes a segment endpoint.
const epsilon = 1e-9

// Hit describes where a ray first meets a segment.
type Hit struct {
	Distance float64
	Height   float64
	Segment  int
	Kind     Kind
	Point    common.Vector
}

// NearestIntersection casts a ray from origin along direction and returns the
// closest segment hit within maxRange.
func (m *Maze) NearestIntersection(origin, direction common.Vector, maxRange float64) (Hit, bool) {
	return m.NearestIntersectionAbove(origin, direction, maxRange, 0)
}

// NearestIntersectionAbove is NearestIntersection restricted to segments at
// least minHeight tall. Shorter segments are transparent, so the ray carries on
// to the next farther candidate. Equal distances resolve to the lowest segment
// index.
func (m *Maze) NearestIntersectionAbove(origin, direction common.Vector, maxRange, minHeight float64) (Hit, bool) {
	dir := direction.Unit()
	if dir.IsZero() || maxRange <= 0 {
		return Hit{}, false
	}

	end := origin.Add(dir.MultiplyByScalar(maxRange))
	rayMin := common.NewVector(math.Min(origin.X, end.X)-epsilon, math.Min(origin.Y, end.Y)-epsilon)
	rayMax := common.NewVector(math.Max(origin.X, end.X)+epsilon, math.Max(origin.Y, end.Y)+epsilon)

	best := Hit{Distance: math.Inf(1), Segment: -1}
	for i := range m.segments {
		seg := &m.segments[i]
		if seg.Height < minHeight {
			continue
		}
		if seg.max.X < rayMin.X || seg.min.X > rayMax.X || seg.max.Y < rayMin.Y || seg.min.Y > rayMax.Y {
			continue
		}
		t, ok := intersect(origin, dir, seg.A, seg.B)
		if !ok || t > maxRange || t >= best.Distance {
			continue
		}
		best = Hit{
			Distance: t,
			Height:   seg.Height,
			Segment:  i,
			Kind:     seg.Kind,
			Point:    origin.Add(dir.MultiplyByScalar(t)),
		}
	}
	if best.Segment < 0 {
		return Hit{}, false
	}
	return best, true
}

// intersect returns the ray parameter t at which origin + t*dir crosses the
// segment a-b. Parallel and collinear segments never count as hits, and neither
// does a segment the ray starts on: a non-parallel ray leaves it immediately.
func intersect(origin, dir, a, b common.Vector) (float64, bool) {
	edge := b.Subtract(a)
	denom := dir.Cross(edge)
	if math.Abs(denom) < epsilon {
		return 0, false
	}
	rel := a.Subtract(origin)
	t := rel.Cross(edge) / denom
	s := rel.Cross(dir) / denom
	if t <= epsilon || s < -epsilon || s > 1+epsilon {
		return 0, false
	}
	return t, true
}
