package common

// Polygon is an ordered list of vertices, closed implicitly from the last vertex
// back to the first.
type Polygon []Vector

// Square returns an axis-aligned square of the given side length centred on the origin.
func Square(side float64) Polygon {
	h := side / 2
	return Polygon{
		{X: -h, Y: -h},
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
	}
}

// Transform rotates the polygon by deg degrees about the origin and then
// translates it by offset. The receiver is left untouched.
func (p Polygon) Transform(offset Vector, deg float64) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = v.Rotate(deg).Add(offset)
	}
	return out
}

// Edges returns each edge of the closed polygon as a start/end pair.
func (p Polygon) Edges() [][2]Vector {
	if len(p) < 2 {
		return nil
	}
	edges := make([][2]Vector, len(p))
	for i := range p {
		edges[i] = [2]Vector{p[i], p[(i+1)%len(p)]}
	}
	return edges
}
