package common

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Vector represents a point or direction in the 2D maze plane (inches).
type Vector struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// NewVector creates a vector from its components.
func NewVector(x, y float64) Vector {
	return Vector{X: x, Y: y}
}

func (v Vector) r2() r2.Vec { return r2.Vec{X: v.X, Y: v.Y} }

func fromR2(p r2.Vec) Vector { return Vector{X: p.X, Y: p.Y} }

// Add adds another vector to this vector.
func (v Vector) Add(other Vector) Vector {
	return fromR2(r2.Add(v.r2(), other.r2()))
}

// Subtract subtracts another vector from this vector.
func (v Vector) Subtract(other Vector) Vector {
	return fromR2(r2.Sub(v.r2(), other.r2()))
}

// MultiplyByScalar multiplies the vector by a scalar value.
func (v Vector) MultiplyByScalar(scalar float64) Vector {
	return fromR2(r2.Scale(scalar, v.r2()))
}

// Dot returns the dot product of two vectors.
func (v Vector) Dot(other Vector) float64 {
	return r2.Dot(v.r2(), other.r2())
}

// Cross returns the z component of the 3D cross product v × other.
func (v Vector) Cross(other Vector) float64 {
	return r2.Cross(v.r2(), other.r2())
}

// Norm returns the Euclidean length of the vector.
func (v Vector) Norm() float64 {
	return r2.Norm(v.r2())
}

// Distance calculates the Euclidean distance between two points.
func (v Vector) Distance(other Vector) float64 {
	return r2.Norm(r2.Sub(v.r2(), other.r2()))
}

// Unit returns the vector scaled to unit length. The zero vector is returned unchanged.
func (v Vector) Unit() Vector {
	if v.X == 0 && v.Y == 0 {
		return v
	}
	return fromR2(r2.Unit(v.r2()))
}

// Rotate rotates the vector about the origin by deg degrees.
func (v Vector) Rotate(deg float64) Vector {
	if deg == 0 {
		return v
	}
	return fromR2(r2.Rotate(v.r2(), Radians(deg), r2.Vec{}))
}

// IsZero reports whether both components are zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// String returns a string representation of the vector.
func (v Vector) String() string {
	return fmt.Sprintf("[%.3f, %.3f]", v.X, v.Y)
}

// Heading returns the unit direction a robot-local "forward" (+y) axis points to
// after rotating it by deg degrees.
func Heading(deg float64) Vector {
	rad := Radians(deg)
	return Vector{X: -math.Sin(rad), Y: math.Cos(rad)}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// WrapDegrees normalizes an angle into [0, 360).
func WrapDegrees(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	// math.Mod of a tiny negative value can round back up to 360.
	if w >= 360 {
		w -= 360
	}
	return w
}
