package visualization

import (
	"math"

	"simmer-sim/internal/common"
)

// Projector maps world inches onto screen pixels. The world is scaled uniformly
// and centred; +y stays downward on screen, matching the maze's north-up layout.
type Projector struct {
	scale   float64
	offsetX float64
	offsetY float64
	padding float64
}

// NewProjector creates a projector that keeps padding pixels free around the world.
func NewProjector(padding float64) *Projector {
	return &Projector{scale: 1, padding: padding}
}

// Fit recomputes the transform so the box [lo, hi] fills a width x height screen.
func (p *Projector) Fit(lo, hi common.Vector, width, height int) {
	worldWidth := hi.X - lo.X
	worldHeight := hi.Y - lo.Y
	if worldWidth <= 0 {
		worldWidth = 1
	}
	if worldHeight <= 0 {
		worldHeight = 1
	}

	scaleX := (float64(width) - 2*p.padding) / worldWidth
	scaleY := (float64(height) - 2*p.padding) / worldHeight
	p.scale = math.Min(scaleX, scaleY)
	if p.scale <= 0 || math.IsNaN(p.scale) || math.IsInf(p.scale, 0) {
		p.scale = 1
	}

	centerX := (lo.X + hi.X) / 2
	centerY := (lo.Y + hi.Y) / 2
	p.offsetX = float64(width)/2 - centerX*p.scale
	p.offsetY = float64(height)/2 - centerY*p.scale
}

// Scale returns pixels per inch.
func (p *Projector) Scale() float64 {
	return p.scale
}

// ToScreen converts a world point into screen coordinates.
func (p *Projector) ToScreen(v common.Vector) (float32, float32) {
	return float32(v.X*p.scale + p.offsetX), float32(v.Y*p.scale + p.offsetY)
}

// Length converts a world distance into pixels.
func (p *Projector) Length(inches float64) float32 {
	return float32(inches * p.scale)
}
