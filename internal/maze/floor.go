package maze

import (
	"math"
	"math/rand/v2"

	"simmer-sim/internal/common"
)

const floorStream = 0x666c6f6f72

// Floor is the seeded pattern of dark and light squares laid under the maze.
// The zero value is an empty floor.
type Floor struct {
	Size       float64
	Rows, Cols int

	origin common.Vector
	extent common.Vector
	dark   []bool
}

// NewFloor tiles the maze with squares of the given size. A seed always yields
// the same pattern. A non-positive size gives an empty floor.
func NewFloor(m *Maze, size float64, seed uint64) Floor {
	if size <= 0 {
		return Floor{}
	}
	lo, hi := m.Bounds()
	f := Floor{
		Size:   size,
		Rows:   int(math.Ceil((hi.Y-lo.Y)/size - epsilon)),
		Cols:   int(math.Ceil((hi.X-lo.X)/size - epsilon)),
		origin: lo,
		extent: hi,
	}
	rng := rand.New(rand.NewPCG(seed, floorStream))
	f.dark = make([]bool, f.Rows*f.Cols)
	for i := range f.dark {
		f.dark[i] = rng.IntN(2) == 1
	}
	return f
}

// Dark reports whether the square at row, col is dark. Squares outside the
// floor are light.
func (f Floor) Dark(row, col int) bool {
	if row < 0 || col < 0 || row >= f.Rows || col >= f.Cols {
		return false
	}
	return f.dark[row*f.Cols+col]
}

// Tile returns the corners of a square, clipped to the maze.
func (f Floor) Tile(row, col int) (lo, hi common.Vector) {
	lo = common.NewVector(f.origin.X+float64(col)*f.Size, f.origin.Y+float64(row)*f.Size)
	hi = common.NewVector(math.Min(lo.X+f.Size, f.extent.X), math.Min(lo.Y+f.Size, f.extent.Y))
	return lo, hi
}

// At returns the square under the world point p. ok is false off the floor.
func (f Floor) At(p common.Vector) (row, col int, ok bool) {
	if f.Size <= 0 || p.X < f.origin.X || p.Y < f.origin.Y || p.X >= f.extent.X || p.Y >= f.extent.Y {
		return 0, 0, false
	}
	return int((p.Y - f.origin.Y) / f.Size), int((p.X - f.origin.X) / f.Size), true
}
