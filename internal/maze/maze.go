// Package maze holds the immutable wall geometry the robot moves through and
// answers ray queries against it.
package maze

import (
	"errors"
	"fmt"
	"math"

	"simmer-sim/internal/common"
)

// Cell codes. A cell stores the walls on its west and north edges; the east and
// south edges belong to the neighbouring cells or to the outer boundary.
const (
	WallWest  uint8 = 1 << 0
	WallNorth uint8 = 1 << 1
)

var (
	ErrEmptyMaze     = errors.New("maze has no cells")
	ErrRaggedMaze    = errors.New("maze rows differ in length")
	ErrUnknownCode   = errors.New("unknown wall code")
	ErrBadDimensions = errors.New("segment length and heights must be positive")
)

// Kind tells what a segment belongs to.
type Kind uint8

const (
	KindWall Kind = iota
	KindBlock
)

func (k Kind) String() string {
	if k == KindBlock {
		return "block"
	}
	return "wall"
}

// Segment is a vertical face standing on the floor between A and B.
type Segment struct {
	A, B   common.Vector
	Height float64
	Kind   Kind

	min, max common.Vector
}

func newSegment(a, b common.Vector, height float64, kind Kind) Segment {
	return Segment{
		A: a, B: b, Height: height, Kind: kind,
		min: common.NewVector(math.Min(a.X, b.X), math.Min(a.Y, b.Y)),
		max: common.NewVector(math.Max(a.X, b.X), math.Max(a.Y, b.Y)),
	}
}

// Block is the single square obstacle placed in the maze.
type Block struct {
	Position common.Vector
	Rotation float64
	Size     float64
	Height   float64
}

// Outline returns the block's corners in world coordinates.
func (b Block) Outline() common.Polygon {
	return common.Square(b.Size).Transform(b.Position, b.Rotation)
}

// Maze is the static wall layout. It is safe for concurrent use.
type Maze struct {
	rows, cols    int
	segmentLength float64
	wallHeight    float64
	cells         [][]uint8
	block         *Block
	segments      []Segment
}

// New builds the wall segments for the given cell matrix. The block is optional.
func New(cells [][]uint8, segmentLength, wallHeight float64, block *Block) (*Maze, error) {
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, ErrEmptyMaze
	}
	if segmentLength <= 0 || wallHeight <= 0 {
		return nil, ErrBadDimensions
	}
	cols := len(cells[0])
	copied := make([][]uint8, len(cells))
	for r, row := range cells {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedMaze, r, len(row), cols)
		}
		for c, code := range row {
			if code > WallWest|WallNorth {
				return nil, fmt.Errorf("%w %d at row %d column %d", ErrUnknownCode, code, r, c)
			}
		}
		copied[r] = append([]uint8(nil), row...)
	}
	if block != nil && (block.Size <= 0 || block.Height < 0) {
		return nil, ErrBadDimensions
	}

	m := &Maze{
		rows:          len(cells),
		cols:          cols,
		segmentLength: segmentLength,
		wallHeight:    wallHeight,
		cells:         copied,
	}
	m.buildWalls()
	if block != nil {
		b := *block
		m.block = &b
		for _, e := range b.Outline().Edges() {
			m.segments = append(m.segments, newSegment(e[0], e[1], b.Height, KindBlock))
		}
	}
	return m, nil
}

func (m *Maze) buildWalls() {
	l := m.segmentLength
	corner := func(r, c int) common.Vector {
		return common.NewVector(float64(c)*l, float64(r)*l)
	}
	wall := func(a, b common.Vector) {
		m.segments = append(m.segments, newSegment(a, b, m.wallHeight, KindWall))
	}

	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			code := m.cells[r][c]
			// The outer west and north edges are always walled.
			if code&WallWest != 0 || c == 0 {
				wall(corner(r, c), corner(r+1, c))
			}
			if code&WallNorth != 0 || r == 0 {
				wall(corner(r, c), corner(r, c+1))
			}
		}
	}
	for r := 0; r < m.rows; r++ {
		wall(corner(r, m.cols), corner(r+1, m.cols))
	}
	for c := 0; c < m.cols; c++ {
		wall(corner(m.rows, c), corner(m.rows, c+1))
	}
}

// Rows returns the number of cell rows.
func (m *Maze) Rows() int { return m.rows }

// Cols returns the number of cell columns.
func (m *Maze) Cols() int { return m.cols }

// SegmentLength returns the side of one cell.
func (m *Maze) SegmentLength() float64 { return m.segmentLength }

// WallHeight returns the modelled height of every wall segment.
func (m *Maze) WallHeight() float64 { return m.wallHeight }

// Block returns the obstacle block, if one was placed.
func (m *Maze) Block() (Block, bool) {
	if m.block == nil {
		return Block{}, false
	}
	return *m.block, true
}

// Segments returns a copy of every segment, walls first then the block edges.
func (m *Maze) Segments() []Segment {
	return append([]Segment(nil), m.segments...)
}

// Bounds returns the north-west and south-east corners of the maze.
func (m *Maze) Bounds() (common.Vector, common.Vector) {
	return common.Vector{}, common.NewVector(float64(m.cols)*m.segmentLength, float64(m.rows)*m.segmentLength)
}

// Contains reports whether p lies inside the outer boundary.
func (m *Maze) Contains(p common.Vector) bool {
	lo, hi := m.Bounds()
	return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
}

// Cell returns the wall code of the cell at (row, col).
func (m *Maze) Cell(row, col int) (uint8, bool) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return 0, false
	}
	return m.cells[row][col], true
}
