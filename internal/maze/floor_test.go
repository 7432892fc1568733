package maze

import (
	"testing"

	"github.com/stretchr/testify/require"

	"simmer-sim/internal/common"
)

func TestFloorCoversMaze(t *testing.T) {
	f := NewFloor(defaultMaze(t), 3, 5489)
	require.Equal(t, 16, f.Rows)
	require.Equal(t, 32, f.Cols)

	lo, hi := f.Tile(15, 31)
	require.Equal(t, common.NewVector(93, 45), lo)
	require.Equal(t, common.NewVector(96, 48), hi)
}

func TestFloorClipsPartialTiles(t *testing.T) {
	m, err := New([][]uint8{{0}}, 10, 10, nil)
	require.NoError(t, err)
	f := NewFloor(m, 3, 1)
	require.Equal(t, 4, f.Rows)
	require.Equal(t, 4, f.Cols)

	_, hi := f.Tile(3, 3)
	require.Equal(t, common.NewVector(10, 10), hi)
}

func TestFloorIsSeeded(t *testing.T) {
	m := defaultMaze(t)
	pattern := func(f Floor) []bool {
		var out []bool
		for r := 0; r < f.Rows; r++ {
			for c := 0; c < f.Cols; c++ {
				out = append(out, f.Dark(r, c))
			}
		}
		return out
	}

	a := pattern(NewFloor(m, 3, 5489))
	require.Equal(t, a, pattern(NewFloor(m, 3, 5489)))
	require.NotEqual(t, a, pattern(NewFloor(m, 3, 5490)))
	require.Contains(t, a, true)
	require.Contains(t, a, false)
}

func TestFloorAt(t *testing.T) {
	f := NewFloor(defaultMaze(t), 3, 5489)

	row, col, ok := f.At(common.NewVector(6, 42))
	require.True(t, ok)
	require.Equal(t, 14, row)
	require.Equal(t, 2, col)

	_, _, ok = f.At(common.NewVector(-1, 5))
	require.False(t, ok)
	_, _, ok = f.At(common.NewVector(96, 5))
	require.False(t, ok)
	require.False(t, f.Dark(-1, 0))
	require.False(t, f.Dark(16, 0))
}

func TestEmptyFloor(t *testing.T) {
	f := NewFloor(defaultMaze(t), 0, 5489)
	require.Zero(t, f.Rows)
	require.Zero(t, f.Cols)
	_, _, ok := f.At(common.NewVector(6, 42))
	require.False(t, ok)
	require.False(t, f.Dark(0, 0))
}
