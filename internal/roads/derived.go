package roads

import (
	"errors"
	"fmt"

	"github.com/MJE43/baccarat-roads/internal/games"
)

var ErrInvalidOffset = errors.New("derived road offset must be 1, 2 or 3")

// Offsets of the three derived roads.
const (
	BigEyeBoy    = 1
	SmallRoad    = 2
	CockroachPig = 3
)

// Color is a derived road mark. The zero value is an empty cell.
type Color uint8

const (
	ColorNone Color = iota
	Red
	Blue
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return ""
	}
}

// MarshalJSON encodes empty cells as null.
func (c Color) MarshalJSON() ([]byte, error) {
	if c == ColorNone {
		return []byte("null"), nil
	}
	return []byte(`"` + c.String() + `"`), nil
}

// DerivedRoad computes the derived road for offset from a Big Road matrix
// and its path: 1 is Big Eye Boy, 2 Small Road, 3 Cockroach Pig.
func DerivedRoad(matrix *Grid[*Cell], path []PathEntry, offset int, opts ...Option) (*Grid[Color], error) {
	if offset < BigEyeBoy || offset > CockroachPig {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOffset, offset)
	}
	return derive(matrix, path, offset, buildOptions(opts)), nil
}

func derive(matrix *Grid[*Cell], path []PathEntry, offset int, o options) *Grid[Color] {
	grid := newGrid[Color](o.columns)
	var p placer[Color]

	for _, e := range path {
		if e.Winner == games.Tie {
			continue
		}
		// No comparison basis until the offset column has a second mark.
		if e.LogicalCol < offset || (e.LogicalCol == offset && e.Row == 0) {
			continue
		}

		color := compare(matrix, e, offset)
		row, col, _ := p.next(color, grid.Filled)
		grid.set(row, col, color)
	}
	return grid
}

// compare colors one entry. Down a column it checks whether the column
// offset to the left has the same depth; at the top of a new column it
// compares the heights of the two columns that precede it.
func compare(matrix *Grid[*Cell], e PathEntry, offset int) Color {
	if e.Row > 0 {
		left := matrix.Filled(e.Row, e.Col-offset)
		aboveLeft := matrix.Filled(e.Row-1, e.Col-offset)
		if left == aboveLeft {
			return Red
		}
		return Blue
	}
	if matrix.ColumnHeight(e.Col-1) == matrix.ColumnHeight(e.Col-1-offset) {
		return Red
	}
	return Blue
}
