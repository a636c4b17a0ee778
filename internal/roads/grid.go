// Package roads folds baccarat hand history into score-board grids: the
// Big Road, the three derived roads and the bead plate.
package roads

import "encoding/json"

// Rows is the fixed height of every road grid.
const Rows = 6

// DefaultColumns is the initial column capacity of a grid. Grids grow past
// it on demand, so it only sizes the first allocation.
const DefaultColumns = 200

type options struct {
	columns int
}

// Option configures grid construction.
type Option func(*options)

// WithColumns sets the initial column capacity.
func WithColumns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.columns = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{columns: DefaultColumns}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Grid is a 6-row grid whose empty cells hold the zero value of T.
type Grid[T comparable] struct {
	cells [Rows][]T
	width int
}

func newGrid[T comparable](columns int) *Grid[T] {
	g := &Grid[T]{}
	for r := range g.cells {
		g.cells[r] = make([]T, columns)
	}
	return g
}

// At returns the cell at (row, col), or the zero value outside the grid.
func (g *Grid[T]) At(row, col int) T {
	var zero T
	if row < 0 || row >= Rows || col < 0 || col >= len(g.cells[row]) {
		return zero
	}
	return g.cells[row][col]
}

// Filled reports whether (row, col) holds a non-zero value.
func (g *Grid[T]) Filled(row, col int) bool {
	var zero T
	return g.At(row, col) != zero
}

// Capacity is the number of allocated columns.
func (g *Grid[T]) Capacity() int { return len(g.cells[0]) }

// Width is one past the right-most column that has ever been written.
func (g *Grid[T]) Width() int { return g.width }

// ColumnHeight counts the filled rows of col. Negative columns are empty.
func (g *Grid[T]) ColumnHeight(col int) int {
	height := 0
	for r := 0; r < Rows; r++ {
		if g.Filled(r, col) {
			height++
		}
	}
	return height
}

// Cells returns a copy of the grid rows trimmed to Width.
func (g *Grid[T]) Cells() [][]T {
	out := make([][]T, Rows)
	for r := range out {
		out[r] = append([]T(nil), g.cells[r][:g.width]...)
	}
	return out
}

// MarshalJSON encodes the grid as Rows arrays trimmed to Width.
func (g *Grid[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Cells())
}

func (g *Grid[T]) set(row, col int, v T) {
	g.grow(col)
	g.cells[row][col] = v
	if col+1 > g.width {
		g.width = col + 1
	}
}

// grow doubles capacity until col fits.
func (g *Grid[T]) grow(col int) {
	capacity := len(g.cells[0])
	if col < capacity {
		return
	}
	next := capacity * 2
	if next <= col {
		next = col + 1
	}
	for r := range g.cells {
		extended := make([]T, next)
		copy(extended, g.cells[r])
		g.cells[r] = extended
	}
}

// placer is the streak packing state shared by the Big Road and the derived
// roads. Equal consecutive values stack down a column; at the bottom row, or
// when the cell below is taken, the streak tails into the next column's top
// row. A new value starts at the first free top-row cell right of the
// current streak's starting column.
type placer[T comparable] struct {
	row, col    int
	streakStart int
	logicalCol  int
	last        T
	started     bool
}

func (p *placer[T]) next(v T, filled func(row, col int) bool) (row, col, logicalCol int) {
	switch {
	case !p.started:
		p.row, p.col, p.streakStart, p.logicalCol = 0, 0, 0, 0
		p.started = true
	case v == p.last:
		if p.row < Rows-1 && !filled(p.row+1, p.col) {
			p.row++
		} else {
			p.col++
			p.row = 0
		}
	default:
		p.logicalCol++
		p.row = 0
		p.col = p.streakStart + 1
		for filled(0, p.col) {
			p.col++
		}
		p.streakStart = p.col
	}
	p.last = v
	return p.row, p.col, p.logicalCol
}
