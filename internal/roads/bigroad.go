package roads

import "github.com/MJE43/baccarat-roads/internal/games"

// Cell is one Big Road mark. Winner is Tie only for the placeholder placed
// when a shoe opens with ties.
type Cell struct {
	Winner games.Winner `json:"winner"`
	Ties   int          `json:"ties"`
}

// PathEntry records where a hand was placed. LogicalCol numbers streaks and
// stays constant across a streak's dragon tail.
type PathEntry struct {
	Row        int          `json:"row"`
	Col        int          `json:"col"`
	LogicalCol int          `json:"logical_col"`
	Winner     games.Winner `json:"winner"`
}

// BigRoadResult is the Big Road grid and the placement trace behind it.
type BigRoadResult struct {
	Matrix *Grid[*Cell] `json:"matrix"`
	Path   []PathEntry  `json:"path"`
}

// BigRoad folds history into the Big Road. Every call starts from empty
// state, so equal histories give equal results.
func BigRoad(history []games.HandResult, opts ...Option) *BigRoadResult {
	winners := make([]games.Winner, len(history))
	for i, h := range history {
		winners[i] = h.Winner
	}
	return BigRoadFromWinners(winners, opts...)
}

// BigRoadFromWinners is BigRoad over bare outcomes.
func BigRoadFromWinners(winners []games.Winner, opts ...Option) *BigRoadResult {
	o := buildOptions(opts)
	matrix := newGrid[*Cell](o.columns)
	path := make([]PathEntry, 0, len(winners))
	var p placer[games.Winner]

	for _, w := range winners {
		if w == games.Tie {
			if len(path) > 0 {
				last := path[len(path)-1]
				if cell := matrix.At(last.Row, last.Col); cell != nil {
					cell.Ties++
				}
				continue
			}
			matrix.set(0, 0, &Cell{Winner: games.Tie, Ties: 1})
			path = append(path, PathEntry{Row: 0, Col: 0, LogicalCol: 0, Winner: games.Tie})
			continue
		}

		first := !p.started
		row, col, logical := p.next(w, matrix.Filled)
		if existing := matrix.At(0, 0); first && existing != nil && existing.Winner == games.Tie {
			// The placeholder becomes the first mark, keeping its ties.
			existing.Winner = w
		} else {
			matrix.set(row, col, &Cell{Winner: w})
		}
		path = append(path, PathEntry{Row: row, Col: col, LogicalCol: logical, Winner: w})
	}

	return &BigRoadResult{Matrix: matrix, Path: path}
}

// Streak is one logical Big Road column.
type Streak struct {
	Winner     games.Winner `json:"winner"`
	Length     int          `json:"length"`
	LogicalCol int          `json:"logical_col"`
}

// Streaks groups the decisive path entries by logical column.
func (r *BigRoadResult) Streaks() []Streak {
	var out []Streak
	for _, e := range r.Path {
		if e.Winner == games.Tie {
			continue
		}
		if n := len(out); n > 0 && out[n-1].LogicalCol == e.LogicalCol {
			out[n-1].Length++
			continue
		}
		out = append(out, Streak{Winner: e.Winner, Length: 1, LogicalCol: e.LogicalCol})
	}
	return out
}

// DragonTails counts streaks that overflowed the six rows.
func (r *BigRoadResult) DragonTails() int {
	n := 0
	for _, s := range r.Streaks() {
		if s.Length > Rows {
			n++
		}
	}
	return n
}
