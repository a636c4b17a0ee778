package roads

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/MJE43/baccarat-roads/internal/games"
)

// hands turns "PBT" style strings into a history.
func hands(t *testing.T, seq string) []games.HandResult {
	t.Helper()
	out := make([]games.HandResult, 0, len(seq))
	for _, ch := range seq {
		w, err := games.ParseWinner(string(ch))
		if err != nil {
			t.Fatalf("bad outcome %q", ch)
		}
		out = append(out, games.HandResult{Winner: w})
	}
	return out
}

func filledCells[T comparable](g *Grid[T]) int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < g.Capacity(); c++ {
			if g.Filled(r, c) {
				n++
			}
		}
	}
	return n
}

func TestBigRoadStreakBreak(t *testing.T) {
	road := BigRoad(hands(t, "PPB"))

	if c := road.Matrix.At(0, 0); c == nil || c.Winner != games.Player {
		t.Errorf("(0,0): expected Player, got %+v", c)
	}
	if c := road.Matrix.At(1, 0); c == nil || c.Winner != games.Player {
		t.Errorf("(1,0): expected Player, got %+v", c)
	}
	if c := road.Matrix.At(0, 1); c == nil || c.Winner != games.Banker {
		t.Errorf("(0,1): expected Banker, got %+v", c)
	}
	if n := filledCells(road.Matrix); n != 3 {
		t.Errorf("expected 3 cells, got %d", n)
	}

	if len(road.Path) != 3 {
		t.Fatalf("expected 3 path entries, got %d", len(road.Path))
	}
	wantLogical := []int{0, 0, 1}
	for i, e := range road.Path {
		if e.LogicalCol != wantLogical[i] {
			t.Errorf("path[%d].LogicalCol = %d, want %d", i, e.LogicalCol, wantLogical[i])
		}
	}
}

func TestBigRoadTiesOnlyPrefix(t *testing.T) {
	road := BigRoad(hands(t, "TTP"))

	cell := road.Matrix.At(0, 0)
	if cell == nil || cell.Winner != games.Player || cell.Ties != 2 {
		t.Fatalf("(0,0): expected Player with 2 ties, got %+v", cell)
	}
	if n := filledCells(road.Matrix); n != 1 {
		t.Errorf("expected exactly 1 cell, got %d", n)
	}

	want := []PathEntry{
		{Row: 0, Col: 0, LogicalCol: 0, Winner: games.Tie},
		{Row: 0, Col: 0, LogicalCol: 0, Winner: games.Player},
	}
	if !reflect.DeepEqual(road.Path, want) {
		t.Errorf("path: got %+v, want %+v", road.Path, want)
	}
}

func TestBigRoadAllTies(t *testing.T) {
	road := BigRoad(hands(t, "TTT"))
	cell := road.Matrix.At(0, 0)
	if cell == nil || cell.Winner != games.Tie || cell.Ties != 3 {
		t.Errorf("expected tie placeholder with 3 ties, got %+v", cell)
	}
	if len(road.Path) != 1 {
		t.Errorf("expected one bootstrap path entry, got %d", len(road.Path))
	}
}

func TestBigRoadTiesAnnotateLastMark(t *testing.T) {
	road := BigRoad(hands(t, "BTTPT"))

	if c := road.Matrix.At(0, 0); c == nil || c.Winner != games.Banker || c.Ties != 2 {
		t.Errorf("(0,0): expected Banker with 2 ties, got %+v", c)
	}
	if c := road.Matrix.At(0, 1); c == nil || c.Winner != games.Player || c.Ties != 1 {
		t.Errorf("(0,1): expected Player with 1 tie, got %+v", c)
	}
	if len(road.Path) != 2 {
		t.Errorf("ties must not add path entries, got %d", len(road.Path))
	}
}

func TestBigRoadDragonTail(t *testing.T) {
	road := BigRoad(hands(t, "BBBBBBBBP"))

	for r := 0; r < Rows; r++ {
		if c := road.Matrix.At(r, 0); c == nil || c.Winner != games.Banker {
			t.Errorf("(%d,0): expected Banker", r)
		}
	}
	if c := road.Matrix.At(0, 1); c == nil || c.Winner != games.Banker {
		t.Errorf("tail (0,1): expected Banker, got %+v", c)
	}
	if c := road.Matrix.At(1, 1); c == nil || c.Winner != games.Banker {
		t.Errorf("tail (1,1): expected Banker, got %+v", c)
	}
	// The next streak skips the tail column.
	if c := road.Matrix.At(0, 2); c == nil || c.Winner != games.Player {
		t.Errorf("(0,2): expected Player, got %+v", c)
	}

	for i := 0; i < 8; i++ {
		if road.Path[i].LogicalCol != 0 {
			t.Errorf("path[%d]: tail entries keep logical column 0, got %d", i, road.Path[i].LogicalCol)
		}
	}
	last := road.Path[len(road.Path)-1]
	if last.LogicalCol != 1 || last.Col != 2 {
		t.Errorf("last entry: expected logical 1 at col 2, got %+v", last)
	}
	if road.DragonTails() != 1 {
		t.Errorf("expected 1 dragon tail, got %d", road.DragonTails())
	}

	streaks := road.Streaks()
	want := []Streak{
		{Winner: games.Banker, Length: 8, LogicalCol: 0},
		{Winner: games.Player, Length: 1, LogicalCol: 1},
	}
	if !reflect.DeepEqual(streaks, want) {
		t.Errorf("streaks: got %+v, want %+v", streaks, want)
	}
}

func TestBigRoadIdempotent(t *testing.T) {
	history := hands(t, "TBBPTPPBBBBBBBTPBPBT")
	a := BigRoad(history)
	b := BigRoad(history)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical histories produced different big roads")
	}
}

func TestBigRoadGrowsPastCapacity(t *testing.T) {
	road := BigRoad(hands(t, "PBPBPBPBPBPB"), WithColumns(2))
	if road.Matrix.Width() != 12 {
		t.Errorf("expected width 12, got %d", road.Matrix.Width())
	}
	if road.Matrix.Capacity() < 12 {
		t.Errorf("capacity did not grow: %d", road.Matrix.Capacity())
	}
	if c := road.Matrix.At(0, 11); c == nil || c.Winner != games.Banker {
		t.Errorf("(0,11): expected Banker, got %+v", c)
	}
}

func TestDerivedRoadEmptyHistory(t *testing.T) {
	road := BigRoad(nil)
	for _, offset := range []int{BigEyeBoy, SmallRoad, CockroachPig} {
		grid, err := DerivedRoad(road.Matrix, road.Path, offset)
		if err != nil {
			t.Fatalf("offset %d: %v", offset, err)
		}
		if n := filledCells(grid); n != 0 {
			t.Errorf("offset %d: expected empty grid, got %d cells", offset, n)
		}
	}
}

func TestDerivedRoadInvalidOffset(t *testing.T) {
	road := BigRoad(hands(t, "PB"))
	for _, offset := range []int{0, 4, -1} {
		if _, err := DerivedRoad(road.Matrix, road.Path, offset); !errors.Is(err, ErrInvalidOffset) {
			t.Errorf("offset %d: expected ErrInvalidOffset, got %v", offset, err)
		}
	}
}

func TestDerivedRoads(t *testing.T) {
	// Big Road: B×2 | P×3 | B×2
	road := BigRoad(hands(t, "BBPPPBB"))

	type mark struct {
		row, col int
		color    Color
	}
	tests := []struct {
		name   string
		offset int
		marks  []mark
	}{
		{"big eye boy", BigEyeBoy, []mark{{0, 0, Red}, {0, 1, Blue}, {1, 1, Blue}, {0, 2, Red}}},
		{"small road", SmallRoad, []mark{{0, 0, Red}}},
		{"cockroach pig", CockroachPig, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := DerivedRoad(road.Matrix, road.Path, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			if n := filledCells(grid); n != len(tt.marks) {
				t.Errorf("expected %d marks, got %d", len(tt.marks), n)
			}
			for _, m := range tt.marks {
				if got := grid.At(m.row, m.col); got != m.color {
					t.Errorf("(%d,%d): expected %s, got %s", m.row, m.col, m.color, got)
				}
			}
		})
	}
}

func TestDerivedRoadSkipsTieBootstrap(t *testing.T) {
	withTies := BigRoad(hands(t, "TBBPPPBB"))
	plain := BigRoad(hands(t, "BBPPPBB"))

	a, _ := DerivedRoad(withTies.Matrix, withTies.Path, BigEyeBoy)
	b, _ := DerivedRoad(plain.Matrix, plain.Path, BigEyeBoy)
	if !reflect.DeepEqual(a.Cells(), b.Cells()) {
		t.Error("a leading tie changed the big eye boy")
	}
}

func TestDerivedRoadJSON(t *testing.T) {
	road := BigRoad(hands(t, "BBPPPBB"))
	grid, _ := DerivedRoad(road.Matrix, road.Path, BigEyeBoy)

	got, err := json.Marshal(grid)
	if err != nil {
		t.Fatal(err)
	}
	want := `[["red","blue","red"],[null,"blue",null],[null,null,null],[null,null,null],[null,null,null],[null,null,null]]`
	if string(got) != want {
		t.Errorf("json:\n got %s\nwant %s", got, want)
	}
}

func TestBeadPlate(t *testing.T) {
	history := hands(t, "PBTPPBBT")
	plate := BeadPlate(history)

	if plate.Width() != 2 {
		t.Errorf("expected width 2, got %d", plate.Width())
	}
	if h := plate.At(2, 0); h == nil || h.Winner != games.Tie {
		t.Errorf("(2,0): expected Tie, got %+v", h)
	}
	if h := plate.At(0, 1); h == nil || h.Winner != games.Banker {
		t.Errorf("(0,1): expected Banker, got %+v", h)
	}
	if h := plate.At(1, 1); h == nil || h.Winner != games.Tie {
		t.Errorf("(1,1): expected Tie, got %+v", h)
	}
	if plate.Filled(2, 1) {
		t.Error("(2,1) should be empty")
	}
}

func TestBuild(t *testing.T) {
	history := hands(t, "BBPPPBB")
	all := Build(history)

	beb, _ := DerivedRoad(all.BigRoad.Matrix, all.BigRoad.Path, BigEyeBoy)
	if !reflect.DeepEqual(all.BigEyeBoy.Cells(), beb.Cells()) {
		t.Error("Build big eye boy differs from DerivedRoad")
	}
	if all.BeadPlate.Width() != 2 {
		t.Errorf("bead plate width: expected 2, got %d", all.BeadPlate.Width())
	}
	if _, err := json.Marshal(all); err != nil {
		t.Errorf("marshal roads: %v", err)
	}
}
