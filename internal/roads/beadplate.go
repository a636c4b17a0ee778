package roads

import "github.com/MJE43/baccarat-roads/internal/games"

// BeadPlate lays history out chronologically, top to bottom then left to
// right: hand i sits at (i%6, i/6). Ties take a cell like any other hand.
func BeadPlate(history []games.HandResult, opts ...Option) *Grid[*games.HandResult] {
	o := buildOptions(opts)
	grid := newGrid[*games.HandResult](o.columns)
	for i := range history {
		grid.set(i%Rows, i/Rows, &history[i])
	}
	return grid
}

// Roads bundles every score-board for one history.
type Roads struct {
	BeadPlate    *Grid[*games.HandResult] `json:"bead_plate"`
	BigRoad      *BigRoadResult           `json:"big_road"`
	BigEyeBoy    *Grid[Color]             `json:"big_eye_boy"`
	SmallRoad    *Grid[Color]             `json:"small_road"`
	CockroachPig *Grid[Color]             `json:"cockroach_pig"`
}

// Build computes the bead plate, the Big Road and the three derived roads.
func Build(history []games.HandResult, opts ...Option) *Roads {
	o := buildOptions(opts)
	big := BigRoad(history, opts...)
	return &Roads{
		BeadPlate:    BeadPlate(history, opts...),
		BigRoad:      big,
		BigEyeBoy:    derive(big.Matrix, big.Path, BigEyeBoy, o),
		SmallRoad:    derive(big.Matrix, big.Path, SmallRoad, o),
		CockroachPig: derive(big.Matrix, big.Path, CockroachPig, o),
	}
}
