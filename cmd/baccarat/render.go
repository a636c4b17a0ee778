package main

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/scan"
)

// renderRoads prints the bead plate, the Big Road and the derived roads.
func renderRoads(all *roads.Roads) {
	pterm.DefaultSection.Println("Bead Plate")
	printGrid(all.BeadPlate.Cells(), func(r *games.HandResult) string {
		if r == nil {
			return "."
		}
		return winnerMark(r.Winner)
	})

	pterm.DefaultSection.Println("Big Road")
	printGrid(all.BigRoad.Matrix.Cells(), func(c *roads.Cell) string {
		if c == nil {
			return "."
		}
		mark := winnerMark(c.Winner)
		if c.Ties > 0 && c.Winner != games.Tie {
			mark = pterm.Underscore.Sprint(mark)
		}
		return mark
	})

	for _, d := range []struct {
		name string
		grid *roads.Grid[roads.Color]
	}{
		{"Big Eye Boy", all.BigEyeBoy},
		{"Small Road", all.SmallRoad},
		{"Cockroach Pig", all.CockroachPig},
	} {
		pterm.DefaultSection.WithLevel(2).Println(d.name)
		printGrid(d.grid.Cells(), colorMark)
	}
}

func printGrid[T any](rows [][]T, mark func(T) string) {
	var b strings.Builder
	for _, row := range rows {
		for _, v := range row {
			b.WriteString(mark(v))
		}
		b.WriteByte('\n')
	}
	pterm.Print(b.String())
}

func winnerMark(w games.Winner) string {
	switch w {
	case games.Banker:
		return pterm.FgRed.Sprint("B")
	case games.Player:
		return pterm.FgBlue.Sprint("P")
	case games.Tie:
		return pterm.FgGreen.Sprint("T")
	}
	return "?"
}

func colorMark(c roads.Color) string {
	switch c {
	case roads.Red:
		return pterm.FgRed.Sprint("o")
	case roads.Blue:
		return pterm.FgBlue.Sprint("o")
	}
	return "."
}

// renderSummary prints the streak table of the Big Road.
func renderSummary(big *roads.BigRoadResult) {
	streaks := big.Streaks()
	if len(streaks) == 0 {
		pterm.Info.Println("no decisive hands")
		return
	}
	data := pterm.TableData{{"Column", "Winner", "Length"}}
	for _, s := range streaks {
		data = append(data, []string{strconv.Itoa(s.LogicalCol + 1), s.Winner.String(), strconv.Itoa(s.Length)})
	}
	pterm.DefaultSection.Println("Streaks")
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Info.Printfln("%d dragon tails", big.DragonTails())
}

func renderHits(result *scan.Result) {
	if len(result.Hits) == 0 {
		pterm.Info.Println("no shoes matched")
		return
	}
	data := pterm.TableData{{"Nonce", "Metric"}}
	for _, h := range result.Hits {
		data = append(data, []string{strconv.FormatUint(h.Nonce, 10), strconv.FormatFloat(h.Metric, 'f', -1, 64)})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	s := result.Summary
	pterm.Info.Printfln("min %.2f, max %.2f, mean %.2f", s.MinMetric, s.MaxMetric, s.MeanMetric)
}
