package scripting

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"

	"github.com/MJE43/baccarat-roads/internal/games"
)

// Wager is the stake placed on each betting area for one hand.
type Wager map[games.BetTarget]decimal.Decimal

// betKeys maps the script's bets object keys to betting areas.
var betKeys = []struct {
	key    string
	target games.BetTarget
}{
	{"player", games.BetPlayer},
	{"banker", games.BetBanker},
	{"tie", games.BetTie},
	{"playerpair", games.BetPlayerPair},
	{"bankerpair", games.BetBankerPair},
}

// injectConstants sets the outcome codes scripts compare lastwinner with.
func injectConstants(vm *goja.Runtime) {
	vm.Set("PLAYER", string(games.Player))
	vm.Set("BANKER", string(games.Banker))
	vm.Set("TIE", string(games.Tie))
}

// Variables is the table state a script sees before each hand.
type Variables struct {
	Hand        int     `json:"hand"`
	Balance     float64 `json:"balance"`
	Profit      float64 `json:"profit"`
	Wagered     float64 `json:"wagered"`
	Win         bool    `json:"win"`
	LastWinner  string  `json:"lastwinner"`
	Streak      int     `json:"streak"`
	History     string  `json:"history"`
	BigRoadCols int     `json:"bigroadcols"`
	Remaining   int     `json:"remaining"`
}

// injectVariables sets the read-only globals. Scripts communicate back only
// through the bets object.
func injectVariables(vm *goja.Runtime, vars *Variables) {
	vm.Set("hand", vars.Hand)
	vm.Set("balance", vars.Balance)
	vm.Set("profit", vars.Profit)
	vm.Set("wagered", vars.Wagered)
	vm.Set("win", vars.Win)
	vm.Set("lastwinner", vars.LastWinner)
	vm.Set("streak", vars.Streak)
	vm.Set("history", vars.History)
	vm.Set("bigroadcols", vars.BigRoadCols)
	vm.Set("remaining", vars.Remaining)
}

// resetBets installs an empty bets object.
func resetBets(vm *goja.Runtime) {
	bets := vm.NewObject()
	for _, k := range betKeys {
		bets.Set(k.key, 0)
	}
	vm.Set("bets", bets)
}

// readBets converts the bets object into a Wager. Missing or zero areas are
// left out; negative or non-finite amounts are rejected.
func readBets(vm *goja.Runtime) (Wager, error) {
	wager := Wager{}
	v := vm.Get("bets")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return wager, nil
	}
	obj := v.ToObject(vm)
	for _, k := range betKeys {
		amount := toFloat64(obj.Get(k.key))
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
			return nil, fmt.Errorf("bets.%s: invalid amount %v", k.key, amount)
		}
		if amount == 0 {
			continue
		}
		wager[k.target] = decimal.NewFromFloat(amount)
	}
	return wager, nil
}

func toFloat64(v goja.Value) float64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return v.ToFloat()
}
