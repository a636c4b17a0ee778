package scripting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/table"
)

// Stop reasons reported by Run.
const (
	StopShoeExhausted = "shoe_exhausted"
	StopScript        = "stop_called"
	StopMaxHands      = "max_hands"
)

// Options configures one strategy run.
type Options struct {
	Script       string
	Seeds        engine.Seeds
	Nonce        uint64
	Table        table.Config
	StartBalance decimal.Decimal
	// MaxHands caps the hands played; zero plays the whole shoe.
	MaxHands    int
	CallTimeout time.Duration
	// OnHand, when set, receives every settled hand as it is played.
	OnHand func(HandRecord)
}

// HandRecord is one settled hand of a run.
type HandRecord struct {
	Hand     int              `json:"hand"`
	Result   games.HandResult `json:"result"`
	Bets     Wager            `json:"bets"`
	Stake    decimal.Decimal  `json:"stake"`
	Returned decimal.Decimal  `json:"returned"`
	Balance  decimal.Decimal  `json:"balance"`
}

// Report summarises a finished run.
type Report struct {
	Stats      Statistics   `json:"stats"`
	Hands      []HandRecord `json:"hands"`
	Logs       []LogEntry   `json:"logs"`
	StopReason string       `json:"stop_reason"`
	BurnCard   games.Card   `json:"burn_card"`
}

// Run executes opts.Script and plays one provably fair shoe with it. Before
// every hand dobet() is called; the bets object it leaves behind is staked,
// the hand is dealt and the wager settled.
func Run(ctx context.Context, opts Options) (*Report, error) {
	cfg := opts.Table
	if cfg.Decks == 0 {
		cfg = table.DefaultConfig()
	}
	tbl, err := table.New(cfg, engine.NewShuffleSource(opts.Seeds, opts.Nonce))
	if err != nil {
		return nil, err
	}

	vm := NewVM()
	vm.SetCallTimeout(opts.CallTimeout)
	resetBets(vm.runtime)
	if err := vm.Execute(opts.Script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScript, err)
	}
	if !vm.HasDobet() {
		return nil, fmt.Errorf("%w: %w", ErrScript, ErrNoDobet)
	}

	stats := NewStatistics(opts.StartBalance)
	report := &Report{BurnCard: tbl.BurnCard(), Hands: []HandRecord{}}
	var (
		history  strings.Builder
		winners  []games.Winner
		streak   int
		last     games.Winner // last decisive winner
		lastHand games.Winner
		won      bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.MaxHands > 0 && stats.Hands >= opts.MaxHands {
			report.StopReason = StopMaxHands
			break
		}
		if tbl.Exhausted() {
			report.StopReason = StopShoeExhausted
			break
		}

		vm.SetVariables(&Variables{
			Hand:        stats.Hands + 1,
			Balance:     stats.Balance.InexactFloat64(),
			Profit:      stats.Profit.InexactFloat64(),
			Wagered:     stats.Wagered.InexactFloat64(),
			Win:         won,
			LastWinner:  string(lastHand),
			Streak:      streak,
			History:     history.String(),
			BigRoadCols: roads.BigRoadFromWinners(winners).Matrix.Width(),
			Remaining:   tbl.Remaining(),
		})
		if err := vm.CallDobet(); err != nil {
			return nil, fmt.Errorf("%w: hand %d: %w", ErrScript, stats.Hands+1, err)
		}
		if vm.IsStopRequested() {
			report.StopReason = StopScript
			break
		}
		wager, err := vm.Bets()
		if err != nil {
			return nil, fmt.Errorf("%w: hand %d: %w", ErrScript, stats.Hands+1, err)
		}

		next, result, err := tbl.Deal()
		if err != nil {
			return nil, err
		}
		tbl = next

		stake := games.TotalStake(wager)
		returned := games.Settle(wager, result)
		stats.RecordHand(stake, returned)
		won = returned.GreaterThan(stake)

		rec := HandRecord{
			Hand:     stats.Hands,
			Result:   result,
			Bets:     wager,
			Stake:    stake,
			Returned: returned,
			Balance:  stats.Balance,
		}
		report.Hands = append(report.Hands, rec)
		if opts.OnHand != nil {
			opts.OnHand(rec)
		}

		history.WriteString(string(result.Winner))
		winners = append(winners, result.Winner)
		lastHand = result.Winner
		switch {
		case result.Winner == games.Tie:
		case result.Winner == last:
			streak++
		default:
			last, streak = result.Winner, 1
		}
	}

	report.Stats = *stats
	report.Logs = vm.GetLogs()
	return report, nil
}
