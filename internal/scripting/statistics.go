package scripting

import "github.com/shopspring/decimal"

// Statistics tracks session-level betting statistics. Hands with no stake
// are counted in Hands only.
type Statistics struct {
	Hands    int             `json:"hands"`
	Bets     int             `json:"bets"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Pushes   int             `json:"pushes"`
	Wagered  decimal.Decimal `json:"wagered"`
	Returned decimal.Decimal `json:"returned"`
	Profit   decimal.Decimal `json:"profit"`
	Balance  decimal.Decimal `json:"balance"`
	StartBal decimal.Decimal `json:"start_balance"`

	WinStreak  int `json:"win_streak"`
	LoseStreak int `json:"lose_streak"`
	// Positive = win streak, negative = lose streak.
	CurrentStreak int `json:"current_streak"`

	HighestStreak int             `json:"highest_streak"`
	LowestStreak  int             `json:"lowest_streak"`
	HighestBet    decimal.Decimal `json:"highest_bet"`
	HighestProfit decimal.Decimal `json:"highest_profit"`
	LowestProfit  decimal.Decimal `json:"lowest_profit"`
}

// NewStatistics creates a Statistics with starting balance.
func NewStatistics(startBalance decimal.Decimal) *Statistics {
	return &Statistics{
		Balance:  startBalance,
		StartBal: startBalance,
	}
}

// RecordHand books one settled hand. stake is the total wagered and
// returned the total paid back, stake included.
func (s *Statistics) RecordHand(stake, returned decimal.Decimal) {
	s.Hands++
	if stake.IsZero() {
		return
	}
	s.Bets++

	profit := returned.Sub(stake)
	s.Wagered = s.Wagered.Add(stake)
	s.Returned = s.Returned.Add(returned)
	s.Profit = s.Profit.Add(profit)
	s.Balance = s.Balance.Add(profit)

	switch profit.Sign() {
	case 1:
		s.Wins++
		s.WinStreak++
		s.LoseStreak = 0
		s.CurrentStreak = s.WinStreak
	case -1:
		s.Losses++
		s.LoseStreak++
		s.WinStreak = 0
		s.CurrentStreak = -s.LoseStreak
	default:
		s.Pushes++
	}

	if stake.GreaterThan(s.HighestBet) {
		s.HighestBet = stake
	}
	if s.Profit.GreaterThan(s.HighestProfit) {
		s.HighestProfit = s.Profit
	}
	if s.Profit.LessThan(s.LowestProfit) {
		s.LowestProfit = s.Profit
	}
	s.HighestStreak = max(s.HighestStreak, s.CurrentStreak)
	s.LowestStreak = min(s.LowestStreak, s.CurrentStreak)
}
