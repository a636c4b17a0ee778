package games

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BetTarget identifies a betting area.
type BetTarget string

const (
	BetPlayer     BetTarget = "player"
	BetBanker     BetTarget = "banker"
	BetTie        BetTarget = "tie"
	BetPlayerPair BetTarget = "player_pair"
	BetBankerPair BetTarget = "banker_pair"
)

// ErrInvalidBetTarget is returned for unknown betting area names.
var ErrInvalidBetTarget = errors.New("invalid bet target")

// BetTargets lists every betting area in table order.
var BetTargets = []BetTarget{BetPlayerPair, BetPlayer, BetTie, BetBanker, BetBankerPair}

// Total-return multipliers (stake included). Player pays 1:1, Banker 0.95:1,
// Tie 8:1, pairs 11:1.
var (
	playerReturn = decimal.NewFromInt(2)
	bankerReturn = decimal.RequireFromString("1.95")
	tieReturn    = decimal.NewFromInt(9)
	pairReturn   = decimal.NewFromInt(12)
	pushReturn   = decimal.NewFromInt(1)
)

// ParseBetTarget normalises names such as "Player Pair" or "bankerpair".
func ParseBetTarget(s string) (BetTarget, error) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
	switch key {
	case "player", "p":
		return BetPlayer, nil
	case "banker", "b":
		return BetBanker, nil
	case "tie", "t":
		return BetTie, nil
	case "playerpair", "pp":
		return BetPlayerPair, nil
	case "bankerpair", "bp":
		return BetBankerPair, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBetTarget, s)
}

// ReturnMultiplier is the total amount paid back per unit staked on target
// for the given result. Zero means the bet lost.
func ReturnMultiplier(target BetTarget, result HandResult) decimal.Decimal {
	switch target {
	case BetPlayer:
		switch result.Winner {
		case Player:
			return playerReturn
		case Tie:
			return pushReturn
		}
	case BetBanker:
		switch result.Winner {
		case Banker:
			return bankerReturn
		case Tie:
			return pushReturn
		}
	case BetTie:
		if result.Winner == Tie {
			return tieReturn
		}
	case BetPlayerPair:
		if result.IsPairPlayer {
			return pairReturn
		}
	case BetBankerPair:
		if result.IsPairBanker {
			return pairReturn
		}
	}
	return decimal.Zero
}

// Settle returns the total paid back for bets on result, stakes included.
func Settle(bets map[BetTarget]decimal.Decimal, result HandResult) decimal.Decimal {
	total := decimal.Zero
	for target, amount := range bets {
		if !amount.IsPositive() {
			continue
		}
		total = total.Add(amount.Mul(ReturnMultiplier(target, result)))
	}
	return total
}

// TotalStake sums the positive stakes in bets.
func TotalStake(bets map[BetTarget]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range bets {
		if amount.IsPositive() {
			total = total.Add(amount)
		}
	}
	return total
}
