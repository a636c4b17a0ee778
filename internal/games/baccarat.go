package games

import (
	"errors"
	"fmt"
	"strings"
)

// Maximum 6 cards needed per hand (3 player + 3 banker).
const MaxCardsPerHand = 6

var ErrInsufficientShoe = errors.New("insufficient cards in shoe")

// Winner is the outcome of a hand. Encoded as "P", "B" and "T".
type Winner string

const (
	Player Winner = "P"
	Banker Winner = "B"
	Tie    Winner = "T"
)

// ParseWinner accepts the short codes and the full names, any case.
func ParseWinner(s string) (Winner, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "player":
		return Player, nil
	case "b", "banker":
		return Banker, nil
	case "t", "tie":
		return Tie, nil
	}
	return "", fmt.Errorf("invalid winner %q", s)
}

// String returns the full outcome name.
func (w Winner) String() string {
	switch w {
	case Player:
		return "Player"
	case Banker:
		return "Banker"
	case Tie:
		return "Tie"
	default:
		return string(w)
	}
}

// HandResult is the immutable outcome of one resolved hand.
type HandResult struct {
	Winner       Winner `json:"winner"`
	PlayerScore  int    `json:"player_score"`
	BankerScore  int    `json:"banker_score"`
	PlayerCards  []Card `json:"player_cards"`
	BankerCards  []Card `json:"banker_cards"`
	IsPairPlayer bool   `json:"is_pair_player"`
	IsPairBanker bool   `json:"is_pair_banker"`
}

// Natural reports whether either side's first two cards scored 8 or 9.
func (r HandResult) Natural() bool {
	if len(r.PlayerCards) < 2 || len(r.BankerCards) < 2 {
		return false
	}
	return HandScore(r.PlayerCards[:2]) >= 8 || HandScore(r.BankerCards[:2]) >= 8
}

// ResolveHand deals one hand from the front of shoe and returns the result
// and the number of cards consumed (4, 5 or 6). The shoe is not modified;
// callers advance it by the consumed count.
func ResolveHand(shoe Shoe) (HandResult, int, error) {
	if len(shoe) < MaxCardsPerHand {
		return HandResult{}, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientShoe, MaxCardsPerHand, len(shoe))
	}

	// Standard deal order: player1, banker1, player2, banker2, player3, banker3
	playerCards := []Card{shoe[0], shoe[2]}
	bankerCards := []Card{shoe[1], shoe[3]}
	used := 4

	playerScore := HandScore(playerCards)
	bankerScore := HandScore(bankerCards)

	// Neither side draws if either has a natural (8 or 9)
	if playerScore < 8 && bankerScore < 8 {
		playerDraws := false
		var playerThird Card

		// Player draws on 0-5
		if playerScore <= 5 {
			playerDraws = true
			playerThird = shoe[used]
			used++
			playerCards = append(playerCards, playerThird)
			playerScore = HandScore(playerCards)
		}

		var bankerDraws bool
		if playerDraws {
			bankerDraws = bankerShouldDraw(bankerScore, playerThird.Value)
		} else {
			// Player stood: banker draws on 0-5
			bankerDraws = bankerScore <= 5
		}

		if bankerDraws {
			bankerCards = append(bankerCards, shoe[used])
			used++
			bankerScore = HandScore(bankerCards)
		}
	}

	return HandResult{
		Winner:       WinnerFor(playerScore, bankerScore),
		PlayerScore:  playerScore,
		BankerScore:  bankerScore,
		PlayerCards:  playerCards,
		BankerCards:  bankerCards,
		IsPairPlayer: playerCards[0].Rank == playerCards[1].Rank,
		IsPairBanker: bankerCards[0].Rank == bankerCards[1].Rank,
	}, used, nil
}

// WinnerFor returns the side with the higher final score, or Tie.
func WinnerFor(playerScore, bankerScore int) Winner {
	switch {
	case playerScore > bankerScore:
		return Player
	case bankerScore > playerScore:
		return Banker
	}
	return Tie
}

// bankerShouldDraw implements the standard baccarat banker third-card rule.
// bankerScore is the banker's current score (0-7), playerThirdCard is the
// point value of the player's third card.
func bankerShouldDraw(bankerScore int, playerThirdCard int) bool {
	switch bankerScore {
	case 0, 1, 2:
		return true
	case 3:
		return playerThirdCard != 8
	case 4:
		return playerThirdCard >= 2 && playerThirdCard <= 7
	case 5:
		return playerThirdCard >= 4 && playerThirdCard <= 7
	case 6:
		return playerThirdCard == 6 || playerThirdCard == 7
	default: // 7, 8, 9
		return false
	}
}
