package games

import (
	"errors"
	"fmt"
)

const (
	CardsPerDeck = 52
	DefaultDecks = 8
)

var (
	ErrInvalidDeckCount = errors.New("deck count must be at least 1")
	ErrNilRandomSource  = errors.New("random source is required")
)

// RandomSource supplies the uniform integers used for shuffling.
// IntN returns a value in [0, n). *math/rand/v2.Rand satisfies it, as do
// the provably fair sources in the engine package.
type RandomSource interface {
	IntN(n int) int
}

// Shoe is an ordered stack of cards dealt strictly from the front.
type Shoe []Card

// NewShoe builds decks×52 cards and shuffles them with rng.
func NewShoe(decks int, rng RandomSource) (Shoe, error) {
	if decks < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDeckCount, decks)
	}
	if rng == nil {
		return nil, ErrNilRandomSource
	}

	shoe := make(Shoe, 0, decks*CardsPerDeck)
	for i := 0; i < decks; i++ {
		for _, suit := range Suits {
			for _, rank := range Ranks {
				shoe = append(shoe, MustCard(rank, suit))
			}
		}
	}

	// Fisher–Yates, j drawn from the inclusive range [0, i]
	for i := len(shoe) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		shoe[i], shoe[j] = shoe[j], shoe[i]
	}
	return shoe, nil
}

// Len returns the number of cards left in the shoe.
func (s Shoe) Len() int { return len(s) }

// Advance returns the shoe with the first n cards removed.
func (s Shoe) Advance(n int) Shoe {
	if n >= len(s) {
		return s[len(s):]
	}
	return s[n:]
}

// BurnCount returns how many cards the revealed burn card removes after
// itself. A zero-valued card burns ten.
func BurnCount(c Card) int {
	if c.Value == 0 {
		return 10
	}
	return c.Value
}

// Burn reveals the first card and discards it along with BurnCount more.
// It returns the remaining shoe, the burn card, and the total cards removed.
func Burn(s Shoe) (Shoe, Card, int, error) {
	if len(s) == 0 {
		return s, Card{}, 0, fmt.Errorf("%w: empty shoe", ErrInsufficientShoe)
	}
	burnCard := s[0]
	removed := BurnCount(burnCard) + 1
	if len(s) < removed {
		return s, burnCard, 0, fmt.Errorf("%w: need %d cards to burn, have %d", ErrInsufficientShoe, removed, len(s))
	}
	return s[removed:], burnCard, removed, nil
}
