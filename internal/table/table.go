// Package table holds the lifecycle of one shoe: the cards left, the burn,
// and the hands dealt so far. A Table is a value; every operation returns a
// new Table and leaves the receiver untouched.
package table

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
)

// DefaultReshuffleAt is the remaining card count below which no new hand is
// dealt.
const DefaultReshuffleAt = 10

var ErrShoeExhausted = errors.New("shoe exhausted, reshuffle required")

// Config sizes the shoe and sets the cut point.
type Config struct {
	Decks       int `json:"decks" yaml:"decks"`
	ReshuffleAt int `json:"reshuffle_at" yaml:"reshuffle_at"`
}

// DefaultConfig is an eight deck shoe cut at ten cards.
func DefaultConfig() Config {
	return Config{Decks: games.DefaultDecks, ReshuffleAt: DefaultReshuffleAt}
}

// threshold never drops below what a single hand can consume.
func (c Config) threshold() int {
	return max(c.ReshuffleAt, games.MaxCardsPerHand)
}

// Table is the state of one shoe in play.
type Table struct {
	cfg      Config
	shoe     games.Shoe
	history  []games.HandResult
	burnCard games.Card
	burned   int
	total    int
}

// New shuffles a fresh shoe with rng and applies the burn.
func New(cfg Config, rng games.RandomSource) (Table, error) {
	shoe, err := games.NewShoe(cfg.Decks, rng)
	if err != nil {
		return Table{}, err
	}
	total := len(shoe)
	shoe, burnCard, burned, err := games.Burn(shoe)
	if err != nil {
		return Table{}, fmt.Errorf("burn: %w", err)
	}
	return Table{
		cfg:      cfg,
		shoe:     shoe,
		burnCard: burnCard,
		burned:   burned,
		total:    total,
	}, nil
}

// Reshuffle starts a new shoe with the same configuration. History is
// cleared.
func (t Table) Reshuffle(rng games.RandomSource) (Table, error) {
	return New(t.cfg, rng)
}

// Deal resolves the next hand. It returns ErrShoeExhausted once the shoe is
// past the cut.
func (t Table) Deal() (Table, games.HandResult, error) {
	if t.Exhausted() {
		return t, games.HandResult{}, fmt.Errorf("%w: %d cards left", ErrShoeExhausted, len(t.shoe))
	}
	result, consumed, err := games.ResolveHand(t.shoe)
	if err != nil {
		return t, games.HandResult{}, err
	}
	t.shoe = t.shoe.Advance(consumed)
	t.history = append(slices.Clip(t.history), result)
	return t, result, nil
}

// DealShoe deals until the shoe is exhausted or limit hands have been dealt
// by this call. A limit of zero or less means no limit.
func (t Table) DealShoe(limit int) Table {
	for n := 0; limit <= 0 || n < limit; n++ {
		next, _, err := t.Deal()
		if err != nil {
			break
		}
		t = next
	}
	return t
}

// Exhausted reports whether the shoe is past the cut.
func (t Table) Exhausted() bool {
	return len(t.shoe) < t.cfg.threshold()
}

// History returns a copy of the hands dealt from this shoe.
func (t Table) History() []games.HandResult {
	return slices.Clone(t.history)
}

// Hands is the number of hands dealt from this shoe.
func (t Table) Hands() int { return len(t.history) }

// Remaining is the number of undealt cards.
func (t Table) Remaining() int { return len(t.shoe) }

// Used counts the cards taken out of the shoe, burn included.
func (t Table) Used() int { return t.total - len(t.shoe) }

// Total is the shoe size before the burn.
func (t Table) Total() int { return t.total }

// BurnCard is the card revealed to set the burn.
func (t Table) BurnCard() games.Card { return t.burnCard }

// Burned counts the burn card and the cards it discarded.
func (t Table) Burned() int { return t.burned }

// Config returns the table configuration.
func (t Table) Config() Config { return t.cfg }

// Roads builds every road for the current history.
func (t Table) Roads(opts ...roads.Option) *roads.Roads {
	return roads.Build(t.History(), opts...)
}
