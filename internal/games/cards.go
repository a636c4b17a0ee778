package games

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRank = errors.New("invalid card rank")
	ErrInvalidSuit = errors.New("invalid card suit")
)

// Suit is a card suit, stored as its symbol.
type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

// Suits in shoe construction order: ♠, ♥, ♦, ♣
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Ranks in shoe construction order: A, 2-10, J, Q, K
var Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// suitLetters maps single-letter suit codes to symbols so cards can be
// written as "S", "H", "D", "C" in requests.
var suitLetters = map[string]Suit{
	"S": Spades, "H": Hearts, "D": Diamonds, "C": Clubs,
}

// Card represents a playing card with its baccarat point value.
type Card struct {
	Rank  string `json:"rank"`
	Suit  Suit   `json:"suit"`
	Value int    `json:"value"`
}

// NewCard validates rank and suit and returns the card with its value set.
func NewCard(rank string, suit Suit) (Card, error) {
	value, ok := baccaratCardValue(rank)
	if !ok {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidRank, rank)
	}
	if s, ok := suitLetters[string(suit)]; ok {
		suit = s
	}
	if !validSuit(suit) {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidSuit, suit)
	}
	return Card{Rank: rank, Suit: suit, Value: value}, nil
}

// MustCard is NewCard for literals known to be valid.
func MustCard(rank string, suit Suit) Card {
	c, err := NewCard(rank, suit)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCard reads a compact card code such as "9S", "10h", "KD" or "♠A".
func ParseCard(code string) (Card, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, s := range Suits {
		if rank, ok := strings.CutPrefix(code, string(s)); ok {
			return NewCard(rank, s)
		}
		if rank, ok := strings.CutSuffix(code, string(s)); ok {
			return NewCard(rank, s)
		}
	}
	if len(code) < 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrInvalidRank, code)
	}
	return NewCard(code[:len(code)-1], Suit(code[len(code)-1:]))
}

// String returns a human-readable card representation like "♦2" or "♠A".
func (c Card) String() string {
	return string(c.Suit) + c.Rank
}

// UnmarshalJSON decodes {"rank","suit"} and recomputes the value, so a
// corrupted value field can never reach the hand resolver.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw struct {
		Rank string `json:"rank"`
		Suit Suit   `json:"suit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	card, err := NewCard(raw.Rank, raw.Suit)
	if err != nil {
		return err
	}
	*c = card
	return nil
}

func validSuit(s Suit) bool {
	for _, v := range Suits {
		if v == s {
			return true
		}
	}
	return false
}

// baccaratCardValue returns the baccarat point value of a card rank.
// 2-9: face value, 10/J/Q/K: 0, A: 1
func baccaratCardValue(rank string) (int, bool) {
	switch rank {
	case "A":
		return 1, true
	case "2":
		return 2, true
	case "3":
		return 3, true
	case "4":
		return 4, true
	case "5":
		return 5, true
	case "6":
		return 6, true
	case "7":
		return 7, true
	case "8":
		return 8, true
	case "9":
		return 9, true
	case "10", "J", "Q", "K":
		return 0, true
	default:
		return 0, false
	}
}

// HandScore calculates the baccarat hand score (sum of card values mod 10).
func HandScore(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += c.Value
	}
	return total % 10
}
