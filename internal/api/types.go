package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/games"
	"github.com/MJE43/baccarat-roads/internal/roads"
	"github.com/MJE43/baccarat-roads/internal/scan"
	"github.com/MJE43/baccarat-roads/internal/scripting"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation    = "validation_error"
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidCard   = "invalid_card"
	ErrTypeInvalidOffset = "invalid_offset"
	ErrTypeUnknownMetric = "unknown_metric"

	// Game-related errors
	ErrTypeInsufficientShoe = "insufficient_shoe"
	ErrTypeShoeExhausted    = "shoe_exhausted"
	ErrTypeScript           = "script_error"

	// System errors
	ErrTypeNotFound           = "not_found"
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidSeed, ErrTypeInvalidCard, ErrTypeInvalidOffset, ErrTypeUnknownMetric:
		return CategoryValidation
	case ErrTypeInsufficientShoe, ErrTypeShoeExhausted, ErrTypeScript:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
	GoVersion     string `json:"go_version,omitempty"`
	Dirty         bool   `json:"dirty,omitempty"`
}

// HandRequest resolves one hand from an ordered card list. Cards may be
// given as objects or as compact codes ("9S", "KD"); codes win if both are set.
type HandRequest struct {
	Cards []games.Card `json:"cards,omitempty"`
	Codes []string     `json:"codes,omitempty"`
}

// HandResponse is the resolved hand
type HandResponse struct {
	Result        games.HandResult `json:"result"`
	CardsUsed     int              `json:"cards_used"`
	Natural       bool             `json:"natural"`
	EngineVersion string           `json:"engine_version"`
}

// RoadsRequest carries a shoe history either as a winners string ("PBTB")
// or as full hand results.
type RoadsRequest struct {
	Winners string             `json:"winners,omitempty"`
	History []games.HandResult `json:"history,omitempty"`
	Columns int                `json:"columns,omitempty"`
}

// RoadsResponse contains every road for the history
type RoadsResponse struct {
	Roads         *roads.Roads   `json:"roads"`
	Streaks       []roads.Streak `json:"streaks"`
	DragonTails   int            `json:"dragon_tails"`
	EngineVersion string         `json:"engine_version"`
}

// DerivedRequest asks for one derived road at an explicit offset
type DerivedRequest struct {
	Winners string `json:"winners"`
	Offset  int    `json:"offset"`
	Columns int    `json:"columns,omitempty"`
}

// DerivedResponse is a single derived road grid
type DerivedResponse struct {
	Offset        int                      `json:"offset"`
	Grid          *roads.Grid[roads.Color] `json:"grid"`
	EngineVersion string                   `json:"engine_version"`
}

// ShoeRequest deals one provably fair shoe
type ShoeRequest struct {
	Seeds       engine.Seeds `json:"seeds"`
	Nonce       uint64       `json:"nonce"`
	Decks       int          `json:"decks,omitempty"`
	ReshuffleAt int          `json:"reshuffle_at,omitempty"`
	// Hands caps the hands dealt; zero deals until the cut card.
	Hands int `json:"hands,omitempty"`
}

// ShoeResponse is the dealt shoe with its roads
type ShoeResponse struct {
	ServerSeedHash string             `json:"server_seed_hash"`
	ClientSeed     string             `json:"client_seed"`
	Nonce          uint64             `json:"nonce"`
	Decks          int                `json:"decks"`
	BurnCard       games.Card         `json:"burn_card"`
	Burned         int                `json:"burned"`
	TotalCards     int                `json:"total_cards"`
	CardsUsed      int                `json:"cards_used"`
	CardsRemaining int                `json:"cards_remaining"`
	History        []games.HandResult `json:"history"`
	Roads          *roads.Roads       `json:"roads"`
	EngineVersion  string             `json:"engine_version"`
}

// SettleRequest settles a bet map (area -> stake) against a hand result
type SettleRequest struct {
	Bets   map[string]decimal.Decimal `json:"bets"`
	Result games.HandResult           `json:"result"`
}

// SettleResponse reports the stake and the total returned
type SettleResponse struct {
	Stake         decimal.Decimal `json:"stake"`
	Returned      decimal.Decimal `json:"returned"`
	Profit        decimal.Decimal `json:"profit"`
	EngineVersion string          `json:"engine_version"`
}

// ScanRequest represents a scan operation request
type ScanRequest struct {
	Seeds       engine.Seeds `json:"seeds"`
	NonceStart  uint64       `json:"nonce_start"`
	NonceEnd    uint64       `json:"nonce_end"`
	Decks       int          `json:"decks,omitempty"`
	ReshuffleAt int          `json:"reshuffle_at,omitempty"`
	Metric      string       `json:"metric"`
	TargetOp    string       `json:"target_op"` // "ge", "le", "eq", "gt", "lt", "between", "outside"
	TargetVal   float64      `json:"target_val"`
	TargetVal2  float64      `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance   float64      `json:"tolerance"`
	Limit       int          `json:"limit,omitempty"`
	TimeoutMs   int          `json:"timeout_ms,omitempty"`
}

// ScanResponse represents the complete scan response
type ScanResponse struct {
	RunID         string       `json:"run_id,omitempty"`
	Hits          []scan.Hit   `json:"hits"`
	Summary       scan.Summary `json:"summary"`
	EngineVersion string       `json:"engine_version"`
	Echo          ScanRequest  `json:"echo"`
}

// StrategyRequest runs a dobet() script over one shoe
type StrategyRequest struct {
	Script       string          `json:"script"`
	Seeds        engine.Seeds    `json:"seeds"`
	Nonce        uint64          `json:"nonce"`
	Decks        int             `json:"decks,omitempty"`
	StartBalance decimal.Decimal `json:"start_balance"`
	MaxHands     int             `json:"max_hands,omitempty"`
	// Save persists the run as a session when a session store is configured.
	Save bool   `json:"save,omitempty"`
	Name string `json:"name,omitempty"`
}

// StrategyResponse wraps the strategy report
type StrategyResponse struct {
	Report        *scripting.Report `json:"report"`
	SessionID     string            `json:"session_id,omitempty"`
	EngineVersion string            `json:"engine_version"`
}
