package api

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MJE43/baccarat-roads/internal/engine"
	"github.com/MJE43/baccarat-roads/internal/scan"
)

const (
	maxDecks     = 16
	maxColumns   = 10_000
	maxLimit     = 100_000
	maxTimeoutMs = 300_000 // 5 minutes
)

var validOps = []string{
	string(scan.OpEqual), string(scan.OpGreater), string(scan.OpGreaterEqual),
	string(scan.OpLess), string(scan.OpLessEqual), string(scan.OpBetween), string(scan.OpOutside),
}

// fieldError is a validation failure on one request field.
type fieldError struct {
	field   string
	message string
}

func (e fieldError) Error() string { return e.field + ": " + e.message }

func invalid(field, format string, args ...any) error {
	return fieldError{field: field, message: fmt.Sprintf(format, args...)}
}

func validateSeeds(seeds engine.Seeds) error {
	if seeds.Server == "" {
		return invalid("seeds.server", "server seed is required")
	}
	if seeds.Client == "" {
		return invalid("seeds.client", "client seed is required")
	}
	return nil
}

func validateDecks(decks int) error {
	if decks < 0 || decks > maxDecks {
		return invalid("decks", "decks must be between 1 and %d", maxDecks)
	}
	return nil
}

func validateColumns(columns int) error {
	if columns < 0 || columns > maxColumns {
		return invalid("columns", "columns must be between 1 and %d", maxColumns)
	}
	return nil
}

// ValidateScanRequest validates a scan request and returns any validation errors
func ValidateScanRequest(req *ScanRequest, maxRange uint64) error {
	if err := validateSeeds(req.Seeds); err != nil {
		return err
	}
	if err := validateDecks(req.Decks); err != nil {
		return err
	}

	if req.NonceEnd < req.NonceStart {
		return invalid("nonce_end", "nonce_end (%d) must be >= nonce_start (%d)", req.NonceEnd, req.NonceStart)
	}
	if maxRange > 0 && req.NonceEnd-req.NonceStart >= maxRange {
		return invalid("nonce_end", "nonce range too large (max %d nonces)", maxRange)
	}

	if req.Metric == "" {
		return invalid("metric", "metric is required")
	}
	if req.TargetOp == "" {
		return invalid("target_op", "target_op is required")
	}
	if !slices.Contains(validOps, req.TargetOp) {
		return invalid("target_op", "target_op must be one of: %s", strings.Join(validOps, ", "))
	}
	if (req.TargetOp == string(scan.OpBetween) || req.TargetOp == string(scan.OpOutside)) && req.TargetVal > req.TargetVal2 {
		return invalid("target_val2", "target_val must be <= target_val2 for '%s' operation", req.TargetOp)
	}

	if req.Limit < 0 || req.Limit > maxLimit {
		return invalid("limit", "limit must be between 0 and %d", maxLimit)
	}
	if req.TimeoutMs < 0 || req.TimeoutMs > maxTimeoutMs {
		return invalid("timeout_ms", "timeout_ms must be between 0 and %d ms", maxTimeoutMs)
	}
	if req.Tolerance < 0 {
		return invalid("tolerance", "tolerance must be >= 0")
	}
	return nil
}

// ValidateShoeRequest validates a shoe deal request
func ValidateShoeRequest(req *ShoeRequest) error {
	if err := validateSeeds(req.Seeds); err != nil {
		return err
	}
	if err := validateDecks(req.Decks); err != nil {
		return err
	}
	if req.Hands < 0 {
		return invalid("hands", "hands must be >= 0")
	}
	return nil
}

// ValidateStrategyRequest validates a strategy run request
func ValidateStrategyRequest(req *StrategyRequest) error {
	if strings.TrimSpace(req.Script) == "" {
		return invalid("script", "script is required")
	}
	if err := validateSeeds(req.Seeds); err != nil {
		return err
	}
	if err := validateDecks(req.Decks); err != nil {
		return err
	}
	if req.StartBalance.IsNegative() {
		return invalid("start_balance", "start_balance must be >= 0")
	}
	if req.MaxHands < 0 {
		return invalid("max_hands", "max_hands must be >= 0")
	}
	return nil
}

// convertToScanRequest converts API ScanRequest to internal scan.Request
func convertToScanRequest(apiReq *ScanRequest) scan.Request {
	return scan.Request{
		Seeds:       apiReq.Seeds,
		NonceStart:  apiReq.NonceStart,
		NonceEnd:    apiReq.NonceEnd,
		Decks:       apiReq.Decks,
		ReshuffleAt: apiReq.ReshuffleAt,
		Metric:      scan.Metric(apiReq.Metric),
		TargetOp:    scan.TargetOp(apiReq.TargetOp),
		TargetVal:   apiReq.TargetVal,
		TargetVal2:  apiReq.TargetVal2,
		Tolerance:   apiReq.Tolerance,
		Limit:       apiReq.Limit,
		TimeoutMs:   apiReq.TimeoutMs,
	}
}
