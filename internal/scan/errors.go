package scan

import "errors"

var (
	ErrInvalidRange  = errors.New("invalid nonce range")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidTarget = errors.New("invalid target")
	ErrTimeout       = errors.New("scan timed out")
)
