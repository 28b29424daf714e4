package api

import "errors"

// Error taxonomy for RATE computations. Every failure wraps exactly one of
// these sentinels so callers can distinguish bad vectors from bad statistics
// from bad configuration with errors.Is.
var (
	// ErrInputShape covers mismatched vector lengths and empty input.
	ErrInputShape = errors.New("input shape")

	// ErrDegenerateStats covers zero/unit propensities and weighting
	// requests whose total mass is zero, where the estimand is undefined
	// rather than legitimately zero.
	ErrDegenerateStats = errors.New("degenerate statistics")

	// ErrConfig covers invalid quantile grids and unknown weighting
	// scheme identifiers.
	ErrConfig = errors.New("invalid configuration")
)
