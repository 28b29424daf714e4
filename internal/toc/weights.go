package toc

import (
	"fmt"
	"strings"

	"github.com/uplift-eval/ratekit/internal/api"
)

// Weighting identifies the TOC integration scheme.
type Weighting string

const (
	// WeightingAUTOC integrates TOC(q) dq with uniform weight.
	WeightingAUTOC Weighting = "AUTOC"
	// WeightingQINI integrates q*TOC(q) dq.
	WeightingQINI Weighting = "QINI"
	// WeightingCustom uses a caller-supplied weight function.
	WeightingCustom Weighting = "CUSTOM"
)

// WeightFunc maps a quantile in (0,1] to a non-negative weight.
type WeightFunc func(q float64) float64

// ParseWeighting resolves a weighting-scheme identifier. Unknown names are
// a configuration error; custom weightings are only reachable through the
// Go API where a WeightFunc can be supplied.
func ParseWeighting(s string) (Weighting, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTOC", "":
		return WeightingAUTOC, nil
	case "QINI":
		return WeightingQINI, nil
	default:
		return "", fmt.Errorf("%w: unknown weighting scheme %q", api.ErrConfig, s)
	}
}

func (w Weighting) weightFunc(custom WeightFunc) (WeightFunc, error) {
	switch w {
	case WeightingAUTOC:
		return func(q float64) float64 { return 1 }, nil
	case WeightingQINI:
		return func(q float64) float64 { return q }, nil
	case WeightingCustom:
		if custom == nil {
			return nil, fmt.Errorf("%w: custom weighting requires a weight function", api.ErrConfig)
		}
		return custom, nil
	default:
		return nil, fmt.Errorf("%w: unknown weighting scheme %q", api.ErrConfig, string(w))
	}
}
