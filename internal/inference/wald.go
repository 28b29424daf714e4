// Package inference turns RATE point estimates and standard errors into
// confidence intervals, p-values, and paired comparisons.
package inference

import (
	"fmt"
	"math"

	"github.com/uplift-eval/ratekit/internal/api"
)

// Alternative selects the alternative hypothesis for a p-value against the
// null RATE = 0.
type Alternative string

const (
	TwoSided Alternative = "two_sided"
	Greater  Alternative = "greater"
	Less     Alternative = "less"
)

// Interval computes the Wald confidence interval estimate +/- z*SE at
// confidence level 1-alpha.
func Interval(res *api.RateResult, alpha float64) (*api.Interval, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil result", api.ErrInputShape)
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: alpha must be in (0,1), got %.9f", api.ErrConfig, alpha)
	}
	z := NormalQuantile(1 - alpha/2)
	return &api.Interval{
		Lower: res.Estimate - z*res.StdErr,
		Upper: res.Estimate + z*res.StdErr,
		Level: 1 - alpha,
	}, nil
}

// ZScore returns estimate/SE. A zero SE with a zero estimate is the
// legitimate degenerate case (constant pseudo-outcomes) and maps to 0; a
// zero SE with a non-zero estimate maps to +/-Inf.
func ZScore(estimate, se float64) float64 {
	if se == 0 {
		if estimate == 0 {
			return 0
		}
		return math.Inf(sign(estimate))
	}
	return estimate / se
}

// PValue computes the p-value for the null RATE = 0.
func PValue(estimate, se float64, alt Alternative) float64 {
	z := ZScore(estimate, se)
	switch alt {
	case Greater:
		return 1 - NormalCDF(z)
	case Less:
		return NormalCDF(z)
	default:
		return 2 * (1 - NormalCDF(math.Abs(z)))
	}
}

// Compare computes the paired difference A - B between two RATE results.
//
// When both results carry per-unit contributions over the same
// pseudo-outcome vector (matching gamma hash), the difference SE comes from
// the sample variance of the per-unit contribution differences, which
// absorbs the covariance induced by the shared vector. Otherwise the
// results are treated as independent and the variances add.
func Compare(a, b *api.RateResult) (*api.Comparison, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil result", api.ErrInputShape)
	}

	diff := a.Estimate - b.Estimate

	shared := a.GammaHash != "" && a.GammaHash == b.GammaHash &&
		len(a.Contributions) == len(b.Contributions) && len(a.Contributions) > 1

	var se float64
	if shared {
		n := len(a.Contributions)
		sum, sumSq := 0.0, 0.0
		for i := 0; i < n; i++ {
			d := a.Contributions[i] - b.Contributions[i]
			sum += d
			sumSq += d * d
		}
		mean := sum / float64(n)
		variance := (sumSq - float64(n)*mean*mean) / float64(n-1)
		if variance > 0 {
			se = math.Sqrt(variance / float64(n))
		}
	} else {
		se = math.Sqrt(a.StdErr*a.StdErr + b.StdErr*b.StdErr)
	}

	return &api.Comparison{
		Estimate:    diff,
		StdErr:      se,
		ZScore:      ZScore(diff, se),
		PValue:      PValue(diff, se, TwoSided),
		SharedGamma: shared,
	}, nil
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormalQuantile is the inverse standard normal CDF.
func NormalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}
