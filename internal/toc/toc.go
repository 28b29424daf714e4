// Package toc computes the Targeting Operator Characteristic curve and its
// rank-weighted integral (RATE), with a plug-in variance estimate.
//
// TOC(q) is the mean doubly-robust pseudo-outcome over the top q-fraction of
// units, ranked by a prioritization score, minus the overall mean. AUTOC
// integrates TOC(q) dq; QINI integrates q*TOC(q) dq. The integral is taken
// as a discrete Riemann sum over the quantile grid, normalized by the total
// weight mass, so a weighting collapsed onto a single grid point recovers
// the plain high-vs-low contrast TOC(q*).
package toc

import (
	"fmt"
	"math"

	"github.com/uplift-eval/ratekit/internal/api"
)

// Estimator computes TOC curves and RATE estimates under one weighting.
// It is stateless apart from configuration and safe for concurrent use.
type Estimator struct {
	weighting Weighting
	custom    WeightFunc
	keepCurve bool
}

// NewEstimator creates an estimator for a named weighting scheme.
func NewEstimator(w Weighting) *Estimator {
	return &Estimator{weighting: w, keepCurve: true}
}

// NewCustomEstimator creates an estimator with a caller-supplied weight
// function. The function must return non-negative weights.
func NewCustomEstimator(f WeightFunc) *Estimator {
	return &Estimator{weighting: WeightingCustom, custom: f, keepCurve: true}
}

// KeepCurve controls whether the full TOC curve is retained on the result.
func (e *Estimator) KeepCurve(keep bool) *Estimator {
	e.keepCurve = keep
	return e
}

// FullGrid returns the finest quantile grid k/n for k = 1..n.
func FullGrid(n int) []float64 {
	grid := make([]float64, n)
	for k := 1; k <= n; k++ {
		grid[k-1] = float64(k) / float64(n)
	}
	return grid
}

// ValidateGrid checks a caller-supplied quantile grid: at least two points,
// strictly increasing, each in (0,1], and ending at exactly 1 so the curve
// always pins TOC(1) = 0.
func ValidateGrid(grid []float64) error {
	m := len(grid)
	if m < 2 {
		return fmt.Errorf("%w: quantile grid needs at least 2 points, got %d", api.ErrConfig, m)
	}
	prev := 0.0
	for k, q := range grid {
		if q <= prev {
			return fmt.Errorf("%w: quantile grid not strictly increasing at index %d (%.9f after %.9f)",
				api.ErrConfig, k, q, prev)
		}
		if q > 1 {
			return fmt.Errorf("%w: quantile %.9f at index %d outside (0,1]", api.ErrConfig, q, k)
		}
		prev = q
	}
	if grid[m-1] != 1 {
		return fmt.Errorf("%w: quantile grid must end at 1, got %.9f", api.ErrConfig, grid[m-1])
	}
	return nil
}

// Estimate computes the TOC curve over the grid and aggregates it into a
// RATE estimate with a plug-in standard error.
//
// gamma holds the pseudo-outcomes in original unit order; perm is the
// ranking permutation (perm[j] = unit at ranked position j); grid may be
// nil, in which case the full k/n grid is used.
func (e *Estimator) Estimate(gamma []float64, perm []int, grid []float64) (*api.RateResult, error) {
	n := len(gamma)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 units, got %d", api.ErrInputShape, n)
	}
	if len(perm) != n {
		return nil, fmt.Errorf("%w: ranking length %d does not match %d units", api.ErrInputShape, len(perm), n)
	}
	if grid == nil {
		grid = FullGrid(n)
	}
	if err := ValidateGrid(grid); err != nil {
		return nil, err
	}
	wf, err := e.weighting.weightFunc(e.custom)
	if err != nil {
		return nil, err
	}

	mean := 0.0
	for _, g := range gamma {
		mean += g
	}
	mean /= float64(n)

	// Prefix sums over ranked order of centered gamma and its square.
	// prefix[j] = sum of the first j ranked centered values.
	prefix := make([]float64, n+1)
	prefixSq := make([]float64, n+1)
	for j := 0; j < n; j++ {
		d := gamma[perm[j]] - mean
		prefix[j+1] = prefix[j] + d
		prefixSq[j+1] = prefixSq[j] + d*d
	}
	totalSq := prefixSq[n]

	m := len(grid)
	curve := make([]api.TOCPoint, m)
	omega := make([]float64, m)
	cutoff := make([]int, m)
	totalMass := 0.0
	prevQ := 0.0
	for k, q := range grid {
		mk := unitCutoff(q, n)
		cutoff[k] = mk

		tocK := prefix[mk] / float64(mk)
		if mk == n {
			// Top 100% minus overall mean is algebraically zero; pin it
			// so float roundoff cannot leak into the curve.
			tocK = 0
		}

		// Per-point plug-in SE from the contribution
		// psi_i = (n/m*1{rank<=m} - 1)*(gamma_i - mean).
		top := float64(n)/float64(mk) - 1
		sumSq := top*top*prefixSq[mk] + (totalSq - prefixSq[mk])
		curve[k] = api.TOCPoint{
			Quantile: q,
			Estimate: tocK,
			StdErr:   plugInSE(sumSq, tocK, n),
		}

		wk := wf(q)
		if wk < 0 {
			return nil, fmt.Errorf("%w: weight function returned %.9f at q=%.9f", api.ErrConfig, wk, q)
		}
		omega[k] = wk * (q - prevQ)
		totalMass += omega[k]
		prevQ = q
	}
	if totalMass <= 0 {
		return nil, fmt.Errorf("%w: weighting has zero total mass over the grid", api.ErrDegenerateStats)
	}

	// Rank coefficients: c_j = (n/W) * sum over grid points covering rank j
	// of omega_k/m_k. The estimate is then the mean over units of
	// psi_i = (c_rank(i) - 1)*(gamma_i - mean), which reduces exactly to
	// the weighted TOC sum.
	coef := make([]float64, n)
	for k := 0; k < m; k++ {
		coef[cutoff[k]-1] += omega[k] / float64(cutoff[k])
	}
	scale := float64(n) / totalMass
	acc := 0.0
	for j := n - 1; j >= 0; j-- {
		acc += coef[j]
		coef[j] = acc * scale
	}

	estimate := 0.0
	contrib := make([]float64, n)
	for j := 0; j < n; j++ {
		psi := (coef[j] - 1) * (gamma[perm[j]] - mean)
		contrib[perm[j]] = psi
		estimate += psi
	}
	estimate /= float64(n)

	sumSq := 0.0
	for _, psi := range contrib {
		sumSq += psi * psi
	}

	result := &api.RateResult{
		Estimate:      estimate,
		StdErr:        plugInSE(sumSq, estimate, n),
		Weighting:     string(e.weighting),
		NumUnits:      n,
		GammaHash:     api.HashVector(gamma),
		Contributions: contrib,
	}
	if e.keepCurve {
		result.Curve = curve
	}
	return result, nil
}

// unitCutoff maps a quantile to the number of top-ranked units it covers,
// ceil(q*n) clamped to [1, n]. The epsilon guards q = k/n grids against
// float rounding pushing the ceiling one unit too high.
func unitCutoff(q float64, n int) int {
	mk := int(math.Ceil(q*float64(n) - 1e-9))
	if mk < 1 {
		mk = 1
	}
	if mk > n {
		mk = n
	}
	return mk
}

// plugInSE converts a sum of squared per-unit contributions into the
// standard error of their mean. A zero-variance contribution vector yields
// exactly zero, never NaN.
func plugInSE(sumSq, mean float64, n int) float64 {
	variance := (sumSq - float64(n)*mean*mean) / float64(n-1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance / float64(n))
}
