package toc

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/uplift-eval/ratekit/internal/api"
)

// identity ranking for gamma vectors that are already in descending order
func identityPerm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

// descPerm ranks units by descending gamma with stable ties.
func descPerm(gamma []float64) []int {
	perm := identityPerm(len(gamma))
	for i := 1; i < len(perm); i++ {
		for j := i; j > 0 && gamma[perm[j]] > gamma[perm[j-1]]; j-- {
			perm[j], perm[j-1] = perm[j-1], perm[j]
		}
	}
	return perm
}

func TestEstimate_HandComputed(t *testing.T) {
	// Ranked gamma [3,2,1,0], mean 1.5, full grid:
	// TOC = {1.5, 1.0, 0.5, 0}
	// AUTOC = (1.5+1.0+0.5+0)/4 = 0.75
	// QINI mass = {0.0625,0.125,0.1875,0.25}, total 0.625,
	// weighted sum = 0.3125, QINI = 0.5
	gamma := []float64{3, 2, 1, 0}
	perm := identityPerm(4)

	tests := []struct {
		weighting Weighting
		want      float64
	}{
		{WeightingAUTOC, 0.75},
		{WeightingQINI, 0.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.weighting), func(t *testing.T) {
			res, err := NewEstimator(tt.weighting).Estimate(gamma, perm, nil)
			if err != nil {
				t.Fatalf("Estimate failed: %v", err)
			}
			if math.Abs(res.Estimate-tt.want) > 1e-12 {
				t.Errorf("%s = %.12f, want %.12f", tt.weighting, res.Estimate, tt.want)
			}

			wantCurve := []float64{1.5, 1.0, 0.5, 0}
			for k, p := range res.Curve {
				if math.Abs(p.Estimate-wantCurve[k]) > 1e-12 {
					t.Errorf("TOC(%.2f) = %.12f, want %.12f", p.Quantile, p.Estimate, wantCurve[k])
				}
			}
		})
	}
}

func TestEstimate_ConstantGammaIsExactlyZero(t *testing.T) {
	gamma := []float64{0.7, 0.7, 0.7, 0.7, 0.7, 0.7}
	perm := identityPerm(len(gamma))

	for _, w := range []Weighting{WeightingAUTOC, WeightingQINI} {
		res, err := NewEstimator(w).Estimate(gamma, perm, nil)
		if err != nil {
			t.Fatalf("%s failed: %v", w, err)
		}
		if res.Estimate != 0 {
			t.Errorf("%s estimate = %v, want exactly 0", w, res.Estimate)
		}
		if res.StdErr != 0 {
			t.Errorf("%s SE = %v, want exactly 0", w, res.StdErr)
		}
		for _, p := range res.Curve {
			if p.Estimate != 0 || p.StdErr != 0 {
				t.Errorf("%s TOC(%.3f) = (%v, %v), want exact zeros", w, p.Quantile, p.Estimate, p.StdErr)
			}
		}
	}
}

func TestEstimate_TOCAtOneIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	gamma := make([]float64, 101)
	for i := range gamma {
		gamma[i] = rng.NormFloat64() * 3.7
	}

	res, err := NewEstimator(WeightingAUTOC).Estimate(gamma, descPerm(gamma), nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	last := res.Curve[len(res.Curve)-1]
	if last.Quantile != 1 {
		t.Fatalf("last grid point = %v, want 1", last.Quantile)
	}
	if last.Estimate != 0 {
		t.Errorf("TOC(1) = %v, want exactly 0", last.Estimate)
	}
}

func TestEstimate_ShiftInvarianceAndScaling(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	gamma := make([]float64, 60)
	for i := range gamma {
		gamma[i] = rng.NormFloat64()
	}
	perm := descPerm(gamma)

	base, err := NewEstimator(WeightingAUTOC).Estimate(gamma, perm, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	shifted := make([]float64, len(gamma))
	scaled := make([]float64, len(gamma))
	for i, g := range gamma {
		shifted[i] = g + 123.456
		scaled[i] = 2.5 * g
	}

	// Same ranking; the shift changes neither order nor TOC differences.
	shiftRes, err := NewEstimator(WeightingAUTOC).Estimate(shifted, perm, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if math.Abs(shiftRes.Estimate-base.Estimate) > 1e-9 {
		t.Errorf("shifted estimate %.12f != base %.12f", shiftRes.Estimate, base.Estimate)
	}
	if math.Abs(shiftRes.StdErr-base.StdErr) > 1e-9 {
		t.Errorf("shifted SE %.12f != base %.12f", shiftRes.StdErr, base.StdErr)
	}

	scaleRes, err := NewEstimator(WeightingAUTOC).Estimate(scaled, perm, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	if math.Abs(scaleRes.Estimate-2.5*base.Estimate) > 1e-9 {
		t.Errorf("scaled estimate %.12f != 2.5*base %.12f", scaleRes.Estimate, 2.5*base.Estimate)
	}
	if math.Abs(scaleRes.StdErr-2.5*base.StdErr) > 1e-9 {
		t.Errorf("scaled SE %.12f != 2.5*base %.12f", scaleRes.StdErr, 2.5*base.StdErr)
	}
}

func TestEstimate_ReversedRankingNegatesCurve(t *testing.T) {
	// Symmetric gamma around its mean: reversing the ranking flips the
	// sign of every TOC point on the k/n grid.
	gamma := []float64{-2, -1, 0, 1, 2}
	n := len(gamma)

	desc := descPerm(gamma)
	asc := make([]int, n)
	for j := range asc {
		asc[j] = desc[n-1-j]
	}

	resDesc, err := NewEstimator(WeightingAUTOC).Estimate(gamma, desc, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	resAsc, err := NewEstimator(WeightingAUTOC).Estimate(gamma, asc, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	for k := range resDesc.Curve {
		d := resDesc.Curve[k].Estimate
		a := resAsc.Curve[k].Estimate
		if math.Abs(d+a) > 1e-12 {
			t.Errorf("TOC(%.2f): desc %.12f, asc %.12f, want negation", resDesc.Curve[k].Quantile, d, a)
		}
	}
	if math.Abs(resDesc.Estimate+resAsc.Estimate) > 1e-12 {
		t.Errorf("AUTOC desc %.12f, asc %.12f, want negation", resDesc.Estimate, resAsc.Estimate)
	}
}

func TestEstimate_PointMassRecoversSingleTOC(t *testing.T) {
	// All weight on q=0.5 collapses RATE to TOC(0.5), SE included.
	gamma := []float64{3, 2, 1, 0}
	perm := identityPerm(4)
	grid := []float64{0.5, 1}

	point := NewCustomEstimator(func(q float64) float64 {
		if q == 0.5 {
			return 1
		}
		return 0
	})
	res, err := point.Estimate(gamma, perm, grid)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if math.Abs(res.Estimate-1.0) > 1e-12 {
		t.Errorf("point-mass RATE = %.12f, want TOC(0.5) = 1.0", res.Estimate)
	}

	var toc05 api.TOCPoint
	for _, p := range res.Curve {
		if p.Quantile == 0.5 {
			toc05 = p
		}
	}
	if math.Abs(res.Estimate-toc05.Estimate) > 1e-12 {
		t.Errorf("RATE %.12f != TOC(0.5) %.12f", res.Estimate, toc05.Estimate)
	}
	if math.Abs(res.StdErr-toc05.StdErr) > 1e-12 {
		t.Errorf("RATE SE %.12f != TOC(0.5) SE %.12f", res.StdErr, toc05.StdErr)
	}
}

// naiveSE recomputes the plug-in SE with direct O(n*m) loops, as a check on
// the prefix-sum implementation.
func naiveSE(t *testing.T, gamma []float64, perm []int, grid []float64, wf func(float64) float64) (float64, float64) {
	t.Helper()
	n := len(gamma)

	mean := 0.0
	for _, g := range gamma {
		mean += g
	}
	mean /= float64(n)

	omega := make([]float64, len(grid))
	cutoffs := make([]int, len(grid))
	total := 0.0
	prev := 0.0
	for k, q := range grid {
		m := int(math.Ceil(q*float64(n) - 1e-9))
		if m < 1 {
			m = 1
		}
		if m > n {
			m = n
		}
		cutoffs[k] = m
		omega[k] = wf(q) * (q - prev)
		total += omega[k]
		prev = q
	}

	psi := make([]float64, n)
	estimate := 0.0
	for j := 0; j < n; j++ {
		c := 0.0
		for k := range grid {
			if cutoffs[k] >= j+1 {
				c += omega[k] / float64(cutoffs[k])
			}
		}
		c *= float64(n) / total
		psi[j] = (c - 1) * (gamma[perm[j]] - mean)
		estimate += psi[j]
	}
	estimate /= float64(n)

	variance := 0.0
	for _, p := range psi {
		variance += (p - estimate) * (p - estimate)
	}
	variance /= float64(n - 1)

	return estimate, math.Sqrt(variance / float64(n))
}

func TestEstimate_MatchesNaiveComputation(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	gamma := make([]float64, 83)
	for i := range gamma {
		gamma[i] = rng.NormFloat64() + 0.2
	}
	perm := descPerm(gamma)
	grid := []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1}

	tests := []struct {
		name string
		est  *Estimator
		wf   func(float64) float64
	}{
		{"autoc", NewEstimator(WeightingAUTOC), func(q float64) float64 { return 1 }},
		{"qini", NewEstimator(WeightingQINI), func(q float64) float64 { return q }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.est.Estimate(gamma, perm, grid)
			if err != nil {
				t.Fatalf("Estimate failed: %v", err)
			}

			wantEst, wantSE := naiveSE(t, gamma, perm, grid, tt.wf)
			if math.Abs(res.Estimate-wantEst) > 1e-10 {
				t.Errorf("estimate %.12f, naive %.12f", res.Estimate, wantEst)
			}
			if math.Abs(res.StdErr-wantSE) > 1e-10 {
				t.Errorf("SE %.12f, naive %.12f", res.StdErr, wantSE)
			}
		})
	}
}

func TestEstimate_ContributionsMeanEqualsEstimate(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	gamma := make([]float64, 40)
	for i := range gamma {
		gamma[i] = rng.Float64()
	}

	res, err := NewEstimator(WeightingQINI).Estimate(gamma, descPerm(gamma), nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	sum := 0.0
	for _, psi := range res.Contributions {
		sum += psi
	}
	if math.Abs(sum/float64(len(gamma))-res.Estimate) > 1e-12 {
		t.Errorf("mean(contributions) = %.15f, estimate = %.15f", sum/float64(len(gamma)), res.Estimate)
	}
}

func TestEstimate_Rejections(t *testing.T) {
	gamma := []float64{3, 2, 1, 0}
	perm := identityPerm(4)

	tests := []struct {
		name    string
		gamma   []float64
		perm    []int
		grid    []float64
		wantErr error
	}{
		{"too_few_units", []float64{1}, []int{0}, nil, api.ErrInputShape},
		{"perm_mismatch", gamma, []int{0, 1}, nil, api.ErrInputShape},
		{"single_point_grid", gamma, perm, []float64{1}, api.ErrConfig},
		{"non_monotonic_grid", gamma, perm, []float64{0.5, 0.25, 1}, api.ErrConfig},
		{"quantile_above_one", gamma, perm, []float64{0.5, 1.5}, api.ErrConfig},
		{"grid_not_ending_at_one", gamma, perm, []float64{0.25, 0.5}, api.ErrConfig},
		{"zero_quantile", gamma, perm, []float64{0, 0.5, 1}, api.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEstimator(WeightingAUTOC).Estimate(tt.gamma, tt.perm, tt.grid)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEstimate_DegenerateWeighting(t *testing.T) {
	gamma := []float64{3, 2, 1, 0}
	perm := identityPerm(4)

	zero := NewCustomEstimator(func(q float64) float64 { return 0 })
	if _, err := zero.Estimate(gamma, perm, nil); !errors.Is(err, api.ErrDegenerateStats) {
		t.Errorf("expected degenerate statistics error for zero mass, got %v", err)
	}

	negative := NewCustomEstimator(func(q float64) float64 { return -1 })
	if _, err := negative.Estimate(gamma, perm, nil); !errors.Is(err, api.ErrConfig) {
		t.Errorf("expected configuration error for negative weights, got %v", err)
	}
}

func TestParseWeighting(t *testing.T) {
	tests := []struct {
		in      string
		want    Weighting
		wantErr bool
	}{
		{"AUTOC", WeightingAUTOC, false},
		{"autoc", WeightingAUTOC, false},
		{"", WeightingAUTOC, false},
		{"QINI", WeightingQINI, false},
		{" qini ", WeightingQINI, false},
		{"banana", "", true},
	}

	for _, tt := range tests {
		got, err := ParseWeighting(tt.in)
		if tt.wantErr {
			if !errors.Is(err, api.ErrConfig) {
				t.Errorf("ParseWeighting(%q): expected config error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseWeighting(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
}
