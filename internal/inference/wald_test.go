package inference

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/uplift-eval/ratekit/internal/api"
	"github.com/uplift-eval/ratekit/internal/toc"
)

func TestNormalQuantile(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.975, 1.959964},
		{0.95, 1.644854},
		{0.5, 0.0},
		{0.025, -1.959964},
	}

	for _, tt := range tests {
		got := NormalQuantile(tt.p)
		if math.Abs(got-tt.want) > 1e-5 {
			t.Errorf("NormalQuantile(%v) = %.6f, want %.6f", tt.p, got, tt.want)
		}
	}
}

func TestNormalCDF_RoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.2, 0.5, 0.8, 0.99} {
		if got := NormalCDF(NormalQuantile(p)); math.Abs(got-p) > 1e-12 {
			t.Errorf("CDF(Quantile(%v)) = %.15f", p, got)
		}
	}
}

func TestInterval(t *testing.T) {
	res := &api.RateResult{Estimate: 1.0, StdErr: 0.5}

	ci, err := Interval(res, 0.05)
	if err != nil {
		t.Fatalf("Interval failed: %v", err)
	}

	if math.Abs(ci.Lower-(1.0-1.959964*0.5)) > 1e-5 {
		t.Errorf("lower = %.6f", ci.Lower)
	}
	if math.Abs(ci.Upper-(1.0+1.959964*0.5)) > 1e-5 {
		t.Errorf("upper = %.6f", ci.Upper)
	}
	if ci.Level != 0.95 {
		t.Errorf("level = %v, want 0.95", ci.Level)
	}
}

func TestInterval_InvalidAlpha(t *testing.T) {
	res := &api.RateResult{Estimate: 1.0, StdErr: 0.5}
	for _, alpha := range []float64{0, 1, -0.1, 1.5} {
		if _, err := Interval(res, alpha); !errors.Is(err, api.ErrConfig) {
			t.Errorf("alpha=%v: expected config error, got %v", alpha, err)
		}
	}
}

func TestPValue(t *testing.T) {
	// z = 2: two-sided ~0.0455, greater ~0.02275, less ~0.97725
	if p := PValue(2, 1, TwoSided); math.Abs(p-0.0455) > 1e-3 {
		t.Errorf("two-sided p = %.6f", p)
	}
	if p := PValue(2, 1, Greater); math.Abs(p-0.02275) > 1e-4 {
		t.Errorf("greater p = %.6f", p)
	}
	if p := PValue(2, 1, Less); math.Abs(p-0.97725) > 1e-4 {
		t.Errorf("less p = %.6f", p)
	}
}

func TestZScore_DegenerateSE(t *testing.T) {
	if z := ZScore(0, 0); z != 0 {
		t.Errorf("ZScore(0,0) = %v, want 0", z)
	}
	if z := ZScore(1, 0); !math.IsInf(z, 1) {
		t.Errorf("ZScore(1,0) = %v, want +Inf", z)
	}
	if z := ZScore(-1, 0); !math.IsInf(z, -1) {
		t.Errorf("ZScore(-1,0) = %v, want -Inf", z)
	}
	if p := PValue(0, 0, TwoSided); p != 1 {
		t.Errorf("PValue(0,0) = %v, want 1", p)
	}
}

func estimateOn(t *testing.T, gamma, scores []float64) *api.RateResult {
	t.Helper()
	perm := make([]int, len(scores))
	for i := range perm {
		perm[i] = i
	}
	// insertion sort by descending score, stable
	for i := 1; i < len(perm); i++ {
		for j := i; j > 0 && scores[perm[j]] > scores[perm[j-1]]; j-- {
			perm[j], perm[j-1] = perm[j-1], perm[j]
		}
	}
	res, err := toc.NewEstimator(toc.WeightingAUTOC).Estimate(gamma, perm, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	return res
}

func TestCompare_SharedGammaUsesCovariance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 200
	gamma := make([]float64, n)
	scoresA := make([]float64, n)
	scoresB := make([]float64, n)
	for i := 0; i < n; i++ {
		gamma[i] = rng.NormFloat64()
		scoresA[i] = gamma[i] + 0.5*rng.NormFloat64()
		scoresB[i] = rng.NormFloat64()
	}

	resA := estimateOn(t, gamma, scoresA)
	resB := estimateOn(t, gamma, scoresB)

	cmp, err := Compare(resA, resB)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if !cmp.SharedGamma {
		t.Fatal("expected shared-gamma comparison")
	}
	if math.Abs(cmp.Estimate-(resA.Estimate-resB.Estimate)) > 1e-12 {
		t.Errorf("difference = %v", cmp.Estimate)
	}

	naive := math.Sqrt(resA.StdErr*resA.StdErr + resB.StdErr*resB.StdErr)
	if math.Abs(cmp.StdErr-naive) < 1e-12 {
		t.Errorf("covariance-aware SE %.9f should differ from naive %.9f on shared gamma", cmp.StdErr, naive)
	}
}

func TestCompare_IndependentGammaFallsBackToSum(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	n := 100
	gammaA := make([]float64, n)
	gammaB := make([]float64, n)
	for i := 0; i < n; i++ {
		gammaA[i] = rng.NormFloat64()
		gammaB[i] = rng.NormFloat64()
	}

	resA := estimateOn(t, gammaA, gammaA)
	resB := estimateOn(t, gammaB, gammaB)

	cmp, err := Compare(resA, resB)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if cmp.SharedGamma {
		t.Fatal("expected independent comparison for distinct gamma vectors")
	}

	naive := math.Sqrt(resA.StdErr*resA.StdErr + resB.StdErr*resB.StdErr)
	if math.Abs(cmp.StdErr-naive) > 1e-15 {
		t.Errorf("independent SE %.15f, want naive sum %.15f", cmp.StdErr, naive)
	}
}

func TestCompare_IdenticalRankings(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	n := 50
	gamma := make([]float64, n)
	for i := range gamma {
		gamma[i] = rng.NormFloat64()
	}

	res := estimateOn(t, gamma, gamma)
	cmp, err := Compare(res, res)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if cmp.Estimate != 0 || cmp.StdErr != 0 {
		t.Errorf("self-comparison = (%v, %v), want exact zeros", cmp.Estimate, cmp.StdErr)
	}
	if cmp.PValue != 1 {
		t.Errorf("self-comparison p = %v, want 1", cmp.PValue)
	}
}
