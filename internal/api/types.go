package api

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"
)

// NuisanceInput carries the raw trial data plus the externally estimated
// nuisance components, aligned by unit index. The propensity and outcome
// model predictions come from an upstream heterogeneous-treatment-effect
// estimator; this service never inspects how they were produced.
//
// For right-censored survival outcomes, Y must already be the
// censoring-adjusted outcome supplied by the survival-forest collaborator.
type NuisanceInput struct {
	Y          []float64 `json:"y"`
	W          []float64 `json:"w"`
	Propensity []float64 `json:"propensity"`
	Mu0        []float64 `json:"mu0"`
	Mu1        []float64 `json:"mu1"`
}

// EstimateRequest is the input to one RATE computation.
//
// Exactly one of Gamma or Nuisance must be set. The prioritization rule is
// taken from Scores, or from Ranks (1 = highest priority), or, when both are
// empty, from the pseudo-outcomes themselves.
type EstimateRequest struct {
	Gamma     []float64      `json:"gamma,omitempty"`
	Nuisance  *NuisanceInput `json:"nuisance,omitempty"`
	Scores    []float64      `json:"scores,omitempty"`
	Ranks     []int          `json:"ranks,omitempty"`
	Weighting string         `json:"weighting"`
	Grid      []float64      `json:"grid,omitempty"`
	Alpha     float64        `json:"alpha,omitempty"`
	KeepCurve bool           `json:"keep_curve,omitempty"`
}

// CompareRequest evaluates two prioritization rules against the same
// pseudo-outcome vector and reports a paired difference.
type CompareRequest struct {
	Gamma     []float64      `json:"gamma,omitempty"`
	Nuisance  *NuisanceInput `json:"nuisance,omitempty"`
	ScoresA   []float64      `json:"scores_a"`
	ScoresB   []float64      `json:"scores_b"`
	Weighting string         `json:"weighting"`
	Grid      []float64      `json:"grid,omitempty"`
	Alpha     float64        `json:"alpha,omitempty"`
}

// TOCPoint is one grid point of the Targeting Operator Characteristic curve.
type TOCPoint struct {
	Quantile float64 `json:"quantile"`
	Estimate float64 `json:"estimate"`
	StdErr   float64 `json:"std_err"`
}

// RateResult is the immutable outcome of one RATE computation.
//
// Contributions holds the per-unit influence contribution psi_i indexed by
// original unit order; its sample mean equals Estimate and its sample
// variance over n yields StdErr squared. It is retained in-process for
// covariance-aware paired comparisons and never serialized.
type RateResult struct {
	Estimate      float64    `json:"estimate"`
	StdErr        float64    `json:"std_err"`
	Weighting     string     `json:"weighting"`
	NumUnits      int        `json:"num_units"`
	Curve         []TOCPoint `json:"toc_curve,omitempty"`
	GammaHash     string     `json:"gamma_hash"`
	Contributions []float64  `json:"-"`
}

// Interval is a Wald confidence interval for a RATE estimate.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// EstimateResponse bundles the RATE result with its inference summary.
type EstimateResponse struct {
	RequestID  string      `json:"request_id"`
	Result     *RateResult `json:"result"`
	Interval   *Interval   `json:"interval"`
	ZScore     float64     `json:"z_score"`
	PValue     float64     `json:"p_value"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Comparison is the paired difference between two RATE results.
type Comparison struct {
	Estimate    float64 `json:"estimate"`
	StdErr      float64 `json:"std_err"`
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	SharedGamma bool    `json:"shared_gamma"`
}

// CompareResponse bundles both per-rule results with the paired difference.
type CompareResponse struct {
	RequestID  string      `json:"request_id"`
	ResultA    *RateResult `json:"result_a"`
	ResultB    *RateResult `json:"result_b"`
	Difference *Comparison `json:"difference"`
	Interval   *Interval   `json:"interval"`
	ComputedAt time.Time   `json:"computed_at"`
}

// EstimateParams contains the defaults applied when a request leaves
// optional fields unset.
type EstimateParams struct {
	Alpha     float64       `json:"alpha"`
	Weighting string        `json:"weighting"`
	ResultTTL time.Duration `json:"result_ttl"`
}

// DefaultEstimateParams returns the standard service defaults.
func DefaultEstimateParams() EstimateParams {
	return EstimateParams{
		Alpha:     0.05,
		Weighting: "AUTOC",
		ResultTTL: 14 * 24 * time.Hour,
	}
}

// HashVector computes a sha256 fingerprint of a float64 vector. Two results
// carry the same hash iff they were computed from the same pseudo-outcome
// vector, which is what licenses the covariance-aware paired comparison.
func HashVector(v []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, x := range v {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
