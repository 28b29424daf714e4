// Package rate wires the pseudo-outcome builder, ranking engine, TOC
// estimator, and inference layer into one entry point.
package rate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/uplift-eval/ratekit/internal/api"
	"github.com/uplift-eval/ratekit/internal/inference"
	"github.com/uplift-eval/ratekit/internal/ranking"
	"github.com/uplift-eval/ratekit/internal/score"
	"github.com/uplift-eval/ratekit/internal/toc"
	pkgotel "github.com/uplift-eval/ratekit/pkg/otel"
)

// Engine computes RATE results. Each computation is a pure function of its
// request; the engine holds only defaults and is safe for concurrent use.
type Engine struct {
	params api.EstimateParams
}

// NewEngine creates an engine with the given defaults.
func NewEngine(params api.EstimateParams) *Engine {
	return &Engine{params: params}
}

// Estimate runs the full pipeline: pseudo-outcomes, ranking, TOC curve,
// weighted aggregation, and Wald inference.
func (e *Engine) Estimate(ctx context.Context, req *api.EstimateRequest) (*api.EstimateResponse, error) {
	_, span := pkgotel.StartSpan(ctx, "ratekit", "rate.estimate")
	defer span.End()

	gamma, err := e.pseudoOutcomes(req.Gamma, req.Nuisance)
	if err != nil {
		pkgotel.RecordError(span, err, "pseudo-outcome build failed")
		return nil, err
	}

	perm, err := e.ranking(gamma, req.Scores, req.Ranks)
	if err != nil {
		pkgotel.RecordError(span, err, "ranking failed")
		return nil, err
	}

	weighting, err := toc.ParseWeighting(e.weightingFor(req.Weighting))
	if err != nil {
		pkgotel.RecordError(span, err, "weighting parse failed")
		return nil, err
	}

	// The full k/n default grid can be large; only retain the curve when
	// the caller asked for it or supplied an explicit (coarse) grid.
	est := toc.NewEstimator(weighting).KeepCurve(req.KeepCurve || len(req.Grid) > 0)
	result, err := est.Estimate(gamma, perm, req.Grid)
	if err != nil {
		pkgotel.RecordError(span, err, "TOC estimation failed")
		return nil, err
	}

	alpha := e.alphaFor(req.Alpha)
	interval, err := inference.Interval(result, alpha)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		pkgotel.AttrWeighting.String(result.Weighting),
		pkgotel.AttrNumUnits.Int(result.NumUnits),
		pkgotel.AttrEstimate.Float64(result.Estimate),
		pkgotel.AttrStdErr.Float64(result.StdErr),
	)

	return &api.EstimateResponse{
		RequestID:  api.ComputeRequestID(req),
		Result:     result,
		Interval:   interval,
		ZScore:     inference.ZScore(result.Estimate, result.StdErr),
		PValue:     inference.PValue(result.Estimate, result.StdErr, inference.TwoSided),
		ComputedAt: time.Now().UTC(),
	}, nil
}

// Compare evaluates two prioritization rules on the same pseudo-outcome
// vector and reports the paired difference A - B with a covariance-aware
// standard error.
func (e *Engine) Compare(ctx context.Context, req *api.CompareRequest) (*api.CompareResponse, error) {
	_, span := pkgotel.StartSpan(ctx, "ratekit", "rate.compare",
		attribute.String("weighting", req.Weighting))
	defer span.End()

	gamma, err := e.pseudoOutcomes(req.Gamma, req.Nuisance)
	if err != nil {
		pkgotel.RecordError(span, err, "pseudo-outcome build failed")
		return nil, err
	}
	if len(req.ScoresA) != len(gamma) || len(req.ScoresB) != len(gamma) {
		return nil, fmt.Errorf("%w: score lengths a=%d b=%d do not match %d units",
			api.ErrInputShape, len(req.ScoresA), len(req.ScoresB), len(gamma))
	}

	weighting, err := toc.ParseWeighting(e.weightingFor(req.Weighting))
	if err != nil {
		return nil, err
	}
	est := toc.NewEstimator(weighting)

	permA, err := ranking.ByScore(req.ScoresA)
	if err != nil {
		return nil, err
	}
	resultA, err := est.Estimate(gamma, permA, req.Grid)
	if err != nil {
		return nil, fmt.Errorf("rule A: %w", err)
	}

	permB, err := ranking.ByScore(req.ScoresB)
	if err != nil {
		return nil, err
	}
	resultB, err := est.Estimate(gamma, permB, req.Grid)
	if err != nil {
		return nil, fmt.Errorf("rule B: %w", err)
	}

	diff, err := inference.Compare(resultA, resultB)
	if err != nil {
		return nil, err
	}

	alpha := e.alphaFor(req.Alpha)
	z := inference.NormalQuantile(1 - alpha/2)

	return &api.CompareResponse{
		RequestID:  api.ComputeCompareID(req),
		ResultA:    resultA,
		ResultB:    resultB,
		Difference: diff,
		Interval: &api.Interval{
			Lower: diff.Estimate - z*diff.StdErr,
			Upper: diff.Estimate + z*diff.StdErr,
			Level: 1 - alpha,
		},
		ComputedAt: time.Now().UTC(),
	}, nil
}

// pseudoOutcomes resolves the Gamma vector from either form of input.
func (e *Engine) pseudoOutcomes(gamma []float64, nuisance *api.NuisanceInput) ([]float64, error) {
	switch {
	case len(gamma) > 0 && nuisance != nil:
		return nil, fmt.Errorf("%w: supply either gamma or nuisance vectors, not both", api.ErrInputShape)
	case len(gamma) > 0:
		return gamma, nil
	case nuisance != nil:
		return score.FromInput(nuisance)
	default:
		return nil, fmt.Errorf("%w: no pseudo-outcomes or nuisance vectors supplied", api.ErrInputShape)
	}
}

// ranking resolves the prioritization permutation. Score-based ranking wins
// over precomputed ranks; with neither, units are prioritized by their own
// pseudo-outcomes.
func (e *Engine) ranking(gamma, scores []float64, ranks []int) ([]int, error) {
	switch {
	case len(scores) > 0 && len(ranks) > 0:
		return nil, fmt.Errorf("%w: supply either scores or ranks, not both", api.ErrInputShape)
	case len(scores) > 0:
		if len(scores) != len(gamma) {
			return nil, fmt.Errorf("%w: %d scores for %d units", api.ErrInputShape, len(scores), len(gamma))
		}
		return ranking.ByScore(scores)
	case len(ranks) > 0:
		if len(ranks) != len(gamma) {
			return nil, fmt.Errorf("%w: %d ranks for %d units", api.ErrInputShape, len(ranks), len(gamma))
		}
		return ranking.FromRanks(ranks)
	default:
		return ranking.ByScore(gamma)
	}
}

func (e *Engine) alphaFor(alpha float64) float64 {
	if alpha > 0 && alpha < 1 {
		return alpha
	}
	return e.params.Alpha
}

func (e *Engine) weightingFor(w string) string {
	if w == "" {
		return e.params.Weighting
	}
	return w
}
