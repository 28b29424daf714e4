package api

import "github.com/uplift-eval/ratekit/pkg/canonical"

// ComputeRequestID derives the canonical fingerprint of an estimate request.
// Identical inputs always map to the same ID, which is what makes result
// deduplication and caching safe: the computation is a pure function.
func ComputeRequestID(req *EstimateRequest) string {
	d := canonical.NewDigest()
	d.String("kind", "estimate")
	d.Floats("gamma", req.Gamma)
	if req.Nuisance != nil {
		d.Floats("y", req.Nuisance.Y)
		d.Floats("w", req.Nuisance.W)
		d.Floats("propensity", req.Nuisance.Propensity)
		d.Floats("mu0", req.Nuisance.Mu0)
		d.Floats("mu1", req.Nuisance.Mu1)
	}
	d.Floats("scores", req.Scores)
	d.Ints("ranks", req.Ranks)
	d.String("weighting", req.Weighting)
	d.Floats("grid", req.Grid)
	d.Float("alpha", req.Alpha)
	if req.KeepCurve {
		d.String("keep_curve", "true")
	}
	return d.Sum()
}

// ComputeCompareID derives the canonical fingerprint of a compare request.
func ComputeCompareID(req *CompareRequest) string {
	d := canonical.NewDigest()
	d.String("kind", "compare")
	d.Floats("gamma", req.Gamma)
	if req.Nuisance != nil {
		d.Floats("y", req.Nuisance.Y)
		d.Floats("w", req.Nuisance.W)
		d.Floats("propensity", req.Nuisance.Propensity)
		d.Floats("mu0", req.Nuisance.Mu0)
		d.Floats("mu1", req.Nuisance.Mu1)
	}
	d.Floats("scores_a", req.ScoresA)
	d.Floats("scores_b", req.ScoresB)
	d.String("weighting", req.Weighting)
	d.Floats("grid", req.Grid)
	d.Float("alpha", req.Alpha)
	return d.Sum()
}
