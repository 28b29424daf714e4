// Package sim generates synthetic trials for exercising the estimator: a
// standard-normal pseudo-outcome vector with either an informative
// prioritization rule (the pseudo-outcomes themselves) or an uninformative
// one (independent noise).
package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/uplift-eval/ratekit/internal/api"
	"github.com/uplift-eval/ratekit/internal/rate"
)

// Config controls one simulation draw.
type Config struct {
	N           int
	Seed        int64
	Informative bool
	Weighting   string
	GridStep    float64 // 0 means the full k/n grid
	Alpha       float64
}

// Draw samples a pseudo-outcome vector and a prioritization score vector.
func Draw(cfg Config) (gamma, scores []float64) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	gamma = make([]float64, cfg.N)
	for i := range gamma {
		gamma[i] = rng.NormFloat64()
	}

	if cfg.Informative {
		scores = append([]float64(nil), gamma...)
		return gamma, scores
	}

	scores = make([]float64, cfg.N)
	for i := range scores {
		scores[i] = rng.NormFloat64()
	}
	return gamma, scores
}

// Grid builds the quantile grid for a config.
func Grid(cfg Config) []float64 {
	if cfg.GridStep <= 0 {
		return nil // estimator defaults to the full k/n grid
	}
	var grid []float64
	for q := cfg.GridStep; q < 1; q += cfg.GridStep {
		grid = append(grid, q)
	}
	return append(grid, 1)
}

// Run executes one simulated estimate through the engine.
func Run(ctx context.Context, cfg Config) (*api.EstimateResponse, error) {
	if cfg.N < 2 {
		return nil, fmt.Errorf("%w: simulation needs at least 2 units, got %d", api.ErrInputShape, cfg.N)
	}

	gamma, scores := Draw(cfg)

	engine := rate.NewEngine(api.DefaultEstimateParams())
	return engine.Estimate(ctx, &api.EstimateRequest{
		Gamma:     gamma,
		Scores:    scores,
		Weighting: cfg.Weighting,
		Grid:      Grid(cfg),
		Alpha:     cfg.Alpha,
		KeepCurve: true,
	})
}
