// Package score builds doubly-robust pseudo-outcomes from raw trial data
// and externally supplied nuisance estimates.
package score

import (
	"fmt"

	"github.com/uplift-eval/ratekit/internal/api"
)

// Build computes the AIPW pseudo-outcome for each unit:
//
//	Gamma_i = mu1_i - mu0_i + w_i/p_i*(y_i - mu1_i) - (1-w_i)/(1-p_i)*(y_i - mu0_i)
//
// The conditional expectation of Gamma_i equals the per-unit treatment
// effect as long as either the propensity model or the outcome model is
// correctly specified.
func Build(y, w, propensity, mu0, mu1 []float64) ([]float64, error) {
	n := len(y)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty outcome vector", api.ErrInputShape)
	}
	if len(w) != n || len(propensity) != n || len(mu0) != n || len(mu1) != n {
		return nil, fmt.Errorf("%w: vector lengths y=%d w=%d propensity=%d mu0=%d mu1=%d",
			api.ErrInputShape, n, len(w), len(propensity), len(mu0), len(mu1))
	}

	gamma := make([]float64, n)
	for i := 0; i < n; i++ {
		p := propensity[i]
		if p <= 0 || p >= 1 {
			return nil, fmt.Errorf("%w: degenerate propensity %.9f at unit %d", api.ErrDegenerateStats, p, i)
		}
		gamma[i] = mu1[i] - mu0[i] +
			w[i]/p*(y[i]-mu1[i]) -
			(1-w[i])/(1-p)*(y[i]-mu0[i])
	}
	return gamma, nil
}

// BuildAdjusted is Build for right-censored survival outcomes. The adjusted
// outcome vector must already incorporate the censoring correction from the
// external survival-forest collaborator; only the final doubly-robust
// combination happens here.
func BuildAdjusted(adjusted, w, propensity, mu0, mu1 []float64) ([]float64, error) {
	gamma, err := Build(adjusted, w, propensity, mu0, mu1)
	if err != nil {
		return nil, fmt.Errorf("censoring-adjusted build: %w", err)
	}
	return gamma, nil
}

// FromInput builds pseudo-outcomes from an api.NuisanceInput.
func FromInput(in *api.NuisanceInput) ([]float64, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil nuisance input", api.ErrInputShape)
	}
	return Build(in.Y, in.W, in.Propensity, in.Mu0, in.Mu1)
}
