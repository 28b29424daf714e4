// Package ranking orders test units by a treatment-prioritization score.
package ranking

import (
	"fmt"
	"sort"

	"github.com/uplift-eval/ratekit/internal/api"
)

// ByScore returns the permutation that sorts units by descending score.
// perm[j] is the original index of the unit at ranked position j. Ties
// break on original input order, so repeated runs are reproducible.
func ByScore(scores []float64) ([]int, error) {
	n := len(scores)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty score vector", api.ErrInputShape)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return scores[perm[a]] > scores[perm[b]]
	})
	return perm, nil
}

// FromRanks converts a precomputed rank vector into the same permutation
// form as ByScore. ranks[i] is the 1-based priority of unit i (1 = treated
// first). The vector must be a permutation of 1..n.
func FromRanks(ranks []int) ([]int, error) {
	n := len(ranks)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty rank vector", api.ErrInputShape)
	}

	perm := make([]int, n)
	seen := make([]bool, n)
	for i, r := range ranks {
		if r < 1 || r > n {
			return nil, fmt.Errorf("%w: rank %d at unit %d outside 1..%d", api.ErrInputShape, r, i, n)
		}
		if seen[r-1] {
			return nil, fmt.Errorf("%w: duplicate rank %d at unit %d", api.ErrInputShape, r, i)
		}
		seen[r-1] = true
		perm[r-1] = i
	}
	return perm, nil
}
