package draft

import (
	"math/rand/v2"
	"sort"
)

// Pick draws one index from weights with probability proportional to its weight.
// Entries with a non-positive weight are never drawn. ErrEmptyDraftPool is returned
// when no entry has a positive weight.
func Pick(rng *rand.Rand, weights []float64) (int, error) {
	cumulative := make([]float64, len(weights))
	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
		cumulative[i] = total
	}
	if last < 0 {
		return -1, ErrEmptyDraftPool
	}

	x := rng.Float64() * total
	i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > x })
	if i >= len(cumulative) {
		// x rounded up to total
		i = last
	}
	return i, nil
}
