// Package label turns a batch of fraud scores into binary labels against a
// batch-relative percentile cutoff.
package label

import (
	"fmt"
	"math"
	"sort"
)

// Assigner labels every score at or above the batch percentile threshold.
type Assigner struct {
	// Percentile is the score percentile used as the fraud cutoff.
	Percentile float64
}

// NewAssigner creates an assigner for the given percentile in (0, 100].
func NewAssigner(percentile float64) (*Assigner, error) {
	if percentile <= 0 || percentile > 100 {
		return nil, fmt.Errorf("percentile must be in (0, 100], got %v", percentile)
	}
	return &Assigner{Percentile: percentile}, nil
}

// Assign computes the percentile threshold across the entire batch and
// labels each score: 1 if score >= threshold, else 0.
//
// A batch of one is degenerate: the percentile equals the single score, so
// that transaction is always labeled fraud. Known edge behavior, deliberately
// not special-cased.
func (a *Assigner) Assign(scores []float64) ([]int, float64, error) {
	if len(scores) == 0 {
		return nil, 0, fmt.Errorf("cannot label an empty batch")
	}

	threshold := Percentile(scores, a.Percentile)

	labels := make([]int, len(scores))
	for i, s := range scores {
		if s >= threshold {
			labels[i] = 1
		}
	}
	return labels, threshold, nil
}

// Percentile computes the p-th percentile of values using linear
// interpolation between closest ranks. The input is not modified.
func Percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
