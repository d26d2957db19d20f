package orthant

import (
	"context"
	"fmt"
	"math/rand/v2"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// DefaultSamples is the default Monte Carlo draw count per replicate
const DefaultSamples = 100000

// MonteCarlo estimates every orthant at once by drawing from the fitted
// normal and counting which orthant each draw lands in.
type MonteCarlo struct {
	samples int
}

var _ ports.OrthantEstimator = (*MonteCarlo)(nil)

// NewMonteCarlo creates a simulation backend drawing samples points
func NewMonteCarlo(samples int) (*MonteCarlo, error) {
	if samples < 1 {
		return nil, errors.ConfigInvalidf("monte carlo samples must be positive, got %d", samples)
	}
	return &MonteCarlo{samples: samples}, nil
}

// Name identifies the backend
func (m *MonteCarlo) Name() string {
	return "montecarlo"
}

// EstimateOrthantProbabilities returns hit frequencies per pattern
func (m *MonteCarlo) EstimateOrthantProbabilities(
	ctx context.Context,
	rng *rand.Rand,
	mean []float64,
	cov mat.Symmetric,
	patterns []symptom.Pattern,
	threshold float64,
) ([]float64, error) {
	k := len(mean)
	if cov.SymmetricDim() != k || k > symptom.MaxDimension {
		return nil, fmt.Errorf("%w: mean has %d entries, covariance is %dx%d",
			core.ErrDimensionMismatch, k, cov.SymmetricDim(), cov.SymmetricDim())
	}
	dist, ok := distmv.NewNormal(mean, cov, rng)
	if !ok {
		return nil, errors.IntegrationFailure("covariance rejected by sampler", core.ErrNotPositiveDefinite)
	}

	counts := make([]int, 1<<k)
	x := make([]float64, k)
	for s := 0; s < m.samples; s++ {
		if s%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		dist.Rand(x)
		idx := 0
		for j, v := range x {
			if v >= threshold {
				idx |= 1 << j
			}
		}
		counts[idx]++
	}

	probs := make([]float64, len(patterns))
	for i, p := range patterns {
		if p.Dim() != k {
			return nil, fmt.Errorf("%w: pattern %s for %d indicators", core.ErrDimensionMismatch, p.Label(), k)
		}
		probs[i] = float64(counts[p.Index]) / float64(m.samples)
	}
	return probs, nil
}
