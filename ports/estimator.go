package ports

import (
	"context"
	"math/rand/v2"

	"symptomsim/domain/symptom"

	"gonum.org/v1/gonum/mat"
)

// OrthantEstimator integrates a multivariate normal over the orthants defined
// by binary patterns around a common threshold.
type OrthantEstimator interface {
	// Name identifies the backend in reports
	Name() string

	// EstimateOrthantProbabilities returns one probability per pattern, in
	// pattern order. Values are raw estimates and need not sum to one.
	EstimateOrthantProbabilities(
		ctx context.Context,
		rng *rand.Rand,
		mean []float64,
		cov mat.Symmetric,
		patterns []symptom.Pattern,
		threshold float64,
	) ([]float64, error)
}
