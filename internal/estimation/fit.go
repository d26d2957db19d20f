package estimation

import (
	"context"
	"fmt"
	"math/rand/v2"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultMinCases is the smallest case count accepted for a covariance
// estimate over five indicators.
const DefaultMinCases = 6

// Normal is a multivariate normal fitted to a sample
type Normal struct {
	Mean []float64
	Cov  *mat.SymDense
	N    int
}

// FitNormal computes the sample mean and the unbiased sample covariance of
// the rows of x. Fewer than minCases rows is a degenerate sample.
func FitNormal(x *mat.Dense, minCases int) (*Normal, error) {
	if x == nil {
		return nil, errors.WithCode(errors.CodeDegenerateSample,
			fmt.Errorf("%w: 0 cases, need %d", core.ErrInsufficientCases, minCases))
	}
	n, k := x.Dims()
	if n < minCases || n < 2 {
		return nil, errors.WithCode(errors.CodeDegenerateSample,
			fmt.Errorf("%w: %d cases, need %d", core.ErrInsufficientCases, n, minCases))
	}

	mean := make([]float64, k)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, x, nil)

	return &Normal{Mean: mean, Cov: cov, N: n}, nil
}

// Estimate is the outcome of one replicate's orthant integration
type Estimate struct {
	Fit           *Normal
	Probabilities []float64 // one per pattern, in enumeration order
}

// Estimator fits the case subpopulation and integrates the fit over every
// combination orthant through a pluggable backend.
type Estimator struct {
	backend   ports.OrthantEstimator
	patterns  []symptom.Pattern
	threshold float64
	minCases  int
}

// NewEstimator creates an estimator over all 2^dim combinations
func NewEstimator(backend ports.OrthantEstimator, dim int, threshold float64, minCases int) (*Estimator, error) {
	if backend == nil {
		return nil, errors.ConfigInvalid("an orthant estimator backend is required")
	}
	patterns := symptom.Enumerate(dim)
	if patterns == nil {
		return nil, errors.ConfigInvalidf("unsupported indicator count %d", dim)
	}
	if minCases < 2 {
		minCases = 2
	}
	return &Estimator{
		backend:   backend,
		patterns:  patterns,
		threshold: threshold,
		minCases:  minCases,
	}, nil
}

// Patterns returns the fixed combination enumeration
func (e *Estimator) Patterns() []symptom.Pattern {
	return e.patterns
}

// Backend returns the integration backend
func (e *Estimator) Backend() ports.OrthantEstimator {
	return e.backend
}

// Estimate fits cases and integrates the fit over each combination orthant
func (e *Estimator) Estimate(ctx context.Context, rng *rand.Rand, cases *mat.Dense) (*Estimate, error) {
	fit, err := FitNormal(cases, e.minCases)
	if err != nil {
		return nil, err
	}
	if len(fit.Mean) != e.patterns[0].Dim() {
		return nil, fmt.Errorf("%w: fitted %d indicators, patterns cover %d",
			core.ErrDimensionMismatch, len(fit.Mean), e.patterns[0].Dim())
	}

	probs, err := e.backend.EstimateOrthantProbabilities(ctx, rng, fit.Mean, fit.Cov, e.patterns, e.threshold)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(e.patterns) {
		return nil, errors.InternalError(fmt.Sprintf("backend %s returned %d probabilities for %d patterns",
			e.backend.Name(), len(probs), len(e.patterns)))
	}
	return &Estimate{Fit: fit, Probabilities: probs}, nil
}
