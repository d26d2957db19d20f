package orthant

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 77))
}

func identity(k int) *mat.SymDense {
	cov := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		cov.SetSym(i, i, 1)
	}
	return cov
}

func TestGenz_IndependentOrthantsAreEqual(t *testing.T) {
	g, err := NewGenz(DefaultTolerance())
	require.NoError(t, err)

	mean := []float64{2, 2, 2, 2, 2}
	patterns := symptom.Enumerate(5)
	probs, err := g.EstimateOrthantProbabilities(context.Background(), newRand(1), mean, identity(5), patterns, 2.0)
	require.NoError(t, err)
	require.Len(t, probs, 32)

	total := 0.0
	for _, p := range probs {
		assert.InDelta(t, 1.0/32, p, 3e-3)
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-2)
}

func TestGenz_BivariateQuadrant(t *testing.T) {
	g, err := NewGenz(Tolerance{AbsTol: 1e-4, MaxPoints: 200000, Shifts: 12})
	require.NoError(t, err)

	rho := 0.5
	cov := mat.NewSymDense(2, []float64{1, rho, rho, 1})
	inf := math.Inf(1)

	res, err := g.Integrate(context.Background(), newRand(2), cov, []float64{0, 0}, []float64{inf, inf})
	require.NoError(t, err)

	// P(X>0, Y>0) = 1/4 + asin(rho)/(2*pi)
	want := 0.25 + math.Asin(rho)/(2*math.Pi)
	assert.InDelta(t, want, res.Value, 5e-4)
	assert.LessOrEqual(t, res.Error, 1e-4)
	assert.Positive(t, res.Points)
}

func TestGenz_OneDimensionIsExact(t *testing.T) {
	g, err := NewGenz(DefaultTolerance())
	require.NoError(t, err)

	cov := mat.NewSymDense(1, []float64{4})
	res, err := g.Integrate(context.Background(), newRand(3), cov, []float64{math.Inf(-1)}, []float64{2})
	require.NoError(t, err)
	// P(N(0, 2^2) < 2) = Phi(1)
	assert.InDelta(t, 0.8413447460685429, res.Value, 1e-12)
}

func TestGenz_CorrelatedMatchesMonteCarlo(t *testing.T) {
	g, err := NewGenz(DefaultTolerance())
	require.NoError(t, err)
	mc, err := NewMonteCarlo(200000)
	require.NoError(t, err)

	mean := []float64{2.4, 2.3, 2.1, 2.0, 2.2}
	cov := mat.NewSymDense(5, []float64{
		0.8, 0.5, 0.1, 0.1, 0.3,
		0.5, 0.8, 0.1, 0.1, 0.3,
		0.1, 0.1, 0.9, 0.0, 0.1,
		0.1, 0.1, 0.0, 0.9, 0.1,
		0.3, 0.3, 0.1, 0.1, 0.7,
	})
	patterns := symptom.Enumerate(5)

	pg, err := g.EstimateOrthantProbabilities(context.Background(), newRand(4), mean, cov, patterns, 2.0)
	require.NoError(t, err)
	pm, err := mc.EstimateOrthantProbabilities(context.Background(), newRand(5), mean, cov, patterns, 2.0)
	require.NoError(t, err)

	for i := range patterns {
		assert.InDelta(t, pm[i], pg[i], 6e-3, patterns[i].Label())
	}
}

func TestGenz_SingularCovariance(t *testing.T) {
	g, err := NewGenz(DefaultTolerance())
	require.NoError(t, err)

	cov := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	_, err = g.EstimateOrthantProbabilities(context.Background(), newRand(6), []float64{0, 0}, cov, symptom.Enumerate(2), 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIntegrationFailure))
	assert.ErrorIs(t, err, core.ErrNotPositiveDefinite)
}

func TestGenz_NotConvergedIsLabeled(t *testing.T) {
	g, err := NewGenz(Tolerance{AbsTol: 1e-12, MaxPoints: 400, Shifts: 4})
	require.NoError(t, err)

	cov := mat.NewSymDense(3, []float64{1, 0.3, 0.2, 0.3, 1, 0.4, 0.2, 0.4, 1})
	_, err = g.EstimateOrthantProbabilities(context.Background(), newRand(7), []float64{0, 0, 0}, cov, symptom.Enumerate(3), 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIntegrationFailure))
	assert.ErrorIs(t, err, core.ErrNotConverged)

	label, ok := core.CombinationOf(err)
	assert.True(t, ok)
	assert.Equal(t, "000", label)
}

func TestGenz_CancelledContext(t *testing.T) {
	g, err := NewGenz(DefaultTolerance())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.EstimateOrthantProbabilities(ctx, newRand(8), []float64{0, 0}, identity(2), symptom.Enumerate(2), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.HasCode(err, errors.CodeIntegrationFailure))
	_, labeled := core.CombinationOf(err)
	assert.False(t, labeled)
}

func TestTolerance_Validate(t *testing.T) {
	assert.NoError(t, DefaultTolerance().Validate())
	assert.Error(t, Tolerance{AbsTol: 0, RelTol: 0, MaxPoints: 1000, Shifts: 10}.Validate())
	assert.Error(t, Tolerance{AbsTol: 1e-3, MaxPoints: 1000, Shifts: 1}.Validate())
	assert.Error(t, Tolerance{AbsTol: 1e-3, MaxPoints: 10, Shifts: 10}.Validate())
	assert.Error(t, Tolerance{AbsTol: -1, MaxPoints: 1000, Shifts: 10}.Validate())
}

func TestNew_SelectsBackend(t *testing.T) {
	g, err := New(Settings{Backend: "genz", Tolerance: DefaultTolerance()})
	require.NoError(t, err)
	assert.Equal(t, BackendGenz, g.Name())

	m, err := New(Settings{Backend: "MC", Samples: 10})
	require.NoError(t, err)
	assert.Equal(t, BackendMonteCarlo, m.Name())

	_, err = New(Settings{Backend: "quadrature"})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
