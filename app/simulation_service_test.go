package app

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"testing"
	"time"

	"symptomsim/adapters/orthant"
	"symptomsim/adapters/rng"
	"symptomsim/domain/core"
	"symptomsim/domain/run"
	"symptomsim/domain/symptom"
	"symptomsim/internal"
	"symptomsim/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type MockOrthantEstimator struct {
	mock.Mock
}

func (m *MockOrthantEstimator) Name() string {
	return "mock"
}

func (m *MockOrthantEstimator) EstimateOrthantProbabilities(ctx context.Context, r *rand.Rand, mean []float64, cov mat.Symmetric, patterns []symptom.Pattern, threshold float64) ([]float64, error) {
	args := m.Called(ctx, r, mean, cov, patterns, threshold)
	probs, _ := args.Get(0).([]float64)
	return probs, args.Error(1)
}

func newService(t *testing.T, cfg SimulationConfig) *SimulationService {
	t.Helper()
	backend, err := orthant.NewGenz(orthant.DefaultTolerance())
	require.NoError(t, err)
	svc, err := NewSimulationService(cfg, rng.NewSeededAdapter(), backend, internal.Discard())
	require.NoError(t, err)
	return svc
}

func smallConfig() SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.Population = 300
	cfg.Replicates = 4
	return cfg
}

// rowsOf strips the per-run fields from a report
func rowsOf(r *run.Report) []run.CombinationRow {
	return r.Rows
}

func TestSimulationService_Run_Defaults(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.Replicates = 10

	report, err := newService(t, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Rows, 32)
	assert.Len(t, report.Criteria, 26)
	assert.Equal(t, 10, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.Greater(t, report.MeanCases, 400.0)
	assert.Equal(t, "genz", report.Manifest.Estimator)

	require.Len(t, report.Profiles, 5)
	for i, p := range report.Profiles {
		assert.Equal(t, report.IndicatorNames[i], p.Name)
		assert.Greater(t, p.PositiveRate, 0.0)
		assert.LessOrEqual(t, p.PositiveRate, 1.0)
		assert.Greater(t, p.SD, 0.0)
	}

	sum := 0.0
	seen := make(map[string]bool)
	for i, row := range report.Rows {
		assert.Equal(t, i+1, row.Rank)
		assert.GreaterOrEqual(t, row.MeanProbability, 0.0)
		assert.LessOrEqual(t, row.MeanProbability, 1.0)
		assert.GreaterOrEqual(t, row.SDProbability, 0.0)
		if i > 0 {
			assert.LessOrEqual(t, row.MeanProbability, report.Rows[i-1].MeanProbability)
		}
		assert.False(t, seen[row.Combination], "duplicate combination %s", row.Combination)
		seen[row.Combination] = true
		sum += row.MeanProbability
	}
	assert.InDelta(t, 1.0, sum, 0.03)

	// S1 and S2 carry the largest loadings
	top := report.Criteria[0]
	assert.Equal(t, byte('1'), top.Combination[0])
	assert.Equal(t, byte('1'), top.Combination[1])

	// 00000, 10000 and friends never meet a 2-of-5 rule
	for _, row := range report.Criteria {
		p, err := symptom.ParsePattern(row.Combination)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Count(), 2)
	}
}

func TestSimulationService_Run_Deterministic(t *testing.T) {
	cfg := smallConfig()

	first, err := newService(t, cfg).Run(context.Background())
	require.NoError(t, err)
	second, err := newService(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rowsOf(first), rowsOf(second))
	assert.Equal(t, first.Manifest.ConfigHash, second.Manifest.ConfigHash)
	assert.Equal(t, first.Manifest.Fingerprint, second.Manifest.Fingerprint)

	cfg.Workers = 4
	parallel, err := newService(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rowsOf(first), rowsOf(parallel))

	cfg.Workers = 1
	cfg.Seed = 124
	other, err := newService(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, rowsOf(first), rowsOf(other))
}

func TestSimulationService_Run_LoadingsRaiseFullPattern(t *testing.T) {
	if testing.Short() {
		t.Skip("runs two full simulations")
	}

	probabilityOf := func(t *testing.T, cfg SimulationConfig, label string) float64 {
		report, err := newService(t, cfg).Run(context.Background())
		require.NoError(t, err)
		for _, row := range report.Rows {
			if row.Combination == label {
				return row.MeanProbability
			}
		}
		t.Fatalf("combination %s missing", label)
		return 0
	}

	base := DefaultSimulationConfig()
	base.Replicates = 20
	base.Workers = 4

	stronger := base
	stronger.Generator.Indicators = symptom.DefaultIndicators()
	for i := range stronger.Generator.Indicators {
		switch stronger.Generator.Indicators[i].Name {
		case symptom.Weak1:
			stronger.Generator.Indicators[i].Loading = 1.6
		case symptom.Weak2:
			stronger.Generator.Indicators[i].Loading = 1.4
		}
	}

	assert.Greater(t, probabilityOf(t, stronger, "11111"), probabilityOf(t, base, "11111"))
}

func TestNewSimulationService_RejectsConfig(t *testing.T) {
	backend, err := orthant.NewGenz(orthant.DefaultTolerance())
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*SimulationConfig)
	}{
		{"population below min cases", func(c *SimulationConfig) { c.Population = 1 }},
		{"no replicates", func(c *SimulationConfig) { c.Replicates = 0 }},
		{"threshold out of range", func(c *SimulationConfig) { c.Threshold = 4.5 }},
		{"k above n", func(c *SimulationConfig) { c.Rule = symptom.DiagnosticRule{MinCriteria: 6, Total: 5} }},
		{"rule size mismatch", func(c *SimulationConfig) { c.Rule = symptom.DiagnosticRule{MinCriteria: 2, Total: 4} }},
		{"no workers", func(c *SimulationConfig) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimulationConfig()
			tt.modify(&cfg)
			_, err := NewSimulationService(cfg, rng.NewSeededAdapter(), backend, internal.Discard())
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestSimulationService_Run_SkipsIntegrationFailures(t *testing.T) {
	cfg := smallConfig()
	backend := &MockOrthantEstimator{}

	failure := errors.WithCode(errors.CodeIntegrationFailure,
		&core.CombinationError{Combination: "11111", Err: core.ErrNotConverged})
	uniform := make([]float64, 32)
	for i := range uniform {
		uniform[i] = 1.0 / 32
	}
	backend.On("EstimateOrthantProbabilities", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, 2.0).
		Return(nil, failure).Once()
	backend.On("EstimateOrthantProbabilities", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, 2.0).
		Return(uniform, nil)

	svc, err := NewSimulationService(cfg, rng.NewSeededAdapter(), backend, internal.Discard())
	require.NoError(t, err)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 0, report.Failures[0].Replicate)
	assert.Equal(t, "11111", report.Failures[0].Combination)
	assert.Equal(t, errors.CodeIntegrationFailure, report.Failures[0].Code)
	assert.Equal(t, 1, report.FailedReplicates())

	// identical replicates give zero spread and enumeration-order ties
	assert.Equal(t, "00000", report.Rows[0].Combination)
	assert.Equal(t, "10000", report.Rows[1].Combination)
	for _, row := range report.Rows {
		assert.InDelta(t, 1.0/32, row.MeanProbability, 1e-15)
		assert.Zero(t, row.SDProbability)
	}
	backend.AssertNumberOfCalls(t, "EstimateOrthantProbabilities", 4)
}

func TestSimulationService_Run_AllReplicatesFail(t *testing.T) {
	cfg := smallConfig()
	backend := &MockOrthantEstimator{}
	backend.On("EstimateOrthantProbabilities", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.IntegrationFailure("cholesky factorization failed", core.ErrNotPositiveDefinite))

	svc, err := NewSimulationService(cfg, rng.NewSeededAdapter(), backend, internal.Discard())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeIntegrationFailure, errors.GetCode(err))
	assert.Contains(t, err.Error(), "all 4 replicates failed")
	assert.ErrorIs(t, err, core.ErrNotPositiveDefinite)
	var fail *ReplicateFailure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, 0, fail.Replicate)
}

// stallingEstimator waits for the context to end and reports the context
// error as an integration failure on one combination.
type stallingEstimator struct{}

func (stallingEstimator) Name() string { return "stalling" }

func (stallingEstimator) EstimateOrthantProbabilities(ctx context.Context, r *rand.Rand, mean []float64, cov mat.Symmetric, patterns []symptom.Pattern, threshold float64) ([]float64, error) {
	<-ctx.Done()
	return nil, errors.WithCode(errors.CodeIntegrationFailure,
		&core.CombinationError{Combination: patterns[4].Label(), Err: ctx.Err()})
}

func TestSimulationService_Run_DeadlineIsNotAReplicateFailure(t *testing.T) {
	cfg := smallConfig()
	cfg.Replicates = 1
	svc, err := NewSimulationService(cfg, rng.NewSeededAdapter(), stallingEstimator{}, internal.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	report, err := svc.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var fail *ReplicateFailure
	require.True(t, errors.As(err, &fail))
	assert.False(t, fail.Skippable())
	assert.NotContains(t, err.Error(), "replicates failed")
}

func TestSimulationService_Run_CancelledWithGenz(t *testing.T) {
	cfg := smallConfig()
	cfg.Workers = 2
	svc := newService(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.HasCode(err, errors.CodeIntegrationFailure))
}

func TestSimulationService_Run_AbortsOnUnexpectedError(t *testing.T) {
	cfg := smallConfig()
	backend := &MockOrthantEstimator{}
	boom := stderrors.New("backend crashed")
	backend.On("EstimateOrthantProbabilities", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, boom)

	svc, err := NewSimulationService(cfg, rng.NewSeededAdapter(), backend, internal.Discard())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var fail *ReplicateFailure
	require.True(t, errors.As(err, &fail))
	assert.False(t, fail.Skippable())
}

func TestSimulationService_RunReplicate_DegenerateSample(t *testing.T) {
	cfg := smallConfig()
	cfg.Threshold = 4.0 // only the column maxima reach it
	cfg.Rule = symptom.DiagnosticRule{MinCriteria: 5, Total: 5}

	svc := newService(t, cfg)
	_, err := svc.RunReplicate(context.Background(), 0)
	require.Error(t, err)

	var fail *ReplicateFailure
	require.True(t, errors.As(err, &fail))
	assert.True(t, fail.Skippable())
	assert.Equal(t, errors.CodeDegenerateSample, fail.Code())
	assert.ErrorIs(t, err, core.ErrInsufficientCases)
}
