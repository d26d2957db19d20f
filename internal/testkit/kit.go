package testkit

import (
	"context"
	"math/rand/v2"
	"sync"

	"symptomsim/domain/core"
	"symptomsim/domain/run"
	"symptomsim/domain/symptom"
	"symptomsim/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// TestKit provides deterministic fixtures for simulation tests
type TestKit struct {
	seed uint64
}

// NewTestKit creates a test kit whose streams derive from seed
func NewTestKit(seed uint64) *TestKit {
	return &TestKit{seed: seed}
}

// Stream returns a fresh random stream; the same name always yields the same
// sequence for a given kit.
func (t *TestKit) Stream(name string) *rand.Rand {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return rand.New(rand.NewPCG(t.seed, h))
}

// CaseSample draws n rows from a multivariate normal with the given mean and
// covariance. It panics if cov is not positive definite.
func (t *TestKit) CaseSample(name string, n int, mean []float64, cov mat.Symmetric) *mat.Dense {
	dist, ok := distmv.NewNormal(mean, cov, t.Stream(name))
	if !ok {
		panic("testkit: covariance is not positive definite")
	}
	x := mat.NewDense(n, len(mean), nil)
	row := make([]float64, len(mean))
	for i := 0; i < n; i++ {
		dist.Rand(row)
		x.SetRow(i, row)
	}
	return x
}

// Report builds a small finished report over the default indicators: two
// criteria rows, one non-criteria row and one skipped replicate.
func (t *TestKit) Report() *run.Report {
	indicators := symptom.DefaultIndicators()
	rule := symptom.DefaultRule()
	m := run.NewManifest(core.NewRunID(), 123, 1000, 3, 2.0, rule, indicators,
		"genz", core.NewHash([]byte("testkit")), "test")

	rows := []run.CombinationRow{
		{Combination: "11111", Description: "S1+S2+W1+W2+M", MeanProbability: 0.14, SDProbability: 0.01, MeetsCriteria: true, Rank: 1},
		{Combination: "11011", Description: "S1+S2+W2+M", MeanProbability: 0.10, SDProbability: 0.02, MeetsCriteria: true, Rank: 2},
		{Combination: "10000", Description: "S1", MeanProbability: 0.01, SDProbability: 0.005, MeetsCriteria: false, Rank: 3},
	}
	for i := range rows {
		p, err := symptom.ParsePattern(rows[i].Combination)
		if err != nil {
			panic(err)
		}
		rows[i].Pattern = p
	}
	return &run.Report{
		Manifest:       m,
		IndicatorNames: symptom.Names(indicators),
		Rows:           rows,
		Criteria:       rows[:2],
		Profiles: []run.IndicatorProfile{
			{Name: "S1", Mean: 3.1, SD: 0.5, Median: 3.2, Skewness: -0.4, Kurtosis: 2.8, NormalityP: 0.2, PositiveRate: 0.97},
		},
		Failures:  []run.Failure{{Replicate: 2, Code: "DEGENERATE_SAMPLE", Message: "too few cases"}},
		Succeeded: 2,
		MeanCases: 620,
	}
}

// StaticEstimator is an orthant backend that returns the same probabilities
// for every fit: Probabilities when set, otherwise a uniform split. Fail, when
// set, is consulted first with the zero-based call number.
type StaticEstimator struct {
	Probabilities []float64
	Fail          func(call int) error

	mu    sync.Mutex
	calls int
}

var _ ports.OrthantEstimator = (*StaticEstimator)(nil)

// Name identifies the backend
func (s *StaticEstimator) Name() string {
	return "static"
}

// Calls returns how many times the backend was asked to estimate
func (s *StaticEstimator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// EstimateOrthantProbabilities returns the configured probabilities
func (s *StaticEstimator) EstimateOrthantProbabilities(
	ctx context.Context,
	rng *rand.Rand,
	mean []float64,
	cov mat.Symmetric,
	patterns []symptom.Pattern,
	threshold float64,
) ([]float64, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()

	if s.Fail != nil {
		if err := s.Fail(call); err != nil {
			return nil, err
		}
	}
	out := make([]float64, len(patterns))
	if s.Probabilities != nil {
		copy(out, s.Probabilities)
		return out, nil
	}
	for i := range out {
		out[i] = 1 / float64(len(patterns))
	}
	return out, nil
}
