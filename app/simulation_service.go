package app

import (
	"context"
	"fmt"
	"time"

	"symptomsim/domain/core"
	"symptomsim/domain/run"
	"symptomsim/domain/symptom"
	"symptomsim/internal"
	"symptomsim/internal/aggregate"
	"symptomsim/internal/diagnosis"
	"symptomsim/internal/errors"
	"symptomsim/internal/estimation"
	"symptomsim/internal/population"
	"symptomsim/internal/profiling"
	"symptomsim/ports"

	"golang.org/x/sync/errgroup"
)

// CodeVersion is recorded in every run manifest
const CodeVersion = "v1.0.0"

// SimulationConfig is the validated input of a simulation run
type SimulationConfig struct {
	Population int                    `json:"population"`
	Replicates int                    `json:"replicates"`
	Seed       int64                  `json:"seed"`
	Threshold  float64                `json:"threshold"`
	Rule       symptom.DiagnosticRule `json:"rule"`
	MinCases   int                    `json:"min_cases"`
	Workers    int                    `json:"workers"`
	Generator  population.Config      `json:"generator"`
}

// DefaultSimulationConfig returns n=1000, R=100, seed 123, a 2-of-5 rule at 2.0
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Population: 1000,
		Replicates: 100,
		Seed:       123,
		Threshold:  2.0,
		Rule:       symptom.DefaultRule(),
		MinCases:   estimation.DefaultMinCases,
		Workers:    1,
		Generator:  population.DefaultConfig(),
	}
}

// Validate rejects configurations before any simulation work is done
func (c SimulationConfig) Validate() error {
	if err := c.Generator.Validate(); err != nil {
		return err
	}
	if c.Replicates < 1 {
		return errors.ConfigInvalidf("replicate count must be at least 1, got %d", c.Replicates)
	}
	if c.MinCases < 2 {
		return errors.ConfigInvalidf("minimum case count must be at least 2, got %d", c.MinCases)
	}
	if c.Population < c.MinCases {
		return errors.ConfigInvalidf("population size %d is below the minimum case count %d", c.Population, c.MinCases)
	}
	if c.Threshold < c.Generator.RangeMin || c.Threshold > c.Generator.RangeMax {
		return errors.ConfigInvalidf("threshold %g is outside the indicator range [%g, %g]",
			c.Threshold, c.Generator.RangeMin, c.Generator.RangeMax)
	}
	if err := c.Rule.Validate(); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if c.Rule.Total != len(c.Generator.Indicators) {
		return errors.ConfigInvalidf("diagnostic rule covers %d criteria but %d indicators are configured",
			c.Rule.Total, len(c.Generator.Indicators))
	}
	if c.Workers < 1 {
		return errors.ConfigInvalidf("worker count must be at least 1, got %d", c.Workers)
	}
	return nil
}

// ReplicateOutcome is the successful result of one replicate
type ReplicateOutcome struct {
	Replicate     int
	Cases         int
	Probabilities []float64
	Observed      []float64
	Fit           *estimation.Normal
	Profiles      []run.IndicatorProfile
}

// ReplicateFailure labels an error with the replicate (and combination, when
// known) that produced it.
type ReplicateFailure struct {
	Replicate   int
	Combination string
	Err         error
}

func (f *ReplicateFailure) Error() string {
	if f.Combination != "" {
		return fmt.Sprintf("replicate %d, combination %s: %v", f.Replicate, f.Combination, f.Err)
	}
	return fmt.Sprintf("replicate %d: %v", f.Replicate, f.Err)
}

func (f *ReplicateFailure) Unwrap() error {
	return f.Err
}

// Code returns the taxonomy code of the underlying error
func (f *ReplicateFailure) Code() string {
	return errors.GetCode(f.Err)
}

// Skippable reports whether the run may continue without this replicate.
// Degenerate samples and integration failures are local to a replicate;
// anything else aborts the run, and so does a cancelled or expired context
// whatever code it was wrapped in.
func (f *ReplicateFailure) Skippable() bool {
	if errors.Is(f.Err, context.Canceled) || errors.Is(f.Err, context.DeadlineExceeded) {
		return false
	}
	return errors.HasCode(f.Err, errors.CodeDegenerateSample) ||
		errors.HasCode(f.Err, errors.CodeIntegrationFailure)
}

func newReplicateFailure(r int, err error) *ReplicateFailure {
	combination, _ := core.CombinationOf(err)
	return &ReplicateFailure{Replicate: r, Combination: combination, Err: err}
}

// SimulationService runs the generate, classify and estimate pipeline over
// independent replicates and aggregates the results.
type SimulationService struct {
	cfg        SimulationConfig
	rngPort    ports.RNGPort
	generator  *population.Generator
	classifier *diagnosis.Classifier
	estimator  *estimation.Estimator
	logger     *internal.Logger
}

// NewSimulationService validates cfg and wires the pipeline components
func NewSimulationService(cfg SimulationConfig, rngPort ports.RNGPort, backend ports.OrthantEstimator, logger *internal.Logger) (*SimulationService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rngPort == nil {
		return nil, errors.ConfigInvalid("an RNG port is required")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	generator, err := population.NewGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	classifier, err := diagnosis.NewClassifier(cfg.Threshold, cfg.Rule)
	if err != nil {
		return nil, err
	}
	estimator, err := estimation.NewEstimator(backend, len(cfg.Generator.Indicators), cfg.Threshold, cfg.MinCases)
	if err != nil {
		return nil, err
	}

	return &SimulationService{
		cfg:        cfg,
		rngPort:    rngPort,
		generator:  generator,
		classifier: classifier,
		estimator:  estimator,
		logger:     logger,
	}, nil
}

// Config returns the validated configuration
func (s *SimulationService) Config() SimulationConfig {
	return s.cfg
}

// Patterns returns the fixed combination enumeration used for every replicate
func (s *SimulationService) Patterns() []symptom.Pattern {
	return s.estimator.Patterns()
}

// RunReplicate executes one replicate on its own random stream
func (s *SimulationService) RunReplicate(ctx context.Context, r int) (*ReplicateOutcome, error) {
	rng, err := s.rngPort.ReplicateStream(ctx, s.cfg.Seed, r)
	if err != nil {
		return nil, err
	}

	pop, err := s.generator.Generate(rng, s.cfg.Population)
	if err != nil {
		return nil, newReplicateFailure(r, err)
	}
	classified, err := s.classifier.Classify(pop.Values)
	if err != nil {
		return nil, newReplicateFailure(r, err)
	}
	est, err := s.estimator.Estimate(ctx, rng, classified.Cases)
	if err != nil {
		return nil, newReplicateFailure(r, err)
	}
	if s.logger.Enabled(internal.LogLevelTrace) {
		s.logger.Trace("replicate %d: fitted mean %.3f over %d cases", r, est.Fit.Mean, est.Fit.N)
	}

	profiles, err := profiling.ProfileColumns(symptom.Names(s.cfg.Generator.Indicators), classified.Cases, s.cfg.Threshold)
	if err != nil {
		return nil, newReplicateFailure(r, err)
	}

	return &ReplicateOutcome{
		Replicate:     r,
		Cases:         classified.CaseCount(),
		Probabilities: est.Probabilities,
		Observed:      classified.ObservedFrequencies(),
		Fit:           est.Fit,
		Profiles:      profiles,
	}, nil
}

// Run executes all replicates and builds the report. Skippable replicate
// failures are recorded in the report and excluded from the aggregate; the
// run fails only if no replicate succeeds or a failure is not skippable.
func (s *SimulationService) Run(ctx context.Context) (*run.Report, error) {
	startTime := time.Now()

	configHash, err := core.HashJSON(s.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash configuration")
	}
	manifest := run.NewManifest(
		core.NewRunID(),
		s.cfg.Seed,
		s.cfg.Population,
		s.cfg.Replicates,
		s.cfg.Threshold,
		s.cfg.Rule,
		s.cfg.Generator.Indicators,
		s.estimator.Backend().Name(),
		configHash,
		CodeVersion,
	)
	if err := manifest.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	s.logger.Info("run %s: %d replicates of n=%d, seed %d, rule %s at %.2f, estimator %s, %d worker(s)",
		manifest.RunID, s.cfg.Replicates, s.cfg.Population, s.cfg.Seed, s.cfg.Rule, s.cfg.Threshold,
		manifest.Estimator, s.cfg.Workers)

	acc := aggregate.NewAccumulator(s.Patterns(), s.cfg.Replicates)
	failures := make([]*ReplicateFailure, s.cfg.Replicates)
	var firstFailure *ReplicateFailure
	profiles := make([][]run.IndicatorProfile, s.cfg.Replicates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for r := 0; r < s.cfg.Replicates; r++ {
		g.Go(func() error {
			out, err := s.RunReplicate(gctx, r)
			if err != nil {
				var fail *ReplicateFailure
				if errors.As(err, &fail) && fail.Skippable() {
					failures[r] = fail
					s.logger.Warn("skipping %v", fail)
					return nil
				}
				return err
			}
			s.logger.Debug("replicate %d: %d cases", r, out.Cases)
			profiles[r] = out.Profiles
			return acc.Record(r, out.Probabilities, out.Observed, out.Cases)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &run.Report{
		Manifest:       manifest,
		IndicatorNames: symptom.Names(s.cfg.Generator.Indicators),
	}
	for _, f := range failures {
		if f == nil {
			continue
		}
		if firstFailure == nil {
			firstFailure = f
		}
		report.Failures = append(report.Failures, run.Failure{
			Replicate:   f.Replicate,
			Combination: f.Combination,
			Code:        f.Code(),
			Message:     f.Err.Error(),
		})
	}

	completed := len(acc.Completed())
	if completed == 0 {
		return nil, &errors.AppError{
			Code:    firstFailure.Code(),
			Message: fmt.Sprintf("all %d replicates failed; first failure", s.cfg.Replicates),
			Cause:   firstFailure,
		}
	}

	rows, err := acc.Summarize(report.IndicatorNames, s.cfg.Rule)
	if err != nil {
		return nil, err
	}
	report.Rows = rows
	report.Criteria = aggregate.CriteriaView(rows)
	report.Succeeded = completed
	report.MeanCases = acc.MeanCases()
	report.Profiles = profiling.Average(completedProfiles(profiles))
	report.RuntimeMs = time.Since(startTime).Milliseconds()

	if len(report.Failures) > 0 {
		s.logger.Warn("run %s: %d of %d replicates failed and were excluded",
			manifest.RunID, len(report.Failures), s.cfg.Replicates)
	}
	s.logger.Info("run %s finished in %dms: %d replicates, mean %.1f cases",
		manifest.RunID, report.RuntimeMs, completed, report.MeanCases)
	return report, nil
}

// completedProfiles drops skipped replicates, keeping replicate order
func completedProfiles(profiles [][]run.IndicatorProfile) [][]run.IndicatorProfile {
	out := make([][]run.IndicatorProfile, 0, len(profiles))
	for _, p := range profiles {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
