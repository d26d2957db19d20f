package aggregate

import (
	"fmt"
	"math"
	"sort"

	"symptomsim/domain/run"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"

	"github.com/montanaflynn/stats"
)

// Accumulator collects one probability vector per replicate. Each replicate
// owns its row, so concurrent writers to distinct rows need no locking.
type Accumulator struct {
	patterns []symptom.Pattern
	rows     [][]float64
	observed [][]float64
	cases    []int
}

// NewAccumulator sizes the matrix for replicates x len(patterns)
func NewAccumulator(patterns []symptom.Pattern, replicates int) *Accumulator {
	return &Accumulator{
		patterns: patterns,
		rows:     make([][]float64, replicates),
		observed: make([][]float64, replicates),
		cases:    make([]int, replicates),
	}
}

// Record stores replicate r's estimated probabilities, the observed pattern
// frequencies among its cases (may be nil) and its case count.
func (a *Accumulator) Record(r int, probs, observed []float64, cases int) error {
	if r < 0 || r >= len(a.rows) {
		return errors.InvalidInput(fmt.Sprintf("replicate %d outside [0, %d)", r, len(a.rows)))
	}
	if len(probs) != len(a.patterns) {
		return errors.InvalidInput(fmt.Sprintf("replicate %d has %d probabilities, want %d", r, len(probs), len(a.patterns)))
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return errors.InvalidInput(fmt.Sprintf("replicate %d combination %s is not finite", r, a.patterns[i].Label()))
		}
	}
	if observed != nil && len(observed) != len(a.patterns) {
		return errors.InvalidInput(fmt.Sprintf("replicate %d has %d observed frequencies, want %d", r, len(observed), len(a.patterns)))
	}
	a.rows[r] = append([]float64(nil), probs...)
	if observed != nil {
		a.observed[r] = append([]float64(nil), observed...)
	}
	a.cases[r] = cases
	return nil
}

// Completed returns the probability rows of replicates that were recorded, in
// replicate order.
func (a *Accumulator) Completed() [][]float64 {
	var out [][]float64
	for _, row := range a.rows {
		if row != nil {
			out = append(out, row)
		}
	}
	return out
}

// MeanCases returns the average case count over recorded replicates
func (a *Accumulator) MeanCases() float64 {
	var counts []float64
	for r, row := range a.rows {
		if row != nil {
			counts = append(counts, float64(a.cases[r]))
		}
	}
	m, err := stats.Mean(counts)
	if err != nil {
		return 0
	}
	return m
}

// Summarize reduces the recorded replicates to one row per combination,
// sorted by descending mean probability with ties kept in enumeration order.
func (a *Accumulator) Summarize(names []string, rule symptom.DiagnosticRule) ([]run.CombinationRow, error) {
	rows, err := Summarize(a.patterns, names, rule, a.Completed())
	if err != nil {
		return nil, err
	}

	var observed [][]float64
	for r, row := range a.rows {
		if row != nil && a.observed[r] != nil {
			observed = append(observed, a.observed[r])
		}
	}
	if len(observed) == 0 {
		return rows, nil
	}
	for i := range rows {
		idx := rows[i].Pattern.Index
		column := make([]float64, len(observed))
		for r, freq := range observed {
			column[r] = freq[idx]
		}
		if rows[i].ObservedFrequency, err = stats.Mean(column); err != nil {
			return nil, errors.Wrapf(err, "observed frequency for %s", rows[i].Combination)
		}
	}
	return rows, nil
}

// Summarize computes per-combination mean and sample SD over replicates.
// replicates[r][i] is replicate r's probability for patterns[i].
func Summarize(patterns []symptom.Pattern, names []string, rule symptom.DiagnosticRule, replicates [][]float64) ([]run.CombinationRow, error) {
	if len(replicates) == 0 {
		return nil, errors.InvalidInput("no completed replicates to summarize")
	}

	rows := make([]run.CombinationRow, len(patterns))
	column := make([]float64, len(replicates))
	for i, p := range patterns {
		for r, probs := range replicates {
			if len(probs) != len(patterns) {
				return nil, errors.InvalidInput(fmt.Sprintf("replicate %d has %d probabilities, want %d", r, len(probs), len(patterns)))
			}
			column[r] = probs[i]
		}

		mean, err := stats.Mean(column)
		if err != nil {
			return nil, errors.Wrapf(err, "mean for %s", p.Label())
		}
		sd := 0.0
		if len(column) > 1 {
			if sd, err = stats.StandardDeviationSample(column); err != nil {
				return nil, errors.Wrapf(err, "sd for %s", p.Label())
			}
		}

		rows[i] = run.CombinationRow{
			Pattern:         p,
			Combination:     p.Label(),
			Description:     p.Describe(names),
			MeanProbability: mean,
			SDProbability:   sd,
			MeetsCriteria:   rule.MeetsCriteria(p),
		}
	}

	Rank(rows)
	return rows, nil
}

// Rank sorts rows by descending mean probability and assigns ranks 1..n.
// Equal means keep enumeration order.
func Rank(rows []run.CombinationRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].MeanProbability != rows[j].MeanProbability {
			return rows[i].MeanProbability > rows[j].MeanProbability
		}
		return rows[i].Pattern.Index < rows[j].Pattern.Index
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

// CriteriaView returns the rows that meet the diagnostic criteria, keeping
// their order and ranks.
func CriteriaView(rows []run.CombinationRow) []run.CombinationRow {
	var out []run.CombinationRow
	for _, row := range rows {
		if row.MeetsCriteria {
			out = append(out, row)
		}
	}
	return out
}
