package diagnosis

import (
	"fmt"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// Individual is the classification of one row of indicator values
type Individual struct {
	Positive    []bool
	CriteriaMet int
	Diagnosed   bool
}

// Pattern returns the individual's symptom combination
func (i Individual) Pattern() symptom.Pattern {
	return symptom.PatternOf(i.Positive)
}

// Result holds the classified population and its case subset
type Result struct {
	Individuals []Individual
	CaseRows    []int      // row indices of diagnosed individuals, ascending
	Cases       *mat.Dense // indicator values of diagnosed individuals; nil when there are none
	Observed    []int      // case counts per pattern index
}

// CaseCount returns the number of diagnosed individuals
func (r *Result) CaseCount() int {
	return len(r.CaseRows)
}

// ObservedFrequencies returns the share of cases showing each pattern
func (r *Result) ObservedFrequencies() []float64 {
	out := make([]float64, len(r.Observed))
	if len(r.CaseRows) == 0 {
		return out
	}
	for i, n := range r.Observed {
		out[i] = float64(n) / float64(len(r.CaseRows))
	}
	return out
}

// Classifier binarizes indicators and applies the diagnostic rule.
// It holds no random state.
type Classifier struct {
	threshold float64
	rule      symptom.DiagnosticRule
}

// NewClassifier creates a classifier for the given positivity threshold and rule
func NewClassifier(threshold float64, rule symptom.DiagnosticRule) (*Classifier, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return &Classifier{threshold: threshold, rule: rule}, nil
}

// Threshold returns the positivity threshold
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Rule returns the diagnostic rule
func (c *Classifier) Rule() symptom.DiagnosticRule {
	return c.rule
}

// Classify marks value >= threshold as positive, counts positives per row and
// collects the rows meeting the rule.
func (c *Classifier) Classify(values mat.Matrix) (*Result, error) {
	n, k := values.Dims()
	if k != c.rule.Total {
		return nil, fmt.Errorf("%w: %d indicator columns for a %s rule", core.ErrDimensionMismatch, k, c.rule)
	}

	res := &Result{
		Individuals: make([]Individual, n),
		Observed:    make([]int, 1<<k),
	}
	for i := 0; i < n; i++ {
		ind := Individual{Positive: make([]bool, k)}
		for j := 0; j < k; j++ {
			if values.At(i, j) >= c.threshold {
				ind.Positive[j] = true
				ind.CriteriaMet++
			}
		}
		ind.Diagnosed = c.rule.Diagnosed(ind.CriteriaMet)
		res.Individuals[i] = ind

		if ind.Diagnosed {
			res.CaseRows = append(res.CaseRows, i)
			res.Observed[ind.Pattern().Index]++
		}
	}

	if len(res.CaseRows) > 0 {
		res.Cases = mat.NewDense(len(res.CaseRows), k, nil)
		for r, i := range res.CaseRows {
			for j := 0; j < k; j++ {
				res.Cases.Set(r, j, values.At(i, j))
			}
		}
	}
	return res, nil
}
