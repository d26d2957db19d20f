package run

import (
	"symptomsim/domain/symptom"
)

// Report column names. They are the stable contract for every tabular output.
const (
	ColumnCombination     = "combination"
	ColumnMeanProbability = "mean_probability"
	ColumnSDProbability   = "sd_probability"
	ColumnMeetsCriteria   = "meets_criteria"
	ColumnRank            = "rank"
)

// Columns lists the report columns in output order
var Columns = []string{
	ColumnCombination,
	ColumnMeanProbability,
	ColumnSDProbability,
	ColumnMeetsCriteria,
	ColumnRank,
}

// CombinationRow is the aggregate over all successful replicates for one
// symptom combination.
type CombinationRow struct {
	Pattern         symptom.Pattern `json:"-"`
	Combination     string          `json:"combination"`
	Description     string          `json:"description"`
	MeanProbability float64         `json:"mean_probability"`
	SDProbability   float64         `json:"sd_probability"`
	MeetsCriteria   bool            `json:"meets_criteria"`
	Rank            int             `json:"rank"`

	// ObservedFrequency is the mean share of cases showing the combination
	// in the generated samples, next to the fitted-normal estimate.
	ObservedFrequency float64 `json:"observed_frequency"`
}

// IndicatorProfile describes one indicator's distribution among cases,
// averaged over successful replicates. The fitted normal assumes these are
// symmetric and mesokurtic; NormalityP is the Jarque-Bera p-value.
type IndicatorProfile struct {
	Name         string  `json:"name"`
	Mean         float64 `json:"mean"`
	SD           float64 `json:"sd"`
	Median       float64 `json:"median"`
	Skewness     float64 `json:"skewness"`
	Kurtosis     float64 `json:"kurtosis"`
	NormalityP   float64 `json:"normality_p"`
	PositiveRate float64 `json:"positive_rate"`
}

// Failure records a replicate that was skipped
type Failure struct {
	Replicate   int    `json:"replicate"`
	Combination string `json:"combination,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// Report is the finished output of a simulation run
type Report struct {
	Manifest       *Manifest          `json:"manifest"`
	IndicatorNames []string           `json:"indicator_names"`
	Rows           []CombinationRow   `json:"rows"`     // all combinations, by rank
	Criteria       []CombinationRow   `json:"criteria"` // criteria-meeting combinations, by rank
	Profiles       []IndicatorProfile `json:"profiles,omitempty"`
	Failures       []Failure          `json:"failures"`
	Succeeded      int                `json:"succeeded"`
	MeanCases      float64            `json:"mean_cases"`
	RuntimeMs      int64              `json:"runtime_ms"`
}

// FailedReplicates returns the number of skipped replicates
func (r *Report) FailedReplicates() int {
	return len(r.Failures)
}

// Top returns the highest-ranked criteria-meeting row, if any
func (r *Report) Top() (CombinationRow, bool) {
	if len(r.Criteria) == 0 {
		return CombinationRow{}, false
	}
	return r.Criteria[0], true
}
