package profiling

import (
	"math"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Profile summarizes one indicator's values. PositiveRate is the share of
// values at or above threshold.
func Profile(name string, data []float64, threshold float64) (run.IndicatorProfile, error) {
	profile := run.IndicatorProfile{Name: name}
	if len(data) < 2 {
		return profile, errors.InvalidInput("at least two values are needed to profile " + name)
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return profile, err
	}
	sd, err := stats.StandardDeviationSample(data)
	if err != nil {
		return profile, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return profile, err
	}

	profile.Mean = mean
	profile.SD = sd
	profile.Median = median

	positive := 0
	for _, x := range data {
		if x >= threshold {
			positive++
		}
	}
	profile.PositiveRate = float64(positive) / float64(len(data))

	if sd > 0 {
		profile.Skewness, profile.Kurtosis = shape(data, mean)
		profile.NormalityP = jarqueBera(len(data), profile.Skewness, profile.Kurtosis)
	}
	return profile, nil
}

// ProfileColumns profiles every column of x; names label the columns
func ProfileColumns(names []string, x *mat.Dense, threshold float64) ([]run.IndicatorProfile, error) {
	if x == nil {
		return nil, errors.InvalidInput("no values to profile")
	}
	n, k := x.Dims()
	if k != len(names) {
		return nil, errors.InvalidInput("column count does not match indicator names")
	}
	col := make([]float64, n)
	profiles := make([]run.IndicatorProfile, k)
	for j := 0; j < k; j++ {
		mat.Col(col, j, x)
		p, err := Profile(names[j], col, threshold)
		if err != nil {
			return nil, err
		}
		profiles[j] = p
	}
	return profiles, nil
}

// Average combines per-replicate profiles field by field. Every replicate
// must profile the same indicators in the same order.
func Average(replicates [][]run.IndicatorProfile) []run.IndicatorProfile {
	if len(replicates) == 0 {
		return nil
	}
	out := make([]run.IndicatorProfile, len(replicates[0]))
	for j := range out {
		out[j].Name = replicates[0][j].Name
	}
	for _, profiles := range replicates {
		for j, p := range profiles {
			out[j].Mean += p.Mean
			out[j].SD += p.SD
			out[j].Median += p.Median
			out[j].Skewness += p.Skewness
			out[j].Kurtosis += p.Kurtosis
			out[j].NormalityP += p.NormalityP
			out[j].PositiveRate += p.PositiveRate
		}
	}
	n := float64(len(replicates))
	for j := range out {
		out[j].Mean /= n
		out[j].SD /= n
		out[j].Median /= n
		out[j].Skewness /= n
		out[j].Kurtosis /= n
		out[j].NormalityP /= n
		out[j].PositiveRate /= n
	}
	return out
}

// shape returns the moment skewness g1 = m3/m2^1.5 and kurtosis b2 = m4/m2^2
// (3 for a normal distribution).
func shape(data []float64, mean float64) (skewness, kurtosis float64) {
	var m2, m3, m4 float64
	for _, x := range data {
		d := x - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	n := float64(len(data))
	m2 /= n
	m3 /= n
	m4 /= n
	if m2 == 0 {
		return 0, 0
	}
	return m3 / math.Pow(m2, 1.5), m4 / (m2 * m2)
}

// jarqueBera returns the asymptotic p-value of the Jarque-Bera statistic
// n/6 * (S^2 + (K-3)^2/4), chi-squared with two degrees of freedom.
func jarqueBera(n int, skewness, kurtosis float64) float64 {
	jb := float64(n) / 6 * (skewness*skewness + (kurtosis-3)*(kurtosis-3)/4)
	return distuv.ChiSquared{K: 2}.Survival(jb)
}
