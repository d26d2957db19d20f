package symptom

import (
	"fmt"
	"math"
	"strings"
)

// Indicator is one simulated symptom measurement and its generating parameters.
// Loading is the shift applied when the latent disorder is present; NoiseSD
// is the standard deviation of the Gaussian noise around the base mean.
type Indicator struct {
	Name    string  `json:"name" yaml:"name"`
	Loading float64 `json:"loading" yaml:"loading"`
	NoiseSD float64 `json:"noise_sd" yaml:"noise_sd"`
}

// Canonical indicator names. The order of DefaultIndicators is the column
// order of every matrix and the digit order of every combination label.
const (
	Strong1 = "S1"
	Strong2 = "S2"
	Weak1   = "W1"
	Weak2   = "W2"
	Medium  = "M"
)

// DefaultIndicators returns two strong, two weak and one medium indicator.
func DefaultIndicators() []Indicator {
	return []Indicator{
		{Name: Strong1, Loading: 2.0, NoiseSD: 0.5},
		{Name: Strong2, Loading: 1.8, NoiseSD: 0.5},
		{Name: Weak1, Loading: 0.6, NoiseSD: 1.0},
		{Name: Weak2, Loading: 0.4, NoiseSD: 1.0},
		{Name: Medium, Loading: 1.2, NoiseSD: 0.8},
	}
}

// Names returns the indicator names in order
func Names(indicators []Indicator) []string {
	names := make([]string, len(indicators))
	for i, ind := range indicators {
		names[i] = ind.Name
	}
	return names
}

// Pattern is one binary symptom combination. Bits[j] reports whether
// indicator j is positive. Index is the position in the fixed enumeration.
type Pattern struct {
	Index int
	Bits  []bool
}

// MaxDimension bounds the number of indicators a pattern can describe.
const MaxDimension = 16

// Enumerate returns all 2^dim patterns in the fixed order: pattern i has bit
// j set iff (i>>j)&1 == 1, so the first indicator varies fastest.
func Enumerate(dim int) []Pattern {
	if dim < 1 || dim > MaxDimension {
		return nil
	}
	n := 1 << dim
	patterns := make([]Pattern, n)
	for i := 0; i < n; i++ {
		patterns[i] = fromIndex(i, dim)
	}
	return patterns
}

func fromIndex(index, dim int) Pattern {
	bits := make([]bool, dim)
	for j := 0; j < dim; j++ {
		bits[j] = (index>>j)&1 == 1
	}
	return Pattern{Index: index, Bits: bits}
}

// PatternOf builds the pattern matching a row of positivity flags.
func PatternOf(positive []bool) Pattern {
	index := 0
	bits := make([]bool, len(positive))
	for j, p := range positive {
		if p {
			index |= 1 << j
		}
		bits[j] = p
	}
	return Pattern{Index: index, Bits: bits}
}

// ParsePattern parses a label such as "11001".
func ParsePattern(label string) (Pattern, error) {
	if len(label) < 1 || len(label) > MaxDimension {
		return Pattern{}, fmt.Errorf("invalid pattern length %d", len(label))
	}
	positive := make([]bool, len(label))
	for j, c := range label {
		switch c {
		case '1':
			positive[j] = true
		case '0':
		default:
			return Pattern{}, fmt.Errorf("invalid pattern digit %q in %q", c, label)
		}
	}
	return PatternOf(positive), nil
}

// Dim returns the number of indicators covered by the pattern
func (p Pattern) Dim() int {
	return len(p.Bits)
}

// Label renders the pattern as a binary string, digit j for indicator j.
func (p Pattern) Label() string {
	var b strings.Builder
	b.Grow(len(p.Bits))
	for _, bit := range p.Bits {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (p Pattern) String() string {
	return p.Label()
}

// Count returns the number of positive indicators in the pattern
func (p Pattern) Count() int {
	n := 0
	for _, bit := range p.Bits {
		if bit {
			n++
		}
	}
	return n
}

// Bounds returns the orthant of the pattern: [threshold, +Inf) for a positive
// bit and (-Inf, threshold) for a negative one.
func (p Pattern) Bounds(threshold float64) (lower, upper []float64) {
	lower = make([]float64, len(p.Bits))
	upper = make([]float64, len(p.Bits))
	for j, bit := range p.Bits {
		if bit {
			lower[j] = threshold
			upper[j] = math.Inf(1)
		} else {
			lower[j] = math.Inf(-1)
			upper[j] = threshold
		}
	}
	return lower, upper
}

// Describe lists the positive indicator names, e.g. "S1+S2+M".
func (p Pattern) Describe(names []string) string {
	var parts []string
	for j, bit := range p.Bits {
		if bit && j < len(names) {
			parts = append(parts, names[j])
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}
