package symptom

import "fmt"

// DiagnosticRule is a k-of-n rule: a diagnosis requires at least MinCriteria
// positive indicators out of Total.
type DiagnosticRule struct {
	MinCriteria int `json:"min_criteria" yaml:"min_criteria"`
	Total       int `json:"total" yaml:"total"`
}

// DefaultRule is the 2-of-5 rule.
func DefaultRule() DiagnosticRule {
	return DiagnosticRule{MinCriteria: 2, Total: 5}
}

// Validate checks 1 <= k <= n
func (r DiagnosticRule) Validate() error {
	if r.Total < 1 {
		return fmt.Errorf("diagnostic rule needs at least one criterion, got n=%d", r.Total)
	}
	if r.MinCriteria < 1 || r.MinCriteria > r.Total {
		return fmt.Errorf("diagnostic rule k=%d must be within [1, %d]", r.MinCriteria, r.Total)
	}
	return nil
}

// Diagnosed applies the rule to a count of positive criteria.
func (r DiagnosticRule) Diagnosed(criteriaMet int) bool {
	return criteriaMet >= r.MinCriteria
}

// MeetsCriteria applies the rule to a combination. It is the same predicate
// the classifier applies to individuals.
func (r DiagnosticRule) MeetsCriteria(p Pattern) bool {
	return r.Diagnosed(p.Count())
}

func (r DiagnosticRule) String() string {
	return fmt.Sprintf("%d-of-%d", r.MinCriteria, r.Total)
}
