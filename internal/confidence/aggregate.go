// Package confidence combines per-slot extraction scores into the single
// aggregate that gates auto-closing a ticket.
package confidence

import (
	"fmt"
	"strconv"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Weights are the convex-combination coefficients for each slot.
type Weights struct {
	IssueType      float64
	Severity       float64
	AffectedSystem float64
}

// Policy is a weighting scheme plus the number of decimals the result is rounded to.
type Policy struct {
	Name      string
	Weights   Weights
	Precision int
}

// DefaultPolicy is used for both creation and reconciliation.
var DefaultPolicy = Policy{
	Name:      "default",
	Weights:   Weights{IssueType: 0.5, Severity: 0.25, AffectedSystem: 0.25},
	Precision: 2,
}

// ReconcileLegacyPolicy reproduces the divergent weighting once applied only
// by the background sweep. Selectable, never the default.
var ReconcileLegacyPolicy = Policy{
	Name:      "reconcile-legacy",
	Weights:   Weights{IssueType: 0.4, Severity: 0.3, AffectedSystem: 0.3},
	Precision: 4,
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", DefaultPolicy.Name:
		return DefaultPolicy, nil
	case ReconcileLegacyPolicy.Name:
		return ReconcileLegacyPolicy, nil
	default:
		return Policy{}, fmt.Errorf("unknown confidence policy %q", name)
	}
}

// Aggregate is pure arithmetic: inputs are neither validated nor clamped.
func (p Policy) Aggregate(issueType, severity, affectedSystem float64) float64 {
	sum := issueType*p.Weights.IssueType +
		severity*p.Weights.Severity +
		affectedSystem*p.Weights.AffectedSystem
	return round(sum, p.Precision)
}

// AggregateScores applies the policy to a slot confidence triple.
func (p Policy) AggregateScores(c domain.SlotConfidence) float64 {
	return p.Aggregate(c.IssueType, c.Severity, c.AffectedSystem)
}

// round rounds the exact binary value of v, ties to even. Scaling first
// would turn 0.8449999... into 84.5 and round it up across the threshold.
func round(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
