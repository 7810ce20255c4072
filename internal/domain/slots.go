package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SlotValue pairs one extracted attribute with its confidence. A nil
// confidence marks a value carried over from a record that never had one.
type SlotValue struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// UnmarshalJSON normalizes a bare string into {value, confidence: null}.
func (v *SlotValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = SlotValue{Value: s}
		return nil
	}
	type plain SlotValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("slot value: %w", err)
	}
	*v = SlotValue(p)
	return nil
}

// Slots is the structured extraction attached to a ticket.
type Slots struct {
	IssueType      SlotValue `json:"issue_type"`
	Severity       SlotValue `json:"severity"`
	AffectedSystem SlotValue `json:"affected_system"`

	legacyAggregate *float64
}

// UnmarshalJSON also accepts the flat extractor output that older records
// stored verbatim: string slot values plus a confidence_scores object.
func (s *Slots) UnmarshalJSON(data []byte) error {
	var raw struct {
		IssueType           *SlotValue      `json:"issue_type"`
		Severity            *SlotValue      `json:"severity"`
		AffectedSystem      *SlotValue      `json:"affected_system"`
		ConfidenceScores    *SlotConfidence `json:"confidence_scores"`
		AggregateConfidence *float64        `json:"aggregate_confidence"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Slots{legacyAggregate: raw.AggregateConfidence}
	if raw.IssueType != nil {
		out.IssueType = *raw.IssueType
	}
	if raw.Severity != nil {
		out.Severity = *raw.Severity
	}
	if raw.AffectedSystem != nil {
		out.AffectedSystem = *raw.AffectedSystem
	}
	if c := raw.ConfidenceScores; c != nil {
		fill(&out.IssueType, c.IssueType)
		fill(&out.Severity, c.Severity)
		fill(&out.AffectedSystem, c.AffectedSystem)
	}
	*s = out
	return nil
}

func fill(v *SlotValue, conf float64) {
	if v.Confidence == nil {
		c := conf
		v.Confidence = &c
	}
}

// Confidences returns the per-slot scores, treating a missing score as zero.
func (s Slots) Confidences() SlotConfidence {
	return SlotConfidence{
		IssueType:      deref(s.IssueType.Confidence),
		Severity:       deref(s.Severity.Confidence),
		AffectedSystem: deref(s.AffectedSystem.Confidence),
	}
}

func (s Slots) clone() Slots {
	out := Slots{
		IssueType:      s.IssueType.clone(),
		Severity:       s.Severity.clone(),
		AffectedSystem: s.AffectedSystem.clone(),
	}
	return out
}

func (v SlotValue) clone() SlotValue {
	if v.Confidence == nil {
		return v
	}
	c := *v.Confidence
	return SlotValue{Value: v.Value, Confidence: &c}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// SlotConfidence holds the three per-slot scores, each expected in [0, 1].
type SlotConfidence struct {
	IssueType      float64 `json:"issue_type"`
	Severity       float64 `json:"severity"`
	AffectedSystem float64 `json:"affected_system"`
}

// SlotResult is what an extractor returns for one description.
type SlotResult struct {
	IssueType        string         `json:"issue_type"`
	Severity         string         `json:"severity"`
	AffectedSystem   string         `json:"affected_system"`
	ConfidenceScores SlotConfidence `json:"confidence_scores"`
}

// Slots converts the extractor output into the structured form stored on a ticket.
func (r SlotResult) Slots() Slots {
	it, sev, sys := r.ConfidenceScores.IssueType, r.ConfidenceScores.Severity, r.ConfidenceScores.AffectedSystem
	return Slots{
		IssueType:      SlotValue{Value: r.IssueType, Confidence: &it},
		Severity:       SlotValue{Value: r.Severity, Confidence: &sev},
		AffectedSystem: SlotValue{Value: r.AffectedSystem, Confidence: &sys},
	}
}
