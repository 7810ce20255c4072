package domain

import (
	"encoding/json"
	"testing"
)

func TestNextTicketNo(t *testing.T) {
	cases := []struct {
		name    string
		tickets []Ticket
		want    string
	}{
		{name: "empty", want: "TICKET-0001"},
		{name: "gap", tickets: []Ticket{{TicketNo: "TICKET-0001"}, {TicketNo: "TICKET-0007"}}, want: "TICKET-0008"},
		{name: "foreign ids ignored", tickets: []Ticket{{TicketNo: "INC-99"}, {TicketNo: "TICKET-0002"}}, want: "TICKET-0003"},
		{name: "wide suffix", tickets: []Ticket{{TicketNo: "TICKET-10000"}}, want: "TICKET-10001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextTicketNo(tc.tickets); got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestTicketDecodesLegacySlots(t *testing.T) {
	raw := `{
		"ticket_no": "TICKET-0003",
		"description": "crm is down",
		"status": "closed",
		"proposedFix": "restart crm",
		"slots": {
			"issue_type": "incident",
			"severity": "high",
			"affected_system": "crm",
			"confidence_scores": {"issue_type": 0.9, "severity": 0.95, "affected_system": 0.9},
			"aggregate_confidence": 0.91
		}
	}`
	var ticket Ticket
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ticket.ProposedFix != "restart crm" {
		t.Fatalf("ProposedFix: want=%q got=%q", "restart crm", ticket.ProposedFix)
	}
	if ticket.AggregateConfidence == nil || *ticket.AggregateConfidence != 0.91 {
		t.Fatalf("AggregateConfidence: want=0.91 got=%v", ticket.AggregateConfidence)
	}
	if ticket.Slots.Severity.Value != "high" {
		t.Fatalf("Severity: want=%q got=%q", "high", ticket.Slots.Severity.Value)
	}
	if c := ticket.Slots.Severity.Confidence; c == nil || *c != 0.95 {
		t.Fatalf("Severity confidence: want=0.95 got=%v", c)
	}
}

func TestSlotValueBareStringHasNoConfidence(t *testing.T) {
	var slots Slots
	if err := json.Unmarshal([]byte(`{"issue_type":"bug","severity":{"value":"low","confidence":0.6}}`), &slots); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if slots.IssueType.Value != "bug" || slots.IssueType.Confidence != nil {
		t.Fatalf("IssueType: got=%+v", slots.IssueType)
	}
	if slots.Severity.Confidence == nil || *slots.Severity.Confidence != 0.6 {
		t.Fatalf("Severity: got=%+v", slots.Severity)
	}
	if slots.AffectedSystem.Value != "" {
		t.Fatalf("AffectedSystem: want empty got=%q", slots.AffectedSystem.Value)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	agg := 0.5
	slots := SlotResult{IssueType: "bug", ConfidenceScores: SlotConfidence{IssueType: 0.5}}.Slots()
	orig := Ticket{TicketNo: "TICKET-0001", Slots: &slots, AggregateConfidence: &agg, Metadata: Metadata{MetaCreatedBy: "a"}}

	cp := orig.Clone()
	*cp.AggregateConfidence = 0.9
	*cp.Slots.IssueType.Confidence = 0.9
	cp.SetMeta(MetaCreatedBy, "b")

	if *orig.AggregateConfidence != 0.5 || *orig.Slots.IssueType.Confidence != 0.5 || orig.Metadata.Get(MetaCreatedBy) != "a" {
		t.Fatalf("clone aliased original: %+v", orig)
	}
}

func TestTicketDropsAggregateWithoutSlots(t *testing.T) {
	var ticket Ticket
	raw := `{"ticket_no":"TICKET-0004","description":"vpn flaps","status":"open","aggregate_confidence":0.9}`
	if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ticket.AggregateConfidence != nil || ticket.IsClassified() {
		t.Fatalf("AggregateConfidence: want nil got=%v", ticket.AggregateConfidence)
	}
}
