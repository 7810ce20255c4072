package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "open"
	TicketStatusNeedsReview TicketStatus = "needs-review"
	TicketStatusClosed      TicketStatus = "closed"
	TicketStatusApproved    TicketStatus = "APPROVED"
	TicketStatusRejected    TicketStatus = "REJECTED"
	TicketStatusEdited      TicketStatus = "EDITED"
)

// IsReviewed reports whether the status was set by a human review.
func (s TicketStatus) IsReviewed() bool {
	switch s {
	case TicketStatusApproved, TicketStatusRejected, TicketStatusEdited:
		return true
	}
	return false
}

// Metadata keys written by the lifecycle.
const (
	MetaCreatedAt        = "createdAt"
	MetaUpdatedAt        = "updatedAt"
	MetaLastReviewAction = "lastReviewAction"
	MetaCreatedBy        = "createdBy"
)

// TicketNoPrefix prefixes every ticket number.
const TicketNoPrefix = "TICKET-"

// Metadata is the audit map stored on every ticket. Keys are overwritten, never deleted.
type Metadata map[string]any

// Get returns the string value stored under key.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Ticket is one reported issue, persisted with snake_case field names.
type Ticket struct {
	TicketNo            string       `json:"ticket_no"`
	Description         string       `json:"description"`
	Status              TicketStatus `json:"status"`
	Slots               *Slots       `json:"slots,omitempty"`
	AggregateConfidence *float64     `json:"aggregate_confidence,omitempty"`
	ProposedFix         string       `json:"proposed_fix,omitempty"`
	ReviewSummary       string       `json:"review_summary,omitempty"`
	ResolutionSteps     string       `json:"resolution_steps,omitempty"`
	Metadata            Metadata     `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts the legacy camelCase proposedFix key and the aggregate
// confidence that older records kept inside the slots object. An aggregate
// without slots is dropped so the ticket counts as unclassified again.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	type plain Ticket
	var raw struct {
		plain
		LegacyProposedFix string `json:"proposedFix"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Ticket(raw.plain)
	if t.ProposedFix == "" {
		t.ProposedFix = raw.LegacyProposedFix
	}
	if t.AggregateConfidence == nil && t.Slots != nil && t.Slots.legacyAggregate != nil {
		agg := *t.Slots.legacyAggregate
		t.AggregateConfidence = &agg
	}
	if t.Slots != nil {
		t.Slots.legacyAggregate = nil
	} else {
		t.AggregateConfidence = nil
	}
	return nil
}

// SetMeta overwrites one metadata key.
func (t *Ticket) SetMeta(key, value string) {
	if t.Metadata == nil {
		t.Metadata = Metadata{}
	}
	t.Metadata[key] = value
}

// IsClassified reports whether slot extraction has produced an aggregate score.
func (t *Ticket) IsClassified() bool {
	return t.AggregateConfidence != nil
}

// Severity returns the extracted severity value, if any.
func (t *Ticket) Severity() string {
	if t.Slots == nil {
		return ""
	}
	return t.Slots.Severity.Value
}

// Clone returns a deep copy so callers can mutate without aliasing ledger state.
func (t Ticket) Clone() Ticket {
	out := t
	if t.Slots != nil {
		slots := t.Slots.clone()
		out.Slots = &slots
	}
	if t.AggregateConfidence != nil {
		agg := *t.AggregateConfidence
		out.AggregateConfidence = &agg
	}
	if t.Metadata != nil {
		out.Metadata = make(Metadata, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// FormatTicketNo renders a ticket number from its numeric suffix.
func FormatTicketNo(n int) string {
	return fmt.Sprintf("%s%04d", TicketNoPrefix, n)
}

// ParseTicketNo returns the numeric suffix of a ticket number.
func ParseTicketNo(ticketNo string) (int, bool) {
	if !strings.HasPrefix(ticketNo, TicketNoPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ticketNo, TicketNoPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextTicketNo allocates the number after the highest existing suffix.
func NextTicketNo(tickets []Ticket) string {
	highest := 0
	for i := range tickets {
		if n, ok := ParseTicketNo(tickets[i].TicketNo); ok && n > highest {
			highest = n
		}
	}
	return FormatTicketNo(highest + 1)
}
