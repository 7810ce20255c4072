package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketAutoClosed  EventType = "ticket_auto_closed"
	EventTicketNeedsReview EventType = "ticket_needs_review"
	EventTicketReviewed    EventType = "ticket_reviewed"
	EventTicketReconciled  EventType = "ticket_reconciled"
)

// AllTypes lists every event the lifecycle emits.
var AllTypes = []EventType{
	EventTicketCreated,
	EventTicketAutoClosed,
	EventTicketNeedsReview,
	EventTicketReviewed,
	EventTicketReconciled,
}

// Event represents a domain event emitted by the lifecycle.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketNo  string    `json:"ticket_no"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, ticketNo, actor string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketNo:  ticketNo,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// ClassificationPayload describes the outcome of slot extraction.
type ClassificationPayload struct {
	Status              domain.TicketStatus `json:"status"`
	AggregateConfidence float64             `json:"aggregate_confidence"`
	Threshold           float64             `json:"threshold"`
	Policy              string              `json:"policy"`
	Degraded            bool                `json:"degraded,omitempty"`
}

// TicketReviewedPayload describes a human review transition.
type TicketReviewedPayload struct {
	Action    string              `json:"action"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Summary   string              `json:"summary"`
}
