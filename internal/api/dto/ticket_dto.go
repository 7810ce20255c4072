package dto

import (
	"strings"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/intent"
)

// ChatRequest payload.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	Message string         `json:"message"`
	Valid   bool           `json:"valid"`
	Intent  intent.Intent  `json:"intent"`
	Ticket  *domain.Ticket `json:"ticket,omitempty"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// ReviewRequest payload. TicketNoAlt accepts the camelCase key older clients send.
type ReviewRequest struct {
	TicketNo    string `json:"ticket_no"`
	TicketNoAlt string `json:"ticketNo"`
	Action      string `json:"action"`
	Comments    string `json:"comments"`
	Reviewer    string `json:"reviewer"`
}

// Ticket returns whichever ticket number key was supplied.
func (r ReviewRequest) Ticket() string {
	if no := strings.TrimSpace(r.TicketNo); no != "" {
		return no
	}
	return strings.TrimSpace(r.TicketNoAlt)
}

// TicketListResponse wraps a filtered ticket listing.
type TicketListResponse struct {
	Items []domain.Ticket `json:"items"`
	Count int             `json:"count"`
}
