package domain

// MemoryKind distinguishes the two record shapes in the interaction log.
type MemoryKind string

const (
	MemoryKindChat   MemoryKind = "chat"
	MemoryKindReview MemoryKind = "review"
)

// MemoryEntry is an append-only interaction or review record. Entries are
// never mutated once appended; log order, not Timestamp, is authoritative.
type MemoryEntry struct {
	ID        string     `json:"id,omitempty"`
	Kind      MemoryKind `json:"kind,omitempty"`
	Timestamp string     `json:"timestamp"`

	UserMessage string `json:"user_message,omitempty"`
	BotResponse string `json:"bot_response,omitempty"`

	TicketID        string `json:"ticketId,omitempty"`
	Summary         string `json:"summary,omitempty"`
	ResolutionSteps string `json:"resolution_steps,omitempty"`
	User            string `json:"user,omitempty"`
	Action          string `json:"action,omitempty"`
}

// EntryKind infers the kind for records written before Kind existed.
func (e MemoryEntry) EntryKind() MemoryKind {
	if e.Kind != "" {
		return e.Kind
	}
	if e.TicketID != "" {
		return MemoryKindReview
	}
	return MemoryKindChat
}
