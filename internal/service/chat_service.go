package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/intent"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/oracle"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

const (
	msgMissingDescription = "Please provide a description for the ticket."
	msgCreateFormat       = "Please use the format: 'New ticket: description'"
	msgDeleteUnsupported  = "Tickets cannot be deleted. They are kept for audit; review a ticket with REJECT instead."
	msgHelp               = "I can help you create, view, or review tickets. Example:\n" +
		"• 'New ticket: login page error'\n" +
		"• 'Show open tickets'\n" +
		"• 'Approve ticket TICKET-0001 with comment ...'"
	msgReviewFormat = "Please use the format:\n" +
		"{\n" +
		"  \"ticketNo\": \"string\",\n" +
		"  \"action\": \"APPROVE | REJECT | EDIT\",\n" +
		"  \"comments\": \"string (min 15 words, should include what changed and at least one actionable step)\"\n" +
		"}"
)

// viewMemoryLimit caps how much of the memory log is sent to the oracle.
const viewMemoryLimit = 50

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	Message string         `json:"message"`
	Valid   bool           `json:"valid"`
	Intent  intent.Intent  `json:"intent"`
	Ticket  *domain.Ticket `json:"ticket,omitempty"`
}

// IntentClassifier maps a chat message onto the intent taxonomy.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) intent.Intent
}

// ChatService routes chat messages to lifecycle operations.
type ChatService struct {
	tickets    *TicketService
	classifier IntentClassifier
	completer  oracle.Completer
	metrics    *observability.Metrics
	logger     *zap.Logger
	actor      string
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	Tickets    *TicketService
	Classifier IntentClassifier
	Completer  oracle.Completer
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Actor      string
}

// NewChatService constructs the service. A nil Completer selects the
// deterministic view and review parsers.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = intent.NewClassifier(nil, logger)
	}
	actor := deps.Actor
	if actor == "" {
		actor = "chat-user"
	}
	return &ChatService{
		tickets:    deps.Tickets,
		classifier: classifier,
		completer:  deps.Completer,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("component", "chat")),
		actor:      actor,
	}
}

// Handle answers one chat message and records the turn in the memory log.
// Only store failures are returned as errors; everything else becomes a reply.
func (s *ChatService) Handle(ctx context.Context, message string) (ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResponse{}, apperrors.NewValidationError("message required", nil)
	}

	tickets, memory, err := s.tickets.Snapshot(ctx)
	if err != nil {
		return ChatResponse{}, err
	}

	kind := s.classifier.Classify(ctx, message)
	var resp ChatResponse
	switch kind {
	case intent.Create:
		resp, err = s.handleCreate(ctx, message)
	case intent.View:
		resp = s.handleView(ctx, message, tickets, memory)
	case intent.Review:
		resp, err = s.handleReview(ctx, message)
	case intent.Graph:
		resp, err = s.handleGraph(ctx)
	case intent.Delete:
		resp = ChatResponse{Message: msgDeleteUnsupported, Valid: false}
	default:
		resp = ChatResponse{Message: msgHelp, Valid: true}
	}
	if err != nil {
		return ChatResponse{}, err
	}
	resp.Intent = kind

	s.metrics.Inc(observability.CounterChatTurns)
	if err := s.tickets.RecordChat(ctx, message, resp.Message); err != nil {
		s.logger.Error("failed to record chat turn", zap.Error(err))
	}
	return resp, nil
}

func (s *ChatService) handleCreate(ctx context.Context, message string) (ChatResponse, error) {
	_, rest, found := strings.Cut(message, ":")
	if !found {
		return ChatResponse{Message: msgCreateFormat, Valid: true}, nil
	}
	description := strings.Trim(strings.TrimSpace(rest), `"'`)
	description = strings.TrimSpace(description)
	if description == "" {
		return ChatResponse{Message: msgMissingDescription, Valid: true}, nil
	}

	ticket, err := s.tickets.CreateTicket(ctx, description, s.actor)
	if err != nil {
		return ChatResponse{}, err
	}
	aggregate := 0.0
	if ticket.AggregateConfidence != nil {
		aggregate = *ticket.AggregateConfidence
	}
	reply := fmt.Sprintf("Ticket %s created!\nDescription: %s\nStatus: %s\n(slots extracted at creation, confidence=%.2f)",
		ticket.TicketNo, ticket.Description, ticket.Status, aggregate)
	return ChatResponse{Message: reply, Valid: true, Ticket: &ticket}, nil
}

func (s *ChatService) handleView(ctx context.Context, message string, tickets []domain.Ticket, memory []domain.MemoryEntry) ChatResponse {
	if s.completer != nil {
		if len(memory) > viewMemoryLimit {
			memory = memory[len(memory)-viewMemoryLimit:]
		}
		ticketsJSON, _ := json.Marshal(tickets)
		memoryJSON, _ := json.Marshal(memory)
		system := fmt.Sprintf(`You are a ticket assistant. Answer user questions strictly based on the ticket data and chat memory provided.
Do not invent or assume any ticket IDs, statuses, or details. Only use the information given.

Tickets data (JSON): %s
Chat memory (JSON): %s

Answer the following user question exactly and concisely.`, ticketsJSON, memoryJSON)
		answer, err := s.completer.Complete(ctx, system, message)
		if err == nil && strings.TrimSpace(answer) != "" {
			return ChatResponse{Message: strings.TrimSpace(answer), Valid: true}
		}
		s.logger.Warn("view oracle failed, listing tickets", zap.Error(err))
	}
	return ChatResponse{Message: describeTickets(message, tickets), Valid: true}
}

func (s *ChatService) handleReview(ctx context.Context, message string) (ChatResponse, error) {
	req, ok := s.parseReview(ctx, message)
	if !ok {
		return ChatResponse{Message: msgReviewFormat, Valid: false}, nil
	}

	ticket, err := s.tickets.ReviewTicket(ctx, ReviewInput{
		TicketNo: req.TicketNo,
		Action:   req.Action,
		Comment:  req.Comment,
		Reviewer: s.actor,
	})
	var gateErr *GateError
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return ChatResponse{Message: fmt.Sprintf("Ticket %s not found.", req.TicketNo), Valid: false}, nil
	case errors.Is(err, ErrInvalidAction):
		return ChatResponse{Message: fmt.Sprintf("Invalid action '%s'. Use APPROVE, REJECT, or EDIT.", strings.ToUpper(req.Action)), Valid: false}, nil
	case errors.As(err, &gateErr):
		reply := "Comments are invalid: " + gateErr.Result.Message
		if gateErr.Result.CorrectedComment != "" {
			reply += "\nSuggested comment: " + gateErr.Result.CorrectedComment
		}
		return ChatResponse{Message: reply, Valid: false}, nil
	default:
		return ChatResponse{}, err
	}

	reply := fmt.Sprintf("Ticket %s reviewed successfully.\nStatus: %s\nSummary: %s",
		ticket.TicketNo, ticket.Status, ticket.ReviewSummary)
	return ChatResponse{Message: reply, Valid: true, Ticket: &ticket}, nil
}

func (s *ChatService) handleGraph(ctx context.Context) (ChatResponse, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tickets: %d total", stats.Total)
	if stats.Unclassified > 0 {
		fmt.Fprintf(&b, " (%d awaiting classification)", stats.Unclassified)
	}
	b.WriteString("\nBy status: " + formatCounts(stats.ByStatus))
	b.WriteString("\nBy severity: " + formatCounts(stats.BySeverity))
	return ChatResponse{Message: b.String(), Valid: true}, nil
}

// ReviewRequest is the review extracted from a chat message.
type ReviewRequest struct {
	TicketNo string `json:"ticket_no"`
	Action   string `json:"action"`
	Comment  string `json:"comment"`
}

const reviewPromptTemplate = `Extract ticket number and review action (APPROVE, REJECT, EDIT) from the message.
Respond in JSON format:
{
"ticket_no": "TICKET-0001",
"action": "APPROVE",
"comment": "User comment for review"
}
Message: %q`

// parseReview asks the oracle for the review fields and falls back to
// pattern matching when it is unavailable or answers without a ticket.
func (s *ChatService) parseReview(ctx context.Context, message string) (ReviewRequest, bool) {
	if s.completer != nil {
		completion, err := s.completer.Complete(ctx, "", fmt.Sprintf(reviewPromptTemplate, message))
		if err == nil {
			var req ReviewRequest
			if err := oracle.DecodeJSON(completion, &req); err == nil && strings.TrimSpace(req.TicketNo) != "" {
				return req, true
			}
			s.logger.Warn("review extraction unparsable", zap.String("completion", oracle.Truncate(completion)))
		} else {
			s.logger.Warn("review extraction oracle failed", zap.Error(err))
		}
	}
	return ParseReviewMessage(message)
}

var (
	ticketRef     = regexp.MustCompile(`(?i)\bTICKET-\d+\b`)
	reviewAction  = regexp.MustCompile(`(?i)\b(approve|reject|edit)\b`)
	reviewComment = regexp.MustCompile(`(?is)\bcomments?\b\s*[:\-]?\s*(.+)$`)
)

// ParseReviewMessage extracts the ticket number, action, and comment from a
// message such as "Approve TICKET-0001 with comment: restarted the pool ...".
func ParseReviewMessage(message string) (ReviewRequest, bool) {
	ticketNo := ticketRef.FindString(message)
	if ticketNo == "" {
		return ReviewRequest{}, false
	}
	req := ReviewRequest{TicketNo: strings.ToUpper(ticketNo)}
	if m := reviewAction.FindStringSubmatch(message); m != nil {
		req.Action = strings.ToUpper(m[1])
	}
	if m := reviewComment.FindStringSubmatch(message); m != nil {
		req.Comment = strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}
	return req, true
}

var statusWords = []struct {
	word   string
	status domain.TicketStatus
}{
	{"needs-review", domain.TicketStatusNeedsReview},
	{"needs review", domain.TicketStatusNeedsReview},
	{"approved", domain.TicketStatusApproved},
	{"rejected", domain.TicketStatusRejected},
	{"edited", domain.TicketStatusEdited},
	{"closed", domain.TicketStatusClosed},
	{"open", domain.TicketStatusOpen},
}

// describeTickets is the deterministic answer for view requests.
func describeTickets(message string, tickets []domain.Ticket) string {
	if ref := ticketRef.FindString(message); ref != "" {
		ref = strings.ToUpper(ref)
		for _, t := range tickets {
			if t.TicketNo == ref {
				return describeTicket(t)
			}
		}
		return fmt.Sprintf("Ticket %s not found.", ref)
	}

	lower := strings.ToLower(message)
	var status domain.TicketStatus
	for _, sw := range statusWords {
		if strings.Contains(lower, sw.word) {
			status = sw.status
			break
		}
	}

	var lines []string
	for _, t := range tickets {
		if status != "" && t.Status != status {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s", t.TicketNo, t.Status, t.Description))
	}
	if len(lines) == 0 {
		if status != "" {
			return fmt.Sprintf("No %s tickets.", status)
		}
		return "No tickets yet."
	}
	return strings.Join(lines, "\n")
}

func describeTicket(t domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\nDescription: %s", t.TicketNo, t.Status, t.Description)
	if t.Slots != nil {
		fmt.Fprintf(&b, "\nType: %s, Severity: %s, System: %s", t.Slots.IssueType.Value, t.Slots.Severity.Value, t.Slots.AffectedSystem.Value)
	}
	if t.AggregateConfidence != nil {
		fmt.Fprintf(&b, "\nConfidence: %.2f", *t.AggregateConfidence)
	}
	if t.ProposedFix != "" {
		b.WriteString("\nProposed fix: " + t.ProposedFix)
	}
	if t.ReviewSummary != "" {
		b.WriteString("\nReview: " + t.ReviewSummary)
	}
	return b.String()
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
