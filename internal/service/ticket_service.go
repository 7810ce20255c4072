package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/confidence"
	"github.com/spec-kit/ticket-intake/internal/config"
	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/extraction"
	"github.com/spec-kit/ticket-intake/internal/gate"
	"github.com/spec-kit/ticket-intake/internal/ledger"
	"github.com/spec-kit/ticket-intake/internal/observability"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// CommentValidator is the comment gate consulted before a review transition.
type CommentValidator interface {
	Validate(ctx context.Context, comment string) gate.Result
}

// TicketService implements the ticket lifecycle: creation with synchronous
// classification, background reconciliation of unclassified tickets, and
// human review. All state changes go through the ledger; oracle calls are
// made before entering it.
type TicketService struct {
	ledger          *ledger.Ledger
	extractor       extraction.Extractor
	fallback        extraction.Extractor
	gate            CommentValidator
	dispatcher      events.Dispatcher
	metrics         *observability.Metrics
	logger          *zap.Logger
	threshold       float64
	createPolicy    confidence.Policy
	reconcilePolicy confidence.Policy
	createdBy       string
	now             func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Ledger     *ledger.Ledger
	Extractor  extraction.Extractor
	Gate       CommentValidator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.LifecycleConfig
	Now        func() time.Time
}

// TicketFilter narrows List results. Empty fields match everything.
type TicketFilter struct {
	Status   domain.TicketStatus
	Severity string
}

// ReviewInput describes one human review.
type ReviewInput struct {
	TicketNo string
	Action   string
	Comment  string
	Reviewer string
}

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Candidates  int      `json:"candidates"`
	Classified  int      `json:"classified"`
	AutoClosed  int      `json:"auto_closed"`
	NeedsReview int      `json:"needs_review"`
	Degraded    int      `json:"degraded"`
	Skipped     int      `json:"skipped"`
	Failed      []string `json:"failed,omitempty"`
}

// TicketStats counts tickets by status and severity.
type TicketStats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	BySeverity   map[string]int `json:"by_severity"`
	Unclassified int            `json:"unclassified"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) (*TicketService, error) {
	reconcilePolicy, err := confidence.PolicyByName(deps.Config.ConfidencePolicy)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ticket_lifecycle"))
	if reconcilePolicy.Name != confidence.DefaultPolicy.Name {
		logger.Warn("reconciliation uses a non-default confidence policy",
			zap.String("policy", reconcilePolicy.Name),
			zap.String("creation_policy", confidence.DefaultPolicy.Name))
	}

	fallback := extraction.NewKeywordExtractor()
	extractor := deps.Extractor
	if extractor == nil {
		extractor = fallback
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	createdBy := deps.Config.CreatedBy
	if createdBy == "" {
		createdBy = "chat-user"
	}

	return &TicketService{
		ledger:          deps.Ledger,
		extractor:       extractor,
		fallback:        fallback,
		gate:            deps.Gate,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		logger:          logger,
		threshold:       deps.Config.CloseThreshold,
		createPolicy:    confidence.DefaultPolicy,
		reconcilePolicy: reconcilePolicy,
		createdBy:       createdBy,
		now:             now,
	}, nil
}

// Threshold returns the inclusive auto-close cutoff.
func (s *TicketService) Threshold() float64 {
	return s.threshold
}

// CreateTicket allocates a ticket number, classifies the description, and
// either auto-closes the ticket or routes it to review. It is not idempotent.
func (s *TicketService) CreateTicket(ctx context.Context, description, createdBy string) (domain.Ticket, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Ticket{}, apperrors.NewValidationError("description required", nil)
	}
	if createdBy == "" {
		createdBy = s.createdBy
	}

	slots, degraded := s.extract(ctx, description)
	aggregate := s.createPolicy.AggregateScores(slots.ConfidenceScores)

	ticket := domain.Ticket{
		Description: description,
		Status:      domain.TicketStatusOpen,
	}
	ticket.SetMeta(domain.MetaCreatedAt, s.timestamp())
	ticket.SetMeta(domain.MetaCreatedBy, createdBy)
	s.applyClassification(&ticket, slots, aggregate)

	err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		ticket.TicketNo = tx.NextTicketNo()
		return tx.Insert(ticket)
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.metrics.Inc(observability.CounterTicketsCreated)
	s.logger.Info("ticket created",
		zap.String("ticket_no", ticket.TicketNo),
		zap.String("status", string(ticket.Status)),
		zap.Float64("aggregate_confidence", aggregate),
		zap.Bool("extraction_degraded", degraded))
	s.publishEvent(ctx, events.New(events.EventTicketCreated, ticket.TicketNo, createdBy, s.classificationPayload(ticket, s.createPolicy, degraded)))
	s.publishOutcome(ctx, ticket, createdBy, s.createPolicy, degraded)
	return ticket, nil
}

// ReconcileOnce classifies every ticket that has never been classified.
// A ticket is re-checked before the commit, so a ticket classified or
// reviewed while its extraction was in flight is left alone. Per-ticket
// failures are collected in the report; only a failure to read the
// candidate set is returned as an error.
func (s *TicketService) ReconcileOnce(ctx context.Context) (ReconcileReport, error) {
	type candidate struct {
		ticketNo    string
		description string
	}
	var candidates []candidate
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		for _, t := range tx.Tickets() {
			if needsClassification(t) {
				candidates = append(candidates, candidate{ticketNo: t.TicketNo, description: t.Description})
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{Candidates: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		slots, degraded := s.extract(ctx, c.description)
		aggregate := s.reconcilePolicy.AggregateScores(slots.ConfidenceScores)

		var (
			updated domain.Ticket
			skipped bool
		)
		err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
			t, ok := tx.Lookup(c.ticketNo)
			if !ok || !needsClassification(t) {
				skipped = true
				return nil
			}
			s.applyClassification(&t, slots, aggregate)
			t.SetMeta(domain.MetaUpdatedAt, s.timestamp())
			updated = t
			return tx.Put(t)
		})
		if err != nil {
			s.logger.Error("failed to reconcile ticket", zap.String("ticket_no", c.ticketNo), zap.Error(err))
			report.Failed = append(report.Failed, c.ticketNo)
			continue
		}
		if skipped {
			report.Skipped++
			continue
		}

		report.Classified++
		if degraded {
			report.Degraded++
		}
		if updated.Status == domain.TicketStatusClosed {
			report.AutoClosed++
		} else {
			report.NeedsReview++
		}
		s.metrics.Inc(observability.CounterTicketsReconciled)
		s.logger.Info("ticket reconciled",
			zap.String("ticket_no", updated.TicketNo),
			zap.String("status", string(updated.Status)),
			zap.Float64("aggregate_confidence", aggregate),
			zap.String("policy", s.reconcilePolicy.Name))
		s.publishEvent(ctx, events.New(events.EventTicketReconciled, updated.TicketNo, "reconciler", s.classificationPayload(updated, s.reconcilePolicy, degraded)))
		s.publishOutcome(ctx, updated, "reconciler", s.reconcilePolicy, degraded)
	}
	return report, nil
}

// ReviewTicket applies a human review. Checks run in order: the ticket
// must exist, the action must be valid, and the comment must pass the
// gate. Nothing is written unless all three pass. Review is allowed from
// any status so a human can override an auto-closed ticket.
func (s *TicketService) ReviewTicket(ctx context.Context, input ReviewInput) (domain.Ticket, error) {
	ticketNo := strings.ToUpper(strings.TrimSpace(input.TicketNo))
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		if _, ok := tx.Lookup(ticketNo); !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, ticketNo)
		}
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	action := strings.ToUpper(strings.TrimSpace(input.Action))
	newStatus, ok := reviewOutcomes[action]
	if !ok {
		return domain.Ticket{}, fmt.Errorf("%w: %q", ErrInvalidAction, input.Action)
	}

	verdict := s.gate.Validate(ctx, input.Comment)
	if !verdict.Valid {
		s.metrics.Inc(observability.CounterGateRejections)
		s.logger.Info("review comment rejected", zap.String("ticket_no", ticketNo), zap.String("reason", verdict.Message))
		return domain.Ticket{}, &GateError{Result: verdict}
	}

	reviewer := input.Reviewer
	if reviewer == "" {
		reviewer = s.createdBy
	}
	resolution := strings.TrimSpace(input.Comment)
	summary := ReviewSummary(resolution)
	stamp := s.timestamp()

	var (
		reviewed  domain.Ticket
		oldStatus domain.TicketStatus
	)
	err = s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		t, ok := tx.Lookup(ticketNo)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, ticketNo)
		}
		oldStatus = t.Status
		t.Status = newStatus
		t.ReviewSummary = summary
		t.ResolutionSteps = resolution
		t.SetMeta(domain.MetaLastReviewAction, action)
		t.SetMeta(domain.MetaUpdatedAt, stamp)
		if err := tx.Put(t); err != nil {
			return err
		}
		tx.AppendMemory(domain.MemoryEntry{
			ID:              uuid.NewString(),
			Kind:            domain.MemoryKindReview,
			Timestamp:       stamp,
			TicketID:        ticketNo,
			Summary:         summary,
			ResolutionSteps: resolution,
			User:            reviewer,
			Action:          action,
		})
		reviewed = t
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	s.metrics.Inc(observability.CounterTicketsReviewed)
	s.logger.Info("ticket reviewed",
		zap.String("ticket_no", ticketNo),
		zap.String("action", action),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)))
	s.publishEvent(ctx, events.New(events.EventTicketReviewed, ticketNo, reviewer, events.TicketReviewedPayload{
		Action:    action,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Summary:   summary,
	}))
	return reviewed, nil
}

// GetTicket returns one ticket by number.
func (s *TicketService) GetTicket(ctx context.Context, ticketNo string) (domain.Ticket, error) {
	ticketNo = strings.ToUpper(strings.TrimSpace(ticketNo))
	var out domain.Ticket
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		t, ok := tx.Lookup(ticketNo)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, ticketNo)
		}
		out = t
		return nil
	})
	return out, err
}

// ListTickets returns tickets in collection order.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		for _, t := range tx.Tickets() {
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Severity != "" && !strings.EqualFold(t.Severity(), filter.Severity) {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if out == nil {
		out = []domain.Ticket{}
	}
	return out, err
}

// Stats counts tickets by status and severity.
func (s *TicketService) Stats(ctx context.Context) (TicketStats, error) {
	stats := TicketStats{ByStatus: map[string]int{}, BySeverity: map[string]int{}}
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		for _, t := range tx.Tickets() {
			stats.Total++
			stats.ByStatus[string(t.Status)]++
			if !t.IsClassified() {
				stats.Unclassified++
				continue
			}
			severity := strings.ToLower(t.Severity())
			if severity == "" {
				severity = "unknown"
			}
			stats.BySeverity[severity]++
		}
		return nil
	})
	return stats, err
}

// Snapshot returns copies of both collections for read-only consumers.
func (s *TicketService) Snapshot(ctx context.Context) ([]domain.Ticket, []domain.MemoryEntry, error) {
	var (
		tickets []domain.Ticket
		memory  []domain.MemoryEntry
	)
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		tickets = tx.Tickets()
		memory = tx.Memory()
		return nil
	})
	return tickets, memory, err
}

// RecordChat appends one chat turn to the memory log.
func (s *TicketService) RecordChat(ctx context.Context, userMessage, botResponse string) error {
	entry := domain.MemoryEntry{
		ID:          uuid.NewString(),
		Kind:        domain.MemoryKindChat,
		Timestamp:   s.timestamp(),
		UserMessage: userMessage,
		BotResponse: botResponse,
	}
	return s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		tx.AppendMemory(entry)
		return nil
	})
}

// ReviewSummary is the text before the first period, trimmed.
func ReviewSummary(comment string) string {
	summary, _, _ := strings.Cut(comment, ".")
	return strings.TrimSpace(summary)
}

// ProposedFix renders the deterministic fix suggestion for an auto-closed ticket.
func ProposedFix(slots domain.SlotResult) string {
	return fmt.Sprintf("For a %s %s in %s, clear caches/restart affected service, check recent changes and logs, and validate with a test case. If stable, roll to staging then production.",
		slots.Severity, slots.IssueType, slots.AffectedSystem)
}

// extract runs the configured extractor and substitutes the keyword
// extractor on any failure. The second result reports the substitution.
func (s *TicketService) extract(ctx context.Context, description string) (domain.SlotResult, bool) {
	slots, err := s.extractor.Extract(ctx, description)
	if err == nil {
		return slots, false
	}
	s.metrics.Inc(observability.CounterExtractionFallbacks)
	s.logger.Warn("extraction degraded, using keyword fallback", zap.Error(err))
	slots, _ = s.fallback.Extract(ctx, description)
	return slots, true
}

// applyClassification attaches slots and the aggregate, then applies the
// confidence gate. The threshold is inclusive.
func (s *TicketService) applyClassification(t *domain.Ticket, slots domain.SlotResult, aggregate float64) {
	structured := slots.Slots()
	t.Slots = &structured
	t.AggregateConfidence = &aggregate

	next := domain.TicketStatusNeedsReview
	if aggregate >= s.threshold {
		next = domain.TicketStatusClosed
	}
	t.Status = next
	if next == domain.TicketStatusClosed {
		t.ProposedFix = ProposedFix(slots)
	} else {
		t.ProposedFix = ""
	}
}

func (s *TicketService) timestamp() string {
	return s.now().UTC().Format(timestampLayout)
}

func (s *TicketService) classificationPayload(t domain.Ticket, policy confidence.Policy, degraded bool) events.ClassificationPayload {
	var aggregate float64
	if t.AggregateConfidence != nil {
		aggregate = *t.AggregateConfidence
	}
	return events.ClassificationPayload{
		Status:              t.Status,
		AggregateConfidence: aggregate,
		Threshold:           s.threshold,
		Policy:              policy.Name,
		Degraded:            degraded,
	}
}

func (s *TicketService) publishOutcome(ctx context.Context, t domain.Ticket, actor string, policy confidence.Policy, degraded bool) {
	eventType := events.EventTicketNeedsReview
	counter := observability.CounterTicketsNeedsReview
	if t.Status == domain.TicketStatusClosed {
		eventType = events.EventTicketAutoClosed
		counter = observability.CounterTicketsAutoClosed
	}
	s.metrics.Inc(counter)
	s.publishEvent(ctx, events.New(eventType, t.TicketNo, actor, s.classificationPayload(t, policy, degraded)))
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// reviewOutcomes maps review actions to terminal states. They apply from any status.
var reviewOutcomes = map[string]domain.TicketStatus{
	"APPROVE": domain.TicketStatusApproved,
	"REJECT":  domain.TicketStatusRejected,
	"EDIT":    domain.TicketStatusEdited,
}

// needsClassification selects tickets that have never been classified and
// are not in a state a human or an earlier pass has already settled.
func needsClassification(t domain.Ticket) bool {
	if t.IsClassified() {
		return false
	}
	switch t.Status {
	case domain.TicketStatusClosed, domain.TicketStatusNeedsReview:
		return false
	}
	return !t.Status.IsReviewed()
}
