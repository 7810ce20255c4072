package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/ticket-intake/internal/config"
	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/gate"
	"github.com/spec-kit/ticket-intake/internal/ledger"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/repository"
)

type stubExtractor struct {
	calls  int
	result domain.SlotResult
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, description string) (domain.SlotResult, error) {
	s.calls++
	return s.result, s.err
}

type stubGate struct {
	calls  int
	result gate.Result
}

func (g *stubGate) Validate(ctx context.Context, comment string) gate.Result {
	g.calls++
	return g.result
}

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func slotResult(issueType, severity, system string, it, sev, sys float64) domain.SlotResult {
	return domain.SlotResult{
		IssueType: issueType, Severity: severity, AffectedSystem: system,
		ConfidenceScores: domain.SlotConfidence{IssueType: it, Severity: sev, AffectedSystem: sys},
	}
}

type fixture struct {
	svc       *TicketService
	store     *repository.MemoryStore
	extractor *stubExtractor
	gate      *stubGate
	metrics   *observability.Metrics
}

func newFixture(t *testing.T, cfg config.LifecycleConfig, seed ...domain.Ticket) *fixture {
	t.Helper()
	if cfg.CloseThreshold == 0 {
		cfg.CloseThreshold = 0.85
	}
	f := &fixture{
		store:     repository.NewMemoryStore(seed...),
		extractor: &stubExtractor{},
		gate:      &stubGate{result: gate.Result{Valid: true, Message: "ok"}},
		metrics:   observability.NewMetrics(),
	}
	l := ledger.New(f.store, nil)
	t.Cleanup(l.Close)
	svc, err := NewTicketService(TicketDependencies{
		Ledger:    l,
		Extractor: f.extractor,
		Gate:      f.gate,
		Metrics:   f.metrics,
		Config:    cfg,
		Now:       fixedNow,
	})
	if err != nil {
		t.Fatalf("NewTicketService: %v", err)
	}
	f.svc = svc
	return f
}

func TestCreateHighConfidenceAutoCloses(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})
	f.extractor.result = slotResult("bug", "high", "database", 0.9, 0.95, 0.9)

	ticket, err := f.svc.CreateTicket(context.Background(), "database connection timeout error", "")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.TicketNo != "TICKET-0001" {
		t.Fatalf("TicketNo: want=%q got=%q", "TICKET-0001", ticket.TicketNo)
	}
	if ticket.AggregateConfidence == nil || *ticket.AggregateConfidence != 0.91 {
		t.Fatalf("AggregateConfidence: want=0.91 got=%v", ticket.AggregateConfidence)
	}
	if ticket.Status != domain.TicketStatusClosed {
		t.Fatalf("Status: want=%q got=%q", domain.TicketStatusClosed, ticket.Status)
	}
	wantFix := "For a high bug in database, clear caches/restart affected service, check recent changes and logs, and validate with a test case. If stable, roll to staging then production."
	if ticket.ProposedFix != wantFix {
		t.Fatalf("ProposedFix: want=%q got=%q", wantFix, ticket.ProposedFix)
	}
	if ticket.Metadata.Get(domain.MetaCreatedAt) != "2024-05-01T12:00:00.000000Z" {
		t.Fatalf("createdAt: got=%q", ticket.Metadata.Get(domain.MetaCreatedAt))
	}
	if ticket.Metadata.Get(domain.MetaCreatedBy) != "chat-user" {
		t.Fatalf("createdBy: got=%q", ticket.Metadata.Get(domain.MetaCreatedBy))
	}
	if _, ok := ticket.Metadata[domain.MetaUpdatedAt]; ok {
		t.Fatalf("updatedAt set on creation")
	}

	stored, _ := f.store.LoadTickets(context.Background())
	if len(stored) != 1 || stored[0].Status != domain.TicketStatusClosed {
		t.Fatalf("stored: %+v", stored)
	}
	if f.metrics.Count(observability.CounterTicketsAutoClosed) != 1 {
		t.Fatalf("auto-closed counter not bumped")
	}
}

func TestCreateLowConfidenceNeedsReview(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})
	f.extractor.result = slotResult("bug", "low", "unknown", 0.5, 0.5, 0.5)

	ticket, err := f.svc.CreateTicket(context.Background(), "something weird happens sometimes", "")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if *ticket.AggregateConfidence != 0.5 {
		t.Fatalf("AggregateConfidence: want=0.5 got=%v", *ticket.AggregateConfidence)
	}
	if ticket.Status != domain.TicketStatusNeedsReview {
		t.Fatalf("Status: want=%q got=%q", domain.TicketStatusNeedsReview, ticket.Status)
	}
	if ticket.ProposedFix != "" {
		t.Fatalf("ProposedFix set on needs-review ticket: %q", ticket.ProposedFix)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{CloseThreshold: 0.75})
	f.extractor.result = slotResult("bug", "low", "crm", 1, 0.5, 0.5)

	ticket, err := f.svc.CreateTicket(context.Background(), "crm bug", "")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if *ticket.AggregateConfidence != 0.75 || ticket.Status != domain.TicketStatusClosed {
		t.Fatalf("want closed at 0.75, got status=%q aggregate=%v", ticket.Status, *ticket.AggregateConfidence)
	}
}

func TestCreateIsNotIdempotent(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{}, domain.Ticket{TicketNo: "TICKET-0041", Status: domain.TicketStatusClosed})
	f.extractor.result = slotResult("bug", "low", "crm", 0.5, 0.5, 0.5)

	a, _ := f.svc.CreateTicket(context.Background(), "same text", "")
	b, _ := f.svc.CreateTicket(context.Background(), "same text", "")
	if a.TicketNo != "TICKET-0042" || b.TicketNo != "TICKET-0043" {
		t.Fatalf("ticket numbers: %q %q", a.TicketNo, b.TicketNo)
	}
}

func TestCreateFallsBackWhenExtractionFails(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})
	f.extractor.err = errors.New("oracle timeout")

	ticket, err := f.svc.CreateTicket(context.Background(), "database connection timeout error", "")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Slots == nil || ticket.Slots.AffectedSystem.Value != "database" {
		t.Fatalf("fallback slots not applied: %+v", ticket.Slots)
	}
	if ticket.Status != domain.TicketStatusNeedsReview {
		t.Fatalf("Status: want=%q got=%q", domain.TicketStatusNeedsReview, ticket.Status)
	}
	if f.metrics.Count(observability.CounterExtractionFallbacks) != 1 {
		t.Fatalf("fallback counter not bumped")
	}
}

func TestCreateStoreUnavailable(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})
	f.store.FailLoads(errors.New("no such device"))

	_, err := f.svc.CreateTicket(context.Background(), "vpn down", "")
	if !errors.Is(err, repository.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{},
		domain.Ticket{TicketNo: "TICKET-0001", Description: "database connection timeout error", Status: domain.TicketStatusOpen},
	)
	f.extractor.result = slotResult("bug", "high", "database", 0.9, 0.95, 0.9)

	report, err := f.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if report.Classified != 1 || report.AutoClosed != 1 {
		t.Fatalf("first report: %+v", report)
	}
	first, _ := f.svc.GetTicket(context.Background(), "TICKET-0001")
	if first.Status != domain.TicketStatusClosed || first.Metadata.Get(domain.MetaUpdatedAt) == "" {
		t.Fatalf("first pass: %+v", first)
	}

	report, err = f.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if report.Candidates != 0 {
		t.Fatalf("second report: %+v", report)
	}
	if f.extractor.calls != 1 {
		t.Fatalf("oracle calls: want=1 got=%d", f.extractor.calls)
	}
	second, _ := f.svc.GetTicket(context.Background(), "TICKET-0001")
	if second.Status != first.Status || *second.AggregateConfidence != *first.AggregateConfidence ||
		second.Slots.IssueType.Value != first.Slots.IssueType.Value {
		t.Fatalf("ticket changed on second pass: %+v", second)
	}
}

func TestReconcileSelectsOnlyUnclassified(t *testing.T) {
	agg := 0.5
	f := newFixture(t, config.LifecycleConfig{},
		domain.Ticket{TicketNo: "TICKET-0001", Status: domain.TicketStatusClosed},
		domain.Ticket{TicketNo: "TICKET-0002", Status: domain.TicketStatusNeedsReview},
		domain.Ticket{TicketNo: "TICKET-0003", Status: domain.TicketStatusApproved},
		domain.Ticket{TicketNo: "TICKET-0004", Status: domain.TicketStatusOpen, AggregateConfidence: &agg},
		domain.Ticket{TicketNo: "TICKET-0005", Status: domain.TicketStatusOpen, Description: "crm outage"},
	)
	f.extractor.result = slotResult("incident", "low", "crm", 0.5, 0.5, 0.5)

	report, err := f.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if report.Candidates != 1 || report.NeedsReview != 1 {
		t.Fatalf("report: %+v", report)
	}
	tk, _ := f.svc.GetTicket(context.Background(), "TICKET-0005")
	if tk.Status != domain.TicketStatusNeedsReview {
		t.Fatalf("Status: got=%q", tk.Status)
	}
}

// reviewingExtractor reviews the ticket while its extraction is in flight.
type reviewingExtractor struct {
	svc *TicketService
	err error
}

func (e *reviewingExtractor) Extract(ctx context.Context, description string) (domain.SlotResult, error) {
	_, e.err = e.svc.ReviewTicket(ctx, ReviewInput{TicketNo: "TICKET-0001", Action: "APPROVE", Comment: goodComment, Reviewer: "alice"})
	return slotResult("bug", "high", "database", 0.9, 0.95, 0.9), nil
}

func TestReconcileSkipsTicketReviewedMidSweep(t *testing.T) {
	store := repository.NewMemoryStore(domain.Ticket{TicketNo: "TICKET-0001", Description: "db slow", Status: domain.TicketStatusOpen})
	l := ledger.New(store, nil)
	t.Cleanup(l.Close)
	extractor := &reviewingExtractor{}
	svc, err := NewTicketService(TicketDependencies{
		Ledger:    l,
		Extractor: extractor,
		Gate:      &stubGate{result: gate.Result{Valid: true, Message: "ok"}},
		Config:    config.LifecycleConfig{CloseThreshold: 0.85},
		Now:       fixedNow,
	})
	if err != nil {
		t.Fatalf("NewTicketService: %v", err)
	}
	extractor.svc = svc

	report, err := svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if extractor.err != nil {
		t.Fatalf("ReviewTicket during extraction: %v", extractor.err)
	}
	if report.Candidates != 1 || report.Skipped != 1 || report.Classified != 0 {
		t.Fatalf("report: %+v", report)
	}
	tk, err := svc.GetTicket(context.Background(), "TICKET-0001")
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if tk.Status != domain.TicketStatusApproved {
		t.Fatalf("Status: want=%q got=%q", domain.TicketStatusApproved, tk.Status)
	}
	if tk.IsClassified() || tk.Slots != nil {
		t.Fatalf("reviewed ticket was classified by the sweep: %+v", tk)
	}
}

func TestReconcileLegacyPolicy(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{ConfidencePolicy: "reconcile-legacy"},
		domain.Ticket{TicketNo: "TICKET-0001", Description: "x", Status: domain.TicketStatusOpen},
	)
	f.extractor.result = slotResult("bug", "high", "database", 0.9, 0.95, 0.9)

	if _, err := f.svc.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	tk, _ := f.svc.GetTicket(context.Background(), "TICKET-0001")
	if *tk.AggregateConfidence != 0.915 {
		t.Fatalf("AggregateConfidence: want=0.915 got=%v", *tk.AggregateConfidence)
	}
}

func TestReconcileFallsBackWhenOracleFails(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{},
		domain.Ticket{TicketNo: "TICKET-0001", Description: "something weird", Status: domain.TicketStatusOpen},
	)
	f.extractor.err = errors.New("oracle exploded")

	report, err := f.svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if report.Degraded != 1 || report.Classified != 1 {
		t.Fatalf("report: %+v", report)
	}
	tk, _ := f.svc.GetTicket(context.Background(), "TICKET-0001")
	if !tk.IsClassified() || tk.Status != domain.TicketStatusNeedsReview {
		t.Fatalf("ticket: %+v", tk)
	}
}

const goodComment = "Restarted the database connection pool. We will monitor latency for the next two days and rollback the change if errors return."

func TestReviewApprovesTicket(t *testing.T) {
	agg := 0.5
	f := newFixture(t, config.LifecycleConfig{},
		domain.Ticket{TicketNo: "TICKET-0001", Description: "db slow", Status: domain.TicketStatusNeedsReview, AggregateConfidence: &agg},
	)

	ticket, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "TICKET-0001", Action: "approve", Comment: goodComment, Reviewer: "alice"})
	if err != nil {
		t.Fatalf("ReviewTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusApproved {
		t.Fatalf("Status: want=%q got=%q", domain.TicketStatusApproved, ticket.Status)
	}
	if ticket.ReviewSummary != "Restarted the database connection pool" {
		t.Fatalf("ReviewSummary: got=%q", ticket.ReviewSummary)
	}
	if ticket.ResolutionSteps != goodComment {
		t.Fatalf("ResolutionSteps: got=%q", ticket.ResolutionSteps)
	}
	if ticket.Metadata.Get(domain.MetaLastReviewAction) != "APPROVE" || ticket.Metadata.Get(domain.MetaUpdatedAt) == "" {
		t.Fatalf("metadata: %+v", ticket.Metadata)
	}

	memory, _ := f.store.LoadMemory(context.Background())
	if len(memory) != 1 {
		t.Fatalf("memory entries: want=1 got=%d", len(memory))
	}
	entry := memory[0]
	if entry.TicketID != "TICKET-0001" || entry.Action != "APPROVE" || entry.User != "alice" || entry.Summary != ticket.ReviewSummary {
		t.Fatalf("memory entry: %+v", entry)
	}
}

func TestReviewUnknownTicket(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})

	_, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "TICKET-9999", Action: "BOGUS", Comment: goodComment})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if f.gate.calls != 0 {
		t.Fatalf("gate consulted for unknown ticket")
	}
	if tw, mw := f.store.Writes(); tw != 0 || mw != 0 {
		t.Fatalf("writes: tickets=%d memory=%d", tw, mw)
	}
}

func TestReviewInvalidAction(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{}, domain.Ticket{TicketNo: "TICKET-0001", Status: domain.TicketStatusNeedsReview})

	_, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "TICKET-0001", Action: "CLOSE", Comment: goodComment})
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("want ErrInvalidAction, got %v", err)
	}
	if f.gate.calls != 0 {
		t.Fatalf("gate consulted for invalid action")
	}
	if tw, mw := f.store.Writes(); tw != 0 || mw != 0 {
		t.Fatalf("writes: tickets=%d memory=%d", tw, mw)
	}
}

func TestReviewGateRejection(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{}, domain.Ticket{TicketNo: "TICKET-0001", Status: domain.TicketStatusNeedsReview})
	f.gate.result = gate.Result{Message: "No actionable step.", CorrectedComment: "Restart and monitor."}

	_, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "TICKET-0001", Action: "REJECT", Comment: goodComment})
	if !errors.Is(err, ErrInvalidComment) {
		t.Fatalf("want ErrInvalidComment, got %v", err)
	}
	var gateErr *GateError
	if !errors.As(err, &gateErr) || gateErr.Result.CorrectedComment != "Restart and monitor." {
		t.Fatalf("gate verdict not carried: %v", err)
	}
	if tw, mw := f.store.Writes(); tw != 0 || mw != 0 {
		t.Fatalf("writes: tickets=%d memory=%d", tw, mw)
	}
	tk, _ := f.svc.GetTicket(context.Background(), "TICKET-0001")
	if tk.Status != domain.TicketStatusNeedsReview {
		t.Fatalf("status changed: %q", tk.Status)
	}
}

func TestReviewOverridesClosedTicket(t *testing.T) {
	agg := 0.95
	f := newFixture(t, config.LifecycleConfig{},
		domain.Ticket{TicketNo: "TICKET-0001", Status: domain.TicketStatusClosed, AggregateConfidence: &agg, ProposedFix: "restart"},
	)
	ticket, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "ticket-0001", Action: "EDIT", Comment: goodComment})
	if err != nil {
		t.Fatalf("ReviewTicket: %v", err)
	}
	if ticket.Status != domain.TicketStatusEdited || ticket.ProposedFix != "restart" {
		t.Fatalf("ticket: %+v", ticket)
	}

	// replaying appends a second audit entry
	if _, err := f.svc.ReviewTicket(context.Background(), ReviewInput{TicketNo: "TICKET-0001", Action: "EDIT", Comment: goodComment}); err != nil {
		t.Fatalf("ReviewTicket: %v", err)
	}
	memory, _ := f.store.LoadMemory(context.Background())
	if len(memory) != 2 {
		t.Fatalf("memory entries: want=2 got=%d", len(memory))
	}
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t, config.LifecycleConfig{})
	f.extractor.result = slotResult("bug", "High", "database", 0.9, 0.95, 0.9)
	if _, err := f.svc.CreateTicket(context.Background(), "db error", ""); err != nil {
		t.Fatal(err)
	}
	f.extractor.result = slotResult("bug", "low", "crm", 0.5, 0.5, 0.5)
	if _, err := f.svc.CreateTicket(context.Background(), "crm odd", ""); err != nil {
		t.Fatal(err)
	}

	high, err := f.svc.ListTickets(context.Background(), TicketFilter{Severity: "high"})
	if err != nil || len(high) != 1 || high[0].TicketNo != "TICKET-0001" {
		t.Fatalf("severity filter: %v %+v", err, high)
	}
	review, _ := f.svc.ListTickets(context.Background(), TicketFilter{Status: domain.TicketStatusNeedsReview})
	if len(review) != 1 || review[0].TicketNo != "TICKET-0002" {
		t.Fatalf("status filter: %+v", review)
	}

	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus["closed"] != 1 || stats.BySeverity["high"] != 1 || stats.BySeverity["low"] != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestReviewSummary(t *testing.T) {
	cases := map[string]string{
		"Fixed it. Then deployed.": "Fixed it",
		"  no period at all ":      "no period at all",
		".leading period":          "",
	}
	for in, want := range cases {
		if got := ReviewSummary(strings.TrimSpace(in)); got != want {
			t.Fatalf("ReviewSummary(%q): want=%q got=%q", in, want, got)
		}
	}
}
