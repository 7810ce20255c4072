package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "data", "tickets.json"), filepath.Join(dir, "data", "memory.json")), dir
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	agg := 0.91
	slots := domain.SlotResult{
		IssueType: "bug", Severity: "high", AffectedSystem: "database",
		ConfidenceScores: domain.SlotConfidence{IssueType: 0.9, Severity: 0.95, AffectedSystem: 0.9},
	}.Slots()
	tickets := []domain.Ticket{
		{
			TicketNo:            "TICKET-0001",
			Description:         "database <timeout> & error",
			Status:              domain.TicketStatusClosed,
			Slots:               &slots,
			AggregateConfidence: &agg,
			ProposedFix:         "restart",
			Metadata:            domain.Metadata{domain.MetaCreatedAt: "2024-01-01T00:00:00Z", domain.MetaCreatedBy: "chat-user"},
		},
		{TicketNo: "TICKET-0002", Description: "unclassified", Status: domain.TicketStatusOpen},
	}
	if err := store.SaveTickets(ctx, tickets); err != nil {
		t.Fatalf("SaveTickets: %v", err)
	}
	got, err := store.LoadTickets(ctx)
	if err != nil {
		t.Fatalf("LoadTickets: %v", err)
	}
	if !reflect.DeepEqual(got, tickets) {
		t.Fatalf("round trip mismatch:\nwant=%+v\ngot=%+v", tickets, got)
	}

	memory := []domain.MemoryEntry{
		{ID: "a", Kind: domain.MemoryKindChat, Timestamp: "t1", UserMessage: "hi", BotResponse: "hello"},
		{ID: "b", Kind: domain.MemoryKindReview, Timestamp: "t2", TicketID: "TICKET-0001", Summary: "s", ResolutionSteps: "s.", User: "u", Action: "APPROVE"},
	}
	if err := store.SaveMemory(ctx, memory); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	gotMemory, err := store.LoadMemory(ctx)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	if !reflect.DeepEqual(gotMemory, memory) {
		t.Fatalf("memory mismatch:\nwant=%+v\ngot=%+v", memory, gotMemory)
	}
}

func TestFileStoreWritesReadableJSON(t *testing.T) {
	store, _ := newFileStore(t)
	if err := store.SaveTickets(context.Background(), []domain.Ticket{{TicketNo: "TICKET-0001", Description: "a <b> & c", Status: domain.TicketStatusOpen}}); err != nil {
		t.Fatalf("SaveTickets: %v", err)
	}
	raw, err := os.ReadFile(store.ticketsPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "a <b> & c") {
		t.Fatalf("html escaped output: %s", raw)
	}
	if !strings.Contains(string(raw), "\n  {") {
		t.Fatalf("output not indented: %s", raw)
	}
}

func TestFileStoreMissingAndEmptyFiles(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	tickets, err := store.LoadTickets(ctx)
	if err != nil || len(tickets) != 0 {
		t.Fatalf("missing file: tickets=%v err=%v", tickets, err)
	}

	if err := os.MkdirAll(filepath.Dir(store.memoryPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.memoryPath, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	memory, err := store.LoadMemory(ctx)
	if err != nil || len(memory) != 0 {
		t.Fatalf("blank file: memory=%v err=%v", memory, err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	store, _ := newFileStore(t)
	if err := os.MkdirAll(filepath.Dir(store.ticketsPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.ticketsPath, []byte("[{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := store.LoadTickets(context.Background())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestFileStoreNormalizesLegacySlots(t *testing.T) {
	store, _ := newFileStore(t)
	legacy := `[{"ticket_no":"TICKET-0009","description":"crm down","status":"needs-review",` +
		`"slots":{"issue_type":"incident","severity":"high","affected_system":"crm"}}]`
	if err := os.MkdirAll(filepath.Dir(store.ticketsPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.ticketsPath, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	tickets, err := store.LoadTickets(context.Background())
	if err != nil {
		t.Fatalf("LoadTickets: %v", err)
	}
	slots := tickets[0].Slots
	if slots == nil || slots.AffectedSystem.Value != "crm" || slots.AffectedSystem.Confidence != nil {
		t.Fatalf("legacy slot not normalized: %+v", slots)
	}
	if tickets[0].IsClassified() {
		t.Fatalf("legacy ticket without aggregate reported as classified")
	}
}
