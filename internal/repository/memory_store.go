package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// MemoryStore keeps the collections in process memory. Used for local runs
// (STORE_BACKEND=memory) and as the backing store in tests.
type MemoryStore struct {
	mu           sync.Mutex
	tickets      []domain.Ticket
	memory       []domain.MemoryEntry
	ticketWrites int
	memoryWrites int
	failLoad     error
	failSave     error
}

// NewMemoryStore seeds the store with an initial ticket collection.
func NewMemoryStore(tickets ...domain.Ticket) *MemoryStore {
	return &MemoryStore{tickets: cloneTickets(tickets)}
}

func (s *MemoryStore) LoadTickets(ctx context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, unavailable("load tickets", s.failLoad)
	}
	return cloneTickets(s.tickets), nil
}

func (s *MemoryStore) SaveTickets(ctx context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return unavailable("save tickets", s.failSave)
	}
	s.tickets = cloneTickets(tickets)
	s.ticketWrites++
	return nil
}

func (s *MemoryStore) LoadMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return nil, unavailable("load memory", s.failLoad)
	}
	return append([]domain.MemoryEntry{}, s.memory...), nil
}

func (s *MemoryStore) SaveMemory(ctx context.Context, entries []domain.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return unavailable("save memory", s.failSave)
	}
	s.memory = append([]domain.MemoryEntry{}, entries...)
	s.memoryWrites++
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unavailable("ping", s.failLoad)
}

// Writes reports how many times each collection has been saved.
func (s *MemoryStore) Writes() (tickets, memory int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketWrites, s.memoryWrites
}

// FailLoads makes subsequent loads return err; nil clears it.
func (s *MemoryStore) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLoad = err
}

// FailSaves makes subsequent saves return err; nil clears it.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = err
}

func cloneTickets(tickets []domain.Ticket) []domain.Ticket {
	out := make([]domain.Ticket, len(tickets))
	for i := range tickets {
		out[i] = tickets[i].Clone()
	}
	return out
}
