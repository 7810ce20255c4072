package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// ErrStoreUnavailable wraps every failure to read or write the collections.
var ErrStoreUnavailable = errors.New("ticket store unavailable")

// TicketStore is whole-collection persistence for tickets and the memory log.
// Load returns the full ordered collection; Save replaces it. Implementations
// are not safe against concurrent writers; the ledger is the only caller that
// writes.
type TicketStore interface {
	LoadTickets(ctx context.Context) ([]domain.Ticket, error)
	SaveTickets(ctx context.Context, tickets []domain.Ticket) error
	LoadMemory(ctx context.Context) ([]domain.MemoryEntry, error)
	SaveMemory(ctx context.Context, entries []domain.MemoryEntry) error
	Ping(ctx context.Context) error
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}
