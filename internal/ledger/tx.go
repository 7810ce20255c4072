package ledger

import (
	"fmt"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Tx is the view of the collections handed to a View or Update callback.
// It is only valid for the duration of the callback.
type Tx struct {
	tickets      []domain.Ticket
	memory       []domain.MemoryEntry
	ticketsDirty bool
	memoryDirty  bool
}

func newTx(tickets []domain.Ticket, memory []domain.MemoryEntry) *Tx {
	return &Tx{tickets: tickets, memory: memory}
}

// Tickets returns deep copies of every ticket in collection order.
func (tx *Tx) Tickets() []domain.Ticket {
	out := make([]domain.Ticket, len(tx.tickets))
	for i := range tx.tickets {
		out[i] = tx.tickets[i].Clone()
	}
	return out
}

// Lookup returns a copy of the ticket with the given number.
func (tx *Tx) Lookup(ticketNo string) (domain.Ticket, bool) {
	if i := tx.index(ticketNo); i >= 0 {
		return tx.tickets[i].Clone(), true
	}
	return domain.Ticket{}, false
}

// NextTicketNo allocates the number after the highest one in the collection.
func (tx *Tx) NextTicketNo() string {
	return domain.NextTicketNo(tx.tickets)
}

// Insert appends a new ticket. The ticket number must not exist yet.
func (tx *Tx) Insert(t domain.Ticket) error {
	if tx.index(t.TicketNo) >= 0 {
		return fmt.Errorf("ticket %s already exists", t.TicketNo)
	}
	tx.cowTickets()
	tx.tickets = append(tx.tickets, t.Clone())
	return nil
}

// Put replaces the stored ticket with the same number.
func (tx *Tx) Put(t domain.Ticket) error {
	i := tx.index(t.TicketNo)
	if i < 0 {
		return fmt.Errorf("ticket %s does not exist", t.TicketNo)
	}
	tx.cowTickets()
	tx.tickets[i] = t.Clone()
	return nil
}

// Memory returns the memory log in append order.
func (tx *Tx) Memory() []domain.MemoryEntry {
	return append([]domain.MemoryEntry(nil), tx.memory...)
}

// AppendMemory appends entries to the memory log.
func (tx *Tx) AppendMemory(entries ...domain.MemoryEntry) {
	if len(entries) == 0 {
		return
	}
	if !tx.memoryDirty {
		tx.memory = append(make([]domain.MemoryEntry, 0, len(tx.memory)+len(entries)), tx.memory...)
		tx.memoryDirty = true
	}
	tx.memory = append(tx.memory, entries...)
}

func (tx *Tx) index(ticketNo string) int {
	for i := range tx.tickets {
		if tx.tickets[i].TicketNo == ticketNo {
			return i
		}
	}
	return -1
}

// cowTickets copies the slice header on first write so the committed
// collection is never modified before the store write succeeds.
func (tx *Tx) cowTickets() {
	if tx.ticketsDirty {
		return
	}
	tx.tickets = append(make([]domain.Ticket, 0, len(tx.tickets)+1), tx.tickets...)
	tx.ticketsDirty = true
}
