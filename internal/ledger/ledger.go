// Package ledger owns the ticket collection and memory log in memory and
// serializes every read and mutation through a single goroutine. Each
// successful mutation is written through to the backing store before the
// caller is released, so the store never lags the in-memory state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/repository"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("ledger closed")

type request struct {
	ctx      context.Context
	fn       func(*Tx) error
	readOnly bool
	reply    chan error
}

// Ledger is the single writer for one TicketStore.
type Ledger struct {
	store  repository.TicketStore
	logger *zap.Logger

	requests  chan request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by run
	loaded  bool
	tickets []domain.Ticket
	memory  []domain.MemoryEntry
}

// New starts the ledger goroutine. The collections are loaded lazily on the
// first request so a store outage at startup does not prevent the process
// from serving health checks.
func New(store repository.TicketStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:    store,
		logger:   logger.With(zap.String("component", "ledger")),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// View runs fn against a read-only snapshot. Mutations made through the Tx are discarded.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	return l.do(ctx, fn, true)
}

// Update runs fn and persists whatever it changed. If fn returns an error,
// nothing is written and the in-memory state is left untouched.
func (l *Ledger) Update(ctx context.Context, fn func(*Tx) error) error {
	return l.do(ctx, fn, false)
}

// Close stops the goroutine and waits for the in-flight request to finish.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
	<-l.done
}

func (l *Ledger) do(ctx context.Context, fn func(*Tx) error, readOnly bool) error {
	req := request{ctx: ctx, fn: fn, readOnly: readOnly, reply: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// The request has been accepted; run always replies.
	return <-req.reply
}

func (l *Ledger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case req := <-l.requests:
			req.reply <- l.apply(req)
		}
	}
}

func (l *Ledger) apply(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ledger transaction panicked", zap.Any("panic", r))
			err = fmt.Errorf("ledger transaction panicked: %v", r)
		}
	}()

	if err := req.ctx.Err(); err != nil {
		return err
	}
	if err := l.ensureLoaded(req.ctx); err != nil {
		return err
	}

	tx := newTx(l.tickets, l.memory)
	if err := req.fn(tx); err != nil {
		return err
	}
	if req.readOnly {
		return nil
	}
	return l.commit(req.ctx, tx)
}

func (l *Ledger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	tickets, err := l.store.LoadTickets(ctx)
	if err != nil {
		l.logger.Error("failed to load tickets", zap.Error(err))
		return err
	}
	memory, err := l.store.LoadMemory(ctx)
	if err != nil {
		l.logger.Error("failed to load memory log", zap.Error(err))
		return err
	}
	l.tickets, l.memory, l.loaded = tickets, memory, true
	l.logger.Info("ledger loaded", zap.Int("tickets", len(tickets)), zap.Int("memory_entries", len(memory)))
	return nil
}

// commit writes tickets then memory. If the memory write fails after the
// tickets were written, the previous tickets are written back so the two
// collections stay consistent.
func (l *Ledger) commit(ctx context.Context, tx *Tx) error {
	if tx.ticketsDirty {
		if err := l.store.SaveTickets(ctx, tx.tickets); err != nil {
			l.logger.Error("failed to save tickets", zap.Error(err))
			return err
		}
	}
	if tx.memoryDirty {
		if err := l.store.SaveMemory(ctx, tx.memory); err != nil {
			l.logger.Error("failed to save memory log", zap.Error(err))
			if tx.ticketsDirty {
				if rbErr := l.store.SaveTickets(ctx, l.tickets); rbErr != nil {
					l.logger.Error("failed to restore tickets after memory write failure", zap.Error(rbErr))
					// Disk state is unknown; reload on the next request.
					l.loaded = false
				}
			}
			return err
		}
	}
	if tx.ticketsDirty {
		l.tickets = tx.tickets
	}
	if tx.memoryDirty {
		l.memory = tx.memory
	}
	return nil
}
