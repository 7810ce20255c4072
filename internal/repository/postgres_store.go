package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// PostgresStore persists each ticket and memory entry as a JSONB document,
// ordered by an explicit position column. Saves run in one transaction so a
// reader never observes a half-written collection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadTickets(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT doc FROM tickets ORDER BY position ASC`
	tickets := []domain.Ticket{}
	err := s.scanDocs(ctx, query, func(doc []byte) error {
		var t domain.Ticket
		if err := json.Unmarshal(doc, &t); err != nil {
			return err
		}
		tickets = append(tickets, t)
		return nil
	})
	if err != nil {
		return nil, unavailable("load tickets", err)
	}
	return tickets, nil
}

func (s *PostgresStore) SaveTickets(ctx context.Context, tickets []domain.Ticket) error {
	const upsert = `
        INSERT INTO tickets (ticket_no, position, doc, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (ticket_no) DO UPDATE
        SET position = EXCLUDED.position, doc = EXCLUDED.doc, updated_at = NOW()
        WHERE tickets.doc IS DISTINCT FROM EXCLUDED.doc OR tickets.position <> EXCLUDED.position`
	const prune = `DELETE FROM tickets WHERE NOT (ticket_no = ANY($1))`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		keys := make([]string, 0, len(tickets))
		for i := range tickets {
			doc, err := json.Marshal(tickets[i])
			if err != nil {
				return fmt.Errorf("encode %s: %w", tickets[i].TicketNo, err)
			}
			if _, err := tx.Exec(ctx, upsert, tickets[i].TicketNo, i, string(doc)); err != nil {
				return err
			}
			keys = append(keys, tickets[i].TicketNo)
		}
		_, err := tx.Exec(ctx, prune, keys)
		return err
	})
	return unavailable("save tickets", err)
}

func (s *PostgresStore) LoadMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	const query = `SELECT doc FROM memory_entries ORDER BY position ASC`
	entries := []domain.MemoryEntry{}
	err := s.scanDocs(ctx, query, func(doc []byte) error {
		var e domain.MemoryEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, unavailable("load memory", err)
	}
	return entries, nil
}

// SaveMemory only inserts entries that are not stored yet; entries are immutable.
func (s *PostgresStore) SaveMemory(ctx context.Context, entries []domain.MemoryEntry) error {
	const insert = `
        INSERT INTO memory_entries (id, position, doc)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range entries {
			id := entries[i].ID
			if id == "" {
				id = fmt.Sprintf("legacy-%06d", i)
			}
			doc, err := json.Marshal(entries[i])
			if err != nil {
				return fmt.Errorf("encode memory entry %s: %w", id, err)
			}
			if _, err := tx.Exec(ctx, insert, id, i, string(doc)); err != nil {
				return err
			}
		}
		return nil
	})
	return unavailable("save memory", err)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return unavailable("ping", errors.New("postgres pool not configured"))
	}
	return unavailable("ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) scanDocs(ctx context.Context, query string, fn func([]byte) error) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}
