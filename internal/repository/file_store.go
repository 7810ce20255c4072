package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// FileStore keeps each collection as one indented JSON array on disk.
// Writes go through a temp file and rename so a crash never leaves a
// truncated collection behind.
type FileStore struct {
	ticketsPath string
	memoryPath  string
	mu          sync.Mutex
}

// NewFileStore builds a store over the two JSON files.
func NewFileStore(ticketsPath, memoryPath string) *FileStore {
	return &FileStore{ticketsPath: ticketsPath, memoryPath: memoryPath}
}

func (s *FileStore) LoadTickets(ctx context.Context) ([]domain.Ticket, error) {
	tickets := []domain.Ticket{}
	if err := s.load(s.ticketsPath, &tickets); err != nil {
		return nil, unavailable("load tickets", err)
	}
	return tickets, nil
}

func (s *FileStore) SaveTickets(ctx context.Context, tickets []domain.Ticket) error {
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return unavailable("save tickets", s.save(s.ticketsPath, tickets))
}

func (s *FileStore) LoadMemory(ctx context.Context) ([]domain.MemoryEntry, error) {
	entries := []domain.MemoryEntry{}
	if err := s.load(s.memoryPath, &entries); err != nil {
		return nil, unavailable("load memory", err)
	}
	return entries, nil
}

func (s *FileStore) SaveMemory(ctx context.Context, entries []domain.MemoryEntry) error {
	if entries == nil {
		entries = []domain.MemoryEntry{}
	}
	return unavailable("save memory", s.save(s.memoryPath, entries))
}

// Ping verifies both parent directories are usable.
func (s *FileStore) Ping(ctx context.Context) error {
	for _, path := range []string{s.ticketsPath, s.memoryPath} {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return unavailable("ping", err)
		}
	}
	return nil
}

// load treats a missing or blank file as an empty collection.
func (s *FileStore) load(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) save(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}
