// Package extraction turns a free-text ticket description into structured
// slots with per-slot confidence scores.
package extraction

import (
	"context"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Extractor returns slots for one description. Implementations backed by an
// oracle may fail; the lifecycle falls back to a KeywordExtractor.
type Extractor interface {
	Extract(ctx context.Context, description string) (domain.SlotResult, error)
}
