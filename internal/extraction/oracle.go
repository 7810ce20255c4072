package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/oracle"
)

// ErrMissingConfidence is returned when the oracle omits or garbles confidence_scores.
var ErrMissingConfidence = errors.New("extraction response missing confidence_scores")

const extractionSystemPrompt = "You are an IT ticket classification expert. Extract information accurately and provide confidence scores."

const extractionPromptTemplate = `Extract the following information from this IT ticket description:
- issue_type: one of [bug, incident, service request, change, outage]
- severity: one of [low, medium, high, critical]
- affected_system: the main system mentioned [CRM, ERP, Email System, Database, Network, Web Portal, Mobile App, API, Reporting Module, Authentication Service, or other]

For each field, also provide a confidence score from 0.0 to 1.0.

Ticket description: %q

Respond in JSON format:
{
    "issue_type": "...",
    "severity": "...",
    "affected_system": "...",
    "confidence_scores": {
        "issue_type": 0.8,
        "severity": 0.9,
        "affected_system": 0.7
    }
}`

// OracleExtractor asks the language model for slots. Any failure is returned
// to the caller unchanged; it does not fall back on its own.
type OracleExtractor struct {
	completer oracle.Completer
	logger    *zap.Logger
}

// NewOracleExtractor instantiates the extractor.
func NewOracleExtractor(completer oracle.Completer, logger *zap.Logger) *OracleExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OracleExtractor{completer: completer, logger: logger.With(zap.String("component", "oracle_extractor"))}
}

func (e *OracleExtractor) Extract(ctx context.Context, description string) (domain.SlotResult, error) {
	completion, err := e.completer.Complete(ctx, extractionSystemPrompt, fmt.Sprintf(extractionPromptTemplate, description))
	if err != nil {
		return domain.SlotResult{}, fmt.Errorf("extract slots: %w", err)
	}
	e.logger.Debug("extraction completion", zap.String("completion", oracle.Truncate(completion)))

	var raw struct {
		IssueType        string `json:"issue_type"`
		Severity         string `json:"severity"`
		AffectedSystem   string `json:"affected_system"`
		ConfidenceScores *struct {
			IssueType      *float64 `json:"issue_type"`
			Severity       *float64 `json:"severity"`
			AffectedSystem *float64 `json:"affected_system"`
		} `json:"confidence_scores"`
	}
	if err := oracle.DecodeJSON(completion, &raw); err != nil {
		return domain.SlotResult{}, fmt.Errorf("extract slots: %w", err)
	}
	scores := raw.ConfidenceScores
	if scores == nil || scores.IssueType == nil || scores.Severity == nil || scores.AffectedSystem == nil {
		return domain.SlotResult{}, ErrMissingConfidence
	}
	for _, c := range []float64{*scores.IssueType, *scores.Severity, *scores.AffectedSystem} {
		if c < 0 || c > 1 {
			return domain.SlotResult{}, fmt.Errorf("%w: score %v out of range", ErrMissingConfidence, c)
		}
	}

	return domain.SlotResult{
		IssueType:      normalize(raw.IssueType),
		Severity:       normalize(raw.Severity),
		AffectedSystem: normalize(raw.AffectedSystem),
		ConfidenceScores: domain.SlotConfidence{
			IssueType:      *scores.IssueType,
			Severity:       *scores.Severity,
			AffectedSystem: *scores.AffectedSystem,
		},
	}, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return unknownSystem
	}
	return s
}
