package extraction

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

const (
	defaultIssueType = "bug"
	defaultSeverity  = "low"
	unknownSystem    = "unknown"
)

type category struct {
	name  string
	words []string
}

// Checked in order; the first category with any matching word wins.
var issueCategories = []category{
	{name: "bug", words: []string{"bug", "error", "broken", "fails", "crash", "hangs"}},
	{name: "incident", words: []string{"incident", "outage", "down", "offline"}},
	{name: "service request", words: []string{"service request", "request", "whitelist", "provision"}},
	{name: "change", words: []string{"change", "update", "schema", "migrations", "patch"}},
}

var severityLevels = []string{"critical", "high", "medium", "low"}

var knownSystems = []string{
	"crm", "erp", "email system", "database", "network",
	"web portal", "mobile app", "api", "reporting module",
	"authentication service",
}

// KeywordExtractor is the deterministic extractor used when no oracle is
// configured or the oracle fails. It never returns an error.
type KeywordExtractor struct{}

// NewKeywordExtractor instantiates the extractor.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

func (KeywordExtractor) Extract(_ context.Context, description string) (domain.SlotResult, error) {
	return ExtractKeywords(description), nil
}

// ExtractKeywords matches the description against fixed dictionaries.
func ExtractKeywords(description string) domain.SlotResult {
	desc := strings.ToLower(description)

	result := domain.SlotResult{
		IssueType:      defaultIssueType,
		Severity:       defaultSeverity,
		AffectedSystem: unknownSystem,
		ConfidenceScores: domain.SlotConfidence{
			IssueType:      0.5,
			Severity:       0.6,
			AffectedSystem: 0.5,
		},
	}

	for _, c := range issueCategories {
		if containsAny(desc, c.words) {
			result.IssueType = c.name
			result.ConfidenceScores.IssueType = 0.9
			break
		}
	}

	for _, level := range severityLevels {
		if strings.Contains(desc, level) {
			result.Severity = level
			break
		}
	}
	if result.Severity != defaultSeverity {
		result.ConfidenceScores.Severity = 0.95
	}

	for _, system := range knownSystems {
		if strings.Contains(desc, system) {
			result.AffectedSystem = system
			result.ConfidenceScores.AffectedSystem = 0.9
			break
		}
	}

	return result
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
