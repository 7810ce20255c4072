// Package intent classifies chat messages into the canonical action taxonomy.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/oracle"
)

// Intent is one of the canonical chat actions.
type Intent string

const (
	Create  Intent = "create"
	View    Intent = "view"
	Review  Intent = "review"
	Delete  Intent = "delete"
	Graph   Intent = "graph"
	Unknown Intent = "unknown"
)

// Parse maps free text onto the taxonomy. "update" is accepted as an alias of review.
func Parse(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, " .\"'`*")
	switch s {
	case "create":
		return Create
	case "view":
		return View
	case "review", "update":
		return Review
	case "delete":
		return Delete
	case "graph":
		return Graph
	}
	return Unknown
}

const classifyPromptTemplate = `You are a ticket management assistant.
Classify the user message into one of these categories:
1. create -> when the user wants to create a new ticket
2. view -> when the user wants to see, check, or ask about existing tickets
3. review -> when the user wants to modify, edit, approve, or reject an existing ticket
4. delete -> when the user wants to remove a ticket
5. graph -> when the user wants counts, charts, or a breakdown of tickets

Only respond with one word: create, view, review, delete, or graph.
User message: %q`

// Classifier asks the oracle for an intent and falls back to keyword rules.
type Classifier struct {
	completer oracle.Completer
	logger    *zap.Logger
}

// NewClassifier instantiates the classifier. A nil completer uses keyword rules only.
func NewClassifier(completer oracle.Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{completer: completer, logger: logger.With(zap.String("component", "intent_classifier"))}
}

// Classify never fails; oracle errors degrade to the keyword rules.
func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	if c.completer == nil {
		return ClassifyKeywords(message)
	}
	completion, err := c.completer.Complete(ctx, "", fmt.Sprintf(classifyPromptTemplate, message))
	if err != nil {
		c.logger.Warn("intent oracle failed, using keyword rules", zap.Error(err))
		return ClassifyKeywords(message)
	}
	fields := strings.Fields(completion)
	if len(fields) == 0 {
		return Unknown
	}
	return Parse(fields[0])
}

var (
	ticketRef   = regexp.MustCompile(`(?i)\bticket-\d+\b`)
	reviewWords = regexp.MustCompile(`(?i)\b(approve|approved|reject|rejected|edit|review|update)\b`)
	deleteWords = regexp.MustCompile(`(?i)\b(delete|remove|purge)\b`)
	graphWords  = regexp.MustCompile(`(?i)\b(graph|chart|stats|statistics|breakdown|count|counts|how many)\b`)
	createWords = regexp.MustCompile(`(?i)\b(new ticket|create|open a ticket|report)\b`)
	viewWords   = regexp.MustCompile(`(?i)\b(show|list|view|status|check|which|what|find)\b`)
)

// ClassifyKeywords is the deterministic classifier used without an oracle.
func ClassifyKeywords(message string) Intent {
	switch {
	case createWords.MatchString(message) && strings.Contains(message, ":"):
		return Create
	case deleteWords.MatchString(message):
		return Delete
	case ticketRef.MatchString(message) && reviewWords.MatchString(message):
		return Review
	case graphWords.MatchString(message):
		return Graph
	case createWords.MatchString(message):
		return Create
	case viewWords.MatchString(message):
		return View
	}
	return Unknown
}
