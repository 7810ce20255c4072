// Package gate validates human review comments before a review transition
// is allowed. The gate is fail-closed: any doubt yields a negative verdict.
package gate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/oracle"
)

// MinWords is the local word-count floor checked before any oracle call.
const MinWords = 15

const (
	unparsableMessage = "LLM response could not be parsed, please rewrite the comment."
	noActionMessage   = "Comment must describe what changed and include at least one actionable step (e.g. deploy, test, monitor, restart, rollback)."
	acceptedMessage   = "Comment accepted."
)

const gateSystemPrompt = `You are a ticket review assistant. Validate and, if necessary, correct user comments for ticket reviews. Rules:
1. Must be at least 15 words.
2. Must describe what changed in the ticket.
3. Should explain why the change was made (optional but recommended).
4. Must include at least one actionable step (e.g., deploy, test, monitor, restart, rollback).
IMPORTANT: Respond only in valid JSON with keys:
  - valid (true/false)
  - message (reason if invalid or confirmation if valid)
  - corrected_comment (string, only if comment was invalid and corrected)`

// Result is the gate's verdict on one comment.
type Result struct {
	Valid            bool   `json:"valid"`
	Message          string `json:"message"`
	CorrectedComment string `json:"corrected_comment,omitempty"`
}

// Validator checks review comments.
type Validator struct {
	completer oracle.Completer
	logger    *zap.Logger
}

// NewValidator builds a gate. A nil completer selects the local action-verb check.
func NewValidator(completer oracle.Completer, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{completer: completer, logger: logger.With(zap.String("component", "comment_gate"))}
}

// Validate never returns an error; oracle failures become negative verdicts.
func (v *Validator) Validate(ctx context.Context, comment string) Result {
	words := WordCount(comment)
	if words < MinWords {
		return Result{Message: fmt.Sprintf("Comment is too short (%d words). Minimum %d words required.", words, MinWords)}
	}
	if v.completer == nil {
		return validateLocally(comment)
	}

	completion, err := v.completer.Complete(ctx, gateSystemPrompt, comment)
	if err != nil {
		v.logger.Warn("comment validation oracle failed", zap.Error(err))
		return Result{Message: fmt.Sprintf("Error validating comment: %v. Please rewrite the comment.", err)}
	}

	var verdict struct {
		Valid            *bool  `json:"valid"`
		Message          string `json:"message"`
		CorrectedComment string `json:"corrected_comment"`
	}
	if err := oracle.DecodeJSON(completion, &verdict); err != nil || verdict.Valid == nil {
		v.logger.Warn("comment validation output unparsable", zap.String("completion", oracle.Truncate(completion)))
		return Result{Message: unparsableMessage}
	}

	result := Result{Valid: *verdict.Valid, Message: strings.TrimSpace(verdict.Message)}
	if !result.Valid {
		result.CorrectedComment = strings.TrimSpace(verdict.CorrectedComment)
		if result.Message == "" {
			result.Message = noActionMessage
		}
	} else if result.Message == "" {
		result.Message = acceptedMessage
	}
	return result
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
