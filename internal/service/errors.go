package service

import (
	"errors"
	"fmt"

	"github.com/spec-kit/ticket-intake/internal/gate"
	"github.com/spec-kit/ticket-intake/internal/repository"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

var (
	// ErrNotFound is returned when a referenced ticket number does not exist.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidAction is returned for review actions outside APPROVE, REJECT, EDIT.
	ErrInvalidAction = errors.New("invalid review action")
	// ErrInvalidComment is returned when the comment gate rejects a review comment.
	ErrInvalidComment = errors.New("invalid review comment")
)

// GateError carries the comment gate's verdict for a rejected review.
type GateError struct {
	Result gate.Result
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidComment, e.Result.Message)
}

func (e *GateError) Unwrap() error {
	return ErrInvalidComment
}

// ToDomainError maps lifecycle errors onto API error codes.
func ToDomainError(err error) error {
	if err == nil {
		return nil
	}
	var gateErr *GateError
	switch {
	case errors.As(err, &gateErr):
		details := map[string]any{}
		if gateErr.Result.CorrectedComment != "" {
			details["corrected_comment"] = gateErr.Result.CorrectedComment
		}
		return apperrors.NewInvalidComment(gateErr.Result.Message, details)
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, ErrInvalidAction):
		return apperrors.NewInvalidAction("Invalid action. Use APPROVE, REJECT, or EDIT.", nil)
	case errors.Is(err, repository.ErrStoreUnavailable):
		return apperrors.NewStoreUnavailable(err)
	}
	return apperrors.MapError(err)
}
