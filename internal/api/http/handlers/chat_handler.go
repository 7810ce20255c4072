package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/api/dto"
	"github.com/spec-kit/ticket-intake/internal/service"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// ChatHandler serves the conversational front door.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// Chat POST /api/chat.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	resp, err := h.service.Handle(c.UserContext(), req.Message)
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.JSON(fiber.Map{"data": dto.ChatResponse{
		Message: resp.Message,
		Valid:   resp.Valid,
		Intent:  resp.Intent,
		Ticket:  resp.Ticket,
	}})
}
