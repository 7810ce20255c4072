package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-intake/internal/api/dto"
	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/service"
	apperrors "github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// TicketsHandler exposes ticket listing, creation and review.
type TicketsHandler struct {
	service  *service.TicketService
	reviewer string
}

// NewTicketsHandler constructs the handler. reviewer is used when a review
// request does not name one.
func NewTicketsHandler(svc *service.TicketService, reviewer string) *TicketsHandler {
	if reviewer == "" {
		reviewer = "chat-user"
	}
	return &TicketsHandler{service: svc, reviewer: reviewer}
}

// ListTickets GET /api/tickets?status=&severity=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.TicketFilter{
		Status:   domain.TicketStatus(strings.TrimSpace(c.Query("status"))),
		Severity: strings.TrimSpace(c.Query("severity")),
	}
	items, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{Items: items, Count: len(items)}})
}

// GetTicket GET /api/tickets/:ticketNo.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("ticketNo"))
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), req.Description, strings.TrimSpace(req.CreatedBy))
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// Review POST /api/review.
func (h *TicketsHandler) Review(c *fiber.Ctx) error {
	var req dto.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticketNo := req.Ticket()
	if ticketNo == "" {
		return apperrors.NewValidationError("ticket_no required", nil)
	}
	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer = h.reviewer
	}
	ticket, err := h.service.ReviewTicket(c.UserContext(), service.ReviewInput{
		TicketNo: ticketNo,
		Action:   req.Action,
		Comment:  req.Comments,
		Reviewer: reviewer,
	})
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// Stats GET /api/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return service.ToDomainError(err)
	}
	return c.JSON(fiber.Map{"data": stats})
}
