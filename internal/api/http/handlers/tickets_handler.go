package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets (multipart form).
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Priority:    domain.TicketPriority(req.Priority),
		TargetUser:  req.TargetUser,
	}
	if form, err := c.MultipartForm(); err == nil {
		input.Files = form.File["attachments"]
		if len(input.Files) == 0 {
			input.Files = form.File["attachments[]"]
		}
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), p.Actor(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), p.Actor(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketPage(page)})
}

// ListUnassigned GET /tickets/unassigned.
func (h *TicketsHandler) ListUnassigned(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListUnassigned(c.UserContext(), p.Actor(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketPage(page)})
}

// CountTickets GET /tickets/counts.
func (h *TicketsHandler) CountTickets(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	counts, err := h.service.CountTickets(c.UserContext(), p.Actor(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counts})
}

// GetTicket GET /tickets/:id. order=desc returns the audit trail newest first.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), p.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	if c.Query("order") == "desc" {
		reversed := make([]domain.AuditEvent, len(ticket.AuditTrail))
		for i, ev := range ticket.AuditTrail {
			reversed[len(reversed)-1-i] = ev
		}
		ticket.AuditTrail = reversed
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// UpdateTicket PUT /tickets/:id: status change and/or assignment.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	var status *domain.TicketStatus
	if req.Status != nil {
		s := domain.TicketStatus(*req.Status)
		status = &s
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), p.Actor(), c.Params("id"), status, req.AssignedTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// ClaimTicket POST /tickets/:id/diagnostic.
func (h *TicketsHandler) ClaimTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Claim(c.UserContext(), p.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// PatchTicket PATCH /tickets/:id: descriptive field edits.
func (h *TicketsHandler) PatchTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.PatchTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	update := repository.TicketFieldUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(*req.Priority)
		update.Priority = &priority
	}
	if req.Appointment != nil {
		update.Appointment = &domain.Appointment{
			Date:      req.Appointment.Date,
			StartTime: req.Appointment.StartTime,
			EndTime:   req.Appointment.EndTime,
		}
	}

	ticket, err := h.service.UpdateFields(c.UserContext(), p.Actor(), c.Params("id"), update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), p.Actor(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// DownloadAttachment GET /tickets/:id/attachments/:filename.
func (h *TicketsHandler) DownloadAttachment(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	att, path, err := h.service.AttachmentFile(c.UserContext(), p.Actor(), c.Params("id"), c.Params("filename"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, att.MimeType)
	return c.Download(path, att.OriginalName)
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListQuery, error) {
	query := service.TicketListQuery{
		AssignedTo: optionalQuery(c, "assignedTo"),
		Category:   optionalQuery(c, "category"),
		SearchTerm: optionalQuery(c, "q"),
		Sort:       c.Query("sort"),
		Order:      c.Query("order"),
		Page:       parseInt(c.Query("page"), 1),
		PageSize:   parseInt(c.Query("page_size"), 20),
	}
	if raw := optionalQuery(c, "status"); raw != nil && *raw != service.CountAllKey {
		status := domain.TicketStatus(*raw)
		if !status.Valid() {
			return query, apperrors.NewValidationError("invalid status", map[string]any{"status": *raw})
		}
		query.Status = &status
	}
	for _, raw := range splitList(c.Query("priority")) {
		priority := domain.TicketPriority(raw)
		if priority.Rank() == 0 {
			return query, apperrors.NewValidationError("invalid priority", map[string]any{"priority": raw})
		}
		query.Priorities = append(query.Priorities, priority)
	}
	return query, nil
}

func ticketPage(page *service.TicketPage) dto.TicketListResponse {
	return dto.TicketListResponse{
		Items:    page.Items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}
