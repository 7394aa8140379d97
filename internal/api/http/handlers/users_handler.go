package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// UsersHandler exposes user administration endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// ListUsers handles GET /users.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	query := service.UserListQuery{
		SearchTerm: c.Query("q"),
		Page:       parseInt(c.Query("page"), 1),
		PageSize:   parseInt(c.Query("page_size"), 20),
	}
	for _, raw := range splitList(c.Query("role")) {
		role, err := domain.ParseRole(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid role", map[string]any{"role": raw})
		}
		query.Roles = append(query.Roles, role)
	}

	page, err := h.users.ListUsers(c.UserContext(), p.Actor(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UserListResponse{
		Items:    page.Items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}})
}

// ListFreelancers handles GET /users/freelancers.
func (h *UsersHandler) ListFreelancers(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListFreelancers(c.UserContext(), p.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": users})
}

// ChangeRole handles PUT /users/:id/role.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return apperrors.NewValidationError("invalid role", map[string]any{"role": req.Role})
	}

	user, err := h.users.ChangeRole(c.UserContext(), p.Actor(), c.Params("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": user})
}
