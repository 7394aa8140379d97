package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// AuthHandler exposes account authentication endpoints.
type AuthHandler struct {
	auth       *service.AuthService
	middleware *auth.AuthMiddleware
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, middleware *auth.AuthMiddleware) *AuthHandler {
	return &AuthHandler{auth: authService, middleware: middleware}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	result, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:             req.Name,
		Email:            req.Email,
		Password:         req.Password,
		ClientType:       req.ClientType,
		SubscriptionType: req.SubscriptionType,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": authResponse(result)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authResponse(result)})
}

// Logout handles POST /auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.middleware.Revoke(c, p); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Me(c.UserContext(), p.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": user})
}

// UpdateMe handles PATCH /auth/me.
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	user, err := h.auth.UpdateProfile(c.UserContext(), p.User.ID, service.ProfileUpdate{
		Name:             req.Name,
		ClientType:       req.ClientType,
		SubscriptionType: req.SubscriptionType,
		Password:         req.Password,
		CurrentPassword:  req.CurrentPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": user})
}

func authResponse(result *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     result.AccessToken,
		ExpiresAt: result.Token.ExpiresAt,
		User:      result.User,
	}
}
