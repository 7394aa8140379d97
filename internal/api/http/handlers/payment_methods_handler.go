package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// PaymentMethodsHandler exposes the caller's payment method references.
type PaymentMethodsHandler struct {
	payments *service.PaymentService
}

// NewPaymentMethodsHandler constructs handler.
func NewPaymentMethodsHandler(payments *service.PaymentService) *PaymentMethodsHandler {
	return &PaymentMethodsHandler{payments: payments}
}

// List handles GET /payment-methods.
func (h *PaymentMethodsHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	methods, err := h.payments.List(c.UserContext(), p.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": methods})
}

// Create handles POST /payment-methods.
func (h *PaymentMethodsHandler) Create(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreatePaymentMethodRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	pm, err := h.payments.Add(c.UserContext(), p.User.ID, service.PaymentMethodInput{
		Provider:    req.Provider,
		ProviderRef: req.ProviderRef,
		Brand:       req.Brand,
		Last4:       req.Last4,
		ExpMonth:    req.ExpMonth,
		ExpYear:     req.ExpYear,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": pm})
}

// Delete handles DELETE /payment-methods/:id.
func (h *PaymentMethodsHandler) Delete(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.payments.Delete(c.UserContext(), p.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SetDefault handles PUT /payment-methods/:id/default.
func (h *PaymentMethodsHandler) SetDefault(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.payments.SetDefault(c.UserContext(), p.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
