package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

// RequireAdmin allows admins, freelancer admins and the founder.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.User.Capabilities().Privileged() {
			return apperrors.NewForbidden("administrator role required")
		}
		return c.Next()
	}
}
