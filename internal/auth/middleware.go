package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/workflow"
	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User   *domain.User
	Claims *Claims
}

// Actor converts the principal into its workflow identity.
func (p *Principal) Actor() workflow.Actor {
	return workflow.ActorFromUser(p.User)
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	users   repository.UserRepository
	revoked RevocationStore
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, revoked RevocationStore) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, revoked: revoked}
}

// Handle enforces authentication for protected routes. The role is read from
// the account store rather than the token, so role changes apply immediately.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	revoked, err := m.revoked.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if revoked {
		return apperrors.NewUnauthorized("token revoked")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.MapError(err)
	}
	if !user.Active {
		return apperrors.NewUnauthorized("account disabled")
	}

	c.Locals(principalKey, &Principal{User: user, Claims: claims})
	return c.Next()
}

// Revoke invalidates the token of the principal for its remaining lifetime.
func (m *AuthMiddleware) Revoke(c *fiber.Ctx, principal *Principal) error {
	return m.revoked.Revoke(c.UserContext(), principal.Claims.ID, principal.Claims.Remaining(time.Now()))
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil && principal.User != nil
}
