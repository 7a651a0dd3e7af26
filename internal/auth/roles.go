package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/student-service/internal/domain"
	apperrors "github.com/spec-kit/student-service/pkg/util"
)

// RequireRole ensures the principal holds one of the allowed roles. The role
// is read from the stored user, not from the token.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewForbidden("you do not have permission to perform this action")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a principal has been loaded.
func RequireAuthenticated() fiber.Handler {
	return RequireRole()
}
