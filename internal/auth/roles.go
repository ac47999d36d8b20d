package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-agent/internal/domain"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

// AccessChecker answers whether a role may perform an action.
type AccessChecker interface {
	VerifyAccess(role, action string) bool
}

// RequireCustomer ensures a customer with a verified email is authenticated.
func RequireCustomer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeCustomer || principal.CustomerEmail == "" {
			return apperrors.NewForbidden("customer required")
		}
		return c.Next()
	}
}

// RequireStaff ensures an active staff member is authenticated.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeStaff || principal.Staff == nil {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}

// RequireAction checks the caller's role against the access policy for action.
func RequireAction(checker AccessChecker, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !checker.VerifyAccess(principal.GuardrailRole(), action) {
			return apperrors.NewForbidden("insufficient permissions for " + action)
		}
		return c.Next()
	}
}
