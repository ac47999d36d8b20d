package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-agent/internal/api/dto"
	"github.com/spec-kit/support-agent/internal/service"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

// CustomerHandler issues customer tokens outside production. In production
// the storefront's own login issues them.
type CustomerHandler struct {
	auth *service.AuthService
}

// NewCustomerHandler constructs handler.
func NewCustomerHandler(authService *service.AuthService) *CustomerHandler {
	return &CustomerHandler{auth: authService}
}

// DevToken handles POST /auth/customer/dev-token.
func (h *CustomerHandler) DevToken(c *fiber.Ctx) error {
	var req dto.CustomerTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, exp, err := h.auth.IssueCustomerToken(req.Email)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
