package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/student-service/internal/api/dto"
	"github.com/spec-kit/student-service/internal/repository"
	"github.com/spec-kit/student-service/internal/service"
	apperrors "github.com/spec-kit/student-service/pkg/util"
)

// UsersHandler exposes account lookups for advisors and admins.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// Get handles GET /users/:mssv.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.auth.GetUser(c.UserContext(), c.Params("mssv"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("user", map[string]any{"mssv": c.Params("mssv")})
		}
		return apperrors.MapError(err)
	}
	return c.JSON(dto.NewUserResponse(user))
}
