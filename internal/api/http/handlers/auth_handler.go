package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/student-service/internal/api/dto"
	"github.com/spec-kit/student-service/internal/auth"
	"github.com/spec-kit/student-service/internal/domain"
	"github.com/spec-kit/student-service/internal/service"
	apperrors "github.com/spec-kit/student-service/pkg/util"
)

// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// AuthHandlerOptions controls the refresh cookie attributes and whether
// self-registration may pick a role other than STUDENT.
type AuthHandlerOptions struct {
	CookiePath         string
	CookieSecure       bool
	AllowRoleSelection bool
}

// AuthHandler exposes register, login, refresh, logout and me.
type AuthHandler struct {
	auth *service.AuthService
	opts AuthHandlerOptions
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, opts AuthHandlerOptions) *AuthHandler {
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	return &AuthHandler{auth: authService, opts: opts}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	role := domain.Role(req.Role)
	if role != "" && role != domain.RoleStudent && !h.opts.AllowRoleSelection {
		return apperrors.NewForbidden("only student accounts can self-register")
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		MSSV:     req.MSSV,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     role,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, service.ErrMSSVTaken):
		return apperrors.NewConflict("mssv already registered", nil)
	case errors.Is(err, service.ErrInvalidRole):
		return apperrors.NewValidationError("invalid payload", map[string]any{"role": "oneof"})
	case err != nil:
		return apperrors.MapError(err)
	}

	return c.Status(http.StatusCreated).JSON(dto.NewUserResponse(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	_, pair, err := h.auth.Login(c.UserContext(), req.MSSV, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return apperrors.NewUnauthorized("wrong student code or password")
	case errors.Is(err, service.ErrInactiveUser):
		return apperrors.NewForbidden("account is disabled")
	case errors.Is(err, service.ErrTooManyAttempts):
		return apperrors.NewTooManyRequests("too many failed login attempts, try again later")
	case err != nil:
		return apperrors.MapError(err)
	}

	tokens := h.auth.Tokens()
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     h.opts.CookiePath,
		MaxAge:   int(tokens.RefreshTTL().Seconds()),
		HTTPOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(dto.TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(tokens.AccessTTL().Seconds()),
	})
}

// Refresh handles POST /auth/refresh. The refresh token comes from the
// cookie, falling back to a JSON body.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(RefreshCookieName)
	if refreshToken == "" {
		var req dto.RefreshRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid payload")
			}
		}
		refreshToken = req.RefreshToken
	}
	if refreshToken == "" {
		return apperrors.NewUnauthorized("refresh token missing")
	}

	access, err := h.auth.Refresh(c.UserContext(), refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRotationDenied) {
			return apperrors.NewUnauthorized("invalid or expired refresh token")
		}
		return apperrors.MapError(err)
	}

	return c.JSON(dto.TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.auth.Tokens().AccessTTL().Seconds()),
	})
}

// Logout handles POST /auth/logout by expiring the refresh cookie. Issued
// tokens stay valid until their own expiry.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.opts.CookiePath,
		Expires:  time.Unix(1, 0),
		HTTPOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Logout successful"})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(dto.NewUserResponse(principal.User))
}
