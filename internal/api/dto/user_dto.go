package dto

import (
	"time"

	"github.com/spec-kit/student-service/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	MSSV     string `json:"mssv" validate:"required,max=32"`
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=STUDENT CVHT ADMIN"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	MSSV     string `json:"mssv" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body fallback when no refresh cookie is sent.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string    `json:"id"`
	MSSV      string    `json:"mssv"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse strips the password hash from a user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		MSSV:      u.MSSV,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
