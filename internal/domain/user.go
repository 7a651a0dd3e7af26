package domain

import (
	"errors"
	"time"
)

// ErrUserInactive is returned when a deactivated account tries to authenticate.
var ErrUserInactive = errors.New("user is inactive")

// Role is the authorisation role carried in tokens and stored on the user.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdvisor Role = "CVHT"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdvisor, RoleAdmin:
		return true
	}
	return false
}

// User is an account identified by its student code (MSSV).
type User struct {
	ID           string    `bson:"_id"`
	MSSV         string    `bson:"mssv"`
	Email        string    `bson:"email"`
	FullName     string    `bson:"full_name,omitempty"`
	Role         Role      `bson:"role"`
	PasswordHash string    `bson:"password"`
	IsActive     bool      `bson:"is_active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}
