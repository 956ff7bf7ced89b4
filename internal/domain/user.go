package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleReferee Role = "referee"
	RoleLeague  Role = "league"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleReferee || r == RoleLeague
}

// User is an account in the users table.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
