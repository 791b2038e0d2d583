package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors returned by services and repositories. The HTTP layer
// maps them onto the error envelope in utils.go.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrValidation      = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is the identity record. PasswordHash never leaves the server.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Role            string     `json:"role"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

// CanAuthenticate is the single authentication predicate shared by login,
// refresh and the admin paths: active and not soft-deleted.
func (u *User) CanAuthenticate() bool {
	return u.Active && u.DeletedAt == nil
}

// Claims carried in the signed access token.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"rol"`
	jwt.RegisteredClaims
}
