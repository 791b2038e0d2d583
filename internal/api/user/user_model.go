package user

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/alxtim10/alx-auth/internal/api"
)

// UserResponse is the administrative view of an account. The password
// hash never leaves the service.
type UserResponse struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

func NewUserResponse(u *api.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		Active:          u.Active,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		DeletedAt:       u.DeletedAt,
		EmailVerifiedAt: u.EmailVerifiedAt,
	}
}

// UpdateUserRequest carries the patch for PUT /users/{id}. Nil means
// "leave unchanged". Role and Active only apply for admin callers.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Password, validation.Length(6, 100)),
		validation.Field(&r.Role, validation.In(api.RoleUser, api.RoleAdmin)),
	)
}

// UpdateUserParams is the repository-level patch; Password has already
// been hashed by the service.
type UpdateUserParams struct {
	Email        *string
	PasswordHash *string
	Role         *string
	Active       *bool
}

// ListUsersParams captures the query string of GET /users after
// parsing and clamping.
type ListUsersParams struct {
	Page        int
	Size        int
	Sort        string
	Dir         string
	Query       string
	Role        string
	Active      *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// UserPage is the response envelope for GET /users.
type UserPage struct {
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	Total      int64             `json:"total"`
	TotalPages int64             `json:"total_pages"`
	Sort       string            `json:"sort"`
	Dir        string            `json:"dir"`
	Filters    map[string]string `json:"filters,omitempty"`
	Data       []UserResponse    `json:"data"`
}
