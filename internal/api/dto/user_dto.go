package dto

import (
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// RegisterRequest payload for new users.
type RegisterRequest struct {
	Name             string `json:"name" validate:"required,max=120"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
	ClientType       string `json:"clientType" validate:"omitempty,max=50"`
	SubscriptionType string `json:"subscriptionType" validate:"omitempty,max=50"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest is the body of PATCH /auth/me. Omitted fields are kept.
type UpdateProfileRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=120"`
	ClientType       *string `json:"clientType" validate:"omitempty,max=50"`
	SubscriptionType *string `json:"subscriptionType" validate:"omitempty,max=50"`
	Password         *string `json:"password" validate:"omitempty,min=8,max=72"`
	CurrentPassword  string  `json:"currentPassword" validate:"required_with=Password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// ChangeRoleRequest is the body of PUT /users/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user freelancer freelancer_admin admin fondateur"`
}

// UserListResponse is one page of users.
type UserListResponse struct {
	Items    []domain.User `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}
