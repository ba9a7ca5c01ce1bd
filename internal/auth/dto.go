package auth

import "github.com/angelmondragon/storefront-backend/internal/users"

// LoginRequest captures the user credentials sent to the login endpoints.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the customer sign-up payload.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the access token and the authenticated user.
type LoginResponse struct {
	Token string         `json:"token"`
	User  *users.Profile `json:"user"`
}
