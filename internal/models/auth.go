package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Email       string    `json:"email"`
}

// OperatorClaims is the decoded JWT payload stored in the request context.
type OperatorClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
