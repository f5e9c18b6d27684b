package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the bearer token payload. For teachers UserID is the
// teacher id.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
