package auth

import (
	"context"
	"time"
)

// RoleAdmin is the role whose holders may read every user's jobs.
const RoleAdmin = "admin"

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for userID with the
	// given role (empty for a regular user).
	GenerateToken(ctx context.Context, userID, role string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims containing user information if the token is valid,
	// or an error if validation fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
// It extends standard JWT registered claims with application-specific fields.
type Claims struct {
	// UserID is the identifier of the user the token was issued for.
	UserID string `json:"uid,omitempty"`

	// Role is the user's role; RoleAdmin grants elevated access.
	Role string `json:"role,omitempty"`

	// TokenType indicates the purpose of the token ("access").
	TokenType string `json:"type,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Elevated reports whether the claims grant access to other users' jobs.
func (c *Claims) Elevated() bool {
	return c.Role == RoleAdmin
}
