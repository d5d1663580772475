package auth

import "github.com/try-veil/veil-gateway/internal/config"

// JWTValidator defines the interface for JWT token validation
type JWTValidator interface {
	ValidateToken(tokenString string, expectedType string) (*CustomClaims, error)
	GetConfig() *config.JWTSettings
}
