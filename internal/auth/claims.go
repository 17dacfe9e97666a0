package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// ProviderID scopes provider-role tokens to one provider account; admin
// tokens carry no provider_id. Authorization decisions beyond identity
// belong to internal/rbac.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
