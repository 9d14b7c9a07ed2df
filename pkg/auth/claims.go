package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Name   string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	Name   string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller handed explicitly to every service
// entry point. Services never read the current user from ambient state.
type Principal struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Name   string
}

// Principal converts validated claims into the explicit caller identity.
func (c *AccessTokenClaims) Principal() Principal {
	if c == nil {
		return Principal{}
	}
	return Principal{
		UserID: c.UserID,
		Role:   c.Role,
		Name:   c.Name,
	}
}

// IsCustomer reports whether the principal acts as a customer.
func (p Principal) IsCustomer() bool {
	return p.Role == enums.ActorRoleCustomer
}

// IsSeller reports whether the principal acts as a seller.
func (p Principal) IsSeller() bool {
	return p.Role == enums.ActorRoleSeller
}

// IsAdmin reports whether the principal acts as an admin.
func (p Principal) IsAdmin() bool {
	return p.Role == enums.ActorRoleAdmin
}
