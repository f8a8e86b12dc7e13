package auth

import (
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Role        enums.Role
	StoreDomain string
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients. StoreDomain is
// the seller's active store and is empty for admins.
type AccessTokenClaims struct {
	UserID      uuid.UUID  `json:"user_id"`
	Role        enums.Role `json:"role"`
	StoreDomain string     `json:"store,omitempty"`
	jwt.RegisteredClaims
}
