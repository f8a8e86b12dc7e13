// Package auth issues and verifies the HS256 access tokens that carry the
// caller's role and, for sellers, their store.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

func checkConfig(cfg config.JWTConfig) error {
	var missing []string
	if cfg.Secret == "" {
		missing = append(missing, "secret")
	}
	if cfg.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if cfg.ExpirationMinutes <= 0 {
		missing = append(missing, "positive expiration")
	}
	if len(missing) > 0 {
		return fmt.Errorf("jwt config needs %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkSubject(role enums.Role, store string) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role %q", role)
	}
	if role == enums.RoleSeller && store == "" {
		return errors.New("seller tokens require a store")
	}
	return nil
}

// MintAccessToken signs a token for payload that expires
// cfg.ExpirationMinutes after now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	store := strings.ToLower(strings.TrimSpace(payload.StoreDomain))
	if err := checkSubject(payload.Role, store); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID:      payload.UserID,
		Role:        payload.Role,
		StoreDomain: store,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks the
// role and store carried in the claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if err := checkSubject(claims.Role, claims.StoreDomain); err != nil {
		return nil, err
	}
	return claims, nil
}
