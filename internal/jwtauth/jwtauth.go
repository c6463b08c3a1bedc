// Package jwtauth verifies the bearer tokens issued by the authentication
// collaborator and maps their claims onto the actor identity the core
// services operate on.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medtrace/internal/domain"
)

// Claims is the expected token payload. Subject carries the account id.
type Claims struct {
	Role          string `json:"role"`
	WalletAddress string `json:"wallet_address"`
	Location      string `json:"location"`
	jwt.RegisteredClaims
}

// Validator checks HMAC-signed tokens against a shared signing key.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies the token and returns the actor it
// identifies. Expired tokens, bad signatures and unknown roles all fail.
func (v *Validator) ValidateToken(tokenString string) (domain.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleManufacturer, domain.RoleSupplier, domain.RolePharmacy:
	default:
		return domain.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return domain.Actor{
		ID:            claims.Subject,
		Role:          role,
		WalletAddress: claims.WalletAddress,
		Location:      claims.Location,
	}, nil
}

// IssueToken mints a token for the given actor. Used by tests and local
// development tooling; production tokens come from the identity service.
func (v *Validator) IssueToken(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:          string(actor.Role),
		WalletAddress: actor.WalletAddress,
		Location:      actor.Location,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
}
