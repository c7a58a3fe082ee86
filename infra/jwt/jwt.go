// Package jwt verifies HS256 bearer tokens minted by the account service.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	coreauth "github.com/domtech/lifeline/core/auth"
	"github.com/domtech/lifeline/core/model"
)

// tokenClaims is the wire shape of the access token payload.
type tokenClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 signed tokens against a shared secret.
type Verifier struct {
	signingKey []byte
}

// NewVerifier creates a Verifier for the given signing secret.
func NewVerifier(signingKey string) (*Verifier, error) {
	if signingKey == "" {
		return nil, errors.New("jwt: empty signing key")
	}
	return &Verifier{signingKey: []byte(signingKey)}, nil
}

// Verify parses and validates the token and maps its claims to an identity.
func (v *Verifier) Verify(tokenString string) (coreauth.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return coreauth.Claims{}, errors.New("jwt: token has expired")
		}
		return coreauth.Claims{}, fmt.Errorf("jwt: invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return coreauth.Claims{}, errors.New("jwt: invalid token claims")
	}
	if claims.UserID == "" {
		return coreauth.Claims{}, errors.New("jwt: token without subject")
	}
	return coreauth.Claims{
		UserID: claims.UserID,
		Name:   claims.Name,
		Phone:  claims.Phone,
		Role:   model.Role(claims.Role),
	}, nil
}

// Mint signs a token for the identity, used by tests and local tooling. The
// production token issuer lives in the account service.
func (v *Verifier) Mint(c coreauth.Claims, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: c.UserID,
		Name:   c.Name,
		Phone:  c.Phone,
		Role:   string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	return token.SignedString(v.signingKey)
}

var _ coreauth.TokenVerifier = (*Verifier)(nil)
