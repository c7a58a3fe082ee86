// Package auth defines the credential verification contract. Token minting
// and account management are external; the engine only needs to turn a bearer
// credential into an identity.
package auth

import "github.com/domtech/lifeline/core/model"

// Claims is the identity carried by a verified credential.
type Claims struct {
	UserID string
	Name   string
	Phone  string
	Role   model.Role
}

// TokenVerifier validates a bearer credential and returns its claims.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}
