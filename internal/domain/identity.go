package domain

import "context"

// Identity is a verified user identity returned by the authorization gate.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// TokenVerifier is the authorization gate contract. Implementations verify an
// opaque bearer token and return the identity it represents, or an
// unauthorized-kind error. Verification must respect ctx: an expired context
// is a failed verification, never an authenticated one.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}
