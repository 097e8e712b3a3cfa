package handlers

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"crixen/internal/types"
)

// GatewayAuthenticator implements core.Authenticator for requests arriving
// through the Crixen application gateway. The gateway terminates end-user
// sessions and forwards the resolved identity in headers; this service only
// checks the shared service key and trusts the forwarded identity.
type GatewayAuthenticator struct {
	key types.SecretString
}

// NewGatewayAuthenticator builds the authenticator with the shared API key.
func NewGatewayAuthenticator(key types.SecretString) *GatewayAuthenticator {
	return &GatewayAuthenticator{key: key}
}

// Authenticate checks "Authorization: Bearer <key>" against the configured
// service key and reads the forwarded identity. X-User-Id is required;
// X-User-Email and X-User-Tier are carried through when present.
func (a *GatewayAuthenticator) Authenticate(r *http.Request) (types.Actor, error) {
	if !a.key.IsSet() {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "service key is not configured")
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "missing bearer token")
	}
	if !hmac.Equal([]byte(token), []byte(a.key.Reveal())) {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "invalid service key")
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "missing forwarded user identity")
	}

	return types.Actor{
		ID:    userID,
		Email: r.Header.Get("X-User-Email"),
		Tier:  types.Tier(r.Header.Get("X-User-Tier")),
	}, nil
}
