// Package auth implements the shared-secret admin gate.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
)

// HeaderName is the request header carrying the admin secret.
const HeaderName = "x-admin-password"

// ErrUnauthorized is returned when a credential does not match the configured
// admin secret.
var ErrUnauthorized = errors.New("unauthorized")

// Credential is a secret presented by a client for a single request.
type Credential struct {
	Secret string
}

// CredentialFromRequest extracts the admin credential from the request header.
func CredentialFromRequest(r *http.Request) Credential {
	return Credential{Secret: r.Header.Get(HeaderName)}
}

// Gate compares presented credentials against the configured admin secret.
type Gate struct {
	secret []byte
}

// NewGate creates a Gate for secret. An empty secret denies every credential.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Check returns ErrUnauthorized unless c matches the configured secret byte
// for byte. The comparison runs in constant time.
func (g *Gate) Check(c Credential) error {
	if len(g.secret) == 0 || c.Secret == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(c.Secret), g.secret) != 1 {
		return ErrUnauthorized
	}
	return nil
}
