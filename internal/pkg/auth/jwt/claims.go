package jwt

import "github.com/golang-jwt/jwt"

// Payload is the identity asserted by a session token.
// Tokens are issued by the authentication service; this server only verifies them.
type Payload struct {
	jwt.StandardClaims

	// ID is the authenticated user's id.
	ID string `json:"userId"`

	// SessionID identifies the login session. Every connection opened with the same
	// session shares it, so a logout can reach all of them.
	SessionID string `json:"sessionId"`
}

// Valid extends the standard claim checks with the identity fields.
func (p *Payload) Valid() error {
	if err := p.StandardClaims.Valid(); err != nil {
		return err
	}
	if p.ID == "" || p.SessionID == "" {
		return errMissingIdentity
	}
	return nil
}
