package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// CredentialClaims are the profile claims readable from a JWT credential.
type CredentialClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// ParseCredentialClaims reads claims without verifying the signature. The
// backend verifies the credential; the client only needs its metadata.
func ParseCredentialClaims(raw string) (*CredentialClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[ParseCredentialClaims] ParseUnverified")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[ParseCredentialClaims] error extracting claims")
	}

	out := &CredentialClaims{}
	out.Subject, _ = claims.GetSubject()
	out.Email, _ = claims["email"].(string)
	out.EmailVerified, _ = claims["email_verified"].(bool)
	out.Name, _ = claims["name"].(string)
	out.Picture, _ = claims["picture"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
