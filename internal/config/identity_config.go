package config

import (
	"strings"
	"time"
)

const (
	issuerURLVar    = "IDENTITY_ISSUER_URL"
	clientIDVar     = "IDENTITY_CLIENT_ID"
	clientSecretVar = "IDENTITY_CLIENT_SECRET"
	signUpURLVar    = "IDENTITY_SIGNUP_URL"
	scopesVar       = "IDENTITY_SCOPES"
	fakeIdentityVar = "IDENTITY_FAKE"
)

type IdentityConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetSignUpURL() string
	GetScopes() []string
	GetCredentialRefreshInterval() time.Duration
	UseFakeIdentity() bool
}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetIssuerURL() string {
	return GetEnv(issuerURLVar, "")
}

func (Identity) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (Identity) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

// GetSignUpURL returns the account creation endpoint of the identity provider.
// Standard OIDC has no sign-up operation, so this is provider specific.
func (Identity) GetSignUpURL() string {
	return GetEnv(signUpURLVar, "")
}

func (Identity) GetScopes() []string {
	return strings.Fields(GetEnv(scopesVar, "openid profile email offline_access"))
}

func (Identity) GetCredentialRefreshInterval() time.Duration {
	return 45 * time.Minute
}

// UseFakeIdentity swaps the OIDC provider for the in-memory one. Only honoured in DEV.
func (Identity) UseFakeIdentity() bool {
	return GetEnv(fakeIdentityVar, "") == "1" && EnvVars{}.GetEnv() == "DEV"
}
