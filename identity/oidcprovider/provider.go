// Package oidcprovider implements identity.Provider against an OpenID Connect
// issuer using the resource owner password grant.
package oidcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-api-dashboard/identity"
	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/kvstore"
)

// RefreshTokenKey is the kvstore key holding the refresh token between runs.
const RefreshTokenKey = "identity.refresh_token"

var _ identity.Provider = (*Provider)(nil)

// Config holds the client registration at the issuer.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	SignUpURL    string // Optional account creation endpoint
	Scopes       []string
}

// Provider talks to the issuer's discovery, token and revocation endpoints.
type Provider struct {
	oauth         *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	signUpURL     string
	httpClient    *http.Client
	tokens        kvstore.Store

	mu        sync.Mutex
	token     *oauth2.Token
	principal *identity.Principal
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithTokenStore persists the refresh token so a restarted process can resume.
func WithTokenStore(store kvstore.Store) Option {
	return func(p *Provider) {
		p.tokens = store
	}
}

// New runs issuer discovery and returns a ready Provider.
func New(ctx context.Context, cfg Config, options ...Option) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[oidcprovider.New] IssuerURL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcprovider.New] ClientID is required")
	}

	p := &Provider{
		signUpURL:  cfg.SignUpURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(p)
	}

	discovered, err := oidc.NewProvider(p.clientContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcprovider.New] oidc.NewProvider")
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		log.Warn().Err(err).Msg("reading discovery document extras failed")
	}
	p.revocationURL = extra.RevocationEndpoint

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     discovered.Endpoint(),
		Scopes:       scopes,
	}
	p.verifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return p, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Principal, error) {
	tok, err := p.oauth.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return nil, mapTokenError(err)
	}

	principal, err := p.principalFromToken(ctx, tok)
	if err != nil {
		return nil, identity.NewError(identity.CodeUnknown, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setTokenLocked(tok, principal)
	return copyPrincipal(principal), nil
}

type signUpBody struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type providerErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	Message          string `json:"message"`
}

// SignUp creates the account at the sign-up endpoint and then signs in.
func (p *Provider) SignUp(ctx context.Context, req identity.SignUpRequest) (*identity.Principal, error) {
	if p.signUpURL == "" {
		return nil, identity.NewError(identity.CodeUnknown, errors.Wrap(apperrors.ErrUnsupported, "no sign-up endpoint configured"))
	}

	payload, err := json.Marshal(signUpBody{Email: req.Email, Password: req.Password, DisplayName: req.DisplayName})
	if err != nil {
		return nil, identity.NewError(identity.CodeUnknown, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.signUpURL, bytes.NewReader(payload))
	if err != nil {
		return nil, identity.NewError(identity.CodeUnknown, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, identity.NewError(identity.CodeUnknown, errors.Wrap(err, "[Provider.SignUp] request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var decoded providerErrorBody
		_ = json.Unmarshal(body, &decoded)
		code := decoded.Error
		if code == "" {
			code = decoded.Code
		}
		if code == "" && resp.StatusCode == http.StatusConflict {
			code = "email_exists"
		}
		if code == "" && resp.StatusCode == http.StatusTooManyRequests {
			code = "too_many_requests"
		}
		return nil, identity.FromProviderCode(code, errors.Errorf("sign-up rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	return p.SignIn(ctx, req.Email, req.Password)
}

// SignOut revokes the held tokens and forgets them. Revocation failures are logged.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	tok := p.token
	p.token, p.principal = nil, nil
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.Delete(RefreshTokenKey); err != nil {
			log.Err(err).Msg("failed to delete stored refresh token")
		}
	}
	if tok == nil || p.revocationURL == "" {
		return nil
	}
	if tok.RefreshToken != "" {
		p.revoke(ctx, tok.RefreshToken, "refresh_token")
	}
	if tok.AccessToken != "" {
		p.revoke(ctx, tok.AccessToken, "access_token")
	}
	return nil
}

func (p *Provider) revoke(ctx context.Context, token, tokenTypeHint string) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.oauth.ClientID)
	if p.oauth.ClientSecret != "" {
		form.Set("client_secret", p.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to build revoke request")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return
	}
	resp.Body.Close()
}

// Credential returns the held credential, refreshing through the refresh token
// when force is set or the token has expired.
func (p *Provider) Credential(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil || p.principal == nil {
		return "", identity.ErrNoSession
	}
	if !force && p.token.Valid() {
		return p.principal.Credential, nil
	}
	principal, err := p.refreshLocked(ctx, p.token.RefreshToken)
	if err != nil {
		return "", err
	}
	return principal.Credential, nil
}

// Resume returns the live principal, or rebuilds one from the persisted ID
// token and stored refresh token after a restart.
func (p *Provider) Resume(ctx context.Context, credential string) (*identity.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.principal != nil {
		return copyPrincipal(p.principal), nil
	}
	if credential == "" {
		return nil, identity.ErrNoSession
	}

	refreshToken := p.storedRefreshToken()
	idToken, err := p.verifier.Verify(p.clientContext(ctx), credential)
	var expired *oidc.TokenExpiredError
	switch {
	case err == nil:
		principal, err := principalFromIDToken(idToken, credential)
		if err != nil {
			return nil, identity.ErrNoSession
		}
		p.token = &oauth2.Token{RefreshToken: refreshToken, Expiry: idToken.Expiry}
		p.principal = principal
		return copyPrincipal(principal), nil
	case errors.As(err, &expired) && refreshToken != "":
		principal, err := p.refreshLocked(ctx, refreshToken)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, identity.ErrNoSession
		}
		if err != nil {
			return nil, err
		}
		return copyPrincipal(principal), nil
	case errors.As(err, &expired):
		return nil, identity.ErrNoSession
	default:
		return nil, errors.Wrap(err, "[Provider.Resume] verify credential")
	}
}

func (p *Provider) refreshLocked(ctx context.Context, refreshToken string) (*identity.Principal, error) {
	if refreshToken == "" {
		return nil, identity.NewError(identity.CodeUnknown, errors.New("no refresh token held"))
	}
	tok, err := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, mapTokenError(err)
	}
	principal, err := p.principalFromToken(ctx, tok)
	if err != nil {
		return nil, identity.NewError(identity.CodeUnknown, err)
	}
	p.setTokenLocked(tok, principal)
	return principal, nil
}

func (p *Provider) setTokenLocked(tok *oauth2.Token, principal *identity.Principal) {
	p.token, p.principal = tok, principal
	if p.tokens == nil || tok.RefreshToken == "" {
		return
	}
	if err := p.tokens.Set(RefreshTokenKey, []byte(tok.RefreshToken)); err != nil {
		log.Err(err).Msg("failed to persist refresh token")
	}
}

func (p *Provider) storedRefreshToken() string {
	if p.tokens == nil {
		return ""
	}
	raw, ok, err := p.tokens.Get(RefreshTokenKey)
	if err != nil || !ok {
		return ""
	}
	return string(raw)
}

// principalFromToken prefers the verified ID token and falls back to the
// access token's unverified claims.
func (p *Provider) principalFromToken(ctx context.Context, tok *oauth2.Token) (*identity.Principal, error) {
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "ID token verification failed")
		}
		return principalFromIDToken(idToken, rawIDToken)
	}

	claims, err := identity.ParseCredentialClaims(tok.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "no ID token and access token carries no claims")
	}
	return &identity.Principal{
		ID:            claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		Credential:    tok.AccessToken,
		IssuedAt:      claims.IssuedAt,
	}, nil
}

func principalFromIDToken(idToken *oidc.IDToken, raw string) (*identity.Principal, error) {
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "failed to extract claims")
	}
	return &identity.Principal{
		ID:            idToken.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		Credential:    raw,
		IssuedAt:      idToken.IssuedAt,
	}, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

func mapTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return identity.NewError(identity.CodeUnknown, err)
	}
	code := retrieveErr.ErrorCode
	if code == "" && retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
		code = "too_many_requests"
	}
	return identity.FromProviderCode(code, err)
}

func copyPrincipal(p *identity.Principal) *identity.Principal {
	c := *p
	return &c
}
