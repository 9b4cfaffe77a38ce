// Package providerfake is an in-process identity.Provider used in development
// mode and tests. Accounts live in memory and credentials are HMAC signed JWTs.
package providerfake

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-api-dashboard/identity"
)

const (
	minPasswordLength = 6
	maxFailedAttempts = 5
	credentialTTL     = time.Hour
	issuer            = "providerfake"
)

var _ identity.Provider = (*Provider)(nil)

type account struct {
	id             string
	email          string
	displayName    string
	passwordHash   string
	disabled       bool
	failedAttempts int
}

// Provider is a fake identity provider holding accounts in memory.
type Provider struct {
	lock       sync.Mutex
	accounts   map[string]*account // email to account
	current    *account
	credential string
	secret     []byte
	nowFunc    func() time.Time

	failSignUp   error
	failRefresh  error
	refreshCalls int
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithSecret sets the HMAC secret used to sign credentials.
func WithSecret(secret string) Option {
	return func(p *Provider) {
		p.secret = []byte(secret)
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = nowFunc
	}
}

func New(options ...Option) *Provider {
	p := &Provider{
		accounts: make(map[string]*account),
		secret:   []byte("providerfake-secret"),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// AddAccount seeds an account without signing it in.
func (p *Provider) AddAccount(email, password, displayName string) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	acc, err := p.createLocked(email, password, displayName)
	if err != nil {
		return "", err
	}
	return acc.id, nil
}

// DisableAccount marks an account as disabled.
func (p *Provider) DisableAccount(email string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if acc, ok := p.accounts[normalizeEmail(email)]; ok {
		acc.disabled = true
	}
}

// FailSignUp makes the next sign-ups fail with err until cleared with nil.
func (p *Provider) FailSignUp(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failSignUp = err
}

// FailRefresh makes forced credential refreshes fail with err until cleared with nil.
func (p *Provider) FailRefresh(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failRefresh = err
}

// RefreshCalls reports how many forced refreshes were requested.
func (p *Provider) RefreshCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.refreshCalls
}

// Forget drops the in-memory session, as happens when the process restarts.
func (p *Provider) Forget() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = nil
	p.credential = ""
}

func (p *Provider) SignUp(_ context.Context, req identity.SignUpRequest) (*identity.Principal, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failSignUp != nil {
		return nil, p.failSignUp
	}
	acc, err := p.createLocked(req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}
	return p.startSessionLocked(acc)
}

func (p *Provider) SignIn(_ context.Context, email, password string) (*identity.Principal, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	acc, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return nil, identity.FromProviderCode("user_not_found", nil)
	}
	if acc.disabled {
		return nil, identity.FromProviderCode("user_disabled", nil)
	}
	if acc.failedAttempts >= maxFailedAttempts {
		return nil, identity.FromProviderCode("too_many_attempts", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(password)); err != nil {
		acc.failedAttempts++
		return nil, identity.FromProviderCode("wrong_password", err)
	}
	acc.failedAttempts = 0
	return p.startSessionLocked(acc)
}

func (p *Provider) SignOut(context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = nil
	p.credential = ""
	return nil
}

func (p *Provider) Credential(_ context.Context, force bool) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current == nil {
		return "", identity.ErrNoSession
	}
	if !force {
		return p.credential, nil
	}
	p.refreshCalls++
	if p.failRefresh != nil {
		return "", p.failRefresh
	}
	credential, err := p.signLocked(p.current)
	if err != nil {
		return "", err
	}
	p.credential = credential
	return credential, nil
}

func (p *Provider) Resume(_ context.Context, credential string) (*identity.Principal, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current != nil {
		return p.principalLocked(p.current, p.credential), nil
	}
	if credential == "" {
		return nil, identity.ErrNoSession
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.nowFunc), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, identity.ErrNoSession
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return nil, identity.ErrNoSession
	}
	for _, acc := range p.accounts {
		if acc.id == subject && !acc.disabled {
			p.current, p.credential = acc, credential
			return p.principalLocked(acc, credential), nil
		}
	}
	return nil, identity.ErrNoSession
}

func (p *Provider) createLocked(email, password, displayName string) (*account, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, identity.FromProviderCode("invalid_email", err)
	}
	if len(password) < minPasswordLength {
		return nil, identity.FromProviderCode("weak_password", nil)
	}
	if _, exists := p.accounts[email]; exists {
		return nil, identity.FromProviderCode("email_already_in_use", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.createLocked] bcrypt.GenerateFromPassword")
	}
	acc := &account{
		id:           uuid.NewString(),
		email:        email,
		displayName:  displayName,
		passwordHash: string(hash),
	}
	p.accounts[email] = acc
	return acc, nil
}

func (p *Provider) startSessionLocked(acc *account) (*identity.Principal, error) {
	credential, err := p.signLocked(acc)
	if err != nil {
		return nil, err
	}
	p.current, p.credential = acc, credential
	return p.principalLocked(acc, credential), nil
}

func (p *Provider) signLocked(acc *account) (string, error) {
	now := p.nowFunc()
	claims := jwt.MapClaims{
		"iss":            issuer,
		"sub":            acc.id,
		"email":          acc.email,
		"email_verified": true,
		"name":           acc.displayName,
		"iat":            now.Unix(),
		"exp":            now.Add(credentialTTL).Unix(),
		"jti":            uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

func (p *Provider) principalLocked(acc *account, credential string) *identity.Principal {
	principal := &identity.Principal{
		ID:            acc.id,
		Email:         acc.email,
		DisplayName:   acc.displayName,
		EmailVerified: true,
		Credential:    credential,
	}
	if claims, err := identity.ParseCredentialClaims(credential); err == nil {
		principal.IssuedAt = claims.IssuedAt
	}
	return principal
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
