package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned by a Provider when it holds no live session.
var ErrNoSession = errors.New("no live identity session")

// Principal is the signed-in account as reported by the identity provider.
type Principal struct {
	ID            string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	Credential    string    // Bearer token presented to the backend
	IssuedAt      time.Time // When Credential was issued
}

// SignUpRequest carries the fields needed to create an account.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// Provider is the third-party identity collaborator. Implementations map their
// own failures to *Error values.
type Provider interface {
	SignUp(ctx context.Context, req SignUpRequest) (*Principal, error)
	SignIn(ctx context.Context, email, password string) (*Principal, error)
	SignOut(ctx context.Context) error

	// Credential returns the current credential, minting a fresh one when force is true.
	Credential(ctx context.Context, force bool) (string, error)

	// Resume reconciles with the provider's live session, using the persisted
	// credential when the provider has none in memory. ErrNoSession means the
	// persisted session is no longer valid.
	Resume(ctx context.Context, credential string) (*Principal, error)
}

// Registrar materializes the backend-side user record after account creation.
type Registrar interface {
	Register(ctx context.Context, credential string, principal Principal) error
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(ctx context.Context, credential string, principal Principal) error

func (f RegistrarFunc) Register(ctx context.Context, credential string, principal Principal) error {
	return f(ctx, credential, principal)
}
