package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-api-dashboard/aimodels"
	"github.com/jrsteele09/go-api-dashboard/hooks"
	"github.com/jrsteele09/go-api-dashboard/identity"
	"github.com/jrsteele09/go-api-dashboard/identity/oidcprovider"
	"github.com/jrsteele09/go-api-dashboard/identity/providerfake"
	"github.com/jrsteele09/go-api-dashboard/internal/config"
	"github.com/jrsteele09/go-api-dashboard/kvstore"
	"github.com/jrsteele09/go-api-dashboard/kvstore/sqlitestore"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/query"
	"github.com/jrsteele09/go-api-dashboard/specdoc"
	"github.com/jrsteele09/go-api-dashboard/testruns"
	"github.com/jrsteele09/go-api-dashboard/transport"
	"github.com/jrsteele09/go-api-dashboard/uistate"
	"github.com/jrsteele09/go-api-dashboard/users"
)

type app struct {
	store   *sqlitestore.Store
	manager *identity.Manager
	users   *users.Client
	ui      *uistate.Store
	hooks   *hooks.Hooks
	unsub   []func()
}

type appOptions struct {
	provider identity.Provider
}

type appOption func(*appOptions)

// withProvider replaces the configured identity provider (primarily for testing).
func withProvider(provider identity.Provider) appOption {
	return func(o *appOptions) {
		o.provider = provider
	}
}

func newApp(ctx context.Context, c config.Config, options ...appOption) (*app, error) {
	var opts appOptions
	for _, option := range options {
		option(&opts)
	}

	if err := os.MkdirAll(c.GetDataFolder(), 0o700); err != nil {
		return nil, errors.Wrap(err, "[newApp] creating data folder")
	}
	store, err := sqlitestore.Open(filepath.Join(c.GetDataFolder(), "dashboard.db"))
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] sqlitestore.Open")
	}
	a := &app{store: store, ui: uistate.New()}

	provider := opts.provider
	if provider == nil {
		if provider, err = newProvider(ctx, c, store); err != nil {
			store.Close()
			return nil, err
		}
	}

	// The transport reads credentials from the manager, and the manager
	// registers new users through the transport.
	var manager *identity.Manager
	tc, err := transport.New(c.GetBackendBaseURL(),
		transport.WithTimeout(c.GetRequestTimeout()),
		transport.WithCredentials(transport.CredentialFunc(func(ctx context.Context) (string, error) {
			return manager.Credential(ctx)
		})),
		transport.WithAuthFailureHandler(func(status int) {
			a.ui.ShowNotification("Your session has expired. Please sign in again.", uistate.KindWarning, uistate.ErrorBannerDuration)
		}),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	if a.users, err = users.NewClient(tc); err != nil {
		store.Close()
		return nil, err
	}

	manager, err = identity.NewManager(provider, store,
		identity.WithRegistrar(a.users),
		identity.WithRefreshInterval(c.GetCredentialRefreshInterval()),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.manager = manager
	if err := manager.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not reconcile session with identity provider")
	}
	manager.Start(ctx)

	if a.hooks, err = newHooks(tc, store, c, a.ui); err != nil {
		a.close()
		return nil, err
	}
	a.unsub = append(a.unsub,
		manager.Subscribe(func(_ identity.Session, state identity.State) {
			if state != identity.StateAuthenticating {
				a.hooks.Reset()
			}
		}),
		a.ui.Subscribe(func(s uistate.State) {
			if s.Notification != nil && s.Notification.Kind != uistate.KindError {
				log.Info().Str("kind", string(s.Notification.Kind)).Msg(s.Notification.Message)
			}
		}),
	)
	return a, nil
}

func newProvider(ctx context.Context, c config.Config, store kvstore.Store) (identity.Provider, error) {
	if c.UseFakeIdentity() {
		log.Warn().Msg("Using in-memory identity provider")
		return providerfake.New(), nil
	}
	provider, err := oidcprovider.New(ctx, oidcprovider.Config{
		IssuerURL:    c.GetIssuerURL(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		SignUpURL:    c.GetSignUpURL(),
		Scopes:       c.GetScopes(),
	}, oidcprovider.WithTokenStore(store))
	if err != nil {
		return nil, errors.Wrap(err, "[newProvider] oidcprovider.New")
	}
	return provider, nil
}

func newHooks(tc *transport.Client, store kvstore.Store, c config.Config, ui *uistate.Store) (*hooks.Hooks, error) {
	projectsClient, err := projects.NewClient(tc)
	if err != nil {
		return nil, err
	}
	runsClient, err := testruns.NewClient(tc)
	if err != nil {
		return nil, err
	}
	usersClient, err := users.NewClient(tc)
	if err != nil {
		return nil, err
	}
	modelsClient, err := aimodels.NewClient(tc)
	if err != nil {
		return nil, err
	}
	specDocs, err := specdoc.New(store, specdoc.WithTTL(c.GetSpecDocumentTTL()))
	if err != nil {
		return nil, err
	}
	return hooks.New(hooks.Deps{
		Cache:    query.New(),
		Projects: projectsClient,
		TestRuns: runsClient,
		Users:    usersClient,
		AIModels: modelsClient,
		SpecDocs: specDocs,
		Config:   c,
		UI:       ui,
	})
}

func (a *app) close() {
	for _, unsub := range a.unsub {
		unsub()
	}
	if a.manager != nil {
		a.manager.Stop()
	}
	if err := a.store.Close(); err != nil {
		log.Err(err).Msg("Failed to close store")
	}
}
