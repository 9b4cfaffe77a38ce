// Package identity owns the session lifecycle: sign-up, sign-in, sign-out,
// snapshot persistence, reconciliation with the identity provider and periodic
// credential refresh.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/kvstore"
)

// SnapshotKey is the kvstore key holding the persisted session.
const SnapshotKey = "session.snapshot"

const defaultRefreshInterval = 45 * time.Minute

// registrationFailedMessage is shown when the identity account exists but the
// backend user record could not be created.
const registrationFailedMessage = "Your account was created but we could not finish setting it up. Please try signing in."

// Listener receives every session change.
type Listener func(session Session, state State)

type subscriber struct {
	id string
	fn Listener
}

// Manager coordinates the identity Provider with local session state.
type Manager struct {
	provider        Provider
	store           kvstore.Store
	registrar       Registrar
	refreshInterval time.Duration
	logger          zerolog.Logger
	nowFunc         func() time.Time

	mu          sync.RWMutex
	state       State
	session     *Session
	subscribers []subscriber

	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithRegistrar sets the backend registration step run after sign-up.
func WithRegistrar(registrar Registrar) Option {
	return func(m *Manager) {
		m.registrar = registrar
	}
}

// WithRefreshInterval overrides the background credential refresh period.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		m.refreshInterval = interval
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// NewManager builds a Manager and synchronously hydrates the persisted session
// so the first render already knows whether a user is signed in.
func NewManager(provider Provider, store kvstore.Store, options ...Option) (*Manager, error) {
	if provider == nil {
		return nil, errors.New("[NewManager] provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}

	m := &Manager{
		provider:        provider,
		store:           store,
		refreshInterval: defaultRefreshInterval,
		logger:          log.Logger,
		nowFunc:         time.Now,
		state:           StateAnonymous,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.refreshInterval <= 0 {
		m.refreshInterval = defaultRefreshInterval
	}

	m.hydrate()
	return m, nil
}

func (m *Manager) hydrate() {
	raw, ok, err := m.store.Get(SnapshotKey)
	if err != nil {
		m.logger.Warn().Err(err).Msg("reading session snapshot failed, starting anonymous")
		return
	}
	if !ok {
		return
	}

	s, err := decodeSnapshot(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("discarding corrupt session snapshot")
		if err := m.store.Delete(SnapshotKey); err != nil {
			m.logger.Error().Err(err).Msg("clearing corrupt session snapshot failed")
		}
		return
	}
	m.session = &s
	m.state = StateAuthenticated
}

// Session returns a copy of the current session, if any.
func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Credential implements transport.CredentialSource. An anonymous session
// yields an empty credential.
func (m *Manager) Credential(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return "", nil
	}
	return m.session.Credential, nil
}

// Subscribe registers fn for every session change and returns the function
// that removes it. Listeners run synchronously, after the state is updated.
func (m *Manager) Subscribe(fn Listener) func() {
	id := uuid.NewString()
	m.mu.Lock()
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Reconcile aligns the hydrated session with the provider's view. A provider
// reporting no session clears local state; any other failure leaves it alone.
func (m *Manager) Reconcile(ctx context.Context) error {
	current, hydrated := m.Session()

	principal, err := m.provider.Resume(ctx, current.Credential)
	if errors.Is(err, ErrNoSession) {
		if hydrated {
			m.logger.Info().Str("uid", current.PrincipalID).Msg("identity provider has no session, signing out locally")
			m.clear()
		}
		return nil
	}
	if err != nil {
		m.logger.Warn().Err(err).Msg("session reconciliation failed, keeping local session")
		return errors.Wrap(err, "[Manager.Reconcile] provider.Resume")
	}

	lastLogin := current.LastLoginAt
	if !hydrated || current.PrincipalID != principal.ID {
		lastLogin = m.nowFunc()
	}
	m.establish(principal, lastLogin)
	return nil
}

// SignIn authenticates with the provider and establishes the session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Session, error) {
	previous := m.setState(StateAuthenticating)

	principal, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		m.setState(previous)
		identityErr := asError(err)
		m.logger.Info().Err(err).Str("code", string(identityErr.Code)).Msg("sign-in failed")
		return Session{}, identityErr
	}
	return m.establish(principal, m.nowFunc()), nil
}

// SignUp creates the identity account, registers the user record with the
// backend using the new credential and then establishes the session. A
// registration failure is returned without undoing the identity account. The
// provider has switched to the new account by then, so any previous session
// is cleared rather than restored.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (Session, error) {
	previous := m.setState(StateAuthenticating)

	principal, err := m.provider.SignUp(ctx, req)
	if err != nil {
		m.setState(previous)
		identityErr := asError(err)
		m.logger.Info().Err(err).Str("code", string(identityErr.Code)).Msg("sign-up failed")
		return Session{}, identityErr
	}

	if m.registrar != nil {
		if err := m.registrar.Register(ctx, principal.Credential, *principal); err != nil {
			m.clear()
			m.logger.Error().Err(err).Str("uid", principal.ID).Msg("backend registration failed after identity account creation")
			return Session{}, &Error{Code: CodeUnknown, Message: registrationFailedMessage, Err: err}
		}
	}
	return m.establish(principal, m.nowFunc()), nil
}

// SignOut ends the provider session and clears local state. Local state is
// cleared even if the provider call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("provider sign-out failed")
	}
	m.clear()
	return errors.Wrap(err, "[Manager.SignOut] provider.SignOut")
}

// Refresh forces a new credential from the provider. On failure the session
// and its credential are left unchanged.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.State() != StateAuthenticated {
		return apperrors.ErrNotAuthenticated
	}

	credential, err := m.provider.Credential(ctx, true)
	if err != nil {
		m.logger.Warn().Err(err).Msg("credential refresh failed, keeping current credential")
		return errors.Wrap(err, "[Manager.Refresh] provider.Credential")
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return apperrors.ErrNotAuthenticated
	}
	m.session.Credential = credential
	m.session.IssuedAt = m.nowFunc()
	if claims, err := ParseCredentialClaims(credential); err == nil && !claims.IssuedAt.IsZero() {
		m.session.IssuedAt = claims.IssuedAt
	}
	s := *m.session
	m.persistLocked(s)
	subs, state := m.subscribersLocked(), m.state
	m.mu.Unlock()

	m.logger.Debug().Str("uid", s.PrincipalID).Msg("credential refreshed")
	notify(subs, s, state)
	return nil
}

// Start runs the periodic credential refresh until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopRefresh != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.stopRefresh, m.refreshDone = cancel, done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.State() == StateAuthenticated {
					_ = m.Refresh(ctx)
				}
			}
		}
	}()
}

// Stop ends the refresh loop started by Start and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.stopRefresh, m.refreshDone
	m.stopRefresh, m.refreshDone = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Manager) establish(p *Principal, lastLogin time.Time) Session {
	s := Session{
		PrincipalID:   p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		PhotoURL:      p.PhotoURL,
		EmailVerified: p.EmailVerified,
		Credential:    p.Credential,
		IssuedAt:      p.IssuedAt,
		LastLoginAt:   lastLogin,
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = m.nowFunc()
	}

	m.mu.Lock()
	m.session = &s
	m.state = StateAuthenticated
	m.persistLocked(s)
	subs := m.subscribersLocked()
	m.mu.Unlock()

	notify(subs, s, StateAuthenticated)
	return s
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.session = nil
	m.state = StateAnonymous
	if err := m.store.Delete(SnapshotKey); err != nil {
		m.logger.Error().Err(err).Msg("clearing session snapshot failed")
	}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	notify(subs, Session{}, StateAnonymous)
}

// setState changes only the coarse state and returns the previous one.
func (m *Manager) setState(state State) State {
	m.mu.Lock()
	previous := m.state
	m.state = state
	var s Session
	if m.session != nil {
		s = *m.session
	}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	if previous != state {
		notify(subs, s, state)
	}
	return previous
}

// persistLocked writes the snapshot. Callers hold m.mu.
func (m *Manager) persistLocked(s Session) {
	raw, err := encodeSnapshot(s)
	if err != nil {
		m.logger.Error().Err(err).Msg("encoding session snapshot failed")
		return
	}
	if err := m.store.Set(SnapshotKey, raw); err != nil {
		m.logger.Error().Err(err).Msg("persisting session snapshot failed")
	}
}

func (m *Manager) subscribersLocked() []subscriber {
	return append([]subscriber(nil), m.subscribers...)
}

func notify(subs []subscriber, s Session, state State) {
	for _, sub := range subs {
		sub.fn(s, state)
	}
}
