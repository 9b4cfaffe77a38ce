// Package uistate holds process-wide ephemeral view state: the single active
// notification banner and whether the sidebar is open. Nothing here is persisted.
package uistate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
)

// ErrorBannerDuration is how long NotifyError keeps a banner visible.
const ErrorBannerDuration = 5 * time.Second

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notification struct {
	ID      string
	Message string
	Kind    Kind
	ShownAt time.Time
}

// State is a copy of the store's contents handed to subscribers.
type State struct {
	Notification *Notification
	SidebarOpen  bool
}

// Timer is the handle of a scheduled dismissal.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

type subscriber struct {
	id string
	fn func(State)
}

type Store struct {
	mu           sync.Mutex
	notification *Notification
	timer        Timer
	sidebarOpen  bool
	subscribers  []subscriber

	afterFunc AfterFunc
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

// WithAfterFunc replaces time.AfterFunc (primarily for testing)
func WithAfterFunc(afterFunc AfterFunc) Option {
	return func(s *Store) {
		s.afterFunc = afterFunc
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(options ...Option) *Store {
	s := &Store{
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// ShowNotification replaces the active notification and returns its id. A
// non-positive duration keeps it until DismissNotification is called.
func (s *Store) ShowNotification(message string, kind Kind, duration time.Duration) string {
	n := &Notification{ID: uuid.NewString(), Message: message, Kind: kind, ShownAt: s.nowFunc()}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.notification = n
	if duration > 0 {
		s.timer = s.afterFunc(duration, func() { s.DismissNotification(n.ID) })
	}
	state, subs := s.stateLocked(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return n.ID
}

// DismissNotification clears the active notification if it is still id.
func (s *Store) DismissNotification(id string) bool {
	s.mu.Lock()
	if s.notification == nil || s.notification.ID != id {
		s.mu.Unlock()
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.notification = nil
	state, subs := s.stateLocked(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return true
}

// NotifyError shows the display message of err as an error banner.
func (s *Store) NotifyError(err error) string {
	if err == nil {
		return ""
	}
	s.logger.Debug().Err(err).Msg("showing error banner")
	return s.ShowNotification(apperrors.DisplayMessage(err), KindError, ErrorBannerDuration)
}

func (s *Store) Notification() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notification == nil {
		return Notification{}, false
	}
	return *s.notification, true
}

func (s *Store) SidebarOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarOpen
}

func (s *Store) SetSidebarOpen(open bool) {
	s.mu.Lock()
	if s.sidebarOpen == open {
		s.mu.Unlock()
		return
	}
	s.sidebarOpen = open
	state, subs := s.stateLocked(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
}

// ToggleSidebar flips the sidebar and returns the new value.
func (s *Store) ToggleSidebar() bool {
	s.mu.Lock()
	s.sidebarOpen = !s.sidebarOpen
	open := s.sidebarOpen
	state, subs := s.stateLocked(), s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return open
}

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) stateLocked() State {
	state := State{SidebarOpen: s.sidebarOpen}
	if s.notification != nil {
		n := *s.notification
		state.Notification = &n
	}
	return state
}

func (s *Store) subscribersLocked() []subscriber {
	return append([]subscriber(nil), s.subscribers...)
}

func notify(subs []subscriber, state State) {
	for _, sub := range subs {
		sub.fn(state)
	}
}
