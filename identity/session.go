package identity

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/internal/utils"
)

// State is the coarse session state observed by the UI.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// Session is the client-side record of a signed-in principal.
type Session struct {
	PrincipalID   string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	Credential    string
	IssuedAt      time.Time
	LastLoginAt   time.Time
}

// snapshot is the persisted form of a Session.
type snapshot struct {
	UID           string     `json:"uid"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName,omitempty"`
	PhotoURL      string     `json:"photoURL,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	IDToken       string     `json:"idToken"`
}

func encodeSnapshot(s Session) ([]byte, error) {
	snap := snapshot{
		UID:           s.PrincipalID,
		Email:         s.Email,
		DisplayName:   s.DisplayName,
		PhotoURL:      s.PhotoURL,
		EmailVerified: s.EmailVerified,
		IDToken:       s.Credential,
	}
	if !s.LastLoginAt.IsZero() {
		lastLogin := s.LastLoginAt.UTC()
		snap.LastLoginAt = &lastLogin
	}
	return json.Marshal(snap)
}

func decodeSnapshot(raw []byte) (Session, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Session{}, apperrors.Wrapf(apperrors.ErrSessionCorrupt, "decode snapshot: %v", err)
	}
	if snap.UID == "" {
		return Session{}, errors.Wrap(apperrors.ErrSessionCorrupt, "snapshot has no uid")
	}

	s := Session{
		PrincipalID:   snap.UID,
		Email:         snap.Email,
		DisplayName:   snap.DisplayName,
		PhotoURL:      snap.PhotoURL,
		EmailVerified: snap.EmailVerified,
		Credential:    snap.IDToken,
		LastLoginAt:   utils.Value(snap.LastLoginAt),
	}
	if claims, err := ParseCredentialClaims(snap.IDToken); err == nil {
		s.IssuedAt = claims.IssuedAt
	}
	return s, nil
}
