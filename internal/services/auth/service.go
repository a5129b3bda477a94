// Package auth signs the operator in against the DCP backend and keeps the
// resulting token in the session store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dcpinventory-desktop/internal/api"
	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/session"

	"go.uber.org/zap"
)

// ErrNotSignedIn is returned when no session exists
var ErrNotSignedIn = errors.New("not signed in")

// Authenticator is the login endpoint
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.LoginResponse, error)
}

// User is the signed-in account as returned by the backend
type User struct {
	ID       UserID `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// UserID is the backend's account id. It arrives as a number or a string
// depending on the deployment and is kept as text.
type UserID string

// UnmarshalJSON accepts a JSON number, string or null
func (id *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a number or a string: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Service handles sign in and sign out
type Service struct {
	backend Authenticator
	store   session.Store
	log     *zap.SugaredLogger
}

// NewService creates an auth service
func NewService(backend Authenticator, store session.Store, log *zap.SugaredLogger) *Service {
	log = logging.OrNop(log)
	return &Service{backend: backend, store: store, log: log}
}

// Login exchanges credentials for a token and stores the session
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	resp, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	user := &User{}
	if len(resp.User) > 0 && string(resp.User) != "null" {
		if err := json.Unmarshal(resp.User, user); err != nil {
			s.log.Warnf("[auth] could not decode user profile: %v", err)
		}
	}
	if user.Username == "" {
		user.Username = username
	}

	profile, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.store.Set(session.KeyToken, resp.Token); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.store.Set(session.KeyUser, string(profile)); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.log.Infof("[auth] signed in as %s", user.Username)
	return user, nil
}

// Logout clears the session
func (s *Service) Logout() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.log.Info("[auth] signed out")
	return nil
}

// CurrentUser returns the signed-in user or ErrNotSignedIn
func (s *Service) CurrentUser() (*User, error) {
	token, ok := s.store.Get(session.KeyToken)
	if !ok || token == "" {
		return nil, ErrNotSignedIn
	}

	user := &User{}
	if raw, ok := s.store.Get(session.KeyUser); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), user); err != nil {
			return nil, fmt.Errorf("stored user is unreadable: %w", err)
		}
	}
	return user, nil
}
