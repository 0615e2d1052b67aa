// Package auth checks credentials from configuration and tracks active sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"seatmanager/internal/config"
	"seatmanager/internal/metrics"
	"seatmanager/internal/store"
)

type Role string

const (
	RoleRejected Role = "rejected"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrCapacityReached    = errors.New("maximum number of sessions reached")
	ErrLoginDisabled      = errors.New("login disabled")
	ErrRateLimited        = errors.New("too many login attempts")
)

// Message returns the text shown to the user for a login error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, ErrCapacityReached):
		return "Maximum number of users reached. Please try again later."
	case errors.Is(err, ErrLoginDisabled):
		return "Login unavailable - try again later."
	case errors.Is(err, ErrRateLimited):
		return "Too many login attempts. Please try again later."
	default:
		return "Login failed. Please try again."
	}
}

// Session is the result of a successful login.
type Session struct {
	ID       string
	Username string
	Role     Role
}

func (s Session) Admin() bool { return s.Role == RoleAdmin }

// Authenticator implements the login flow over a session registry.
type Authenticator struct {
	sessions store.SessionRegistry
	logger   zerolog.Logger

	mu           sync.RWMutex
	users        map[string]config.UserConfig
	maxSessions  int
	loginEnabled bool
	limiter      *rate.Limiter
}

func NewAuthenticator(cfg config.AuthConfig, sessions store.SessionRegistry, logger zerolog.Logger) *Authenticator {
	a := &Authenticator{
		sessions: sessions,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
	a.Update(cfg)
	return a
}

// Update replaces users and login limits, used when the config file changes.
func (a *Authenticator) Update(cfg config.AuthConfig) {
	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u
	}

	var limiter *rate.Limiter
	if cfg.LoginRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.LoginRatePerMinute)), cfg.LoginRatePerMinute)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users = users
	a.maxSessions = cfg.MaxSessions
	a.loginEnabled = cfg.LoginAllowed()
	a.limiter = limiter
}

// Authenticate compares the password with the configured bcrypt hash.
func (a *Authenticator) Authenticate(username, password string) Role {
	a.mu.RLock()
	u, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !VerifyPassword(u.PasswordHash, password) {
		return RoleRejected
	}
	if u.Admin {
		return RoleAdmin
	}
	return RoleStaff
}

// SessionCapacityRemaining reports how many more sessions may log in. It is 0
// when the registry cannot be read.
func (a *Authenticator) SessionCapacityRemaining(ctx context.Context) int {
	n, err := a.remaining(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("count sessions")
		return 0
	}
	return n
}

func (a *Authenticator) remaining(ctx context.Context) (int, error) {
	count, err := a.sessions.CountSessions(ctx)
	if err != nil {
		return 0, err
	}
	a.mu.RLock()
	limit := a.maxSessions
	a.mu.RUnlock()
	if count >= limit {
		return 0, nil
	}
	return limit - count, nil
}

// Login checks capacity, then credentials, then the kill switch, and records a new session.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	a.mu.RLock()
	limiter, enabled := a.limiter, a.loginEnabled
	a.mu.RUnlock()

	if limiter != nil && !limiter.Allow() {
		metrics.IncLogin("throttled")
		return Session{}, ErrRateLimited
	}

	left, err := a.remaining(ctx)
	if err != nil {
		metrics.IncLogin("error")
		a.logger.Error().Err(err).Msg("login: count sessions")
		return Session{}, fmt.Errorf("count sessions: %w", err)
	}
	if left == 0 {
		metrics.IncLogin("capacity")
		return Session{}, ErrCapacityReached
	}

	role := a.Authenticate(username, password)
	if role == RoleRejected {
		metrics.IncLogin("rejected")
		a.logger.Warn().Str("username", username).Msg("login rejected")
		return Session{}, ErrInvalidCredentials
	}
	if !enabled {
		metrics.IncLogin("disabled")
		return Session{}, ErrLoginDisabled
	}

	s := Session{ID: uuid.NewString(), Username: username, Role: role}
	if err := a.sessions.InsertSession(ctx, s.ID); err != nil {
		metrics.IncLogin("error")
		a.logger.Error().Err(err).Msg("login: insert session")
		return Session{}, fmt.Errorf("insert session: %w", err)
	}

	metrics.IncLogin("ok")
	a.logger.Info().Str("username", username).Str("role", string(role)).Msg("user logged in")
	return s, nil
}

// Logout removes the session row. An unknown session is not an error.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := a.sessions.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// HashPassword returns a bcrypt hash for the auth.users section of the config.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
