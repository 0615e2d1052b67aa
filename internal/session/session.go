// Package session keeps the per-browser login state in a signed cookie.
package session

import (
	"net/http"

	"github.com/gorilla/sessions"

	"seatmanager/internal/model"
)

const cookieName = "seat-session"

const (
	keyAuthenticated = "authenticated"
	keySessionID     = "session_id"
	keyAdmin         = "admin"
	keyUsername      = "username"
	keyViewMode      = "view_mode"
)

// Context is the application state of one browser. It is read once per request
// with Load and written back with Save.
type Context struct {
	Authenticated bool
	SessionID     string
	Admin         bool
	Username      string
	ViewMode      model.ViewMode
}

// Manager loads and saves Context values.
type Manager struct {
	store *sessions.CookieStore
}

func NewManager(secret string, maxAge int, secure bool) *Manager {
	st := sessions.NewCookieStore([]byte(secret))
	st.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: st}
}

// Load never fails: a missing or tampered cookie yields a logged out context.
func (m *Manager) Load(r *http.Request) Context {
	s, _ := m.store.Get(r, cookieName)

	c := Context{}
	c.Authenticated, _ = s.Values[keyAuthenticated].(bool)
	c.SessionID, _ = s.Values[keySessionID].(string)
	c.Admin, _ = s.Values[keyAdmin].(bool)
	c.Username, _ = s.Values[keyUsername].(string)

	mode, _ := s.Values[keyViewMode].(string)
	c.ViewMode, _ = model.ParseViewMode(mode)

	if c.SessionID == "" {
		c.Authenticated = false
		c.Admin = false
	}
	return c
}

func (m *Manager) Save(w http.ResponseWriter, r *http.Request, c Context) error {
	s, _ := m.store.Get(r, cookieName)
	s.Values[keyAuthenticated] = c.Authenticated
	s.Values[keySessionID] = c.SessionID
	s.Values[keyAdmin] = c.Admin
	s.Values[keyUsername] = c.Username
	s.Values[keyViewMode] = string(c.ViewMode)
	return s.Save(r, w)
}

// Clear logs the browser out but keeps its view mode preference.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	c := m.Load(r)
	return m.Save(w, r, Context{ViewMode: c.ViewMode})
}
