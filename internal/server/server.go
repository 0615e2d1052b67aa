// Package server exposes the seating dashboard as a JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"seatmanager/internal/auth"
	"seatmanager/internal/events"
	"seatmanager/internal/metrics"
	"seatmanager/internal/model"
	"seatmanager/internal/seating"
	"seatmanager/internal/session"
	"seatmanager/internal/store"
	"seatmanager/internal/workflow"
)

const ctxSession = "session"

// Config bundles the collaborators of the API.
type Config struct {
	Repo        store.Repository
	Auth        *auth.Authenticator
	Sessions    *session.Manager
	Bus         events.Publisher
	Logger      zerolog.Logger
	IdleTimeout time.Duration
	Version     string
}

type Server struct {
	echo       *echo.Echo
	repo       store.Repository
	auth       *auth.Authenticator
	sessions   *session.Manager
	workspaces *WorkspaceStore
	logger     zerolog.Logger
	version    string
}

func New(cfg Config) *Server {
	s := &Server{
		echo:     echo.New(),
		repo:     cfg.Repo,
		auth:     cfg.Auth,
		sessions: cfg.Sessions,
		logger:   cfg.Logger.With().Str("component", "server").Logger(),
		version:  cfg.Version,
	}
	s.workspaces = NewWorkspaceStore(cfg.IdleTimeout, func(actor string) *Workspace {
		view := seating.NewView(model.ViewGrid)
		return &Workspace{
			View:  view,
			Modal: workflow.NewModal(cfg.Repo, view, cfg.Bus, actor, cfg.Logger),
		}
	})

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(s.observe)
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.POST("/api/login", s.login)
	e.GET("/api/about", s.about)

	api := e.Group("/api", s.requireAuth)
	api.POST("/logout", s.logout)
	api.GET("/tables", s.listTables)
	api.POST("/tables/page", s.changePage)
	api.PUT("/view-mode", s.setViewMode)
	api.GET("/search", s.search)
	api.POST("/search/select", s.selectMatch)

	m := api.Group("/modal")
	m.GET("", s.modalSnapshot)
	m.POST("/open", s.openTable)
	m.POST("/seat", s.seatAction((*workflow.Modal).SelectSeat))
	m.POST("/edit", s.seatAction((*workflow.Modal).EditSeat))
	m.POST("/input", s.setInput)
	m.POST("/submit", s.ctxAction((*workflow.Modal).Submit))
	m.POST("/cancel", s.action((*workflow.Modal).CancelEdit))
	m.POST("/remove", s.seatAction((*workflow.Modal).RequestRemoval))
	m.POST("/remove/confirm", s.ctxAction((*workflow.Modal).ConfirmRemoval))
	m.POST("/remove/cancel", s.action((*workflow.Modal).CancelRemoval))
	m.POST("/presence", s.togglePresence)
	m.POST("/close", s.action((*workflow.Modal).Close))

	api.GET("/export.xlsx", s.exportChart, s.requireAdmin)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})
}

// ServeHTTP lets the server be mounted or tested as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.workspaces.Cleanup(); n > 0 {
				s.logger.Debug().Int("removed", n).Msg("expired workspaces removed")
			}
		}
	}
}

func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		route := c.Path()
		if route == "" || route == "/*" {
			route = "unmatched"
		}
		status := c.Response().Status
		metrics.IncHTTP(route, strconv.Itoa(status))
		s.logger.Debug().
			Str("method", c.Request().Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
		return nil
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sc := s.sessions.Load(c.Request())
		if !sc.Authenticated {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		c.Set(ctxSession, sc)
		return next(c)
	}
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !sessionFrom(c).Admin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return next(c)
	}
}

func sessionFrom(c echo.Context) session.Context {
	sc, _ := c.Get(ctxSession).(session.Context)
	return sc
}

// workspace returns the workspace of the request's session, seeding its view
// mode from the cookie the first time.
func (s *Server) workspace(c echo.Context) *Workspace {
	sc := sessionFrom(c)
	ws := s.workspaces.GetOrCreate(sc.SessionID, sc.Username)
	if !ws.View.Loaded() {
		ws.View.SetViewMode(sc.ViewMode)
	}
	return ws
}

// bind decodes the request and runs its ozzo validation rules.
func bind(c echo.Context, req validation.Validatable) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return req.Validate()
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := s.classify(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("route", c.Path()).Msg("request failed")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("write error response")
	}
}

func (s *Server) classify(err error) (int, string) {
	var he *echo.HTTPError
	var verrs validation.Errors
	var fe *store.FetchError

	switch {
	case errors.As(err, &he):
		if he.Code == http.StatusNotFound {
			return he.Code, "not found"
		}
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.As(err, &verrs):
		return http.StatusBadRequest, verrs.Error()
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, workflow.ErrEmptyGuestName),
		errors.Is(err, workflow.ErrSeatUnassigned),
		errors.Is(err, workflow.ErrSeatAssigned),
		errors.Is(err, model.ErrUnknownFilter),
		errors.Is(err, model.ErrUnknownViewMode):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, workflow.ErrTableNotFound),
		errors.Is(err, workflow.ErrSeatNotFound),
		errors.Is(err, seating.ErrMatchNotFound),
		errors.Is(err, store.ErrSeatNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &fe):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
