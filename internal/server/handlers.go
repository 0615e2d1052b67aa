package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"seatmanager/internal/auth"
	"seatmanager/internal/export"
	"seatmanager/internal/model"
	"seatmanager/internal/seating"
	"seatmanager/internal/session"
	"seatmanager/internal/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type loginResponse struct {
	Username string         `json:"username"`
	Admin    bool           `json:"admin"`
	ViewMode model.ViewMode `json:"view_mode"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess, err := s.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return c.JSON(loginStatus(err), echo.Map{"error": auth.Message(err)})
	}

	prev := s.sessions.Load(c.Request())
	sc := session.Context{
		Authenticated: true,
		SessionID:     sess.ID,
		Admin:         sess.Admin(),
		Username:      sess.Username,
		ViewMode:      prev.ViewMode,
	}
	if err := s.sessions.Save(c.Response(), c.Request(), sc); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Username: sc.Username, Admin: sc.Admin, ViewMode: sc.ViewMode})
}

func loginStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrCapacityReached), errors.Is(err, auth.ErrLoginDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) logout(c echo.Context) error {
	sc := sessionFrom(c)
	if err := s.auth.Logout(c.Request().Context(), sc.SessionID); err != nil {
		// The cookie is cleared anyway; the row expires with the backend's own policy.
		s.logger.Error().Err(err).Msg("logout: delete session")
	}
	s.workspaces.Delete(sc.SessionID)
	if err := s.sessions.Clear(c.Response(), c.Request()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "logged out"})
}

func (s *Server) about(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":        "Wedding Seat Manager",
		"description": "Manage table seating, guest assignments and presence at the venue.",
		"version":     s.version,
	})
}

// reload replaces the workspace collection with a fresh copy from the store.
func (s *Server) reload(ctx context.Context, ws *Workspace) error {
	tables, err := s.repo.LoadAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("load tables")
		return err
	}
	ws.View.SetTables(tables)
	return nil
}

// ensureLoaded fills a fresh workspace, e.g. after a restart or idle expiry.
func (s *Server) ensureLoaded(c echo.Context, ws *Workspace) error {
	if ws.View.Loaded() {
		return nil
	}
	return s.reload(c.Request().Context(), ws)
}

func (s *Server) listTables(c echo.Context) error {
	var q tablesQuery
	if err := bind(c, &q); err != nil {
		return err
	}
	ws := s.workspace(c)

	if !ws.View.Loaded() || q.Refresh {
		if err := s.reload(c.Request().Context(), ws); err != nil {
			return err
		}
	}

	params := c.QueryParams()
	current := ws.View.Snapshot()
	if params.Has("filter") {
		f, err := model.ParseFilter(q.Filter)
		if err != nil {
			return err
		}
		if f != current.Filter {
			ws.View.SetFilter(f)
		}
	}
	if params.Has("q") && q.Query != current.Query {
		ws.View.SetQuery(q.Query)
	}
	if q.Page > 0 {
		ws.View.GoToPage(q.Page)
	}
	return c.JSON(http.StatusOK, ws.View.Snapshot())
}

func (s *Server) changePage(c echo.Context) error {
	var req pageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ws := s.workspace(c)
	switch {
	case req.Page > 0:
		ws.View.GoToPage(req.Page)
	case req.Action == "next":
		ws.View.NextPage()
	case req.Action == "prev":
		ws.View.PrevPage()
	}
	return c.JSON(http.StatusOK, ws.View.Snapshot())
}

func (s *Server) setViewMode(c echo.Context) error {
	var req viewModeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	mode, err := model.ParseViewMode(req.ViewMode)
	if err != nil {
		return err
	}

	sc := sessionFrom(c)
	sc.ViewMode = mode
	if err := s.sessions.Save(c.Response(), c.Request(), sc); err != nil {
		return err
	}
	ws := s.workspace(c)
	ws.View.SetViewMode(mode)
	return c.JSON(http.StatusOK, ws.View.Snapshot())
}

type matchResponse struct {
	TableID    string `json:"table_id"`
	TableLabel string `json:"table_label"`
	SeatID     string `json:"seat_id"`
	SeatNo     string `json:"seat_no"`
	GuestName  string `json:"guest_name"`
	Presence   string `json:"presence"`
}

func toMatches(matches []seating.Match) []matchResponse {
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchResponse{
			TableID:    m.Table.ID,
			TableLabel: m.Table.Label,
			SeatID:     m.Seat.ID,
			SeatNo:     m.Seat.SeatNo,
			GuestName:  m.Seat.Guest(),
			Presence:   m.Seat.Presence(),
		})
	}
	return out
}

func (s *Server) search(c echo.Context) error {
	ws := s.workspace(c)
	if err := s.ensureLoaded(c, ws); err != nil {
		return err
	}
	q := c.QueryParam("q")
	if q != ws.View.Snapshot().Query {
		ws.View.SetQuery(q)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"query":   q,
		"matches": toMatches(ws.View.QuickSearch()),
	})
}

type modalResponse struct {
	Modal workflow.Snapshot `json:"modal"`
	Page  seating.Page      `json:"page"`
}

func (s *Server) respondModal(c echo.Context, ws *Workspace, snap workflow.Snapshot, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, modalResponse{Modal: snap, Page: ws.View.Snapshot()})
}

func (s *Server) selectMatch(c echo.Context) error {
	var req seatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ws := s.workspace(c)
	if err := s.ensureLoaded(c, ws); err != nil {
		return err
	}
	t, err := ws.View.SelectMatch(req.SeatID)
	if err != nil {
		return err
	}
	snap, err := ws.Modal.Open(t.ID)
	return s.respondModal(c, ws, snap, err)
}

func (s *Server) modalSnapshot(c echo.Context) error {
	ws := s.workspace(c)
	return s.respondModal(c, ws, ws.Modal.Snapshot(), nil)
}

func (s *Server) openTable(c echo.Context) error {
	var req tableRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ws := s.workspace(c)
	if err := s.ensureLoaded(c, ws); err != nil {
		return err
	}
	snap, err := ws.Modal.Open(req.TableID)
	return s.respondModal(c, ws, snap, err)
}

func (s *Server) setInput(c echo.Context) error {
	var req inputRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ws := s.workspace(c)
	snap, err := ws.Modal.SetInput(req.Text)
	return s.respondModal(c, ws, snap, err)
}

func (s *Server) togglePresence(c echo.Context) error {
	var req seatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ws := s.workspace(c)
	snap, err := ws.Modal.TogglePresence(c.Request().Context(), req.SeatID)
	return s.respondModal(c, ws, snap, err)
}

// seatAction adapts a dialog operation taking a seat id.
func (s *Server) seatAction(op func(*workflow.Modal, string) (workflow.Snapshot, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req seatRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ws := s.workspace(c)
		snap, err := op(ws.Modal, req.SeatID)
		return s.respondModal(c, ws, snap, err)
	}
}

// ctxAction adapts a dialog operation that talks to the store.
func (s *Server) ctxAction(op func(*workflow.Modal, context.Context) (workflow.Snapshot, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws := s.workspace(c)
		snap, err := op(ws.Modal, c.Request().Context())
		return s.respondModal(c, ws, snap, err)
	}
}

func (s *Server) action(op func(*workflow.Modal) (workflow.Snapshot, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws := s.workspace(c)
		snap, err := op(ws.Modal)
		return s.respondModal(c, ws, snap, err)
	}
}

func (s *Server) exportChart(c echo.Context) error {
	tables, err := s.repo.LoadAll(c.Request().Context())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.WriteSeatingChart(&buf, tables); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="seating-chart.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
