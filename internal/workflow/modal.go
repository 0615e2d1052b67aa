package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"seatmanager/internal/events"
	"seatmanager/internal/metrics"
	"seatmanager/internal/model"
	"seatmanager/internal/store"
)

var (
	ErrBusy              = errors.New("another change is being submitted")
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrEmptyGuestName    = errors.New("guest name is empty")
	ErrTableNotFound     = errors.New("table not found")
	ErrSeatNotFound      = errors.New("seat not found at table")
	ErrSeatUnassigned    = errors.New("seat has no guest")
	ErrSeatAssigned      = errors.New("seat already has a guest")
)

// Collection is the loaded table collection the dialog reads from and reloads into.
type Collection interface {
	Table(id string) (model.Table, bool)
	SetTables(tables []model.Table)
}

// Snapshot describes the dialog for rendering.
type Snapshot struct {
	State        State        `json:"state"`
	Table        *model.Table `json:"table,omitempty"`
	ActiveSeatID string       `json:"active_seat_id,omitempty"`
	Input        string       `json:"input"`
	Editing      bool         `json:"editing"`
	RemovalSeat  string       `json:"removal_seat_id,omitempty"`
	Submitting   bool         `json:"submitting"`
}

// Modal is the management dialog of one user session.
type Modal struct {
	fsm    *FSM
	repo   store.Repository
	tables Collection
	bus    events.Publisher
	logger zerolog.Logger
	actor  string

	mu          sync.Mutex
	state       State
	table       model.Table
	seatID      string
	input       string
	hadGuest    bool
	removalSeat string
}

// NewModal creates a closed dialog. bus may be nil.
func NewModal(repo store.Repository, tables Collection, bus events.Publisher, actor string, logger zerolog.Logger) *Modal {
	return &Modal{
		fsm:    NewFSM(),
		repo:   repo,
		tables: tables,
		bus:    bus,
		actor:  actor,
		logger: logger.With().Str("component", "workflow").Str("actor", actor).Logger(),
		state:  StateClosed,
	}
}

func (m *Modal) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Modal) snapshot() Snapshot {
	s := Snapshot{
		State:        m.state,
		ActiveSeatID: m.seatID,
		Input:        m.input,
		Editing:      m.hadGuest,
		RemovalSeat:  m.removalSeat,
		Submitting:   m.state == StateSubmitting,
	}
	if m.state != StateClosed {
		t := m.table
		s.Table = &t
	}
	return s
}

// enter moves to state to. Callers hold the lock.
func (m *Modal) enter(to State) error {
	if m.state == StateSubmitting {
		return ErrBusy
	}
	if err := m.fsm.Transition(m.state, to); err != nil {
		return err
	}
	m.state = to
	return nil
}

func (m *Modal) resetSelection() {
	m.seatID = ""
	m.input = ""
	m.hadGuest = false
	m.removalSeat = ""
}

// Open shows the dialog for a table, clearing any seat selection.
func (m *Modal) Open(tableID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSubmitting {
		return m.snapshot(), ErrBusy
	}
	t, ok := m.tables.Table(tableID)
	if !ok {
		return m.snapshot(), ErrTableNotFound
	}
	if err := m.enter(StateTableSelected); err != nil {
		return m.snapshot(), err
	}
	m.table = t
	m.resetSelection()
	return m.snapshot(), nil
}

// SelectSeat starts assigning a guest to an empty seat.
func (m *Modal) SelectSeat(seatID string) (Snapshot, error) {
	return m.beginEdit(seatID, false)
}

// EditSeat starts renaming the guest of an occupied seat; the input is pre-filled.
func (m *Modal) EditSeat(seatID string) (Snapshot, error) {
	return m.beginEdit(seatID, true)
}

func (m *Modal) beginEdit(seatID string, wantAssigned bool) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat, err := m.seat(seatID)
	if err != nil {
		return m.snapshot(), err
	}
	switch {
	case wantAssigned && !seat.Assigned():
		return m.snapshot(), ErrSeatUnassigned
	case !wantAssigned && seat.Assigned():
		return m.snapshot(), ErrSeatAssigned
	}
	if err := m.enter(StateSeatEditing); err != nil {
		return m.snapshot(), err
	}
	m.resetSelection()
	m.seatID = seat.ID
	m.hadGuest = seat.Assigned()
	m.input = seat.Guest()
	return m.snapshot(), nil
}

// seat finds a seat of the open table. Callers hold the lock.
func (m *Modal) seat(seatID string) (model.Seat, error) {
	if m.state == StateSubmitting {
		return model.Seat{}, ErrBusy
	}
	if m.state == StateClosed {
		return model.Seat{}, fmt.Errorf("%w: dialog is closed", ErrInvalidTransition)
	}
	seat, ok := m.table.Seat(seatID)
	if !ok {
		return model.Seat{}, ErrSeatNotFound
	}
	return seat, nil
}

// SetInput replaces the guest name being edited.
func (m *Modal) SetInput(text string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSubmitting {
		return m.snapshot(), ErrBusy
	}
	if m.state != StateSeatEditing {
		return m.snapshot(), fmt.Errorf("%w: no seat is being edited", ErrInvalidTransition)
	}
	m.input = text
	return m.snapshot(), nil
}

// CancelEdit returns to the table without saving.
func (m *Modal) CancelEdit() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSeatEditing && m.state != StateSubmitting {
		return m.snapshot(), fmt.Errorf("%w: no seat is being edited", ErrInvalidTransition)
	}
	if err := m.enter(StateTableSelected); err != nil {
		return m.snapshot(), err
	}
	m.resetSelection()
	return m.snapshot(), nil
}

// Submit saves the edited guest name, reloads the collection and closes the dialog.
func (m *Modal) Submit(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state == StateSubmitting {
		defer m.mu.Unlock()
		return m.snapshot(), ErrBusy
	}
	if m.state != StateSeatEditing {
		defer m.mu.Unlock()
		return m.snapshot(), fmt.Errorf("%w: no seat is being edited", ErrInvalidTransition)
	}
	name := strings.TrimSpace(m.input)
	if name == "" {
		defer m.mu.Unlock()
		return m.snapshot(), ErrEmptyGuestName
	}

	seat, _ := m.table.Seat(m.seatID)
	eventType, action := events.SeatAssigned, "assign"
	if m.hadGuest {
		eventType, action = events.SeatRenamed, "edit"
	}
	_ = m.enter(StateSubmitting)
	m.mu.Unlock()

	err := m.repo.SetGuestName(ctx, seat.ID, name)
	seat.GuestName = model.Name(name)
	seat.Present = false
	return m.finish(ctx, action, eventType, seat, StateSeatEditing, StateClosed, err)
}

// RequestRemoval asks for confirmation before removing the guest of a seat.
func (m *Modal) RequestRemoval(seatID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat, err := m.seat(seatID)
	if err != nil {
		return m.snapshot(), err
	}
	if !seat.Assigned() {
		return m.snapshot(), ErrSeatUnassigned
	}
	if err := m.enter(StateConfirmingRemoval); err != nil {
		return m.snapshot(), err
	}
	m.resetSelection()
	m.removalSeat = seat.ID
	return m.snapshot(), nil
}

// CancelRemoval returns to the table without changes.
func (m *Modal) CancelRemoval() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConfirmingRemoval && m.state != StateSubmitting {
		return m.snapshot(), fmt.Errorf("%w: no removal to cancel", ErrInvalidTransition)
	}
	if err := m.enter(StateTableSelected); err != nil {
		return m.snapshot(), err
	}
	m.removalSeat = ""
	return m.snapshot(), nil
}

// ConfirmRemoval clears the guest, reloads the collection and closes the dialog.
func (m *Modal) ConfirmRemoval(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state == StateSubmitting {
		defer m.mu.Unlock()
		return m.snapshot(), ErrBusy
	}
	if m.state != StateConfirmingRemoval {
		defer m.mu.Unlock()
		return m.snapshot(), fmt.Errorf("%w: no removal to confirm", ErrInvalidTransition)
	}
	seat, _ := m.table.Seat(m.removalSeat)
	_ = m.enter(StateSubmitting)
	m.mu.Unlock()

	// The event keeps the removed guest's name.
	err := m.repo.ClearGuest(ctx, seat.ID)
	seat.Present = false
	return m.finish(ctx, "remove", events.SeatCleared, seat, StateConfirmingRemoval, StateClosed, err)
}

// TogglePresence flips presence of an occupied seat and keeps the dialog open.
func (m *Modal) TogglePresence(ctx context.Context, seatID string) (Snapshot, error) {
	m.mu.Lock()
	seat, err := m.seat(seatID)
	if err != nil {
		defer m.mu.Unlock()
		return m.snapshot(), err
	}
	if !seat.Assigned() {
		defer m.mu.Unlock()
		return m.snapshot(), ErrSeatUnassigned
	}
	if m.state != StateTableSelected {
		defer m.mu.Unlock()
		return m.snapshot(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, StateSubmitting)
	}
	_ = m.enter(StateSubmitting)
	m.mu.Unlock()

	err = m.repo.SetPresence(ctx, seat.ID, !seat.Present)
	seat.Present = !seat.Present
	return m.finish(ctx, "presence", events.SeatPresence, seat, StateTableSelected, StateTableSelected, err)
}

// Close hides the dialog unless a change is being submitted.
func (m *Modal) Close() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return m.snapshot(), nil
	}
	if err := m.enter(StateClosed); err != nil {
		return m.snapshot(), err
	}
	m.table = model.Table{}
	m.resetSelection()
	return m.snapshot(), nil
}

// finish completes a submission: on failure it restores onFail, otherwise it reloads
// the whole collection and moves to onSuccess.
func (m *Modal) finish(ctx context.Context, action, eventType string, seat model.Seat, onFail, onSuccess State, err error) (Snapshot, error) {
	if err != nil {
		m.logger.Error().Err(err).Str("action", action).Str("seat_id", seat.ID).Msg("seat change failed")
		m.mu.Lock()
		defer m.mu.Unlock()
		m.state = onFail
		return m.snapshot(), err
	}

	metrics.IncSeatMutation(action)
	m.logger.Info().Str("action", action).Str("table", m.table.Label).Str("seat_no", seat.SeatNo).Msg("seat changed")
	m.publish(eventType, seat)

	tables, loadErr := m.repo.LoadAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if loadErr != nil {
		m.logger.Error().Err(loadErr).Str("action", action).Msg("reload after seat change failed")
		m.state = StateTableSelected
		m.resetSelection()
		return m.snapshot(), fmt.Errorf("reload after %s: %w", action, loadErr)
	}
	m.tables.SetTables(tables)

	m.state = onSuccess
	m.resetSelection()
	if onSuccess == StateClosed {
		m.table = model.Table{}
		return m.snapshot(), nil
	}
	if t, ok := m.tables.Table(m.table.ID); ok {
		m.table = t
	} else {
		m.state = StateClosed
		m.table = model.Table{}
	}
	return m.snapshot(), nil
}

func (m *Modal) publish(eventType string, seat model.Seat) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.NewSeatEvent(eventType, events.SeatChange{
		TableID:   m.table.ID,
		TableName: m.table.Label,
		SeatID:    seat.ID,
		SeatNo:    seat.SeatNo,
		GuestName: seat.Guest(),
		Present:   seat.Present,
		Actor:     m.actor,
	}))
}
