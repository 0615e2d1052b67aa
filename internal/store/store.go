// Package store defines the contract of the backend holding tables, seats and sessions.
package store

import (
	"context"
	"errors"
	"fmt"

	"seatmanager/internal/model"
)

var (
	ErrSeatNotFound    = errors.New("seat not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Repository loads the seating collection and applies point updates to seats.
type Repository interface {
	// LoadAll returns every table with its seats, ordered by label.
	LoadAll(ctx context.Context) ([]model.Table, error)
	// SetGuestName writes the guest name and resets presence to absent.
	SetGuestName(ctx context.Context, seatID, name string) error
	// ClearGuest removes the guest and resets presence in one update.
	ClearGuest(ctx context.Context, seatID string) error
	SetPresence(ctx context.Context, seatID string, present bool) error
}

// SessionRegistry tracks login sessions for the capacity check.
type SessionRegistry interface {
	CountSessions(ctx context.Context) (int, error)
	InsertSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Backend is implemented by every concrete store.
type Backend interface {
	Repository
	SessionRegistry
	Ping(ctx context.Context) error
}

// FetchError reports a failed call to the backend.
type FetchError struct {
	Op     string
	SeatID string
	Err    error
}

func (e *FetchError) Error() string {
	if e.SeatID != "" {
		return fmt.Sprintf("%s seat %s: %v", e.Op, e.SeatID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, a FetchError otherwise.
func Wrap(op, seatID string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Op: op, SeatID: seatID, Err: err}
}
