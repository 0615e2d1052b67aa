package model

import (
	"errors"
	"strings"
)

// Capacity is the fixed number of seats at every table.
const Capacity = 8

// Seat is one place at a table. A nil GuestName means the seat is free.
type Seat struct {
	ID        string  `json:"id"`
	SeatNo    string  `json:"seat_no"`
	GuestName *string `json:"guest_name"`
	Present   bool    `json:"is_present"`
}

// Table is a labelled group of Capacity seats.
type Table struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Seats []Seat `json:"seats"`
}

// Assigned reports whether a guest holds the seat.
func (s Seat) Assigned() bool {
	return s.GuestName != nil
}

// Guest returns the guest name or "" for an unassigned seat.
func (s Seat) Guest() string {
	if s.GuestName == nil {
		return ""
	}
	return *s.GuestName
}

// Presence is "present" only for an assigned seat flagged present.
func (s Seat) Presence() string {
	if s.Assigned() && s.Present {
		return "present"
	}
	return "absent"
}

// Seat looks up a seat of the table by id.
func (t Table) Seat(id string) (Seat, bool) {
	for _, s := range t.Seats {
		if s.ID == id {
			return s, true
		}
	}
	return Seat{}, false
}

// Occupancy counts seats holding a guest.
func Occupancy(t Table) int {
	filled := 0
	for _, s := range t.Seats {
		if s.Assigned() {
			filled++
		}
	}
	if filled > Capacity {
		return Capacity
	}
	return filled
}

// FillPercentage is the occupancy of t as a percentage of Capacity.
func FillPercentage(t Table) float64 {
	return float64(Occupancy(t)) / Capacity * 100
}

// Status is the human readable fill state of a table.
type Status string

const (
	StatusEmpty      Status = "Empty"
	StatusInProgress Status = "In Progress"
	StatusComplete   Status = "Complete"
)

// StatusLabel derives the Status of t from its occupancy.
func StatusLabel(t Table) Status {
	switch Occupancy(t) {
	case 0:
		return StatusEmpty
	case Capacity:
		return StatusComplete
	default:
		return StatusInProgress
	}
}

// Name returns a pointer suitable for Seat.GuestName.
func Name(s string) *string {
	return &s
}

var (
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrUnknownViewMode = errors.New("unknown view mode")
)

// Filter narrows the table listing by occupancy.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterAvailable Filter = "available"
	FilterTaken     Filter = "taken"
)

// ParseFilter accepts "all", "available" or "taken" in any case.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterAvailable, FilterTaken:
		return f, nil
	}
	return FilterAll, ErrUnknownFilter
}

// Match applies the occupancy predicate of the filter.
func (f Filter) Match(t Table) bool {
	switch f {
	case FilterAvailable:
		return Occupancy(t) < Capacity
	case FilterTaken:
		return Occupancy(t) == Capacity
	default:
		return true
	}
}

// Label is the display name of the filter.
func (f Filter) Label() string {
	switch f {
	case FilterAvailable:
		return "Available Tables"
	case FilterTaken:
		return "Fully Seated"
	default:
		return "All Tables"
	}
}

// ViewMode selects the grid or list layout of the listing.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// ParseViewMode accepts "grid" or "list" in any case.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewGrid, ViewList:
		return m, nil
	}
	return ViewGrid, ErrUnknownViewMode
}
