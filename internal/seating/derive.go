package seating

import (
	"strings"

	"seatmanager/internal/model"
)

// PageSize is the number of tables shown per page.
const PageSize = 24

// ApplyFilter keeps the tables matching f, preserving order.
func ApplyFilter(tables []model.Table, f model.Filter) []model.Table {
	out := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Search keeps tables with a guest whose name contains query, ignoring case.
// An empty query returns the input unchanged.
func Search(tables []model.Table, query string) []model.Table {
	if query == "" {
		return tables
	}
	q := strings.ToLower(query)
	out := make([]model.Table, 0, len(tables))
	for _, t := range tables {
		for _, s := range t.Seats {
			if s.Assigned() && strings.Contains(strings.ToLower(s.Guest()), q) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// PageCount is ceil(count / PageSize).
func PageCount(count int) int {
	return (count + PageSize - 1) / PageSize
}

// Paginate returns the 1-based page of tables; out of range pages are empty.
func Paginate(tables []model.Table, page int) []model.Table {
	if page < 1 {
		return nil
	}
	start := (page - 1) * PageSize
	if start >= len(tables) {
		return nil
	}
	end := start + PageSize
	if end > len(tables) {
		end = len(tables)
	}
	return tables[start:end]
}

// GuestCount sums occupancy over tables.
func GuestCount(tables []model.Table) int {
	total := 0
	for _, t := range tables {
		total += model.Occupancy(t)
	}
	return total
}

// Match is one quick-search hit.
type Match struct {
	Table model.Table `json:"table"`
	Seat  model.Seat  `json:"seat"`
}

// FindGuests scans every seat of every table for guests matching query.
func FindGuests(tables []model.Table, query string) []Match {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)
	var out []Match
	for _, t := range tables {
		for _, s := range t.Seats {
			if s.Assigned() && strings.Contains(strings.ToLower(s.Guest()), q) {
				out = append(out, Match{Table: t, Seat: s})
			}
		}
	}
	return out
}
