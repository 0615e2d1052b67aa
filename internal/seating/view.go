// Package seating derives the visible table listing from the loaded collection.
package seating

import (
	"errors"
	"sync"

	"seatmanager/internal/model"
)

var ErrMatchNotFound = errors.New("no quick search match for seat")

// Page is a consistent snapshot of the listing.
type Page struct {
	Tables        []model.Table  `json:"tables"`
	Page          int            `json:"page"`
	PageCount     int            `json:"page_count"`
	FilteredCount int            `json:"filtered_count"`
	GuestCount    int            `json:"guest_count"`
	HasPrev       bool           `json:"has_prev"`
	HasNext       bool           `json:"has_next"`
	Filter        model.Filter   `json:"filter"`
	ViewMode      model.ViewMode `json:"view_mode"`
	Query         string         `json:"query"`
	Loaded        bool           `json:"loaded"`
}

// View holds the listing state of one user session.
type View struct {
	mu       sync.RWMutex
	tables   []model.Table
	loaded   bool
	filter   model.Filter
	viewMode model.ViewMode
	query    string
	page     int
}

// NewView creates an unloaded view on page 1 showing all tables.
func NewView(mode model.ViewMode) *View {
	if mode == "" {
		mode = model.ViewGrid
	}
	return &View{filter: model.FilterAll, viewMode: mode, page: 1}
}

// SetTables replaces the whole collection.
func (v *View) SetTables(tables []model.Table) {
	cp := make([]model.Table, len(tables))
	copy(cp, tables)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.tables = cp
	v.loaded = true
}

func (v *View) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

// Tables returns the full loaded collection.
func (v *View) Tables() []model.Table {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make([]model.Table, len(v.tables))
	copy(cp, v.tables)
	return cp
}

// Table looks up a loaded table by id.
func (v *View) Table(id string) (model.Table, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, t := range v.tables {
		if t.ID == id {
			return t, true
		}
	}
	return model.Table{}, false
}

// SetFilter changes the filter and goes back to page 1.
func (v *View) SetFilter(f model.Filter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = f
	v.page = 1
}

// SetQuery changes the search text and goes back to page 1.
func (v *View) SetQuery(q string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = q
	v.page = 1
}

// SetViewMode keeps the current page.
func (v *View) SetViewMode(m model.ViewMode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewMode = m
}

func (v *View) ViewMode() model.ViewMode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.viewMode
}

func (v *View) NextPage() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.goTo(v.clampedPage() + 1)
}

func (v *View) PrevPage() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.goTo(v.clampedPage() - 1)
}

// GoToPage moves to page n; pages outside [1, PageCount] are ignored.
func (v *View) GoToPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.goTo(n)
}

func (v *View) goTo(n int) {
	last := PageCount(len(v.visible()))
	if n < 1 || (n > last && n != 1) {
		return
	}
	v.page = n
}

// visible applies filter then search. Callers hold the lock.
func (v *View) visible() []model.Table {
	return Search(ApplyFilter(v.tables, v.filter), v.query)
}

// clampedPage keeps the stored page inside the current page range.
func (v *View) clampedPage() int {
	last := PageCount(len(v.visible()))
	if last == 0 || v.page < 1 {
		return 1
	}
	if v.page > last {
		return last
	}
	return v.page
}

// Snapshot derives the visible page from the current collection and settings.
func (v *View) Snapshot() Page {
	v.mu.RLock()
	defer v.mu.RUnlock()

	visible := v.visible()
	page := v.clampedPage()
	count := PageCount(len(visible))
	return Page{
		Tables:        Paginate(visible, page),
		Page:          page,
		PageCount:     count,
		FilteredCount: len(visible),
		GuestCount:    GuestCount(visible),
		HasPrev:       page > 1,
		HasNext:       page < count,
		Filter:        v.filter,
		ViewMode:      v.viewMode,
		Query:         v.query,
		Loaded:        v.loaded,
	}
}

// QuickSearch matches the current query against the whole collection, ignoring the filter.
func (v *View) QuickSearch() []Match {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return FindGuests(v.tables, v.query)
}

// SelectMatch returns the table of the matched seat and clears the query.
func (v *View) SelectMatch(seatID string) (model.Table, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range FindGuests(v.tables, v.query) {
		if m.Seat.ID == seatID {
			v.query = ""
			v.page = 1
			return m.Table, nil
		}
	}
	return model.Table{}, ErrMatchNotFound
}
