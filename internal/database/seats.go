package database

import (
	"context"
	"database/sql"

	"seatmanager/internal/metrics"
	"seatmanager/internal/model"
	"seatmanager/internal/store"
)

// LoadAll returns every table with seats, ordered by label and seat number.
func (db *DB) LoadAll(ctx context.Context) ([]model.Table, error) {
	const q = `SELECT t.id, t.label, s.id, s.seat_no, s.guest_name, s.is_present
		FROM tables t
		LEFT JOIN seats s ON s.table_id = t.id
		ORDER BY t.label ASC, t.id ASC, LENGTH(s.seat_no) ASC, s.seat_no ASC`

	tables, err := db.loadAll(ctx, q)
	metrics.IncStoreRequest("load_tables", err)
	if err != nil {
		return nil, store.Wrap("load tables", "", err)
	}
	return tables, nil
}

func (db *DB) loadAll(ctx context.Context, q string) ([]model.Table, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []model.Table{}
	for rows.Next() {
		var (
			tableID, label string
			seatID, seatNo sql.NullString
			guestName      sql.NullString
			isPresent      sql.NullBool
		)
		if err := rows.Scan(&tableID, &label, &seatID, &seatNo, &guestName, &isPresent); err != nil {
			return nil, err
		}
		if n := len(tables); n == 0 || tables[n-1].ID != tableID {
			tables = append(tables, model.Table{ID: tableID, Label: label, Seats: []model.Seat{}})
		}
		if !seatID.Valid {
			continue
		}
		seat := model.Seat{ID: seatID.String, SeatNo: seatNo.String}
		if guestName.Valid {
			seat.GuestName = model.Name(guestName.String)
			seat.Present = isPresent.Valid && isPresent.Bool
		}
		last := &tables[len(tables)-1]
		last.Seats = append(last.Seats, seat)
	}
	return tables, rows.Err()
}

// SetGuestName assigns or renames the guest and resets presence to absent.
func (db *DB) SetGuestName(ctx context.Context, seatID, name string) error {
	return db.updateSeat(ctx, "set guest name", seatID,
		"UPDATE seats SET guest_name = ?, is_present = ? WHERE id = ?", name, false, seatID)
}

// ClearGuest is idempotent for an existing seat.
func (db *DB) ClearGuest(ctx context.Context, seatID string) error {
	return db.updateSeat(ctx, "clear guest", seatID,
		"UPDATE seats SET guest_name = NULL, is_present = ? WHERE id = ?", false, seatID)
}

func (db *DB) SetPresence(ctx context.Context, seatID string, present bool) error {
	return db.updateSeat(ctx, "set presence", seatID,
		"UPDATE seats SET is_present = ? WHERE id = ?", present, seatID)
}

func (db *DB) updateSeat(ctx context.Context, op, seatID, q string, args ...any) error {
	res, err := db.ExecContext(ctx, db.rebind(q), args...)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = store.ErrSeatNotFound
		}
	}
	metrics.IncStoreRequest(op, err)
	return store.Wrap(op, seatID, err)
}
