package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"seatmanager/internal/model"
)

// Seed provisions count tables of model.Capacity seats when the store has no tables yet.
// It returns the number of tables created.
func (db *DB) Seed(ctx context.Context, count int) (int, error) {
	var existing int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tables").Scan(&existing); err != nil {
		return 0, fmt.Errorf("count tables: %w", err)
	}
	if existing > 0 || count <= 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	insertTable := db.rebind("INSERT INTO tables (id, label) VALUES (?, ?)")
	insertSeat := db.rebind("INSERT INTO seats (id, table_id, seat_no, is_present) VALUES (?, ?, ?, ?)")
	width := len(strconv.Itoa(count))
	if width < 2 {
		width = 2
	}

	for i := 1; i <= count; i++ {
		tableID := uuid.NewString()
		label := fmt.Sprintf("Table %0*d", width, i)
		if _, err := tx.ExecContext(ctx, insertTable, tableID, label); err != nil {
			return 0, fmt.Errorf("insert table %s: %w", label, err)
		}
		for n := 1; n <= model.Capacity; n++ {
			if _, err := tx.ExecContext(ctx, insertSeat, uuid.NewString(), tableID, strconv.Itoa(n), false); err != nil {
				return 0, fmt.Errorf("insert seat %d of %s: %w", n, label, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return count, nil
}
