package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"seatmanager/internal/events"
)

// AuditEntry records one committed seat change.
type AuditEntry struct {
	ID        string
	Action    string
	TableID   string
	SeatID    string
	GuestName string
	Actor     string
	CreatedAt time.Time
}

// RecordEvent is an events.EventHandler writing seat events to the audit log.
func (db *DB) RecordEvent(e events.Event) error {
	change, err := e.SeatChange()
	if err != nil {
		return fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.RecordAudit(ctx, AuditEntry{
		Action:    e.Type,
		TableID:   change.TableID,
		SeatID:    change.SeatID,
		GuestName: change.GuestName,
		Actor:     change.Actor,
		CreatedAt: e.CreatedAt,
	})
}

// RecordAudit stores the entry, filling ID and CreatedAt when empty.
func (db *DB) RecordAudit(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, db.rebind(
		`INSERT INTO audit_log (id, action, table_id, seat_id, guest_name, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Action, nullString(e.TableID), e.SeatID, nullString(e.GuestName), nullString(e.Actor), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first.
func (db *DB) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, db.rebind(
		`SELECT id, action, table_id, seat_id, guest_name, actor, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var tableID, guest, actor sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &tableID, &e.SeatID, &guest, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TableID, e.GuestName, e.Actor = tableID.String, guest.String, actor.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
