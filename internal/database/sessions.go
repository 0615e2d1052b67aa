package database

import (
	"context"
	"time"

	"seatmanager/internal/metrics"
	"seatmanager/internal/store"
)

func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	metrics.IncStoreRequest("count sessions", err)
	if err != nil {
		return 0, store.Wrap("count sessions", "", err)
	}
	return count, nil
}

func (db *DB) InsertSession(ctx context.Context, sessionID string) error {
	_, err := db.ExecContext(ctx,
		db.rebind("INSERT INTO sessions (session_id, created_at) VALUES (?, ?)"),
		sessionID, time.Now().UTC(),
	)
	metrics.IncStoreRequest("insert session", err)
	return store.Wrap("insert session", "", err)
}

// DeleteSession returns store.ErrSessionNotFound for an unknown id.
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := db.ExecContext(ctx, db.rebind("DELETE FROM sessions WHERE session_id = ?"), sessionID)
	if err == nil {
		var n int64
		if n, err = res.RowsAffected(); err == nil && n == 0 {
			err = store.ErrSessionNotFound
		}
	}
	metrics.IncStoreRequest("delete session", err)
	return store.Wrap("delete session", "", err)
}
