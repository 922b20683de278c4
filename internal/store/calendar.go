package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Hemesh11/autotasker/internal/tools"
)

func (d *DB) AddEvent(ctx context.Context, ev tools.CalendarEvent) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	query := `INSERT INTO calendar_events (title, start_at, duration_minutes, location, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := d.DB.ExecContext(ctx, query,
		ev.Title, formatTime(ev.Start), int(ev.Duration/time.Minute),
		ev.Location, ev.Notes, formatTime(ev.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListEvents returns events starting in [from, to), earliest first.
func (d *DB) ListEvents(ctx context.Context, from, to time.Time) ([]tools.CalendarEvent, error) {
	query := `SELECT id, title, start_at, duration_minutes, location, notes, created_at
		FROM calendar_events WHERE start_at >= ? AND start_at < ? ORDER BY start_at`
	rows, err := d.DB.QueryContext(ctx, query, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tools.CalendarEvent
	for rows.Next() {
		var (
			ev               tools.CalendarEvent
			start, createdAt sql.NullString
			location, notes  sql.NullString
			minutes          int
		)
		if err := rows.Scan(&ev.ID, &ev.Title, &start, &minutes, &location, &notes, &createdAt); err != nil {
			return nil, err
		}
		ev.Start = parseTime(start)
		ev.CreatedAt = parseTime(createdAt)
		ev.Duration = time.Duration(minutes) * time.Minute
		ev.Location = location.String
		ev.Notes = notes.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}
