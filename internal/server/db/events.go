package db

import (
	"context"
	"fmt"
)

// CreateEvent appends an event. e.ID is set on success.
func (s *Store) CreateEvent(ctx context.Context, e *Event) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (uri, is_write, language, line_number, cursor_pos, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.URI, e.IsWrite, e.Language, e.LineNumber, e.CursorPos, e.UserID, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListEvents returns a user's events, oldest first.
func (s *Store) ListEvents(ctx context.Context, userID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, uri, is_write, language, line_number, cursor_pos, user_id, created_at
		 FROM events WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.URI, &e.IsWrite, &e.Language, &e.LineNumber, &e.CursorPos, &e.UserID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the total number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
