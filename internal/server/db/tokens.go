package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for token operations.
var (
	ErrTokenDuplicate = errors.New("token already exists")
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, exec execer, userID int64, token string, now time.Time) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO auth_tokens (user_id, token, created_at) VALUES (?, ?, ?)`,
		userID, token, now,
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return ErrTokenDuplicate
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// CreateToken stores a new token for an existing user.
func (s *Store) CreateToken(ctx context.Context, userID int64, token string) error {
	return insertToken(ctx, s.db, userID, token, time.Now().UTC())
}

// LoginUser upserts the user by email and stores a fresh token for it in one
// transaction, so a failure leaves neither row behind.
func (s *Store) LoginUser(ctx context.Context, username, email, token string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin login: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	userID, err := upsertUser(ctx, tx, username, email, now)
	if err != nil {
		return 0, err
	}
	if err := insertToken(ctx, tx, userID, token, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit login: %w", err)
	}
	return userID, nil
}

// ResolveToken returns the owner of an active token. Unknown and disabled
// tokens both report ok=false.
func (s *Store) ResolveToken(ctx context.Context, token string) (userID int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT user_id FROM auth_tokens WHERE token = ? AND disabled_at IS NULL`, token,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve token: %w", err)
	}
	return userID, true, nil
}

// DisableToken marks an active token as revoked.
// Returns true if the token was active before the call.
func (s *Store) DisableToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_tokens SET disabled_at = ? WHERE token = ? AND disabled_at IS NULL`,
		time.Now().UTC(), token,
	)
	if err != nil {
		return false, fmt.Errorf("disable token: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListTokens returns every token issued to a user, disabled ones included.
func (s *Store) ListTokens(ctx context.Context, userID int64) ([]AuthToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, token, created_at, disabled_at
		 FROM auth_tokens WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []AuthToken
	for rows.Next() {
		var t AuthToken
		var disabledAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &disabledAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if disabledAt.Valid {
			at := disabledAt.Time
			t.DisabledAt = &at
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
