package db

import "time"

// User is a developer identity keyed by email.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthToken is an opaque bearer token. Rows are never deleted; revocation
// sets DisabledAt.
type AuthToken struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Token      string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
}

// Event is one editor activity record.
type Event struct {
	ID         int64     `json:"id"`
	URI        string    `json:"uri"`
	IsWrite    bool      `json:"is_write"`
	Language   *string   `json:"language,omitempty"`
	LineNumber *int64    `json:"line_number,omitempty"`
	CursorPos  *int64    `json:"cursor_pos,omitempty"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}
