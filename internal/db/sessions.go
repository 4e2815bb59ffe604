package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/errors"
)

// GetSessionValue returns the raw value stored under key for a session.
// ok is false when the key has never been set.
func GetSessionValue(ctx context.Context, db *sql.DB, sessionID, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx,
		"SELECT value FROM session_values WHERE session_id = ? AND key = ?",
		sessionID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// SetSessionValue stores value under key, replacing any previous value.
func SetSessionValue(ctx context.Context, db *sql.DB, sessionID, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_values (session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, sessionID, key, value, time.Now().Unix())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSessionValue removes one key from a session.
func DeleteSessionValue(ctx context.Context, db *sql.DB, sessionID, key string) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM session_values WHERE session_id = ? AND key = ?",
		sessionID, key,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AppendMessage adds a transcript message to a session.
func AppendMessage(ctx context.Context, db *sql.DB, sessionID string, m contact.Message) error {
	ts := m.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO session_messages (session_id, role, text, ts) VALUES (?, ?, ?, ?)",
		sessionID, string(m.Role), m.Text, ts,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListMessages returns a session's transcript in insertion order.
func ListMessages(ctx context.Context, db *sql.DB, sessionID string) ([]contact.Message, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT role, text, ts FROM session_messages WHERE session_id = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []contact.Message{}
	for rows.Next() {
		var (
			m    contact.Message
			role string
		)
		if err := rows.Scan(&role, &m.Text, &m.Timestamp); err != nil {
			return nil, errors.NewInternal(err)
		}
		m.Role = contact.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// PurgeIdleSessions removes the values and transcripts of sessions not
// written to since before. It returns the number of sessions removed.
func PurgeIdleSessions(ctx context.Context, db *sql.DB, before time.Time) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	cutoff := before.Unix()
	idle := `
		SELECT session_id FROM session_values
		GROUP BY session_id
		HAVING MAX(updated_at) < ?
	`

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+idle+")", cutoff).Scan(&count); err != nil {
		return 0, errors.NewInternal(err)
	}
	if count == 0 {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM session_messages WHERE session_id IN ("+idle+")", cutoff); err != nil {
		return 0, errors.NewInternal(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM session_values WHERE session_id IN ("+idle+")", cutoff); err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}
