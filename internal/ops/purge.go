package ops

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int // optional, only purge if deleted_at < (now - N days)
	// IdleSessionDays, when set, also removes sqlite sessions not written
	// to in that many days.
	IdleSessionDays *int
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged         int    `json:"purged"`
	SessionsPurged int    `json:"sessions_purged,omitempty"`
	Message        string `json:"message"`
}

// Purge permanently deletes soft-deleted leads and, optionally, idle sessions.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays != nil && *input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must not be negative")
	}
	if input.IdleSessionDays != nil && *input.IdleSessionDays < 1 {
		return nil, errors.NewInvalidRequest("idle_session_days must be at least 1")
	}

	count, err := db.PurgeDeletedLeads(ctx, database, input.OlderThanDays)
	if err != nil {
		return nil, err
	}

	var sessions int
	if input.IdleSessionDays != nil {
		before := time.Now().Add(-time.Duration(*input.IdleSessionDays) * 24 * time.Hour)
		if sessions, err = db.PurgeIdleSessions(ctx, database, before); err != nil {
			return nil, err
		}
	}

	return &PurgeOutput{
		Purged:         count,
		SessionsPurged: sessions,
		Message:        formatPurgeMessage(count, sessions, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, sessions int, olderThanDays *int) string {
	var msg string
	if count == 0 {
		msg = "No deleted leads to purge"
	} else {
		leadWord := "lead"
		if count > 1 {
			leadWord = "leads"
		}
		msg = fmt.Sprintf("Permanently deleted %d %s", count, leadWord)
		if olderThanDays != nil {
			msg += fmt.Sprintf(" (deleted more than %d days ago)", *olderThanDays)
		}
	}

	if sessions > 0 {
		sessionWord := "session"
		if sessions > 1 {
			sessionWord = "sessions"
		}
		msg += fmt.Sprintf("; removed %d idle %s", sessions, sessionWord)
	}
	return msg
}
