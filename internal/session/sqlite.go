package session

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/db"
)

// SQLiteBackend stores sessions in the leadcap database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(database *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: database}
}

func (b *SQLiteBackend) Get(ctx context.Context, sessionID string, key Key) (string, bool, error) {
	return db.GetSessionValue(ctx, b.db, sessionID, string(key))
}

func (b *SQLiteBackend) Set(ctx context.Context, sessionID string, key Key, value string) error {
	return db.SetSessionValue(ctx, b.db, sessionID, string(key), value)
}

func (b *SQLiteBackend) Delete(ctx context.Context, sessionID string, key Key) error {
	return db.DeleteSessionValue(ctx, b.db, sessionID, string(key))
}

func (b *SQLiteBackend) Append(ctx context.Context, sessionID string, m contact.Message) error {
	return db.AppendMessage(ctx, b.db, sessionID, m)
}

func (b *SQLiteBackend) Transcript(ctx context.Context, sessionID string) ([]contact.Message, error) {
	return db.ListMessages(ctx, b.db, sessionID)
}
