package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/leadcap/internal/config"
	_ "modernc.org/sqlite"
)

// migrations[i] upgrades the schema from version i to i+1. Append only.
var migrations = []string{
	// sessions and transcripts
	`
	CREATE TABLE IF NOT EXISTS session_values (
	  session_id  TEXT NOT NULL,
	  key         TEXT NOT NULL,
	  value       TEXT NOT NULL,
	  updated_at  INTEGER NOT NULL,
	  PRIMARY KEY (session_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_session_values_updated ON session_values(updated_at);

	CREATE TABLE IF NOT EXISTS session_messages (
	  id          INTEGER PRIMARY KEY AUTOINCREMENT,
	  session_id  TEXT NOT NULL,
	  role        TEXT NOT NULL,
	  text        TEXT NOT NULL,
	  ts          INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, id);
	`,
	// lead outbox
	`
	CREATE TABLE IF NOT EXISTS leads (
	  ref_id                TEXT PRIMARY KEY,
	  session_id            TEXT,
	  user_id               TEXT,
	  source                TEXT,
	  job_type_id           TEXT,
	  availability_class_id TEXT,
	  fields_json           TEXT NOT NULL,
	  transcript_json       TEXT NOT NULL,
	  is_complete           INTEGER NOT NULL DEFAULT 0,
	  is_abandoned          INTEGER NOT NULL DEFAULT 0,
	  submit_count          INTEGER NOT NULL DEFAULT 1,
	  submitted_at          INTEGER NOT NULL,
	  created_at            INTEGER NOT NULL,
	  updated_at            INTEGER NOT NULL,
	  deleted_at            INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_leads_updated ON leads(updated_at DESC) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_leads_session ON leads(session_id, updated_at DESC) WHERE session_id IS NOT NULL;
	`,
}

// CurrentSchemaVersion is the user_version after every migration has run.
var CurrentSchemaVersion = len(migrations)

// Init opens baseDir/leadcap.db in WAL mode and brings its schema up to
// date. baseDir and its exports directory are created owner-only.
func Init(baseDir string) (*sql.DB, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "exports")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		_ = os.Chmod(dir, 0700)
	}

	path := filepath.Join(baseDir, "leadcap.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return db, nil
}

func prepare(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("read journal mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("journal mode is %s, want wal", mode)
	}
	return migrate(db)
}

// ConfigurePool applies the configured pool limits. Zero leaves the
// database/sql default.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate runs each pending migration in its own transaction together with
// the user_version bump that records it.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// SetUserVersion overwrites the user_version pragma.
func SetUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
