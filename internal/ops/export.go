package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
)

const exportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path           string // optional, default: ~/.leadcap/exports/<session|all>-<timestamp>.jsonl
	SessionID      string // optional filter
	CompleteOnly   bool
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file. The filter fields echo
// what the export was restricted to.
type ExportHeader struct {
	LeadcapExport bool   `json:"_leadcap_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	SessionID     string `json:"session_id,omitempty"`
	CompleteOnly  bool   `json:"complete_only,omitempty"`
}

// Export writes stored leads to a JSONL file: a header line, then one lead
// record per line in ref id order. An existing file at the destination is
// only replaced once every record has been written.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	filter := db.ListFilter{
		SessionID:      strings.TrimSpace(input.SessionID),
		CompleteOnly:   input.CompleteOnly,
		IncludeDeleted: input.IncludeDeleted,
	}

	dest := input.Path
	if dest == "" {
		var err error
		if dest, err = defaultExportPath(filter.SessionID, now); err != nil {
			return nil, err
		}
	}
	if err := ValidatePath(dest, cfg); err != nil {
		return nil, err
	}

	out, err := createExportFile(dest)
	if err != nil {
		return nil, err
	}
	defer out.discard()

	count, err := writeExport(ctx, database, out.enc, filter, now)
	if err != nil {
		return nil, err
	}
	if err := out.commit(); err != nil {
		return nil, err
	}
	return &ExportOutput{Path: dest, Count: count, ExportedAt: now.Unix()}, nil
}

func writeExport(ctx context.Context, database *sql.DB, enc *json.Encoder, filter db.ListFilter, now time.Time) (int, error) {
	header := ExportHeader{
		LeadcapExport: true,
		SchemaVersion: exportSchemaVersion,
		ExportedAt:    now.Unix(),
		SessionID:     filter.SessionID,
		CompleteOnly:  filter.CompleteOnly,
	}
	if err := enc.Encode(header); err != nil {
		return 0, errors.NewInternal(err)
	}

	n := 0
	err := db.IterateLeads(ctx, database, filter, func(rec *db.LeadRecord) error {
		if err := enc.Encode(rec); err != nil {
			return errors.NewInternal(err)
		}
		n++
		return nil
	})
	if ctx.Err() != nil {
		return 0, errors.NewCancelled("export")
	}
	return n, err
}

// exportFile stages an export in a sibling temp file and renames it over
// the destination on commit.
type exportFile struct {
	dest      string
	tmp       string
	f         *os.File
	enc       *json.Encoder
	committed bool
}

func createExportFile(dest string) (*exportFile, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	tmp := fmt.Sprintf("%s.%s.tmp", dest, strings.ToLower(ulid.Make().String()))
	f, err := openNoFollow(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}
	return &exportFile{dest: dest, tmp: tmp, f: f, enc: json.NewEncoder(f)}, nil
}

func (e *exportFile) commit() error {
	if err := e.f.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	err := e.f.Close()
	e.f = nil
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}

	// Rename follows a symlink planted at the destination since validation.
	if isSymlink(e.dest) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if err := os.Rename(e.tmp, e.dest); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(e.dest); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	e.committed = true
	return nil
}

func (e *exportFile) discard() {
	if e.f != nil {
		e.f.Close()
	}
	if !e.committed {
		os.Remove(e.tmp)
	}
}

// defaultExportPath names an export after the session filter and time, e.g.
// ~/.leadcap/exports/all-2026-03-01T093000.jsonl.
func defaultExportPath(sessionID string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	name := "all"
	if sessionID != "" {
		name = fileSafe(sessionID)
	}
	return filepath.Join(dir, name+"-"+now.Format("2006-01-02T150405")+".jsonl"), nil
}
