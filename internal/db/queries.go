package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/errors"
)

// LeadRecord is a lead as stored in the outbox.
type LeadRecord struct {
	contact.Lead
	SubmitCount int    `json:"submit_count"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	DeletedAt   *int64 `json:"deleted_at,omitempty"`
}

// LeadSummary is the list view of a stored lead. It omits field values and
// the transcript.
type LeadSummary struct {
	RefID       string `json:"ref_id"`
	SessionID   string `json:"session_id,omitempty"`
	Source      string `json:"source,omitempty"`
	FieldCount  int    `json:"field_count"`
	IsComplete  bool   `json:"is_complete"`
	IsAbandoned bool   `json:"is_abandoned"`
	SubmitCount int    `json:"submit_count"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	DeletedAt   *int64 `json:"deleted_at,omitempty"`
}

// ListFilter narrows ListLeads.
type ListFilter struct {
	SessionID      string
	CompleteOnly   bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// UpsertLead stores l under its ref id. A resubmission replaces the stored
// fields and transcript, bumps submit_count, and clears any soft delete.
func UpsertLead(ctx context.Context, db *sql.DB, l *contact.Lead) error {
	if strings.TrimSpace(l.RefID) == "" {
		return errors.NewInvalidRequest("lead ref id is required")
	}

	fieldsJSON, err := json.Marshal(nonNilFields(l.Fields))
	if err != nil {
		return errors.NewInternal(err)
	}
	transcriptJSON, err := json.Marshal(nonNilMessages(l.Transcript))
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()
	submittedAt := l.SubmittedAt
	if submittedAt == 0 {
		submittedAt = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO leads (
			ref_id, session_id, user_id, source, job_type_id, availability_class_id,
			fields_json, transcript_json, is_complete, is_abandoned,
			submit_count, submitted_at, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, NULL)
		ON CONFLICT(ref_id) DO UPDATE SET
			session_id = excluded.session_id,
			user_id = excluded.user_id,
			source = excluded.source,
			job_type_id = excluded.job_type_id,
			availability_class_id = excluded.availability_class_id,
			fields_json = excluded.fields_json,
			transcript_json = excluded.transcript_json,
			is_complete = excluded.is_complete,
			is_abandoned = excluded.is_abandoned,
			submit_count = leads.submit_count + 1,
			submitted_at = excluded.submitted_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	_, err = db.ExecContext(ctx, query,
		l.RefID, nullIfEmpty(l.SessionID), nullIfEmpty(l.UserID), nullIfEmpty(l.Source),
		nullIfEmpty(l.JobTypeID), nullIfEmpty(l.AvailabilityClassID),
		string(fieldsJSON), string(transcriptJSON), boolToInt(l.IsComplete), boolToInt(l.IsAbandoned),
		submittedAt, now, now,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetLead retrieves a lead by ref id.
// If includeDeleted is false, soft-deleted leads are excluded.
func GetLead(ctx context.Context, db *sql.DB, refID string, includeDeleted bool) (*LeadRecord, error) {
	query := `
		SELECT ref_id, session_id, user_id, source, job_type_id, availability_class_id,
			fields_json, transcript_json, is_complete, is_abandoned,
			submit_count, submitted_at, created_at, updated_at, deleted_at
		FROM leads
		WHERE ref_id = ?
	`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	rec, err := scanLead(db.QueryRowContext(ctx, query, refID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(refID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rec, nil
}

// ListLeads returns lead summaries, most recently updated first, and the
// total number of matching leads.
func ListLeads(ctx context.Context, db *sql.DB, f ListFilter) ([]LeadSummary, int, error) {
	where, args := leadFilter(f)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT ref_id, session_id, source, fields_json, is_complete, is_abandoned,
			submit_count, created_at, updated_at, deleted_at
		FROM leads` + where + `
		ORDER BY updated_at DESC, ref_id DESC
		LIMIT ? OFFSET ?
	`
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, query, append(args, limit, max(f.Offset, 0))...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []LeadSummary
	for rows.Next() {
		var (
			s          LeadSummary
			sessionID  sql.NullString
			source     sql.NullString
			fieldsJSON string
			complete   int
			abandoned  int
			deletedAt  sql.NullInt64
		)
		if err := rows.Scan(&s.RefID, &sessionID, &source, &fieldsJSON, &complete, &abandoned,
			&s.SubmitCount, &s.CreatedAt, &s.UpdatedAt, &deletedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		var fields []contact.LeadField
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		s.SessionID = sessionID.String
		s.Source = source.String
		s.FieldCount = len(fields)
		s.IsComplete = complete != 0
		s.IsAbandoned = abandoned != 0
		if deletedAt.Valid {
			s.DeletedAt = &deletedAt.Int64
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// IterateLeads calls fn for every lead matching f in ref id order. It stops at
// the first error fn returns or when ctx is cancelled.
func IterateLeads(ctx context.Context, db *sql.DB, f ListFilter, fn func(*LeadRecord) error) error {
	where, args := leadFilter(f)
	query := `
		SELECT ref_id, session_id, user_id, source, job_type_id, availability_class_id,
			fields_json, transcript_json, is_complete, is_abandoned,
			submit_count, submitted_at, created_at, updated_at, deleted_at
		FROM leads` + where + `
		ORDER BY ref_id ASC
	`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := scanLead(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SoftDeleteLead marks a lead as deleted by setting deleted_at.
func SoftDeleteLead(ctx context.Context, db *sql.DB, refID string) error {
	now := time.Now().Unix()

	result, err := db.ExecContext(ctx, `
		UPDATE leads
		SET deleted_at = ?
		WHERE ref_id = ? AND deleted_at IS NULL
	`, now, refID)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(refID)
	}
	return nil
}

// PurgeDeletedLeads permanently removes soft-deleted leads. When
// olderThanDays is set, only leads deleted before that cutoff are removed.
func PurgeDeletedLeads(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := "DELETE FROM leads WHERE deleted_at IS NOT NULL"
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

func leadFilter(f ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.CompleteOnly {
		clauses = append(clauses, "is_complete = 1")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLead scans a single row into a LeadRecord.
func scanLead(row rowScanner) (*LeadRecord, error) {
	var (
		rec            LeadRecord
		sessionID      sql.NullString
		userID         sql.NullString
		source         sql.NullString
		jobTypeID      sql.NullString
		availClassID   sql.NullString
		fieldsJSON     string
		transcriptJSON string
		complete       int
		abandoned      int
		deletedAt      sql.NullInt64
	)

	err := row.Scan(
		&rec.RefID, &sessionID, &userID, &source, &jobTypeID, &availClassID,
		&fieldsJSON, &transcriptJSON, &complete, &abandoned,
		&rec.SubmitCount, &rec.SubmittedAt, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.SessionID = sessionID.String
	rec.UserID = userID.String
	rec.Source = source.String
	rec.JobTypeID = jobTypeID.String
	rec.AvailabilityClassID = availClassID.String
	rec.IsComplete = complete != 0
	rec.IsAbandoned = abandoned != 0
	if deletedAt.Valid {
		rec.DeletedAt = &deletedAt.Int64
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transcriptJSON), &rec.Transcript); err != nil {
		return nil, err
	}
	return &rec, nil
}

// nullIfEmpty stores empty strings as NULL.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilFields(f []contact.LeadField) []contact.LeadField {
	if f == nil {
		return []contact.LeadField{}
	}
	return f
}

func nonNilMessages(m []contact.Message) []contact.Message {
	if m == nil {
		return []contact.Message{}
	}
	return m
}
