package submit

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/db"
)

// OutboxSink records every lead in the local leads table, keyed by ref id,
// and then forwards it to Next when set. A resubmission with the same ref
// id replaces the stored record. The result always carries the outbox ref
// id once the row is stored, even when the forward fails.
type OutboxSink struct {
	db   *sql.DB
	Next Sink
}

func NewOutboxSink(database *sql.DB, next Sink) *OutboxSink {
	return &OutboxSink{db: database, Next: next}
}

func (s *OutboxSink) Send(ctx context.Context, lead *contact.Lead, extras Extras) (SinkResult, error) {
	l := *lead
	if l.RefID == "" {
		l.RefID = NewRefID()
	}
	if err := db.UpsertLead(ctx, s.db, &l); err != nil {
		return SinkResult{}, err
	}
	if s.Next == nil {
		return SinkResult{Status: StatusSuccess, RefID: l.RefID}, nil
	}

	// The outbox id is the lead's identity; the remote sink upserts on it.
	res, err := s.Next.Send(ctx, &l, extras)
	res.RefID = l.RefID
	return res, err
}
