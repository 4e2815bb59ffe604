package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/db"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	RefID             string
	IncludeDeleted    bool
	IncludeTranscript *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	db.LeadRecord // embedded (copy, not pointer)
}

// Fetch retrieves a stored lead by ref id.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	refID, err := ValidateRefID(input.RefID)
	if err != nil {
		return nil, err
	}

	rec, err := db.GetLead(ctx, database, refID, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	output := &FetchOutput{LeadRecord: *rec}
	if input.IncludeTranscript != nil && !*input.IncludeTranscript {
		output.Transcript = []contact.Message{}
	}
	return output, nil
}
