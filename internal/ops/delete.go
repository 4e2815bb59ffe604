package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	RefID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	RefID   string `json:"ref_id"`
}

// Delete soft-deletes a stored lead. A later resubmission under the same ref
// id restores it.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	refID, err := ValidateRefID(input.RefID)
	if err != nil {
		return nil, err
	}
	if err := db.SoftDeleteLead(ctx, database, refID); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, RefID: refID}, nil
}
