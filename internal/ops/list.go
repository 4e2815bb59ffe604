package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/leadcap/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	SessionID      string // optional filter
	CompleteOnly   bool
	Limit          int // default: 20, max: 100
	Offset         int // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []db.LeadSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// List retrieves lead summaries with pagination, most recently updated first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit := clampLimit(input.Limit)
	offset := max(input.Offset, 0)

	summaries, total, err := db.ListLeads(ctx, database, db.ListFilter{
		SessionID:      strings.TrimSpace(input.SessionID),
		CompleteOnly:   input.CompleteOnly,
		IncludeDeleted: input.IncludeDeleted,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []db.LeadSummary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
