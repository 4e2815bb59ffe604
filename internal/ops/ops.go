// Package ops implements the operator-facing lead operations shared by the
// CLI, the MCP server and the HTTP API: listing, fetching, exporting,
// deleting and purging leads kept in the local outbox.
package ops

import (
	"strings"

	"github.com/hpungsan/leadcap/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ValidateRefID trims and checks a lead ref id.
func ValidateRefID(refID string) (string, error) {
	refID = strings.TrimSpace(refID)
	if refID == "" {
		return "", errors.NewInvalidRequest("ref_id is required")
	}
	if strings.ContainsAny(refID, " \t\r\n") {
		return "", errors.NewInvalidRequest("ref_id must not contain whitespace")
	}
	return refID, nil
}

// clampLimit applies the list limit default and bounds.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
