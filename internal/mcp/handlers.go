package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	eng *engine.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, eng *engine.Engine) *Handlers {
	return &Handlers{db: db, cfg: cfg, eng: eng}
}

// TranscriptRequest represents the arguments for session_transcript.
type TranscriptRequest struct {
	SessionID string `json:"session_id"`
}

// TranscriptOutput is the session_transcript result.
type TranscriptOutput struct {
	SessionID string            `json:"session_id"`
	Messages  []contact.Message `json:"messages"`
}

// FetchRequest represents the arguments for lead_fetch.
type FetchRequest struct {
	RefID             string `json:"ref_id"`
	IncludeDeleted    bool   `json:"include_deleted,omitempty"`
	IncludeTranscript *bool  `json:"include_transcript,omitempty"`
}

// ListRequest represents the arguments for lead_list.
type ListRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	CompleteOnly   bool   `json:"complete_only,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ExportRequest represents the arguments for lead_export.
type ExportRequest struct {
	Path           string `json:"path,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	CompleteOnly   bool   `json:"complete_only,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DeleteRequest represents the arguments for lead_delete.
type DeleteRequest struct {
	RefID string `json:"ref_id"`
}

// PurgeRequest represents the arguments for lead_purge.
type PurgeRequest struct {
	OlderThanDays   *int `json:"older_than_days,omitempty"`
	IdleSessionDays *int `json:"idle_session_days,omitempty"`
}

// HandleTurn runs one capture turn through the engine.
func (h *Handlers) HandleTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[engine.Request](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.eng == nil {
		return errorResult(errors.NewNotConfigured("engine")), nil
	}

	result, err := h.eng.Handle(ctx, &input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTranscript handles the session_transcript tool call.
func (h *Handlers) HandleTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[TranscriptRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.eng == nil {
		return errorResult(errors.NewNotConfigured("engine")), nil
	}

	msgs, err := h.eng.Transcript(ctx, input.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	if msgs == nil {
		msgs = []contact.Message{}
	}
	return successResult(TranscriptOutput{SessionID: input.SessionID, Messages: msgs})
}

// HandleFetch handles the lead_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		RefID:             input.RefID,
		IncludeDeleted:    input.IncludeDeleted,
		IncludeTranscript: input.IncludeTranscript,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the lead_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		SessionID:      input.SessionID,
		CompleteOnly:   input.CompleteOnly,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the lead_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:           input.Path,
		SessionID:      input.SessionID,
		CompleteOnly:   input.CompleteOnly,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the lead_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{RefID: input.RefID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePurge handles the lead_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bind[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{
		OlderThanDays:   input.OlderThanDays,
		IdleSessionDays: input.IdleSessionDays,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// bind decodes the tool arguments into a T.
func bind[T any](req mcp.CallToolRequest) (T, error) {
	var v T
	if err := req.BindArguments(&v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

// errorResult creates an MCP error result from any error, unwrapping to the
// LeadError in its chain. Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if lErr, ok := errors.As(err); ok {
		msg := lErr.Message
		if err != error(lErr) {
			// Keep the wrapper's context.
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    lErr.Code,
			"message": msg,
			"status":  lErr.Status,
		}
		if lErr.Code != errors.ErrInternal && lErr.Details != nil {
			errorObj["details"] = lErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
