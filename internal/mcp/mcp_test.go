package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/session"
	"github.com/hpungsan/leadcap/internal/submit"
)

// testSetup creates a temporary database, config and engine wired the way
// the CLI wires them: sqlite sessions and the local outbox sink.
func testSetup(t *testing.T) (*sql.DB, *config.Config, *engine.Engine) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	settings := config.DefaultBlueprint().Settings()
	settings.BusinessName = "Acme Plumbing"
	eng, err := engine.New(engine.Options{
		Settings: settings,
		Sessions: session.NewSQLiteBackend(database),
		Sink:     submit.NewOutboxSink(database, nil),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return database, cfg, eng
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// captureLead runs a conversation that submits a lead and returns its ref id.
func captureLead(t *testing.T, h *Handlers, sessionID string) string {
	t.Helper()
	ctx := context.Background()
	turns := []map[string]any{
		{"sessionId": sessionID, "channel": "web", "requestKindKey": "LaunchRequest", "rawUtterance": "I need a plumber"},
		{"sessionId": sessionID, "channel": "web", "slots": map[string]any{"first_name": "Ann", "last_name": "Lee"}},
		{"sessionId": sessionID, "channel": "web", "slots": map[string]any{"phone": "5551234567", "email": "ann@example.com", "zip": "02139"}},
	}
	var out map[string]any
	for _, args := range turns {
		result, err := h.HandleTurn(ctx, makeRequest(args))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		out = parseOutput(t, result)
	}
	// message accepts any input once asked.
	result, _ := h.HandleTurn(ctx, makeRequest(map[string]any{
		"sessionId": sessionID, "channel": "web", "rawUtterance": "My kitchen sink is leaking",
	}))
	out = parseOutput(t, result)
	if out["state"] != "SUBMITTED" {
		t.Fatalf("state = %v, want SUBMITTED (%v)", out["state"], out)
	}
	refID, _ := out["refId"].(string)
	if refID == "" {
		t.Fatalf("no refId in %v", out)
	}
	return refID
}

func TestHandleTurn(t *testing.T) {
	database, cfg, eng := testSetup(t)
	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	result, err := h.HandleTurn(ctx, makeRequest(map[string]any{"channel": "web", "requestKindKey": "LaunchRequest"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	if out["tag"] != "CAPTURE_FIRST_NAME" || out["state"] != "FIRST_TURN" {
		t.Errorf("first turn = %v", out)
	}
	if id, _ := out["sessionId"].(string); len(id) != 26 {
		t.Errorf("sessionId = %v, want generated ulid", out["sessionId"])
	}
	if !strings.Contains(out["outputSpeech"].(string), "Acme Plumbing") {
		t.Errorf("outputSpeech = %v", out["outputSpeech"])
	}

	result, _ = h.HandleTurn(ctx, makeRequest(map[string]any{"slots": "not-an-object"}))
	if !result.IsError {
		t.Fatal("expected error for malformed slots")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleTurn_FormErrors(t *testing.T) {
	database, cfg, eng := testSetup(t)
	h := NewHandlers(database, cfg, eng)

	result, err := h.HandleTurn(context.Background(), makeRequest(map[string]any{
		"sessionId":  "s1",
		"channel":    "form-widget",
		"attributes": map[string]any{"formName": "survey", "formStep": "one"},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "UNKNOWN_FORM")
}

func TestHandleTranscript(t *testing.T) {
	database, cfg, eng := testSetup(t)
	h := NewHandlers(database, cfg, eng)
	captureLead(t, h, "s-transcript")

	result, err := h.HandleTranscript(context.Background(), makeRequest(map[string]any{"session_id": "s-transcript"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	out := parseOutput(t, result)
	msgs := out["messages"].([]any)
	if len(msgs) < 6 {
		t.Fatalf("got %d messages", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "user" || first["text"] != "I need a plumber" {
		t.Errorf("first message = %v", first)
	}

	result, _ = h.HandleTranscript(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleLeadTools(t *testing.T) {
	database, cfg, eng := testSetup(t)
	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()
	refID := captureLead(t, h, "s-leads")

	// list
	result, err := h.HandleList(ctx, makeRequest(map[string]any{"session_id": "s-leads"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	list := parseOutput(t, result)
	items := list["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["ref_id"] != refID {
		t.Fatalf("list items = %v", items)
	}

	// fetch
	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"ref_id": refID, "include_transcript": false}))
	lead := parseOutput(t, result)
	if lead["refId"] != refID || lead["isComplete"] != true {
		t.Errorf("fetched lead = %v", lead)
	}
	if tr := lead["transcript"].([]any); len(tr) != 0 {
		t.Errorf("transcript should be omitted, got %d messages", len(tr))
	}
	fields := fmt.Sprint(lead["fields"])
	for _, want := range []string{"FIRST_NAME", "PHONE", "MESSAGE", "My kitchen sink is leaking"} {
		if !strings.Contains(fields, want) {
			t.Errorf("fields %s missing %q", fields, want)
		}
	}

	// export
	path := filepath.Join(t.TempDir(), "leads.jsonl")
	result, _ = h.HandleExport(ctx, makeRequest(map[string]any{"path": path}))
	export := parseOutput(t, result)
	if export["count"] != float64(1) {
		t.Errorf("export = %v", export)
	}

	// delete, then purge
	result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"ref_id": refID}))
	if out := parseOutput(t, result); out["deleted"] != true {
		t.Errorf("delete = %v", out)
	}
	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"ref_id": refID}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandlePurge(ctx, makeRequest(map[string]any{}))
	if out := parseOutput(t, result); out["purged"] != float64(1) {
		t.Errorf("purge = %v", out)
	}
}

func TestHandleLeadTools_Errors(t *testing.T) {
	database, cfg, eng := testSetup(t)
	h := NewHandlers(database, cfg, eng)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		code    string
	}{
		{"fetch without ref id", h.HandleFetch, map[string]any{}, "INVALID_REQUEST"},
		{"fetch unknown", h.HandleFetch, map[string]any{"ref_id": "01NOPE"}, "NOT_FOUND"},
		{"delete unknown", h.HandleDelete, map[string]any{"ref_id": "01NOPE"}, "NOT_FOUND"},
		{"list bad limit type", h.HandleList, map[string]any{"limit": "ten"}, "INVALID_REQUEST"},
		{"export bad extension", h.HandleExport, map[string]any{"path": "/tmp/leads.csv"}, "INVALID_REQUEST"},
		{"purge negative days", h.HandlePurge, map[string]any{"older_than_days": -1}, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected error result, got %s", extractErrorMessage(result))
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandlers_WithoutEngine(t *testing.T) {
	database, cfg, _ := testSetup(t)
	h := NewHandlers(database, cfg, nil)

	result, _ := h.HandleTurn(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "NOT_CONFIGURED")
}

func TestServerRegistration(t *testing.T) {
	database, cfg, eng := testSetup(t)

	tools := NewServer(database, cfg, eng, "test").ListTools()
	expected := []string{"session_turn", "session_transcript", "lead_fetch", "lead_list", "lead_export", "lead_delete", "lead_purge"}
	if len(tools) != len(expected) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expected))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_Disabled(t *testing.T) {
	tests := []struct {
		name          string
		disabledTools []string
		disabledTypes []string
		want          int
		absent        []string
	}{
		{"tools", []string{"lead_purge", "lead_delete"}, nil, 5, []string{"lead_purge", "lead_delete"}},
		{"duplicates", []string{"lead_purge", "lead_purge"}, nil, 6, []string{"lead_purge"}},
		{"type", nil, []string{"lead"}, 2, []string{"lead_fetch", "lead_list"}},
		{"all", AllToolNames(), nil, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database, cfg, eng := testSetup(t)
			cfg.DisabledTools = tt.disabledTools
			cfg.DisabledTypes = tt.disabledTypes

			tools := NewServer(database, cfg, eng, "test").ListTools()
			if len(tools) != tt.want {
				t.Errorf("registered tool count = %d, want %d", len(tools), tt.want)
			}
			for _, name := range tt.absent {
				if _, ok := tools[name]; ok {
					t.Errorf("disabled tool %q should not be registered", name)
				}
			}
		})
	}
}

func TestValidateDisabled(t *testing.T) {
	if got := ValidateDisabledTools([]string{"lead_purge", "lead_import"}); len(got) != 1 || got[0] != "lead_import" {
		t.Errorf("ValidateDisabledTools = %v", got)
	}
	if got := ValidateDisabledTypes([]string{"lead", "session", "form"}); len(got) != 1 || got[0] != "form" {
		t.Errorf("ValidateDisabledTypes = %v", got)
	}
	if got := ValidateDisabledTools(AllToolNames()); len(got) != 0 {
		t.Errorf("AllToolNames returned invalid names: %v", got)
	}
	if GroupOf("session_turn") != "session" || GroupOf("lead_export") != "lead" || GroupOf("turn") != "" {
		t.Error("GroupOf mismatch")
	}
}

func TestErrorResult(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		code        errors.ErrorCode
		wantDetails bool
		msgContains string
	}{
		{"internal hides details", errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied")), errors.ErrInternal, false, "internal error"},
		{"plain error is internal", fmt.Errorf("boom"), errors.ErrInternal, false, "internal error"},
		{"not found keeps details", errors.NewNotFound("abc"), errors.ErrNotFound, true, "abc"},
		{"wrapped keeps context", fmt.Errorf("turn 3: %w", errors.NewUnknownFormStep("default", "pay")), errors.ErrUnknownFormStep, true, "turn 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := errorResult(tt.err)
			if !r.IsError {
				t.Fatal("expected IsError=true")
			}
			var payload map[string]any
			if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
				t.Fatalf("failed to unmarshal error payload: %v", err)
			}
			errObj := payload["error"].(map[string]any)
			if errObj["code"] != string(tt.code) {
				t.Errorf("code=%v, want %v", errObj["code"], tt.code)
			}
			if _, ok := errObj["details"]; ok != tt.wantDetails {
				t.Errorf("details present=%v, want %v", ok, tt.wantDetails)
			}
			if msg := errObj["message"].(string); !strings.Contains(msg, tt.msgContains) {
				t.Errorf("message %q missing %q", msg, tt.msgContains)
			}
		})
	}
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}
	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}
	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
