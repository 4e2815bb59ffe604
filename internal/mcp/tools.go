package mcp

import "github.com/mark3labs/mcp-go/mcp"

var turnToolDef = mcp.NewTool("session_turn",
	mcp.WithDescription("Run one lead-capture turn and return the response to speak or display. "+
		"Omit sessionId to start a new session; the generated id is returned."),
	mcp.WithString("sessionId", mcp.Description("Session id from a previous turn")),
	mcp.WithString("channel", mcp.Description("Host channel, e.g. web, alexa or form-widget")),
	mcp.WithString("rawUtterance", mcp.Description("What the user said or typed")),
	mcp.WithString("requestKindKey", mcp.Description("Request kind, e.g. LaunchRequest, HelpIntent, SessionEndedRequest")),
	mcp.WithObject("slots", mcp.Description("Recognized slot values keyed by slot name")),
	mcp.WithObject("attributes", mcp.Description("Optional host signals: validationJudgment, chatResult, formName, formStep, formData, aside, currentUrl, userId")),
)

var transcriptToolDef = mcp.NewTool("session_transcript",
	mcp.WithDescription("Return the recorded user and assistant messages of a session."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
)

var fetchToolDef = mcp.NewTool("lead_fetch",
	mcp.WithDescription("Fetch a submitted lead from the local outbox by ref id."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("ref_id", mcp.Required(), mcp.Description("Lead ref id")),
	mcp.WithBoolean("include_deleted", mcp.Description("Also return a soft-deleted lead")),
	mcp.WithBoolean("include_transcript", mcp.Description("Include the conversation transcript (default true)")),
)

var listToolDef = mcp.NewTool("lead_list",
	mcp.WithDescription("List submitted leads, most recently updated first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("session_id", mcp.Description("Only leads from this session")),
	mcp.WithBoolean("complete_only", mcp.Description("Only leads with every required field")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted leads")),
)

var exportToolDef = mcp.NewTool("lead_export",
	mcp.WithDescription("Export leads to a JSONL file in ~/.leadcap/exports or an allowed directory."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default: generated in ~/.leadcap/exports)")),
	mcp.WithString("session_id", mcp.Description("Only leads from this session")),
	mcp.WithBoolean("complete_only", mcp.Description("Only complete leads")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted leads")),
)

var deleteToolDef = mcp.NewTool("lead_delete",
	mcp.WithDescription("Soft-delete a lead. A later resubmission under the same ref id restores it."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("ref_id", mcp.Required(), mcp.Description("Lead ref id")),
)

var purgeToolDef = mcp.NewTool("lead_purge",
	mcp.WithDescription("Permanently remove soft-deleted leads, and optionally idle sessions."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("older_than_days", mcp.Description("Only leads deleted more than N days ago")),
	mcp.WithNumber("idle_session_days", mcp.Description("Also remove sessions idle for N days")),
)
