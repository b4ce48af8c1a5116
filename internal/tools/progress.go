package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
)

// TrackProgressTool handles the track_progress MCP tool.
// It records an entry in progress.md and the session notes.
type TrackProgressTool struct {
	bank *memorybank.Manager
}

// NewTrackProgressTool creates a TrackProgressTool.
func NewTrackProgressTool(bank *memorybank.Manager) *TrackProgressTool {
	return &TrackProgressTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *TrackProgressTool) Definition() mcp.Tool {
	return mcp.NewTool("track_progress",
		mcp.WithDescription(
			"Record a timestamped entry under '## Update History' in progress.md "+
				"and under '## Current Session Notes' in active-context.md.",
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Short action label, e.g. 'Implemented feature'"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What was done"),
		),
	)
}

// Handle processes the track_progress tool call.
func (t *TrackProgressTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := strings.TrimSpace(req.GetString("action", ""))
	description := strings.TrimSpace(req.GetString("description", ""))
	if action == "" || description == "" {
		return mcp.NewToolResultError("'action' and 'description' are required"), nil
	}

	if err := t.bank.TrackProgress(ctx, action, description); err != nil {
		return memoryBankError("tracking progress", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Progress recorded: %s", action)), nil
}

// UpdateActiveContextTool handles the update_active_context MCP tool.
type UpdateActiveContextTool struct {
	bank *memorybank.Manager
}

// NewUpdateActiveContextTool creates an UpdateActiveContextTool.
func NewUpdateActiveContextTool(bank *memorybank.Manager) *UpdateActiveContextTool {
	return &UpdateActiveContextTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateActiveContextTool) Definition() mcp.Tool {
	return mcp.NewTool("update_active_context",
		mcp.WithDescription(
			"Replace the Ongoing Tasks, Known Issues and Next Steps sections of active-context.md. "+
				"Sections whose list is omitted are left as they are.",
		),
		mcp.WithBoolean("clear_session_notes",
			mcp.Description("Empty the Current Session Notes section (default: false)"),
		),
		mcp.WithArray("tasks",
			mcp.Description("Ongoing tasks"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("issues",
			mcp.Description("Known issues"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("next_steps",
			mcp.Description("Next steps"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the update_active_context tool call.
func (t *UpdateActiveContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ac := memorybank.ActiveContext{
		Tasks:     stringsArg(req, "tasks"),
		Issues:    stringsArg(req, "issues"),
		NextSteps: stringsArg(req, "next_steps"),
	}
	clearNotes := boolArg(req, "clear_session_notes", false)
	if len(ac.Tasks)+len(ac.Issues)+len(ac.NextSteps) == 0 && !clearNotes {
		return mcp.NewToolResultError("at least one of 'tasks', 'issues', 'next_steps' or 'clear_session_notes' is required"), nil
	}

	if len(ac.Tasks)+len(ac.Issues)+len(ac.NextSteps) > 0 {
		if err := t.bank.UpdateActiveContext(ctx, ac); err != nil {
			return memoryBankError("updating active context", err)
		}
	}
	if clearNotes {
		if err := t.bank.ClearSessionNotes(ctx); err != nil {
			return memoryBankError("clearing session notes", err)
		}
	}
	return mcp.NewToolResultText("Active context updated"), nil
}

// LogDecisionTool handles the log_decision MCP tool.
type LogDecisionTool struct {
	bank *memorybank.Manager
}

// NewLogDecisionTool creates a LogDecisionTool.
func NewLogDecisionTool(bank *memorybank.Manager) *LogDecisionTool {
	return &LogDecisionTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *LogDecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("log_decision",
		mcp.WithDescription("Append a decision to decision-log.md."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Decision title"),
		),
		mcp.WithString("context",
			mcp.Required(),
			mcp.Description("Why the decision was needed"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("What was decided"),
		),
		mcp.WithArray("alternatives",
			mcp.Description("Alternatives that were considered"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("consequences",
			mcp.Description("Expected consequences"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the log_decision tool call.
func (t *LogDecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d := memorybank.Decision{
		Title:        strings.TrimSpace(req.GetString("title", "")),
		Context:      strings.TrimSpace(req.GetString("context", "")),
		Decision:     strings.TrimSpace(req.GetString("decision", "")),
		Alternatives: stringsArg(req, "alternatives"),
		Consequences: stringsArg(req, "consequences"),
	}
	if d.Title == "" || d.Context == "" || d.Decision == "" {
		return mcp.NewToolResultError("'title', 'context' and 'decision' are required"), nil
	}

	if err := t.bank.LogDecision(ctx, d); err != nil {
		return memoryBankError("logging decision", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Decision logged: %s", d.Title)), nil
}
