package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/journal"
)

// History is the read side of the mode journal.
type History interface {
	Recent(limit int) ([]journal.Event, error)
	UMBSessions(limit int) ([]journal.UMBSession, error)
}

// ModeHistoryTool handles the get_mode_history MCP tool.
// history may be nil when the journal is disabled.
type ModeHistoryTool struct {
	history History
}

// NewModeHistoryTool creates a ModeHistoryTool.
func NewModeHistoryTool(history History) *ModeHistoryTool {
	return &ModeHistoryTool{history: history}
}

// Definition returns the MCP tool definition for registration.
func (t *ModeHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_mode_history",
		mcp.WithDescription(
			"Show recent mode changes, UMB activations and trigger hits, newest first.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events (default: 20)"),
		),
		mcp.WithBoolean("include_umb_sessions",
			mcp.Description("Also list recent UMB sessions (default: false)"),
		),
	)
}

// Handle processes the get_mode_history tool call.
func (t *ModeHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.history == nil {
		return mcp.NewToolResultError("The mode journal is disabled."), nil
	}

	events, err := t.history.Recent(intArg(req, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read mode history: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("# Mode history\n\n")
	if len(events) == 0 {
		sb.WriteString("_No events recorded yet._\n")
	}
	for _, e := range events {
		fmt.Fprintf(&sb, "- [%s] %s mode=%s", e.CreatedAt, e.Kind, e.Mode)
		if e.UMBActive {
			sb.WriteString(" umb=on")
		}
		if e.Status != "" {
			fmt.Fprintf(&sb, " status=%s", e.Status)
		}
		if len(e.Targets) > 0 {
			fmt.Fprintf(&sb, " targets=%s", strings.Join(e.Targets, ","))
		}
		sb.WriteString("\n")
	}

	if boolArg(req, "include_umb_sessions", false) {
		sessions, err := t.history.UMBSessions(10)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read UMB sessions: %v", err)), nil
		}
		sb.WriteString("\n## UMB sessions\n\n")
		if len(sessions) == 0 {
			sb.WriteString("_None._\n")
		}
		for _, s := range sessions {
			end := "active"
			if s.EndedAt != nil {
				end = *s.EndedAt
			}
			fmt.Fprintf(&sb, "- %s mode=%s %s → %s\n", s.ID, s.Mode, s.StartedAt, end)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
