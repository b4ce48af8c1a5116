package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// UMBPrompt handles the memory-bank-update MCP prompt.
// It walks the AI through a full "Update Memory Bank" cycle.
type UMBPrompt struct{}

// NewUMBPrompt creates a UMBPrompt.
func NewUMBPrompt() *UMBPrompt {
	return &UMBPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *UMBPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-bank-update",
		mcp.WithPromptDescription(
			"Update the memory bank with what happened in this session (UMB).",
		),
	)
}

// Handle processes the memory-bank-update prompt request.
func (p *UMBPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Update Memory Bank",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Update Memory Bank.\n\n" +
						"1. Call `process_umb_command` with the command \"Update Memory Bank\" and follow the instructions it returns\n" +
						"2. Record completed work with `track_progress`\n" +
						"3. Record significant choices with `log_decision`\n" +
						"4. Refresh tasks, issues and next steps with `update_active_context`\n" +
						"5. Call `complete_umb` when every file is up to date",
				),
			},
		},
	}, nil
}
