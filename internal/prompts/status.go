package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the memory-bank-status MCP prompt.
// It instructs the AI to read and present the memory bank state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-bank-status",
		mcp.WithPromptDescription(
			"Check the memory bank: which core files exist, when it was last updated, "+
				"the current mode and what to do next.",
		),
	)
}

// Handle processes the memory-bank-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Memory Bank Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `get_memory_bank_status` and `get_current_mode`.\n\n" +
						"Then:\n" +
						"1. Show the status prefix and the current mode\n" +
						"2. List missing core files, if any, and offer to create them\n" +
						"3. Summarize the Next Steps section of active-context.md\n" +
						"4. Mention any mode the current rules suggest switching to",
				),
			},
		},
	}, nil
}
