// Package prompts implements the MCP prompts of the memory bank server.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tools. Unlike tools,
// which the AI calls, prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the memory-bank-start MCP prompt.
// It guides the AI to locate or create a memory bank and pick a mode.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-bank-start",
		mcp.WithPromptDescription(
			"Start a session with the memory bank: find or create it, "+
				"load the context files and switch to the requested mode.",
		),
		mcp.WithArgument("path",
			mcp.ArgumentDescription("Memory bank location. Leave empty to use <project>/memory-bank."),
		),
		mcp.WithArgument("mode",
			mcp.ArgumentDescription("Mode to work in, e.g. 'architect' or 'code'. Default: keep the current mode."),
		),
	)
}

// Handle processes the memory-bank-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	path := strings.TrimSpace(req.Params.Arguments["path"])
	mode := strings.TrimSpace(req.Params.Arguments["mode"])

	var sb strings.Builder
	sb.WriteString("Let's start a session with the memory bank.\n\n")
	if path != "" {
		fmt.Fprintf(&sb,
			"1. Call `set_memory_bank_path` with path %q. If no memory bank is found there, "+
				"call `initialize_memory_bank` with the same path.\n", path)
	} else {
		sb.WriteString("1. Call `get_memory_bank_status`. If no memory bank is configured, " +
			"call `initialize_memory_bank` without a path.\n")
	}
	if mode != "" {
		fmt.Fprintf(&sb, "2. Call `switch_mode` with mode %q.\n", mode)
	} else {
		sb.WriteString("2. Call `get_current_mode` and follow its instructions.\n")
	}
	sb.WriteString(
		"3. Read `active-context.md` and `progress.md` with `read_memory_bank_file`.\n" +
			"4. Summarize the current focus, open issues and next steps in a few lines.\n\n" +
			"Begin every response with the status prefix reported by the server, " +
			"e.g. [MEMORY BANK: ACTIVE].",
	)

	return &mcp.GetPromptResult{
		Description: "Memory bank session start",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(sb.String()),
			},
		},
	}, nil
}
