package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
)

// --- switch_mode ---

// SwitchModeTool handles the switch_mode MCP tool.
type SwitchModeTool struct {
	machine *mode.Machine
}

// NewSwitchModeTool creates a SwitchModeTool.
func NewSwitchModeTool(machine *mode.Machine) *SwitchModeTool {
	return &SwitchModeTool{machine: machine}
}

// Definition returns the MCP tool definition for registration.
func (t *SwitchModeTool) Definition() mcp.Tool {
	return mcp.NewTool("switch_mode",
		mcp.WithDescription(
			"Switch the assistant to another mode. Only modes with a loaded "+
				".clinerules-<mode> file can be selected. Returns the new mode's instructions.",
		),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("Target mode, e.g. 'architect', 'code', 'debug'"),
		),
	)
}

// Handle processes the switch_mode tool call.
func (t *SwitchModeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := strings.TrimSpace(req.GetString("mode", ""))
	if target == "" {
		return mcp.NewToolResultError("'mode' is required"), nil
	}

	if !t.machine.SwitchMode(target) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Mode %q is not available. Available modes: %s",
			target, strings.Join(t.machine.AvailableModes(), ", "),
		)), nil
	}
	return mcp.NewToolResultText(describeState(t.machine.Current())), nil
}

// --- get_current_mode ---

// CurrentModeTool handles the get_current_mode MCP tool.
type CurrentModeTool struct {
	machine *mode.Machine
}

// NewCurrentModeTool creates a CurrentModeTool.
func NewCurrentModeTool(machine *mode.Machine) *CurrentModeTool {
	return &CurrentModeTool{machine: machine}
}

// Definition returns the MCP tool definition for registration.
func (t *CurrentModeTool) Definition() mcp.Tool {
	return mcp.NewTool("get_current_mode",
		mcp.WithDescription(
			"Show the current mode, its instructions, whether UMB is active, "+
				"the memory bank status and the modes that can be switched to.",
		),
		mcp.WithString("format",
			mcp.Description("'markdown' (default) or 'json'"),
			mcp.Enum("markdown", "json"),
		),
	)
}

type currentModeResponse struct {
	mode.State
	Prefix         string   `json:"prefix"`
	AvailableModes []string `json:"available_modes"`
}

// Handle processes the get_current_mode tool call.
func (t *CurrentModeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := t.machine.Current()
	if req.GetString("format", "markdown") == "json" {
		return jsonResult(currentModeResponse{
			State:          state,
			Prefix:         state.MemoryBankStatus.Prefix(),
			AvailableModes: t.machine.AvailableModes(),
		})
	}

	var sb strings.Builder
	sb.WriteString(describeState(state))
	fmt.Fprintf(&sb, "\n**Available modes:** %s\n", strings.Join(t.machine.AvailableModes(), ", "))
	return mcp.NewToolResultText(sb.String()), nil
}

// describeState renders a state snapshot as markdown.
func describeState(state mode.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", state.MemoryBankStatus.Prefix())
	fmt.Fprintf(&sb, "# Mode: %s\n\n", state.Name)
	fmt.Fprintf(&sb, "**UMB active:** %t\n", state.UMBActive)

	if state.Rules == nil {
		sb.WriteString("\n_No rules loaded for this mode._\n")
		return sb.String()
	}

	sb.WriteString("\n## Instructions\n\n")
	for _, line := range state.Rules.Instructions.General {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	if targets := state.Rules.ModeTriggers.Targets(); len(targets) > 0 {
		fmt.Fprintf(&sb, "\n**Suggests switching to:** %s\n", strings.Join(targets, ", "))
	}
	return sb.String()
}

// --- process_umb_command ---

// ProcessUMBTool handles the process_umb_command MCP tool.
// A message matching the current mode's UMB trigger activates UMB and
// marks the memory bank as updating.
type ProcessUMBTool struct {
	machine *mode.Machine
}

// NewProcessUMBTool creates a ProcessUMBTool.
func NewProcessUMBTool(machine *mode.Machine) *ProcessUMBTool {
	return &ProcessUMBTool{machine: machine}
}

// Definition returns the MCP tool definition for registration.
func (t *ProcessUMBTool) Definition() mcp.Tool {
	return mcp.NewTool("process_umb_command",
		mcp.WithDescription(
			"Handle an 'Update Memory Bank' request. If the message matches the current mode's "+
				"UMB trigger, UMB is activated and the UMB instructions are returned. "+
				"Call complete_umb when the memory bank update is done.",
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The user's message, e.g. 'Update memory bank'"),
		),
	)
}

// Handle processes the process_umb_command tool call.
func (t *ProcessUMBTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := req.GetString("command", "")
	if strings.TrimSpace(command) == "" {
		return mcp.NewToolResultError("'command' is required"), nil
	}

	if !t.machine.CheckUMBTrigger(command) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"%q is not a UMB command in mode %s", command, t.machine.CurrentMode(),
		)), nil
	}
	if !t.machine.ActivateUMB() {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Mode %s has no UMB configuration", t.machine.CurrentMode(),
		)), nil
	}
	t.machine.SetMemoryBankStatus(mode.StatusUpdating)

	state := t.machine.Current()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", state.MemoryBankStatus.Prefix())
	fmt.Fprintf(&sb, "# UMB active (mode: %s)\n\n", state.Name)
	if state.Rules.HasUMB() {
		umb := state.Rules.Instructions.UMB
		for _, line := range umb.Instructions {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
		if umb.OverrideFileRestrictions {
			sb.WriteString("\n_File restrictions of this mode are lifted until complete_umb is called._\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- complete_umb ---

// CompleteUMBTool handles the complete_umb MCP tool.
// It ends UMB and restores the memory bank status from a fresh probe.
type CompleteUMBTool struct {
	machine *mode.Machine
	bank    *memorybank.Manager
}

// NewCompleteUMBTool creates a CompleteUMBTool.
func NewCompleteUMBTool(machine *mode.Machine, bank *memorybank.Manager) *CompleteUMBTool {
	return &CompleteUMBTool{machine: machine, bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteUMBTool) Definition() mcp.Tool {
	return mcp.NewTool("complete_umb",
		mcp.WithDescription("Finish an 'Update Memory Bank' session started by process_umb_command."),
	)
}

// Handle processes the complete_umb tool call.
func (t *CompleteUMBTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !t.machine.IsUMBActive() {
		return mcp.NewToolResultError("UMB is not active"), nil
	}

	t.machine.DeactivateUMB()
	status := t.bank.Probe(ctx)
	return mcp.NewToolResultText(fmt.Sprintf(
		"%s\n\nUMB completed. Back to mode %s.", status.Prefix(), t.machine.CurrentMode(),
	)), nil
}

// --- check_mode_triggers ---

// CheckTriggersTool handles the check_mode_triggers MCP tool.
type CheckTriggersTool struct {
	machine *mode.Machine
}

// NewCheckTriggersTool creates a CheckTriggersTool.
func NewCheckTriggersTool(machine *mode.Machine) *CheckTriggersTool {
	return &CheckTriggersTool{machine: machine}
}

// Definition returns the MCP tool definition for registration.
func (t *CheckTriggersTool) Definition() mcp.Tool {
	return mcp.NewTool("check_mode_triggers",
		mcp.WithDescription(
			"Check a message against the current mode's mode_triggers and list the modes "+
				"it suggests switching to. The mode is not changed; call switch_mode to act on a suggestion.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message to check"),
		),
	)
}

// Handle processes the check_mode_triggers tool call.
func (t *CheckTriggersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	targets := t.machine.CheckModeTriggers(text)
	if len(targets) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No mode triggers matched. Staying in %s.", t.machine.CurrentMode(),
		)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Suggested modes: %s", strings.Join(targets, ", "),
	)), nil
}
