package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
)

// --- switch_mode ---

func TestSwitchModeTool(t *testing.T) {
	e := newEnv(t)
	tool := NewSwitchModeTool(e.machine)

	result := call(t, tool.Handle, map[string]any{"mode": "architect"})
	require.False(t, isErrorResult(result), getResultText(result))
	assert.Equal(t, "architect", e.machine.CurrentMode())
	assert.Contains(t, getResultText(result), "# Mode: architect")
	assert.Contains(t, getResultText(result), "[MEMORY BANK: INACTIVE]")
}

func TestSwitchModeTool_Unavailable(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewSwitchModeTool(e.machine).Handle, map[string]any{"mode": "ask"})

	assert.True(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "Available modes: code, architect, debug")
	assert.Equal(t, "code", e.machine.CurrentMode())
}

func TestSwitchModeTool_MissingMode(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewSwitchModeTool(e.machine).Handle, map[string]any{})
	assert.True(t, isErrorResult(result))
}

// --- get_current_mode ---

func TestCurrentModeTool_Markdown(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewCurrentModeTool(e.machine).Handle, nil)
	require.False(t, isErrorResult(result))

	text := getResultText(result)
	assert.Contains(t, text, "# Mode: code")
	assert.Contains(t, text, "**UMB active:** false")
	assert.Contains(t, text, "**Suggests switching to:** architect, test, debug, ask")
	assert.Contains(t, text, "**Available modes:** code, architect, debug")
}

func TestCurrentModeTool_JSON(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewCurrentModeTool(e.machine).Handle, map[string]any{"format": "json"})
	require.False(t, isErrorResult(result))

	var resp struct {
		Name             string   `json:"name"`
		UMBActive        bool     `json:"umb_active"`
		MemoryBankStatus string   `json:"memory_bank_status"`
		Prefix           string   `json:"prefix"`
		AvailableModes   []string `json:"available_modes"`
		Rules            struct {
			Mode string `json:"mode"`
		} `json:"rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &resp))
	assert.Equal(t, "code", resp.Name)
	assert.Equal(t, "code", resp.Rules.Mode)
	assert.Equal(t, "INACTIVE", resp.MemoryBankStatus)
	assert.Equal(t, "[MEMORY BANK: INACTIVE]", resp.Prefix)
	assert.Equal(t, []string{"code", "architect", "debug"}, resp.AvailableModes)
}

// --- UMB ---

func TestUMBFlow(t *testing.T) {
	e := newInitializedEnv(t)
	process := NewProcessUMBTool(e.machine)
	complete := NewCompleteUMBTool(e.machine, e.bank)

	result := call(t, process.Handle, map[string]any{"command": "update memory bank"})
	require.False(t, isErrorResult(result), getResultText(result))
	assert.True(t, e.machine.IsUMBActive())
	assert.Equal(t, mode.StatusUpdating, e.machine.MemoryBankStatus())

	text := getResultText(result)
	assert.Contains(t, text, "[MEMORY BANK: UPDATING]")
	assert.Contains(t, text, "Halt Current Task")
	assert.Contains(t, text, "File restrictions of this mode are lifted")

	result = call(t, complete.Handle, nil)
	require.False(t, isErrorResult(result), getResultText(result))
	assert.False(t, e.machine.IsUMBActive())
	assert.Equal(t, mode.StatusActive, e.machine.MemoryBankStatus())
	assert.Contains(t, getResultText(result), "[MEMORY BANK: ACTIVE]")
}

func TestUMBFlow_MemoryBankToolsKeepUpdating(t *testing.T) {
	e := newInitializedEnv(t)
	result := call(t, NewProcessUMBTool(e.machine).Handle, map[string]any{"command": "UMB"})
	require.False(t, isErrorResult(result), getResultText(result))

	dir := e.bank.Dir()
	result = call(t, NewInitializeTool(e.bank, e.projectDir).Handle, map[string]any{"path": dir})
	require.False(t, isErrorResult(result), getResultText(result))
	result = call(t, NewSetPathTool(e.bank, e.projectDir).Handle, map[string]any{"path": dir})
	require.False(t, isErrorResult(result), getResultText(result))

	assert.True(t, e.machine.IsUMBActive())
	assert.Equal(t, mode.StatusUpdating, e.machine.MemoryBankStatus())
}

func TestProcessUMBTool_NotACommand(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewProcessUMBTool(e.machine).Handle, map[string]any{"command": "please update the memory bank now"})

	assert.True(t, isErrorResult(result))
	assert.False(t, e.machine.IsUMBActive())
	assert.Equal(t, mode.StatusInactive, e.machine.MemoryBankStatus())
}

func TestProcessUMBTool_MissingCommand(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewProcessUMBTool(e.machine).Handle, map[string]any{"command": "  "})
	assert.True(t, isErrorResult(result))
}

func TestCompleteUMBTool_NotActive(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewCompleteUMBTool(e.machine, e.bank).Handle, nil)
	assert.True(t, isErrorResult(result))
	assert.Contains(t, getResultText(result), "UMB is not active")
}

func TestCompleteUMBTool_WithoutMemoryBank(t *testing.T) {
	e := newEnv(t)
	require.True(t, e.machine.ActivateUMB())

	result := call(t, NewCompleteUMBTool(e.machine, e.bank).Handle, nil)
	require.False(t, isErrorResult(result))
	assert.Equal(t, mode.StatusInactive, e.machine.MemoryBankStatus())
}

// --- check_mode_triggers ---

func TestCheckTriggersTool(t *testing.T) {
	e := newEnv(t)
	tool := NewCheckTriggersTool(e.machine)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"single", "we have an error_investigation_needed here", "Suggested modes: debug"},
		{"declaration order", "tests_need_update and needs_architectural_changes", "Suggested modes: architect"},
		{"unavailable target skipped", "documentation_needed", "No mode triggers matched. Staying in code."},
		{"no match", "nothing interesting", "No mode triggers matched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, tool.Handle, map[string]any{"text": tt.text})
			require.False(t, isErrorResult(result))
			assert.Contains(t, getResultText(result), tt.want)
		})
	}
	assert.Equal(t, "code", e.machine.CurrentMode(), "checking triggers never switches")
}

func TestCheckTriggersTool_MissingText(t *testing.T) {
	e := newEnv(t)
	result := call(t, NewCheckTriggersTool(e.machine).Handle, map[string]any{})
	assert.True(t, isErrorResult(result))
}
