package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
)

// --- initialize_memory_bank ---

// InitializeTool handles the initialize_memory_bank MCP tool.
// It creates the memory bank directory and seeds the core files.
type InitializeTool struct {
	bank       *memorybank.Manager
	projectDir string
}

// NewInitializeTool creates an InitializeTool. projectDir is where the
// memory bank is created when no path is given.
func NewInitializeTool(bank *memorybank.Manager, projectDir string) *InitializeTool {
	return &InitializeTool{bank: bank, projectDir: projectDir}
}

// Definition returns the MCP tool definition for registration.
func (t *InitializeTool) Definition() mcp.Tool {
	return mcp.NewTool("initialize_memory_bank",
		mcp.WithDescription(
			"Create a memory bank and seed the core files "+
				"(product-context, active-context, progress, decision-log, system-patterns). "+
				"Existing files are kept. The new memory bank becomes the active one.",
		),
		mcp.WithString("path",
			mcp.Description("Directory for the memory bank. Defaults to <project>/memory-bank."),
		),
	)
}

// Handle processes the initialize_memory_bank tool call.
func (t *InitializeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := strings.TrimSpace(req.GetString("path", ""))
	if dir == "" {
		dir = t.bank.Provider().Join(t.projectDir, memorybank.DirName)
	}

	if err := t.bank.Initialize(ctx, dir); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to initialize memory bank: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Memory bank initialized at %s", dir)), nil
}

// --- set_memory_bank_path ---

// SetPathTool handles the set_memory_bank_path MCP tool.
// It locates an existing memory bank at or under the given path.
type SetPathTool struct {
	bank       *memorybank.Manager
	projectDir string
}

// NewSetPathTool creates a SetPathTool.
func NewSetPathTool(bank *memorybank.Manager, projectDir string) *SetPathTool {
	return &SetPathTool{bank: bank, projectDir: projectDir}
}

// Definition returns the MCP tool definition for registration.
func (t *SetPathTool) Definition() mcp.Tool {
	return mcp.NewTool("set_memory_bank_path",
		mcp.WithDescription(
			"Point the server at an existing memory bank. The path may be the memory bank "+
				"itself or a directory containing a memory-bank folder. Relative paths are "+
				"resolved against the project directory.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Memory bank directory, or a directory that contains one"),
		),
	)
}

// Handle processes the set_memory_bank_path tool call.
func (t *SetPathTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := strings.TrimSpace(req.GetString("path", ""))
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	t.bank.SetCustomPath(path)
	found, err := t.bank.Find(ctx, t.projectDir, path)
	if err != nil {
		return nil, fmt.Errorf("finding memory bank: %w", err)
	}
	if found == "" {
		return mcp.NewToolResultError(fmt.Sprintf(
			"No memory bank found at %s. Call initialize_memory_bank with this path to create one.", path,
		)), nil
	}

	if err := t.bank.SetDir(ctx, found); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory bank set to %s", found)), nil
}

// --- read_memory_bank_file ---

// ReadFileTool handles the read_memory_bank_file MCP tool.
type ReadFileTool struct {
	bank *memorybank.Manager
}

// NewReadFileTool creates a ReadFileTool.
func NewReadFileTool(bank *memorybank.Manager) *ReadFileTool {
	return &ReadFileTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *ReadFileTool) Definition() mcp.Tool {
	return mcp.NewTool("read_memory_bank_file",
		mcp.WithDescription("Read a file from the active memory bank."),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("File name relative to the memory bank, e.g. 'progress.md'"),
		),
	)
}

// Handle processes the read_memory_bank_file tool call.
func (t *ReadFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("filename", "")
	if name == "" {
		return mcp.NewToolResultError("'filename' is required"), nil
	}

	content, err := t.bank.ReadFile(ctx, name)
	if err != nil {
		return memoryBankError("reading "+name, err)
	}
	return mcp.NewToolResultText(content), nil
}

// --- write_memory_bank_file ---

// WriteFileTool handles the write_memory_bank_file MCP tool.
// Every write is also recorded in the progress log.
type WriteFileTool struct {
	bank *memorybank.Manager
}

// NewWriteFileTool creates a WriteFileTool.
func NewWriteFileTool(bank *memorybank.Manager) *WriteFileTool {
	return &WriteFileTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *WriteFileTool) Definition() mcp.Tool {
	return mcp.NewTool("write_memory_bank_file",
		mcp.WithDescription(
			"Write a file in the active memory bank, replacing its content. "+
				"The update is recorded in progress.md and active-context.md.",
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("File name relative to the memory bank"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Complete new file content"),
		),
	)
}

// Handle processes the write_memory_bank_file tool call.
func (t *WriteFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("filename", "")
	if name == "" {
		return mcp.NewToolResultError("'filename' is required"), nil
	}
	content, ok := req.GetArguments()["content"].(string)
	if !ok {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	if err := t.bank.WriteFile(ctx, name, content); err != nil {
		return memoryBankError("writing "+name, err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %s (%d bytes)", name, len(content))), nil
}

// --- list_memory_bank_files ---

// ListFilesTool handles the list_memory_bank_files MCP tool.
type ListFilesTool struct {
	bank *memorybank.Manager
}

// NewListFilesTool creates a ListFilesTool.
func NewListFilesTool(bank *memorybank.Manager) *ListFilesTool {
	return &ListFilesTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *ListFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_memory_bank_files",
		mcp.WithDescription("List the markdown files in the active memory bank."),
	)
}

// Handle processes the list_memory_bank_files tool call.
func (t *ListFilesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := t.bank.ListFiles(ctx)
	if err != nil {
		return memoryBankError("listing files", err)
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("The memory bank has no markdown files."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Memory bank files (%s)\n\n", t.bank.Dir())
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- get_memory_bank_status ---

// StatusTool handles the get_memory_bank_status MCP tool.
type StatusTool struct {
	bank    *memorybank.Manager
	machine *mode.Machine
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(bank *memorybank.Manager, machine *mode.Machine) *StatusTool {
	return &StatusTool{bank: bank, machine: machine}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_memory_bank_status",
		mcp.WithDescription(
			"Report the active memory bank: its path, which core files are present or missing, "+
				"when it was last updated, the storage backend and the status prefix to use in responses.",
		),
	)
}

type statusResponse struct {
	Status    mode.Status `json:"status"`
	Prefix    string      `json:"prefix"`
	Storage   string      `json:"storage"`
	Mode      string      `json:"mode"`
	UMBActive bool        `json:"umb_active"`
	Report    any         `json:"report,omitempty"`
}

// Handle processes the get_memory_bank_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := statusResponse{
		Storage: t.bank.Provider().Name(),
	}

	if t.bank.Dir() != "" && !t.machine.IsUMBActive() {
		t.bank.Probe(ctx)
	}
	if t.bank.Dir() != "" {
		report, err := t.bank.Status(ctx)
		if err != nil {
			return memoryBankError("reading status", err)
		}
		resp.Report = report
	}

	state := t.machine.Current()
	resp.Status = state.MemoryBankStatus
	resp.Prefix = state.MemoryBankStatus.Prefix()
	resp.Mode = state.Name
	resp.UMBActive = state.UMBActive
	return jsonResult(resp)
}

// --- backup_memory_bank ---

// BackupTool handles the backup_memory_bank MCP tool.
type BackupTool struct {
	bank *memorybank.Manager
}

// NewBackupTool creates a BackupTool.
func NewBackupTool(bank *memorybank.Manager) *BackupTool {
	return &BackupTool{bank: bank}
}

// Definition returns the MCP tool definition for registration.
func (t *BackupTool) Definition() mcp.Tool {
	return mcp.NewTool("backup_memory_bank",
		mcp.WithDescription(
			"Copy the active memory bank into a timestamped memory-bank-backup-<time> directory.",
		),
		mcp.WithString("backup_dir",
			mcp.Description("Directory that receives the backup. Defaults to the memory bank's parent."),
		),
	)
}

// Handle processes the backup_memory_bank tool call.
func (t *BackupTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := t.bank.Backup(ctx, strings.TrimSpace(req.GetString("backup_dir", "")))
	if err != nil {
		return memoryBankError("backing up memory bank", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Backup created at %s", target)), nil
}
