// Package tools implements the MCP tool handlers of the memory bank server.
//
// Each tool is a struct that receives its dependencies through its
// constructor and exposes:
// - Definition() returning the mcp.Tool schema
// - Handle() processing a CallToolRequest
//
// User-level failures (bad arguments, no memory bank, unknown mode) are
// returned as tool errors. A Go error is returned only when the server
// itself cannot complete the call.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts a list argument. Arrays keep their non-empty string
// items; a plain string is split on newlines so clients that cannot send
// arrays still work.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, line := range strings.Split(v, "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
			if line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// memoryBankError maps manager errors to tool results. Errors the user can
// act on become tool errors; anything else is returned as is.
func memoryBankError(action string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, memorybank.ErrNotConfigured):
		return mcp.NewToolResultError(
			"No memory bank is configured. Call initialize_memory_bank or set_memory_bank_path first.",
		), nil
	case errors.Is(err, memorybank.ErrFileNotFound), errors.Is(err, storage.ErrNotExist):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err)), nil
	case errors.Is(err, memorybank.ErrInvalidName):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, storage.ErrBackupInsideSource):
		return mcp.NewToolResultError("Choose a backup_dir outside the memory bank: " + err.Error()), nil
	default:
		return nil, fmt.Errorf("%s: %w", action, err)
	}
}
