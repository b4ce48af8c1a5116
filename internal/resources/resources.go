// Package resources implements the MCP resources of the memory bank server.
//
// Resources provide read-only data the host can pull into context. They
// use memory-bank:// URIs: one per core file plus memory-bank://mode for
// the current mode state.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
)

// Scheme prefixes every resource URI.
const Scheme = "memory-bank://"

// ModeURI addresses the current mode state.
const ModeURI = Scheme + "mode"

// FileResource pairs a core file resource with its handler.
type FileResource struct {
	Resource mcp.Resource
	Handle   func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)
}

// Handler serves the memory bank resources.
type Handler struct {
	bank    *memorybank.Manager
	machine *mode.Machine
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(bank *memorybank.Manager, machine *mode.Machine) *Handler {
	return &Handler{bank: bank, machine: machine}
}

// FileResources returns one resource per core memory bank file.
func (h *Handler) FileResources() []FileResource {
	out := make([]FileResource, 0, len(storage.CoreFiles))
	for _, name := range storage.CoreFiles {
		slug := strings.TrimSuffix(name, ".md")
		out = append(out, FileResource{
			Resource: mcp.NewResource(
				Scheme+slug,
				titleCase(slug),
				mcp.WithResourceDescription(fmt.Sprintf("The %s file of the active memory bank", name)),
				mcp.WithMIMEType("text/markdown"),
			),
			Handle: func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return h.handleFile(ctx, req, name)
			},
		})
	}
	return out
}

func (h *Handler) handleFile(ctx context.Context, req mcp.ReadResourceRequest, name string) ([]mcp.ResourceContents, error) {
	content, err := h.bank.ReadFile(ctx, name)
	switch {
	case errors.Is(err, memorybank.ErrNotConfigured):
		return errorResource(req.Params.URI, "no memory bank is configured"), nil
	case errors.Is(err, memorybank.ErrFileNotFound):
		return errorResource(req.Params.URI, fmt.Sprintf("%s does not exist in the memory bank", name)), nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     content,
		},
	}, nil
}

// ModeResource returns the MCP resource definition for the mode state.
func (h *Handler) ModeResource() mcp.Resource {
	return mcp.NewResource(
		ModeURI,
		"Current Mode",
		mcp.WithResourceDescription("Current mode, its rules, UMB flag and memory bank status"),
		mcp.WithMIMEType("application/json"),
	)
}

type modeDocument struct {
	mode.State
	Prefix         string   `json:"prefix"`
	AvailableModes []string `json:"available_modes"`
	MemoryBankDir  string   `json:"memory_bank_dir,omitempty"`
}

// HandleMode returns the current mode state as JSON.
func (h *Handler) HandleMode(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	state := h.machine.Current()
	doc := modeDocument{
		State:          state,
		Prefix:         state.MemoryBankStatus.Prefix(),
		AvailableModes: h.machine.AvailableModes(),
		MemoryBankDir:  h.bank.Dir(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling mode state: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
