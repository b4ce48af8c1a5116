// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete rule store, mode
// machine, storage backend, memory bank manager and journal, and injects
// them into the tools, prompts and resources. No business logic lives
// here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/config"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/journal"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/memorybank"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/prompts"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/resources"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Components holds the long-lived pieces behind the MCP server.
type Components struct {
	Rules   *rules.Store
	Machine *mode.Machine
	Storage storage.Provider
	Bank    *memorybank.Manager
	// Journal is nil when disabled or when it failed to open.
	Journal *journal.Store
	// BankRoot is where the memory bank is searched for and created by
	// default, in the storage backend's namespace.
	BankRoot string
}

// NewRuleStore builds the rule store described by cfg.
func NewRuleStore(cfg *config.Config, logger *zap.Logger) *rules.Store {
	return rules.New(rules.Options{
		Roots:     cfg.RuleRoots(),
		Modes:     cfg.Modes,
		Templates: rules.BuiltinTemplates(cfg.Modes),
		Debounce:  cfg.RulesDebounce,
		Logger:    logger.Named("rules"),
	})
}

// NewStorage returns the backend selected by cfg.
func NewStorage(cfg *config.Config, logger *zap.Logger) (storage.Provider, string, error) {
	switch cfg.Storage.Backend {
	case config.BackendSFTP:
		p, err := storage.NewSFTP(cfg.SFTPConfig(), logger.Named("sftp"))
		if err != nil {
			return nil, "", fmt.Errorf("creating sftp storage: %w", err)
		}
		return p, ".", nil
	default:
		return storage.NewLocal(logger.Named("storage")), cfg.ProjectDir, nil
	}
}

// Build creates and connects every component. The returned cleanup
// function releases them in reverse order; it is always non-nil.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// --- Storage ---

	store, bankRoot, err := NewStorage(cfg, logger)
	if err != nil {
		return nil, noop, err
	}

	// --- Rules ---
	//
	// Missing rule files are seeded from the built-in templates. A
	// read-only environment only loses the seeding; whatever exists
	// still loads.

	ruleStore := NewRuleStore(cfg, logger)
	res, err := ruleStore.ValidateRequired(ctx)
	switch {
	case errors.Is(err, rules.ErrNoWritableDir):
		logger.Warn("no writable rules directory, missing rule files not created",
			zap.Strings("missing", res.MissingFiles))
	case err != nil:
		_ = store.Close()
		return nil, noop, fmt.Errorf("validating rule files: %w", err)
	}
	if len(res.CreatedFiles) > 0 {
		logger.Info("rule files created from templates",
			zap.Strings("files", res.CreatedFiles), zap.String("dir", ruleStore.ChosenRoot()))
	}

	if _, err := ruleStore.Load(ctx); err != nil {
		_ = ruleStore.Close()
		_ = store.Close()
		return nil, noop, fmt.Errorf("loading rules: %w", err)
	}

	// --- Mode machine ---

	machine := mode.New(ruleStore, logger.Named("mode"))
	machine.Subscribe(logObserver(logger.Named("mode")))

	// --- Journal ---
	//
	// The journal is an independent subsystem: if it fails to open, the
	// server keeps working without history. It subscribes before
	// Initialize so the starting mode is recorded.

	var js *journal.Store
	if cfg.Journal.Enabled {
		js, err = journal.New(journal.Config{DataDir: cfg.Journal.DataDir}, logger.Named("journal"))
		if err != nil {
			logger.Warn("mode journal disabled", zap.Error(err))
			js = nil
		} else {
			machine.Subscribe(js)
		}
	}

	current := machine.Initialize(cfg.InitialMode)
	logger.Info("rules loaded",
		zap.Strings("modes", ruleStore.Modes()), zap.String("mode", current))

	// --- Memory bank ---

	bank := memorybank.New(store, machine, logger.Named("memorybank"))
	if cfg.MemoryBankPath != "" {
		bank.SetCustomPath(cfg.MemoryBankPath)
	}
	dir, err := bank.Find(ctx, bankRoot, cfg.MemoryBankPath)
	if err != nil {
		logger.Warn("memory bank search failed", zap.Error(err))
	}
	if dir != "" {
		if err := bank.SetDir(ctx, dir); err != nil {
			logger.Warn("memory bank unavailable", zap.String("dir", dir), zap.Error(err))
		}
	} else {
		logger.Info("no memory bank found", zap.String("root", bankRoot))
		bank.Probe(ctx)
	}

	c := &Components{
		Rules:    ruleStore,
		Machine:  machine,
		Storage:  store,
		Bank:     bank,
		Journal:  js,
		BankRoot: bankRoot,
	}

	cleanup := func() {
		machine.Close()
		if err := ruleStore.Close(); err != nil {
			logger.Warn("rule store close", zap.Error(err))
		}
		if js != nil {
			if err := js.Close(); err != nil {
				logger.Warn("journal close", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			logger.Warn("storage close", zap.Error(err))
		}
	}
	return c, cleanup, nil
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
//
// The returned cleanup function stops the rule watcher and closes the
// journal and storage connections. It must be called on shutdown
// (typically via defer) and is always non-nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server.MCPServer, func(), error) {
	c, cleanup, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, noop, err
	}
	return NewMCPServer(c), cleanup, nil
}

// NewMCPServer registers every tool, prompt and resource over c.
func NewMCPServer(c *Components) *server.MCPServer {
	s := server.NewMCPServer(
		"memory-bank-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Memory bank tools ---

	initTool := tools.NewInitializeTool(c.Bank, c.BankRoot)
	s.AddTool(initTool.Definition(), initTool.Handle)

	setPathTool := tools.NewSetPathTool(c.Bank, c.BankRoot)
	s.AddTool(setPathTool.Definition(), setPathTool.Handle)

	readTool := tools.NewReadFileTool(c.Bank)
	s.AddTool(readTool.Definition(), readTool.Handle)

	writeTool := tools.NewWriteFileTool(c.Bank)
	s.AddTool(writeTool.Definition(), writeTool.Handle)

	listTool := tools.NewListFilesTool(c.Bank)
	s.AddTool(listTool.Definition(), listTool.Handle)

	statusTool := tools.NewStatusTool(c.Bank, c.Machine)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	backupTool := tools.NewBackupTool(c.Bank)
	s.AddTool(backupTool.Definition(), backupTool.Handle)

	// --- Progress tools ---

	trackTool := tools.NewTrackProgressTool(c.Bank)
	s.AddTool(trackTool.Definition(), trackTool.Handle)

	activeContextTool := tools.NewUpdateActiveContextTool(c.Bank)
	s.AddTool(activeContextTool.Definition(), activeContextTool.Handle)

	decisionTool := tools.NewLogDecisionTool(c.Bank)
	s.AddTool(decisionTool.Definition(), decisionTool.Handle)

	// --- Mode tools ---

	switchTool := tools.NewSwitchModeTool(c.Machine)
	s.AddTool(switchTool.Definition(), switchTool.Handle)

	currentTool := tools.NewCurrentModeTool(c.Machine)
	s.AddTool(currentTool.Definition(), currentTool.Handle)

	umbTool := tools.NewProcessUMBTool(c.Machine)
	s.AddTool(umbTool.Definition(), umbTool.Handle)

	completeTool := tools.NewCompleteUMBTool(c.Machine, c.Bank)
	s.AddTool(completeTool.Definition(), completeTool.Handle)

	triggersTool := tools.NewCheckTriggersTool(c.Machine)
	s.AddTool(triggersTool.Definition(), triggersTool.Handle)

	// A nil *journal.Store must not reach the interface as a typed nil.
	var history tools.History
	if c.Journal != nil {
		history = c.Journal
	}
	historyTool := tools.NewModeHistoryTool(history)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	// --- Prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	umbPrompt := prompts.NewUMBPrompt()
	s.AddPrompt(umbPrompt.Definition(), umbPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(c.Bank, c.Machine)
	for _, fr := range resourceHandler.FileResources() {
		s.AddResource(fr.Resource, fr.Handle)
	}
	s.AddResource(resourceHandler.ModeResource(), resourceHandler.HandleMode)

	return s
}

// noop is the cleanup returned when nothing was created.
func noop() {}

// logObserver traces every machine signal at debug level.
func logObserver(logger *zap.Logger) mode.Observer {
	fields := func(s mode.State) []zap.Field {
		return []zap.Field{
			zap.String("mode", s.Name),
			zap.Bool("umb", s.UMBActive),
			zap.String("status", string(s.MemoryBankStatus)),
		}
	}
	return mode.ObserverFuncs{
		OnModeChanged:  func(s mode.State) { logger.Debug("mode changed", fields(s)...) },
		OnUMBTriggered: func(s mode.State) { logger.Debug("umb triggered", fields(s)...) },
		OnUMBCompleted: func(s mode.State) { logger.Debug("umb completed", fields(s)...) },
		OnModeTriggersDetected: func(targets []string) {
			logger.Debug("mode triggers detected", zap.Strings("targets", targets))
		},
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use the memory bank server.
func serverInstructions() string {
	return `You have access to a memory bank: a folder of markdown files that keeps
project context between sessions, and a set of modes that shape how you work.

## Status prefix

Begin EVERY response with the status prefix the server reports, for example
[MEMORY BANK: ACTIVE], [MEMORY BANK: INACTIVE] or [MEMORY BANK: UPDATING].
get_memory_bank_status and get_current_mode both return it.

## Starting a session

1. Call get_memory_bank_status. If no memory bank is configured, ask the user
   whether to create one and call initialize_memory_bank.
2. Call get_current_mode and follow the instructions of the current mode.
3. Read active-context.md and progress.md before starting work.

## Core files

- product-context.md: what the project is and why it exists
- active-context.md: current tasks, known issues, next steps, session notes
- progress.md: milestones and the update history
- decision-log.md: significant decisions with context and alternatives
- system-patterns.md: architecture, code and documentation patterns

Keep them current with track_progress, update_active_context and log_decision.

## Modes

Each mode (architect, ask, code, debug, test) has its own rules. Call
switch_mode to change mode. When a message suggests another mode, call
check_mode_triggers; it lists suggestions and never switches on its own.

## Update Memory Bank (UMB)

When the user says "Update Memory Bank" or "UMB", call process_umb_command
with their message and follow the returned instructions. The status is
UPDATING until you call complete_umb.`
}
