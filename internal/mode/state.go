package mode

import (
	"fmt"
	"strings"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
)

// DefaultMode is the current mode when no rule files could be loaded.
const DefaultMode = "code"

// Status is the memory bank status reported by the storage layer.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusUpdating Status = "UPDATING"
)

// ParseStatus converts a case-insensitive status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusUpdating:
		return st, nil
	default:
		return "", fmt.Errorf("unknown memory bank status %q (want ACTIVE, INACTIVE or UPDATING)", s)
	}
}

// Prefix formats the status line assistants put at the top of a response.
func (s Status) Prefix() string {
	return fmt.Sprintf("[MEMORY BANK: %s]", s)
}

// State is a snapshot of the machine. Rules is nil when the current mode
// has no loaded definition.
type State struct {
	Name             string                `json:"name"`
	Rules            *rules.RuleDefinition `json:"rules,omitempty"`
	UMBActive        bool                  `json:"umb_active"`
	MemoryBankStatus Status                `json:"memory_bank_status"`
}

// RuleSource is what the machine needs from the rule store.
type RuleSource interface {
	Modes() []string
	Rules(mode string) (*rules.RuleDefinition, bool)
	HasMode(mode string) bool
	Subscribe(l rules.Listener) func()
}
