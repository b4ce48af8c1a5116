// Package rules discovers, parses, validates and live-reloads the per-mode
// rule definitions stored in .clinerules-<mode> files.
//
// This package follows the same split as the rest of the server:
// - types.go: the rule definition data model
// - parse.go: the two-stage JSON-then-YAML parser
// - store.go: discovery, validation and template seeding
// - watch.go: filesystem watching and hot reload
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/trigger"
	"gopkg.in/yaml.v3"
)

// FilePrefix is the filename prefix of a rule definition file.
const FilePrefix = ".clinerules-"

// DefaultModes lists the modes discovered when none are configured.
var DefaultModes = []string{"architect", "ask", "code", "debug", "test"}

// Filename returns the conventional rule filename for a mode.
func Filename(mode string) string {
	return FilePrefix + mode
}

// ModeFromFilename extracts the mode implied by a rule filename.
func ModeFromFilename(name string) (string, bool) {
	if !strings.HasPrefix(name, FilePrefix) {
		return "", false
	}
	mode := strings.TrimPrefix(name, FilePrefix)
	if mode == "" {
		return "", false
	}
	return mode, true
}

// --- Core data structures ---

// UMB configures the "Update Memory Bank" override for a mode.
type UMB struct {
	Trigger                  string   `json:"trigger" yaml:"trigger"`
	Instructions             []string `json:"instructions" yaml:"instructions"`
	OverrideFileRestrictions bool     `json:"override_file_restrictions" yaml:"override_file_restrictions"`
}

// Instructions groups the instruction blocks of a rule definition.
// MemoryBank is opaque passthrough configuration.
type Instructions struct {
	General    []string       `json:"general" yaml:"general"`
	UMB        *UMB           `json:"umb,omitempty" yaml:"umb,omitempty"`
	MemoryBank map[string]any `json:"memory_bank,omitempty" yaml:"memory_bank,omitempty"`
}

// RuleDefinition is the validated content of one .clinerules-<mode> file.
//
// Definitions are immutable once published by the Store: a file change
// produces a new value that replaces the old one wholesale.
type RuleDefinition struct {
	Mode         string       `json:"mode" yaml:"mode"`
	Instructions Instructions `json:"instructions" yaml:"instructions"`
	ModeTriggers ModeTriggers `json:"mode_triggers,omitempty" yaml:"mode_triggers,omitempty"`
}

// HasUMB reports whether the definition carries a UMB block.
func (d *RuleDefinition) HasUMB() bool {
	return d != nil && d.Instructions.UMB != nil
}

// Condition is a single substring condition under mode_triggers.
type Condition struct {
	Condition string `json:"condition" yaml:"condition"`
}

// ModeTrigger is the list of conditions that suggest switching to Target.
type ModeTrigger struct {
	Target     string
	Conditions []Condition
}

// ModeTriggers is the mode_triggers map kept in file order.
//
// A plain Go map would lose the order the file declares, and trigger
// results must follow that order.
type ModeTriggers []ModeTrigger

// Targets returns the target modes in declaration order.
func (t ModeTriggers) Targets() []string {
	out := make([]string, 0, len(t))
	for _, mt := range t {
		out = append(out, mt.Target)
	}
	return out
}

// Lookup returns the conditions declared for a target mode.
func (t ModeTriggers) Lookup(target string) ([]Condition, bool) {
	for _, mt := range t {
		if mt.Target == target {
			return mt.Conditions, true
		}
	}
	return nil, false
}

// TriggerRules converts the triggers into the matcher's input shape.
func (t ModeTriggers) TriggerRules() []trigger.Rule {
	out := make([]trigger.Rule, 0, len(t))
	for _, mt := range t {
		conds := make([]string, 0, len(mt.Conditions))
		for _, c := range mt.Conditions {
			conds = append(conds, c.Condition)
		}
		out = append(out, trigger.Rule{Target: mt.Target, Conditions: conds})
	}
	return out
}

// set stores conditions for target. A repeated key replaces the earlier
// conditions but keeps the first position, like a JSON object would.
func (t *ModeTriggers) set(target string, conds []Condition) {
	for i := range *t {
		if (*t)[i].Target == target {
			(*t)[i].Conditions = conds
			return
		}
	}
	*t = append(*t, ModeTrigger{Target: target, Conditions: conds})
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (t *ModeTriggers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("mode_triggers: %w", err)
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mode_triggers: expected an object, got %v", tok)
	}

	var out ModeTriggers
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("mode_triggers: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("mode_triggers: unexpected key %v", keyTok)
		}

		var conds []Condition
		if err := dec.Decode(&conds); err != nil {
			return fmt.Errorf("mode_triggers.%s: %w", key, err)
		}
		out.set(key, conds)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("mode_triggers: %w", err)
	}

	*t = out
	return nil
}

// MarshalJSON encodes the triggers as a JSON object in declaration order.
func (t ModeTriggers) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mt := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mt.Target)
		if err != nil {
			return nil, err
		}
		conds := mt.Conditions
		if conds == nil {
			conds = []Condition{}
		}
		val, err := json.Marshal(conds)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (t *ModeTriggers) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*t = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("mode_triggers: line %d: expected a mapping", value.Line)
	}

	var out ModeTriggers
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]

		var conds []Condition
		if err := valNode.Decode(&conds); err != nil {
			return fmt.Errorf("mode_triggers.%s: %w", keyNode.Value, err)
		}
		out.set(keyNode.Value, conds)
	}

	*t = out
	return nil
}
