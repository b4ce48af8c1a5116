package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseKind classifies the outcome of parsing a rule file.
type ParseKind int

const (
	// ParseOK means the content decoded and passed validation.
	ParseOK ParseKind = iota
	// ParseError means the content is neither JSON nor a YAML mapping.
	ParseError
	// SchemaError means the content decoded but does not describe a valid rule.
	SchemaError
)

func (k ParseKind) String() string {
	switch k {
	case ParseOK:
		return "ok"
	case ParseError:
		return "parse_error"
	case SchemaError:
		return "schema_error"
	default:
		return fmt.Sprintf("ParseKind(%d)", int(k))
	}
}

// Format names the syntax a rule file was decoded from.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseResult is the tagged outcome of Parse. Definition is set only
// when Kind is ParseOK; Err is set otherwise.
type ParseResult struct {
	Kind       ParseKind
	Format     Format
	Definition *RuleDefinition
	Err        error
}

// OK reports whether parsing produced a usable definition.
func (r ParseResult) OK() bool {
	return r.Kind == ParseOK && r.Definition != nil
}

var (
	errMissingMode    = errors.New("missing required field \"mode\"")
	errMissingGeneral = errors.New("missing required array \"instructions.general\"")
)

// Parse decodes rule file content in two stages: content that is valid
// JSON is decoded as JSON, anything else as YAML. The decoded value is
// then validated. When expectedMode is non-empty, the embedded mode must
// equal it.
func Parse(content []byte, expectedMode string) ParseResult {
	var (
		def    RuleDefinition
		format Format
	)

	trimmed := bytes.TrimSpace(content)
	if json.Valid(trimmed) {
		format = FormatJSON
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return ParseResult{Kind: SchemaError, Format: format, Err: fmt.Errorf("decoding JSON rule: %w", err)}
		}
	} else {
		format = FormatYAML
		var doc yaml.Node
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return ParseResult{Kind: ParseError, Format: format, Err: fmt.Errorf("parsing YAML rule: %w", err)}
		}
		if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return ParseResult{Kind: ParseError, Format: format, Err: errors.New("rule content is neither a JSON object nor a YAML mapping")}
		}
		if err := doc.Content[0].Decode(&def); err != nil {
			return ParseResult{Kind: SchemaError, Format: format, Err: fmt.Errorf("decoding YAML rule: %w", err)}
		}
	}

	if err := validate(&def, expectedMode); err != nil {
		return ParseResult{Kind: SchemaError, Format: format, Err: err}
	}

	return ParseResult{Kind: ParseOK, Format: format, Definition: &def}
}

// validate checks the required fields and the filename/mode contract.
func validate(def *RuleDefinition, expectedMode string) error {
	if def.Mode == "" {
		return errMissingMode
	}
	if def.Instructions.General == nil {
		return errMissingGeneral
	}
	if expectedMode != "" && def.Mode != expectedMode {
		return fmt.Errorf("mode %q does not match filename mode %q", def.Mode, expectedMode)
	}
	return nil
}
