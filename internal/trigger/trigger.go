// Package trigger evaluates free text against mode trigger definitions.
//
// Two checks live here and they are deliberately different:
//   - The UMB check compiles the configured pattern as a case-insensitive
//     regular expression and runs it over the whole input.
//   - The mode auto-switch check is plain, case-sensitive substring
//     containment of each condition.
//
// Both are pure: they return data and never touch state.
package trigger

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one auto-switch entry: the target mode and the phrases that
// suggest switching to it.
type Rule struct {
	Target     string
	Conditions []string
}

// CompileUMB compiles a UMB trigger pattern with case-insensitive matching.
func CompileUMB(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling UMB trigger %q: %w", pattern, err)
	}
	return re, nil
}

// MatchUMB reports whether text matches the UMB trigger pattern.
// An empty pattern never matches.
func MatchUMB(pattern, text string) (bool, error) {
	if pattern == "" {
		return false, nil
	}
	re, err := CompileUMB(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

// MatchModeTriggers returns the target modes whose conditions appear in text.
//
// Rules are visited in order. A rule is only considered when available
// reports its target as loaded; the first matching condition is enough,
// and each target appears at most once in the result.
func MatchModeTriggers(rules []Rule, text string, available func(mode string) bool) []string {
	var matched []string
	seen := make(map[string]bool, len(rules))

	for _, r := range rules {
		if seen[r.Target] {
			continue
		}
		if available != nil && !available(r.Target) {
			continue
		}
		for _, cond := range r.Conditions {
			if cond == "" {
				continue
			}
			if strings.Contains(text, cond) {
				matched = append(matched, r.Target)
				seen[r.Target] = true
				break
			}
		}
	}

	return matched
}
