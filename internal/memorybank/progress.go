package memorybank

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Core file names used by progress tracking.
const (
	progressFile      = "progress.md"
	activeContextFile = "active-context.md"
	decisionLogFile   = "decision-log.md"
)

// Section headings the progress tracker edits.
var (
	updateHistoryHead = regexp.MustCompile(`## Update History\s+`)
	sessionNotesHead  = regexp.MustCompile(`## Current Session Notes\s+`)

	sessionNotesSection = regexp.MustCompile(`(?s)## Current Session Notes\s+[^#]*`)
	ongoingTasksSection = regexp.MustCompile(`(?s)## Ongoing Tasks\s+[^#]*`)
	knownIssuesSection  = regexp.MustCompile(`(?s)## Known Issues\s+[^#]*`)
	nextStepsSection    = regexp.MustCompile(`(?s)## Next Steps\s+[^#]*`)
)

// Decision is one entry of the decision log.
type Decision struct {
	Title        string
	Context      string
	Decision     string
	Alternatives []string
	Consequences []string
}

// ActiveContext carries replacement lists for the active context
// sections. Empty lists leave their section untouched.
type ActiveContext struct {
	Tasks     []string
	Issues    []string
	NextSteps []string
}

// TrackProgress prepends an entry to the update history in progress.md and
// to the session notes in active-context.md. Missing sections are
// appended.
func (m *Manager) TrackProgress(ctx context.Context, action, description string) error {
	dir, err := m.requireDir()
	if err != nil {
		return err
	}

	now := timeNow()
	entry := fmt.Sprintf("- [%s %s] - %s: %s", now.Format("2006-01-02"), now.Format("15:04:05"), action, description)
	if err := m.editFile(ctx, dir, progressFile, func(content string) string {
		return insertAfterHeading(content, updateHistoryHead, "## Update History", entry)
	}); err != nil {
		return fmt.Errorf("tracking progress: %w", err)
	}

	note := fmt.Sprintf("- [%s] %s: %s", now.Format("15:04:05"), action, description)
	if err := m.editFile(ctx, dir, activeContextFile, func(content string) string {
		return insertAfterHeading(content, sessionNotesHead, "## Current Session Notes", note)
	}); err != nil {
		return fmt.Errorf("tracking progress: %w", err)
	}
	return nil
}

// LogDecision appends a decision section to decision-log.md.
func (m *Manager) LogDecision(ctx context.Context, d Decision) error {
	dir, err := m.requireDir()
	if err != nil {
		return err
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("logging decision: title is required")
	}

	now := timeNow()
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s\n", d.Title)
	fmt.Fprintf(&b, "- **Date:** %s %s\n", now.Format("2006-01-02"), now.Format("15:04:05"))
	fmt.Fprintf(&b, "- **Context:** %s\n", d.Context)
	fmt.Fprintf(&b, "- **Decision:** %s\n", d.Decision)
	b.WriteString("- **Alternatives Considered:**\n")
	writeBullets(&b, d.Alternatives)
	b.WriteString("- **Consequences:**\n")
	writeBullets(&b, d.Consequences)

	if err := m.editFile(ctx, dir, decisionLogFile, func(content string) string {
		return content + b.String()
	}); err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	return nil
}

func writeBullets(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("  - None\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

// UpdateActiveContext replaces the tasks, issues and next steps sections
// of active-context.md.
func (m *Manager) UpdateActiveContext(ctx context.Context, ac ActiveContext) error {
	dir, err := m.requireDir()
	if err != nil {
		return err
	}

	if err := m.editFile(ctx, dir, activeContextFile, func(content string) string {
		content = replaceSection(content, ongoingTasksSection, "Ongoing Tasks", ac.Tasks)
		content = replaceSection(content, knownIssuesSection, "Known Issues", ac.Issues)
		content = replaceSection(content, nextStepsSection, "Next Steps", ac.NextSteps)
		return content
	}); err != nil {
		return fmt.Errorf("updating active context: %w", err)
	}
	return nil
}

// ClearSessionNotes empties the session notes section of
// active-context.md.
func (m *Manager) ClearSessionNotes(ctx context.Context) error {
	dir, err := m.requireDir()
	if err != nil {
		return err
	}
	if err := m.editFile(ctx, dir, activeContextFile, func(content string) string {
		return replaceFirst(content, sessionNotesSection, "## Current Session Notes\n\n")
	}); err != nil {
		return fmt.Errorf("clearing session notes: %w", err)
	}
	return nil
}

// editFile reads a core file, applies fn and writes the result back.
func (m *Manager) editFile(ctx context.Context, dir, name string, fn func(string) string) error {
	p := m.store.Join(dir, name)
	content, err := m.store.ReadFile(ctx, p)
	if err != nil {
		return err
	}
	return m.store.WriteFile(ctx, p, fn(content))
}

// insertAfterHeading puts line right below the first match of head, or
// appends a new section when there is none.
func insertAfterHeading(content string, head *regexp.Regexp, heading, line string) string {
	if head.MatchString(content) {
		return replaceFirst(content, head, heading+"\n\n"+line+"\n")
	}
	return content + "\n\n" + heading + "\n\n" + line + "\n"
}

// replaceSection swaps the body of a section for a bullet list. Empty
// items leave content unchanged.
func replaceSection(content string, section *regexp.Regexp, title string, items []string) string {
	if len(items) == 0 {
		return content
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	b.WriteString("\n")

	if section.MatchString(content) {
		return replaceFirst(content, section, b.String())
	}
	return content + "\n\n" + b.String()
}

// replaceFirst replaces only the first match of re with a literal string.
func replaceFirst(content string, re *regexp.Regexp, repl string) string {
	loc := re.FindStringIndex(content)
	if loc == nil {
		return content
	}
	return content[:loc[0]] + repl + content[loc[1]:]
}
