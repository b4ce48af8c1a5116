package rules

import (
	"embed"
	"path"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template returns the built-in rule file content for a mode.
func Template(mode string) (string, bool) {
	data, err := templateFS.ReadFile(path.Join("templates", mode+".yaml"))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// BuiltinTemplates returns the built-in templates for the given modes.
// Modes without a template are omitted.
func BuiltinTemplates(modes []string) map[string]string {
	out := make(map[string]string, len(modes))
	for _, m := range modes {
		if tpl, ok := Template(m); ok {
			out[m] = tpl
		}
	}
	return out
}
