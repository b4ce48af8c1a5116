package memorybank

import (
	"embed"
	"path"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
)

//go:embed templates/*.md
var templateFS embed.FS

// CoreTemplate is the initial content of one core file.
type CoreTemplate struct {
	Name    string
	Content string
}

// CoreTemplates returns the seed content of every core file, in
// storage.CoreFiles order.
func CoreTemplates() []CoreTemplate {
	out := make([]CoreTemplate, 0, len(storage.CoreFiles))
	for _, name := range storage.CoreFiles {
		data, err := templateFS.ReadFile(path.Join("templates", name))
		if err != nil {
			// Every core file has an embedded template; a miss is a build defect.
			panic("memorybank: missing template " + name)
		}
		out = append(out, CoreTemplate{Name: name, Content: string(data)})
	}
	return out
}
