package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/zettelkasten/internal/graph"
	"github.com/starford/zettelkasten/internal/noteservice"
	"github.com/starford/zettelkasten/internal/parser"
)

// renderText lays a zettel out as plain text. Body references are annotated
// with the target title, or marked missing when the target does not exist.
func renderText(d *noteservice.Detail) string {
	titles := make(map[string]graph.Reference, len(d.References))
	for _, ref := range d.References {
		titles[ref.ID] = ref
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Title)
	fmt.Fprintf(&b, "id: %s | created: %s | updated: %s\n", d.ID, d.CreatedAt, d.UpdatedAt)
	if len(d.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(d.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(parser.Replace(d.Content, func(id string) string {
		if ref, ok := titles[id]; ok && ref.Resolved {
			return fmt.Sprintf("[[%s]] (%s)", id, ref.Title)
		}
		return fmt.Sprintf("[[%s]] (missing)", id)
	}))
	b.WriteString("\n")

	writeRefs(&b, "Links", d.ResolvedLinks)
	writeRefs(&b, "Backlinks", d.Backlinks)
	return b.String()
}

func writeRefs(b *strings.Builder, heading string, refs []graph.Reference) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n", heading)
	for _, ref := range refs {
		if ref.Resolved {
			fmt.Fprintf(b, "- %s %s\n", ref.ID, ref.Title)
		} else {
			fmt.Fprintf(b, "- %s (missing)\n", ref.ID)
		}
	}
}
