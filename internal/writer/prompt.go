package writer

import (
	"fmt"
	"strings"
	"time"

	"github.com/isocrates/isocrates/internal/types"
)

const writerTimeout = 20 * time.Minute

// buildPrompt assembles a single writer's prompt per spec.md §4.6: the
// blueprint entry, the relevant scout reports, the sibling-titles set, and
// the fixed style directives.
func buildPrompt(spec types.DocumentSpec, reports []types.ScoutReport, validTitles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the documentation page %q (path %q).\n", spec.Title, spec.Path)
	if spec.Rationale != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", spec.Rationale)
	}
	if len(spec.Sections) > 0 {
		b.WriteString("\nSections to cover:\n")
		for _, s := range spec.Sections {
			fmt.Fprintf(&b, "- %s", s.Heading)
			if len(s.Directives) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(s.Directives, "; "))
			}
			b.WriteString("\n")
		}
	}
	if len(spec.KeyFiles) > 0 {
		b.WriteString("\nKey files to read:\n")
		for _, f := range spec.KeyFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(spec.WikilinksOut) > 0 {
		fmt.Fprintf(&b, "\nLink to these related pages where relevant: %s\n", strings.Join(spec.WikilinksOut, ", "))
	}

	if len(reports) > 0 {
		b.WriteString("\nScout findings:\n")
		for _, r := range reports {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", r.Key, r.Content)
		}
	}

	b.WriteString("\nValid wiki pages (only these may appear inside [[...]]):\n")
	for _, t := range validTitles {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	b.WriteString("\nStyle: flowing prose, 1-2 pages long, no \"See Also\" section. Use [[Page Title]] or [[Page Title|display text]] for internal links and standard markdown for external links. Return only the document body in markdown.\n")
	return b.String()
}
