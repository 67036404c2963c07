package writer

import (
	"regexp"
)

var wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)

// sanitizeWikilinks replaces every [[target]] or [[target|display]] whose
// target is not in validTitles with its display text (or target if there
// was no display text), per spec.md §4.6 step 2.
func sanitizeWikilinks(content string, validTitles []string) string {
	valid := make(map[string]bool, len(validTitles))
	for _, t := range validTitles {
		valid[t] = true
	}

	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		groups := wikilinkRe.FindStringSubmatch(match)
		target, display := groups[1], groups[2]
		if valid[target] {
			return match
		}
		if display != "" {
			return display
		}
		return target
	})
}
