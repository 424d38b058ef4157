// Package tagsetlit implements the tag-set directory literal grammar from
// spec.md §6: parsing a name like "{ tag_a, tag_b }" into its member tag
// names, and rendering a tag set back to its canonical directory name.
package tagsetlit

import (
	"sort"
	"strings"
)

// Parse reports whether s looks like a tag-set literal and, if so, the
// trimmed, de-duplicated (but unordered) tag names it names. It does not
// resolve names to inodes — that is the façade's job (UnknownTag).
func Parse(s string) (names []string, ok bool) {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []string{}, true
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(inner, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if strings.ContainsAny(name, "{},") {
			return nil, false
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, true
}

// Render produces the canonical directory name for a set of tag names:
// sorted ascending, deduplicated, joined with ", ", wrapped in "{ " and " }".
// An empty set renders as "{}".
func Render(names []string) string {
	uniq := dedupeSorted(names)
	if len(uniq) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(uniq, ", ") + " }"
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
