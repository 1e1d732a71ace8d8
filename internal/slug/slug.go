// Package slug normalizes free-form identifiers such as table names from URLs
// and builds download filenames.
package slug

import (
	"regexp"
	"strings"
)

const maxLen = 64

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,64}$`)

// IsSlug returns true if s matches ^[a-z0-9_]{2,64}$
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify lowercases s, maps every run of characters outside [a-z0-9] to a single '_',
// and trims separators from both ends. "Transfer-Type " becomes "transfer_type".
func Slugify(s string) string {
	return slugify(s, '_')
}

// Filename joins the slugified parts with '_' and appends ext (".xlsx").
// Empty parts are dropped.
func Filename(ext string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if sp := slugify(p, '-'); sp != "" {
			kept = append(kept, sp)
		}
	}
	if len(kept) == 0 {
		kept = append(kept, "export")
	}
	return strings.Join(kept, "_") + ext
}

func slugify(s string, sep rune) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteRune(sep)
			}
			pending = false
			b.WriteRune(r)
			if b.Len() >= maxLen {
				break
			}
			continue
		}
		pending = true
	}
	return b.String()
}
