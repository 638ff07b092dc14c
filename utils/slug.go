package utils

import (
	"strings"
)

// Slugify converts a display name into a URL-safe slug: lowercase ASCII
// letters, digits and single hyphens. Runs of any other characters collapse
// into one hyphen; leading and trailing hyphens are trimmed. Names with no
// ASCII-representable characters produce an empty string and callers fall
// back to a default base.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
