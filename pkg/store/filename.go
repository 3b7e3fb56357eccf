package store

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SanitizeName reduces an activity name to a filesystem-safe token: keeps
// alphanumerics, hyphens and whitespace, collapses whitespace runs to a
// single underscore, and truncates to maxLen runes. Pure and reproducible,
// so any component can recompute a filename from an item's own fields.
func SanitizeName(name string, maxLen int) string {
	var kept strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || unicode.IsSpace(r) {
			kept.WriteRune(r)
		}
	}

	sanitized := strings.Join(strings.Fields(kept.String()), "_")

	if maxLen > 0 {
		runes := []rune(sanitized)
		if len(runes) > maxLen {
			sanitized = strings.TrimRight(string(runes[:maxLen]), "_")
		}
	}

	if sanitized == "" {
		sanitized = "activity"
	}

	return sanitized
}

// ActivityFilename derives the storage filename for an activity from its
// own fields: {id}_{ISO-date}_{sanitizedName}.json.
func ActivityFilename(id int64, start time.Time, name string, maxLen int) string {
	return fmt.Sprintf("%d_%s_%s.json", id, start.UTC().Format("2006-01-02"), SanitizeName(name, maxLen))
}

// StreamFilename derives the storage filename for one stream type from the
// activity's base filename.
func StreamFilename(activityFilename, streamType string) string {
	base := strings.TrimSuffix(activityFilename, ".json")
	return fmt.Sprintf("%s_streams_%s.json", base, streamType)
}
