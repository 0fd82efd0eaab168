package repository

import (
	"fmt"
	"strings"
	"time"
)

const (
	noteExt      = ".md"
	maxNameChars = 200
	maxDedup     = 999
)

// filenameFor derives a file name from the note's heading: filesystem-hostile
// characters replaced, overlong names truncated, and collisions against taken
// resolved with a numeric suffix. Falls back to the uid when there is no
// heading, and to a timestamp name when every suffix is taken.
func filenameFor(heading, uid string, taken map[string]struct{}) string {
	base := sanitizeFilename(heading)
	if base == "" {
		base = uid
	}
	name := base + noteExt
	if _, exists := taken[name]; !exists {
		return name
	}
	for i := 2; i <= maxDedup; i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, noteExt)
		if _, exists := taken[name]; !exists {
			return name
		}
	}
	return fmt.Sprintf("note_%s%s", time.Now().UTC().Format("20060102150405"), noteExt)
}

// sanitizeFilename maps a heading to a safe file stem. Characters that are
// reserved on common filesystems become underscores; names longer than 200
// characters are truncated with a visible marker.
func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte('_')
		default:
			b.WriteRune(c)
		}
	}
	out := b.String()
	runes := []rune(out)
	if len(runes) > maxNameChars {
		out = string(runes[:maxNameChars]) + "..."
	}
	return out
}
